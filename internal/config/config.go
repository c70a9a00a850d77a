// Package config loads the detection core's environment-style
// configuration file and exposes it as a typed Config struct with
// defaults matching the original Tempesta WebShield deployment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/tempesta-tech/webshield/internal/errors"
)

// TrainingMode selects whether the detection loop enforces blocks.
type TrainingMode string

const (
	TrainingOff        TrainingMode = "off"
	TrainingHistorical TrainingMode = "historical"
	TrainingReal       TrainingMode = "real"
)

// DetectorParams is the per-detector threshold/percentage/limit triple
// shared by every detector variant, plus the error-detector-only
// allowed-statuses list.
type DetectorParams struct {
	DefaultThreshold        decimal.Decimal
	IntersectionPercent     decimal.Decimal
	BlockUsersPerIteration  decimal.Decimal
	AllowedStatuses         []int
}

// Config is the full set of keys spec.md §6 enumerates, grouped the way
// the original AppConfig groups them.
type Config struct {
	// Access-log connection.
	AccessLogHost     string
	AccessLogPort     int
	AccessLogUser     string
	AccessLogPassword string
	AccessLogDatabase string
	AccessLogTable    string

	// Fingerprint config files.
	PathToTFtConfig string
	PathToTFhConfig string

	TempestaExecutablePath string
	TempestaConfigPath     string

	AllowedUserAgentsFilePath string

	// Blocker/detector selection.
	BlockingTypes map[string]bool
	Detectors     map[string]bool

	BlockingWindowDurationSec int
	BlockingIPSetName         string
	BlockingTimeMin           int
	BlockingReleaseTimeMin    int

	TrainingMode            TrainingMode
	TrainingModeDurationMin int

	PersistentUsersAllow             bool
	PersistentUsersWindowOffsetMin   int
	PersistentUsersWindowDurationMin int

	Detector map[string]DetectorParams

	GeoIPPathToDB               string
	GeoIPPathAllowedCitiesList  string

	// AuditDatabaseURL is the connection string for the audit trail
	// store. Empty disables auditing entirely.
	AuditDatabaseURL string

	LogLevel string
}

var defaultDetectorParams = DetectorParams{
	DefaultThreshold:       decimal.NewFromInt(10),
	IntersectionPercent:    decimal.NewFromInt(10),
	BlockUsersPerIteration: decimal.NewFromInt(10),
	AllowedStatuses: []int{
		100, 101, 200, 201, 204, 300, 301, 302, 303, 304, 305, 307, 308, 400, 401, 403,
	},
}

var detectorNames = []string{
	"ip_rps", "ip_time", "ip_errors",
	"tft_rps", "tft_time", "tft_errors",
	"tfh_rps", "tfh_time", "tfh_errors",
	"geoip",
}

// Default returns a Config populated with the same defaults as the
// original Python AppConfig.
func Default() *Config {
	c := &Config{
		AccessLogHost:     "192.168.0.104",
		AccessLogPort:     8123,
		AccessLogUser:     "default",
		AccessLogDatabase: "default",
		AccessLogTable:    "access_log",

		PathToTFtConfig: "/etc/tempesta/tft/blocked.conf",
		PathToTFhConfig: "/etc/tempesta/tfh/blocked.conf",

		AllowedUserAgentsFilePath: "/etc/tempesta-webshield/allow_user_agents.txt",

		BlockingTypes: map[string]bool{"tft": true},
		Detectors:     map[string]bool{"tft_rps": true, "tft_time": true, "tft_errors": true},

		BlockingWindowDurationSec: 10,
		BlockingIPSetName:         "tempesta_blocked_ips",
		BlockingTimeMin:           60,
		BlockingReleaseTimeMin:    1,

		TrainingMode:            TrainingOff,
		TrainingModeDurationMin: 10,

		PersistentUsersAllow:             true,
		PersistentUsersWindowOffsetMin:   60,
		PersistentUsersWindowDurationMin: 60,

		GeoIPPathToDB:              "/etc/tempesta-webshield/city.csv",
		GeoIPPathAllowedCitiesList: "/etc/tempesta-webshield/allowed_cities.txt",

		LogLevel: "INFO",
	}

	c.Detector = make(map[string]DetectorParams, len(detectorNames))
	for _, name := range detectorNames {
		c.Detector[name] = defaultDetectorParams
	}

	return c
}

// Load reads an environment-style file at path and overlays it onto the
// defaults. A missing file is a Fatal error per spec.md §6.
func Load(path string) (*Config, error) {
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeFatal, "config file not found at path: %s", path)
	}

	c := Default()
	applyEnv(c, env)

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks the enum-constrained fields.
func (c *Config) Validate() error {
	switch c.TrainingMode {
	case TrainingOff, TrainingHistorical, TrainingReal:
	default:
		return errors.Newf(errors.ErrorTypeFatal, "invalid training_mode: %q", c.TrainingMode)
	}

	for name := range c.BlockingTypes {
		switch name {
		case "tft", "tfh", "ipset", "nftables":
		default:
			return errors.Newf(errors.ErrorTypeFatal, "invalid blocking type: %q", name)
		}
	}

	for name := range c.Detectors {
		found := false
		for _, known := range detectorNames {
			if known == name {
				found = true
				break
			}
		}
		if !found {
			return errors.Newf(errors.ErrorTypeFatal, "invalid detector: %q", name)
		}
	}

	return nil
}

// Derived seconds accessors, mirroring the Python AppConfig properties
// that store minutes but expose seconds.

func (c *Config) TrainingModeDuration() time.Duration {
	return time.Duration(c.TrainingModeDurationMin) * time.Minute
}

func (c *Config) PersistentUsersWindowOffset() time.Duration {
	return time.Duration(c.PersistentUsersWindowOffsetMin) * time.Minute
}

func (c *Config) PersistentUsersWindowDuration() time.Duration {
	return time.Duration(c.PersistentUsersWindowDurationMin) * time.Minute
}

func (c *Config) BlockingReleaseTime() time.Duration {
	return time.Duration(c.BlockingReleaseTimeMin) * time.Minute
}

func (c *Config) BlockingTime() time.Duration {
	return time.Duration(c.BlockingTimeMin) * time.Minute
}

func (c *Config) BlockingWindowDuration() time.Duration {
	return time.Duration(c.BlockingWindowDurationSec) * time.Second
}

func applyEnv(c *Config, env map[string]string) {
	str := func(key string, dst *string) {
		if v, ok := env[key]; ok && v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := env[key]; ok && v != "" {
			fmt.Sscanf(v, "%d", dst)
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := env[key]; ok {
			*dst = v == "true" || v == "1" || v == "yes"
		}
	}
	set := func(key string, dst *map[string]bool) {
		if v, ok := env[key]; ok {
			parsed := parseSet(v)
			if len(parsed) > 0 {
				*dst = parsed
			}
		}
	}

	str("CLICKHOUSE_HOST", &c.AccessLogHost)
	integer("CLICKHOUSE_PORT", &c.AccessLogPort)
	str("CLICKHOUSE_USER", &c.AccessLogUser)
	str("CLICKHOUSE_PASSWORD", &c.AccessLogPassword)
	str("CLICKHOUSE_DATABASE", &c.AccessLogDatabase)
	str("CLICKHOUSE_TABLE_NAME", &c.AccessLogTable)

	str("PATH_TO_TFT_CONFIG", &c.PathToTFtConfig)
	str("PATH_TO_TFH_CONFIG", &c.PathToTFhConfig)
	str("TEMPESTA_EXECUTABLE_PATH", &c.TempestaExecutablePath)
	str("TEMPESTA_CONFIG_PATH", &c.TempestaConfigPath)
	str("ALLOWED_USER_AGENTS_FILE_PATH", &c.AllowedUserAgentsFilePath)

	set("BLOCKING_TYPES", &c.BlockingTypes)
	set("DETECTORS", &c.Detectors)

	integer("BLOCKING_WINDOW_DURATION_SEC", &c.BlockingWindowDurationSec)
	str("BLOCKING_IPSET_NAME", &c.BlockingIPSetName)
	integer("BLOCKING_TIME_MIN", &c.BlockingTimeMin)
	integer("BLOCKING_RELEASE_TIME_MIN", &c.BlockingReleaseTimeMin)

	if v, ok := env["TRAINING_MODE"]; ok && v != "" {
		c.TrainingMode = TrainingMode(v)
	}
	integer("TRAINING_MODE_DURATION_MIN", &c.TrainingModeDurationMin)

	boolean("PERSISTENT_USERS_ALLOW", &c.PersistentUsersAllow)
	integer("PERSISTENT_USERS_WINDOW_OFFSET_MIN", &c.PersistentUsersWindowOffsetMin)
	integer("PERSISTENT_USERS_WINDOW_DURATION_MIN", &c.PersistentUsersWindowDurationMin)

	str("DETECTOR_GEOIP_PATH_TO_DB", &c.GeoIPPathToDB)
	str("DETECTOR_GEOIP_PATH_ALLOWED_CITIES_LIST", &c.GeoIPPathAllowedCitiesList)

	str("AUDIT_DATABASE_URL", &c.AuditDatabaseURL)

	str("LOG_LEVEL", &c.LogLevel)

	for _, name := range detectorNames {
		applyDetectorEnv(c, env, name)
	}
}

func applyDetectorEnv(c *Config, env map[string]string, name string) {
	params := c.Detector[name]
	prefix := "DETECTOR_" + upperSnake(name) + "_"

	if v, ok := env[prefix+"DEFAULT_THRESHOLD"]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			params.DefaultThreshold = d
		}
	}
	if v, ok := env[prefix+"INTERSECTION_PERCENT"]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			params.IntersectionPercent = d
		}
	}
	if v, ok := env[prefix+"BLOCK_USERS_PER_ITERATION"]; ok {
		if d, err := decimal.NewFromString(v); err == nil {
			params.BlockUsersPerIteration = d
		}
	}
	if v, ok := env[prefix+"ALLOWED_STATUSES"]; ok {
		var statuses []int
		for _, part := range splitCSV(v) {
			var s int
			if _, err := fmt.Sscanf(part, "%d", &s); err == nil {
				statuses = append(statuses, s)
			}
		}
		if len(statuses) > 0 {
			params.AllowedStatuses = statuses
		}
	}

	c.Detector[name] = params
}

func upperSnake(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func parseSet(v string) map[string]bool {
	out := make(map[string]bool)
	for _, part := range splitCSV(v) {
		out[part] = true
	}
	return out
}

func splitCSV(v string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(v); i++ {
		if i == len(v) || v[i] == ',' {
			part := trimSpace(v[start:i])
			if part != "" {
				parts = append(parts, part)
			}
			start = i + 1
		}
	}
	return parts
}

func trimSpace(s string) string {
	start, end := 0, len(s)
	for start < end && (s[start] == ' ' || s[start] == '\t') {
		start++
	}
	for end > start && (s[end-1] == ' ' || s[end-1] == '\t') {
		end--
	}
	return s[start:end]
}
