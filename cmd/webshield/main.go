// Command webshield runs the traffic-anomaly detection and response
// loop: it watches the access-log store for cohorts of addresses and
// fingerprints whose behavior spikes against an adaptive threshold,
// and drives one or more enforcement back-ends to block and later
// release them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-logr/logr"

	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/internal/logging"
	"github.com/tempesta-tech/webshield/pkg/accesslog"
	"github.com/tempesta-tech/webshield/pkg/audit"
	"github.com/tempesta-tech/webshield/pkg/blocker"
	"github.com/tempesta-tech/webshield/pkg/detector"
	"github.com/tempesta-tech/webshield/pkg/fingerprint"
	"github.com/tempesta-tech/webshield/pkg/geoip"
	"github.com/tempesta-tech/webshield/pkg/loop"
	"github.com/tempesta-tech/webshield/pkg/metrics"
	"github.com/tempesta-tech/webshield/pkg/useragent"
)

const defaultConfigPath = "/etc/tempesta-webshield/webshield.env"

func main() {
	configPath := flag.String("c", defaultConfigPath, "path to the environment-style config file")
	flag.StringVar(configPath, "config", defaultConfigPath, "path to the environment-style config file")
	logLevel := flag.String("l", "", "log level override (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	flag.StringVar(logLevel, "log-level", "", "log level override (DEBUG, INFO, WARNING, ERROR, CRITICAL)")
	verify := flag.Bool("verify", false, "load and validate config, then exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webshield: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	if *verify {
		os.Exit(0)
	}

	log, zl, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "webshield: %v\n", err)
		os.Exit(1)
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error(err, "webshield exited with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logr.Logger) error {
	accessLogCfg := accesslog.Config{
		Host:     cfg.AccessLogHost,
		Port:     cfg.AccessLogPort,
		User:     cfg.AccessLogUser,
		Password: cfg.AccessLogPassword,
		Database: cfg.AccessLogDatabase,
		Table:    cfg.AccessLogTable,
	}

	if err := accesslog.Migrate(ctx, accessLogCfg); err != nil {
		return err
	}

	accessLog, err := accesslog.Connect(ctx, accessLogCfg, log)
	if err != nil {
		return err
	}
	defer accessLog.Close()

	geo := geoip.New()
	if cfg.Detectors["geoip"] {
		if err := geo.LoadCities(cfg.GeoIPPathToDB); err != nil {
			log.Error(err, "loading geoip city database, geoip detector will allow nothing through")
		}
		if err := geo.LoadAllowedCities(cfg.GeoIPPathAllowedCitiesList); err != nil {
			log.Error(err, "loading geoip allowed-cities list")
		}
	}

	detectors := make(map[string]detector.Detector, len(cfg.Detectors))
	for name := range cfg.Detectors {
		if d := detector.New(name, cfg.Detector[name], accessLog, geo); d != nil {
			detectors[name] = d
		}
	}

	blockers := buildBlockers(cfg)

	userAgents := useragent.New(cfg.AllowedUserAgentsFilePath, accessLog, log)

	app := loop.NewAppContext(cfg, accessLog, userAgents, detectors, blockers)

	m := metrics.New("webshield", "")

	detectionLoop := newDetectionLoop(app, m, cfg, log)
	return detectionLoop.Run(ctx)
}

// newDetectionLoop wires the optional audit trail in only when it is
// actually available, so loop.New never receives a non-nil interface
// wrapping a nil *audit.Repository.
func newDetectionLoop(app *loop.AppContext, m *metrics.Metrics, cfg *config.Config, log logr.Logger) *loop.DetectionLoop {
	if cfg.AuditDatabaseURL == "" {
		return loop.New(app, m, nil, log)
	}

	if err := audit.Migrate(context.Background(), cfg.AuditDatabaseURL); err != nil {
		log.Error(err, "applying audit migrations, continuing without an audit trail")
		return loop.New(app, m, nil, log)
	}

	repo, err := audit.Open(cfg.AuditDatabaseURL)
	if err != nil {
		log.Error(err, "connecting audit repository, continuing without an audit trail")
		return loop.New(app, m, nil, log)
	}

	return loop.New(app, m, repo, log)
}

func buildBlockers(cfg *config.Config) map[string]blocker.Blocker {
	blockers := make(map[string]blocker.Blocker, len(cfg.BlockingTypes))

	for name := range cfg.BlockingTypes {
		switch name {
		case "tft":
			c := fingerprint.New(cfg.PathToTFtConfig)
			blockers["tft"] = blocker.NewTFt(c, cfg.TempestaExecutablePath, cfg.TempestaConfigPath)
		case "tfh":
			c := fingerprint.New(cfg.PathToTFhConfig)
			blockers["tfh"] = blocker.NewTFh(c, cfg.TempestaExecutablePath, cfg.TempestaConfigPath)
		case "ipset":
			blockers["ipset"] = blocker.NewIPSet(cfg.BlockingIPSetName)
		case "nftables":
			blockers["nftables"] = blocker.NewNFT("inet", "filter", cfg.BlockingIPSetName)
		}
	}

	return blockers
}
