package detector

import (
	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/pkg/geoip"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// New builds the detector named by name from its configured
// parameters. geo is only consulted for the "geoip" variant.
func New(name string, params config.DetectorParams, accessLog querier, geo *geoip.DB) Detector {
	switch name {
	case "ip_rps":
		return sql(name, "address", user.KeyIP, metricRPS, params, accessLog)
	case "ip_time":
		return sql(name, "address", user.KeyIP, metricTime, params, accessLog)
	case "ip_errors":
		return sql(name, "address", user.KeyIP, metricErrors, params, accessLog)
	case "tft_rps":
		return sql(name, "tft", user.KeyTFt, metricRPS, params, accessLog)
	case "tft_time":
		return sql(name, "tft", user.KeyTFt, metricTime, params, accessLog)
	case "tft_errors":
		return sql(name, "tft", user.KeyTFt, metricErrors, params, accessLog)
	case "tfh_rps":
		return sql(name, "tfh", user.KeyTFh, metricRPS, params, accessLog)
	case "tfh_time":
		return sql(name, "tfh", user.KeyTFh, metricTime, params, accessLog)
	case "tfh_errors":
		return sql(name, "tfh", user.KeyTFh, metricErrors, params, accessLog)
	case "geoip":
		return newGeoIPDetector(params, accessLog, geo)
	default:
		return nil
	}
}

func sql(name, groupBy string, key user.Key, m metric, params config.DetectorParams, accessLog querier) Detector {
	return newSQLDetector(
		name, groupBy, key, m, params.AllowedStatuses,
		params.DefaultThreshold, params.IntersectionPercent, params.BlockUsersPerIteration,
		accessLog,
	)
}
