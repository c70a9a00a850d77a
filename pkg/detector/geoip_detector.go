package detector

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/pkg/geoip"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// geoIPDetector groups by address like ip_rps, then drops any user
// whose resolved city is on the allow-list — the identity domain is
// still IP, but the candidate filter runs in Go rather than SQL since
// the columnar store has no notion of city.
type geoIPDetector struct {
	inner *sqlDetector
	geo   *geoip.DB
}

func newGeoIPDetector(params config.DetectorParams, accessLog querier, geo *geoip.DB) Detector {
	return &geoIPDetector{
		inner: newSQLDetector("geoip", "address", user.KeyIP, metricRPS, nil,
			params.DefaultThreshold, params.IntersectionPercent, params.BlockUsersPerIteration, accessLog),
		geo: geo,
	}
}

func (d *geoIPDetector) Name() string { return "geoip" }

func (d *geoIPDetector) Prepare(ctx context.Context) error { return d.inner.Prepare(ctx) }

func (d *geoIPDetector) Threshold() decimal.Decimal { return d.inner.Threshold() }

func (d *geoIPDetector) FindUsers(ctx context.Context, currentTime, interval int64) ([]user.User, []user.User, error) {
	before, after, err := d.inner.FindUsers(ctx, currentTime, interval)
	if err != nil {
		return nil, nil, err
	}
	return d.filterAllowedCities(before), d.filterAllowedCities(after), nil
}

func (d *geoIPDetector) filterAllowedCities(users []user.User) []user.User {
	if d.geo == nil {
		return users
	}

	out := make([]user.User, 0, len(users))
	for _, u := range users {
		if d.allAllowed(u) {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (d *geoIPDetector) allAllowed(u user.User) bool {
	for _, addr := range u.IP {
		if !d.geo.CityAllowed(addr) {
			return false
		}
	}
	return len(u.IP) > 0
}

func (d *geoIPDetector) ValidateModel(before, after []user.User) []user.User {
	return d.inner.ValidateModel(before, after)
}

func (d *geoIPDetector) UpdateThreshold(users []user.User) {
	d.inner.UpdateThreshold(users)
}
