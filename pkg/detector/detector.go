// Package detector implements the anomaly detectors that fetch
// candidate user cohorts from the access log, run the two-window
// validation model, and adapt their threshold each tick.
package detector

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/tempesta-tech/webshield/pkg/user"
)

// Detector is one fingerprint-domain/metric pairing (e.g. ip_rps,
// tfh_errors, geoip).
type Detector interface {
	// Name is the stable identifier used in config and logs.
	Name() string

	// Prepare runs any one-time setup. Most detectors have none.
	Prepare(ctx context.Context) error

	// FindUsers fetches the two candidate cohorts for the windows
	// ending at currentTime, each of length interval.
	FindUsers(ctx context.Context, currentTime, interval int64) (before, after []user.User, err error)

	// ValidateModel applies the two-window validation model and
	// returns the users to block, or an empty slice.
	ValidateModel(before, after []user.User) []user.User

	// UpdateThreshold adapts the detector's threshold from the batch
	// that was used to decide blocks this tick.
	UpdateThreshold(users []user.User)

	// Threshold returns the current threshold, rounded to two
	// fractional digits.
	Threshold() decimal.Decimal
}
