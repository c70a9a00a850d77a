// Package loop implements the detection loop: one iteration orchestrates
// side-table refresh, concurrent detector fan-out, the validation
// model, sequential blocker enforcement, and the authoritative
// block-list's dwell/release bookkeeping.
package loop

import (
	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/pkg/accesslog"
	"github.com/tempesta-tech/webshield/pkg/blocker"
	"github.com/tempesta-tech/webshield/pkg/detector"
	"github.com/tempesta-tech/webshield/pkg/useragent"
)

// AppContext is the immutable bundle handed to a DetectionLoop: the
// config, the shared access-log client, the user-agent manager, and
// the named sets of detectors and blockers enabled for this process.
// Nothing in it mutates after construction; the loop's own mutable
// state (the authoritative block-list, training progress) lives on
// DetectionLoop instead.
type AppContext struct {
	Config     *config.Config
	AccessLog  *accesslog.Client
	UserAgents *useragent.Manager
	Detectors  map[string]detector.Detector
	Blockers   map[string]blocker.Blocker
}

// NewAppContext builds an AppContext from its constituent parts.
func NewAppContext(cfg *config.Config, accessLog *accesslog.Client, userAgents *useragent.Manager, detectors map[string]detector.Detector, blockers map[string]blocker.Blocker) *AppContext {
	return &AppContext{
		Config:     cfg,
		AccessLog:  accessLog,
		UserAgents: userAgents,
		Detectors:  detectors,
		Blockers:   blockers,
	}
}
