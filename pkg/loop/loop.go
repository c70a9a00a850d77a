package loop

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/internal/errors"
	"github.com/tempesta-tech/webshield/internal/logging"
	"github.com/tempesta-tech/webshield/pkg/audit"
	"github.com/tempesta-tech/webshield/pkg/blocker"
	"github.com/tempesta-tech/webshield/pkg/detector"
	"github.com/tempesta-tech/webshield/pkg/metrics"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// applyGracePeriod bounds how long a blocker's Apply is allowed to run
// past a shutdown signal, so in-flight enforcement-surface writes can
// land instead of being cut off mid-write.
const applyGracePeriod = time.Second

// auditRecorder is the subset of audit.Repository the loop depends on.
type auditRecorder interface {
	Record(ctx context.Context, rec audit.Record) error
}

// DetectionLoop drives one detection/enforcement iteration at a time.
// The authoritative block-list and training-window bookkeeping are
// owned exclusively by this type; AppContext itself never mutates.
type DetectionLoop struct {
	app     *AppContext
	metrics *metrics.Metrics
	audit   auditRecorder
	log     logr.Logger
	now     func() int64

	detectors map[string]detector.Detector
	blockers  map[string]blocker.Blocker

	trainingStartedAt int64
	blockList         map[string]user.User
}

// New builds a DetectionLoop. auditRepo and m may be nil; both are
// treated as optional observability side effects.
func New(app *AppContext, m *metrics.Metrics, auditRepo auditRecorder, log logr.Logger) *DetectionLoop {
	return &DetectionLoop{
		app:       app,
		metrics:   m,
		audit:     auditRepo,
		log:       log,
		now:       func() int64 { return time.Now().Unix() },
		detectors: app.Detectors,
		blockers:  app.Blockers,
		blockList: make(map[string]user.User),
	}
}

// Prepare runs each blocker's one-time startup check, disabling any
// that fail (per the PreparationError recovery path) and seeding the
// authoritative block-list from every surviving blocker's Load. If no
// blocker survives, preparation is fatal for the process.
func (l *DetectionLoop) Prepare(ctx context.Context) error {
	survivors := make(map[string]blocker.Blocker, len(l.blockers))
	for name, b := range l.blockers {
		if err := b.Prepare(ctx); err != nil {
			l.log.Error(err, "blocker failed preparation, disabling",
				logging.NewFields().Component("loop").Blocker(name).KeysAndValues()...)
			continue
		}
		survivors[name] = b
	}

	if len(l.blockers) > 0 && len(survivors) == 0 {
		return errors.New(errors.ErrorTypeFatal, "no blocker survived preparation")
	}
	l.blockers = survivors

	for name, b := range l.blockers {
		loaded, err := b.Load(ctx)
		if err != nil {
			l.log.Error(err, "loading existing blocks",
				logging.NewFields().Component("loop").Blocker(name).KeysAndValues()...)
			continue
		}
		for hash, u := range loaded {
			if existing, ok := l.blockList[hash]; ok {
				u = existing.Merge(u)
			}
			l.blockList[hash] = u
		}
	}

	return nil
}

// Run prepares the loop, starts the user-agent manager's own
// reconciliation cadence, and then iterates until ctx is cancelled.
func (l *DetectionLoop) Run(ctx context.Context) error {
	if err := l.Prepare(ctx); err != nil {
		return err
	}

	if l.app.UserAgents != nil {
		go l.app.UserAgents.Run(ctx, l.app.Config.BlockingWindowDuration())
	}

	sleep := l.app.Config.BlockingReleaseTime()

	for {
		if err := l.Iterate(ctx); err != nil {
			l.log.Error(err, "iteration failed", logging.NewFields().Component("loop").KeysAndValues()...)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sleep):
		}
	}
}

// Iterate runs the nine-step sequence once: refresh side tables, fan
// out detectors concurrently, validate and adapt thresholds, union
// candidates, enforce blocks (unless training mode suppresses
// enforcement), reconcile the authoritative block-list, and release
// anything past its dwell time.
func (l *DetectionLoop) Iterate(ctx context.Context) error {
	start := time.Now()
	now := l.now()
	interval := int64(l.app.Config.BlockingWindowDuration().Seconds())

	if l.app.UserAgents != nil {
		l.app.UserAgents.Reconcile(ctx)
	}
	if l.app.Config.PersistentUsersAllow {
		l.populatePersistentUsers(ctx, now)
	}

	queryTime := l.windowAnchor(now)
	candidates := l.findAndValidate(ctx, queryTime, interval)

	newBlocks := make(map[string]user.User)
	for name, users := range candidates {
		for _, u := range users {
			hash := u.Hash()
			if existing, ok := newBlocks[hash]; ok {
				newBlocks[hash] = existing.Merge(u)
			} else {
				newBlocks[hash] = u
			}
		}
		if l.metrics != nil {
			l.metrics.CandidatesFound.WithLabelValues(name).Add(float64(len(users)))
		}
	}

	if l.enforcementEnabled(now) {
		l.applyBlocks(ctx, newBlocks, now)
	}

	l.releaseExpired(ctx, now)

	if l.metrics != nil {
		l.metrics.IterationDuration.Observe(time.Since(start).Seconds())
	}

	return nil
}

// findAndValidate fetches both windows for every enabled detector
// concurrently, applies each detector's own validation model, and
// adapts its threshold from the resulting batch. A detector whose
// query fails contributes no candidates for this tick; the iteration
// continues (TransientStoreError recovery path).
func (l *DetectionLoop) findAndValidate(ctx context.Context, currentTime, interval int64) map[string][]user.User {
	var mu sync.Mutex
	results := make(map[string][]user.User, len(l.detectors))

	g, gctx := errgroup.WithContext(ctx)
	for name, d := range l.detectors {
		name, d := name, d
		g.Go(func() error {
			before, after, err := d.FindUsers(gctx, currentTime, interval)
			if err != nil {
				l.log.Error(err, "detector query failed, contributing no candidates",
					logging.NewFields().Component("loop").Detector(name).KeysAndValues()...)
				before, after = nil, nil
			}

			batch := d.ValidateModel(before, after)
			d.UpdateThreshold(batch)

			mu.Lock()
			results[name] = batch
			mu.Unlock()

			if l.metrics != nil {
				threshold, _ := d.Threshold().Float64()
				l.metrics.DetectorThreshold.WithLabelValues(name).Set(threshold)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// applyBlocks drives every enabled blocker sequentially: Block for
// each new candidate, then one Apply. A failed Block or Apply is
// logged and counted but never aborts enforcement for the remaining
// blockers, and the authoritative block-list is still updated as if
// the operation succeeded, per the EnforcementError recovery path —
// dwell timing stays stable. Load runs only in Prepare, so the
// physical surface is reconciled into the block-list on the next start.
func (l *DetectionLoop) applyBlocks(ctx context.Context, newBlocks map[string]user.User, now int64) {
	for name, b := range l.blockers {
		for _, u := range newBlocks {
			if err := b.Block(u); err != nil {
				l.recordFailure(name, "block", err)
				l.recordAudit(ctx, audit.ActionBlock, "", name, u, err)
				continue
			}
			l.recordAudit(ctx, audit.ActionBlock, "", name, u, nil)
		}

		applyCtx, cancel := context.WithTimeout(context.Background(), applyGracePeriod)
		err := b.Apply(applyCtx)
		cancel()

		if err != nil {
			l.recordFailure(name, "apply", err)
			continue
		}
		if l.metrics != nil && len(newBlocks) > 0 {
			l.metrics.BlocksApplied.WithLabelValues(name).Inc()
		}
	}

	for hash, u := range newBlocks {
		stamped := now
		if existing, ok := l.blockList[hash]; ok {
			u = existing.Merge(u)
		}
		u.BlockedAt = &stamped
		l.blockList[hash] = u
	}
}

// releaseExpired releases every block-list entry whose dwell time has
// elapsed from every enabled blocker, then drops it from the
// authoritative map.
func (l *DetectionLoop) releaseExpired(ctx context.Context, now int64) {
	blockingTime := int64(l.app.Config.BlockingTime().Seconds())

	for hash, u := range l.blockList {
		if u.BlockedAt == nil || now-*u.BlockedAt < blockingTime {
			continue
		}

		for name, b := range l.blockers {
			if err := b.Release(u); err != nil {
				l.recordFailure(name, "release", err)
				l.recordAudit(ctx, audit.ActionRelease, "", name, u, err)
				continue
			}
			if l.metrics != nil {
				l.metrics.BlocksReleased.WithLabelValues(name).Inc()
			}
			l.recordAudit(ctx, audit.ActionRelease, "", name, u, nil)
		}

		delete(l.blockList, hash)
	}
}

// enforcementEnabled implements the training-mode state machine: off
// always enforces; real and historical suppress enforcement (step 6)
// for training_mode_duration_sec from the loop's first iteration, then
// behave like off.
func (l *DetectionLoop) enforcementEnabled(now int64) bool {
	switch l.app.Config.TrainingMode {
	case config.TrainingReal, config.TrainingHistorical:
		if l.trainingStartedAt == 0 {
			l.trainingStartedAt = now
		}
		return now-l.trainingStartedAt >= int64(l.app.Config.TrainingModeDuration().Seconds())
	default:
		return true
	}
}

// windowAnchor returns the timestamp the two query windows are
// computed relative to. historical mode freezes this at the loop's
// first iteration so the same calibration period replays on every
// tick; every other mode tracks wall-clock time.
func (l *DetectionLoop) windowAnchor(now int64) int64 {
	if l.app.Config.TrainingMode != config.TrainingHistorical {
		return now
	}
	if l.trainingStartedAt == 0 {
		l.trainingStartedAt = now
	}
	return l.trainingStartedAt
}

// populatePersistentUsers refreshes the persistent_users side table
// with addresses active in the configured historical window. A query
// or write failure is logged and skipped; the previous table contents
// remain authoritative until the next tick.
func (l *DetectionLoop) populatePersistentUsers(ctx context.Context, now int64) {
	offset := int64(l.app.Config.PersistentUsersWindowOffset().Seconds())
	duration := int64(l.app.Config.PersistentUsersWindowDuration().Seconds())
	start := now - offset - duration
	finish := now - offset

	query := fmt.Sprintf("SELECT DISTINCT address FROM %s WHERE timestamp >= $1 AND timestamp < $2", l.app.Config.AccessLogTable)
	rows, err := l.app.AccessLog.Query(ctx, query, start, finish)
	if err != nil {
		l.log.Error(err, "querying persistent-user window",
			logging.NewFields().Component("loop").Operation("persistent_users").KeysAndValues()...)
		return
	}

	addrs := make([]string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if addr, ok := row[0].(string); ok {
			addrs = append(addrs, addr)
		}
	}

	if err := l.app.AccessLog.ReplacePersistentUsers(ctx, addrs); err != nil {
		l.log.Error(err, "replacing persistent_users table",
			logging.NewFields().Component("loop").Operation("persistent_users").KeysAndValues()...)
	}
}

func (l *DetectionLoop) recordFailure(blockerName, op string, err error) {
	l.log.Error(err, "blocker operation failed",
		logging.NewFields().Component("loop").Blocker(blockerName).Operation(op).KeysAndValues()...)
	if l.metrics != nil {
		l.metrics.BlockerFailures.WithLabelValues(blockerName, op).Inc()
	}
}

func (l *DetectionLoop) recordAudit(ctx context.Context, action, detectorName, blockerName string, u user.User, cause error) {
	if l.audit == nil {
		return
	}

	rec := audit.Record{
		Action:   action,
		Detector: detectorName,
		Blocker:  blockerName,
		UserHash: u.Hash(),
		Reason:   "threshold exceeded",
	}
	if cause != nil {
		msg := cause.Error()
		rec.Error = &msg
	}

	if err := l.audit.Record(ctx, rec); err != nil {
		l.log.Error(err, "recording audit entry", logging.NewFields().Component("loop").KeysAndValues()...)
	}
}

// BlockList returns a snapshot of the authoritative block-list,
// exposed for tests and operator tooling; the loop itself never reads
// it back except to decide releases.
func (l *DetectionLoop) BlockList() map[string]user.User {
	out := make(map[string]user.User, len(l.blockList))
	for k, v := range l.blockList {
		out[k] = v
	}
	return out
}
