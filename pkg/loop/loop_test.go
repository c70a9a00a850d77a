package loop

import (
	"context"
	"testing"

	"github.com/go-logr/logr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tempesta-tech/webshield/internal/config"
	"github.com/tempesta-tech/webshield/pkg/blocker"
	"github.com/tempesta-tech/webshield/pkg/detector"
	"github.com/tempesta-tech/webshield/pkg/user"
)

func detMap(ds ...detector.Detector) map[string]detector.Detector {
	m := make(map[string]detector.Detector, len(ds))
	for _, d := range ds {
		m[d.Name()] = d
	}
	return m
}

func blkMap(bs ...blocker.Blocker) map[string]blocker.Blocker {
	m := make(map[string]blocker.Blocker, len(bs))
	for _, b := range bs {
		m[b.Name()] = b
	}
	return m
}

// fakeDetector returns one fixed (before, after) pair on every call.
type fakeDetector struct {
	name      string
	before    []user.User
	after     []user.User
	err       error
	threshold decimal.Decimal
}

func (d *fakeDetector) Name() string                     { return d.name }
func (d *fakeDetector) Prepare(ctx context.Context) error { return nil }
func (d *fakeDetector) Threshold() decimal.Decimal        { return d.threshold }
func (d *fakeDetector) UpdateThreshold(users []user.User) {}
func (d *fakeDetector) FindUsers(ctx context.Context, currentTime, interval int64) ([]user.User, []user.User, error) {
	return d.before, d.after, d.err
}
func (d *fakeDetector) ValidateModel(before, after []user.User) []user.User {
	if len(before) == 0 {
		return nil
	}
	return after
}

// fakeBlocker is an in-memory IP-set-shaped blocker for exercising the
// identity-union and dwell properties without a real kernel packet
// filter.
type fakeBlocker struct {
	name    string
	blocked map[string]bool
	applies int
}

func newFakeBlocker(name string) *fakeBlocker {
	return &fakeBlocker{name: name, blocked: map[string]bool{}}
}

func (b *fakeBlocker) Name() string                     { return b.name }
func (b *fakeBlocker) Prepare(ctx context.Context) error { return nil }
func (b *fakeBlocker) Load(ctx context.Context) (map[string]user.User, error) {
	return map[string]user.User{}, nil
}
func (b *fakeBlocker) Block(u user.User) error {
	for _, ip := range u.IP {
		b.blocked[ip] = true
	}
	return nil
}
func (b *fakeBlocker) Release(u user.User) error {
	for _, ip := range u.IP {
		delete(b.blocked, ip)
	}
	return nil
}
func (b *fakeBlocker) Apply(ctx context.Context) error {
	b.applies++
	return nil
}
func (b *fakeBlocker) Info() []user.User {
	out := make([]user.User, 0, len(b.blocked))
	for ip := range b.blocked {
		out = append(out, user.User{IP: []string{ip}})
	}
	return out
}

func TestIdentityUnionAcrossApply(t *testing.T) {
	det := &fakeDetector{
		name:   "ip_rps",
		before: []user.User{{IP: []string{"1.1.1.1"}, Value: decimal.NewFromInt(5)}},
		after:  []user.User{{IP: []string{"2.2.2.1", "2.2.2.2"}, Value: decimal.NewFromInt(50)}},
	}

	cfg := config.Default()
	cfg.PersistentUsersAllow = false
	blk := newFakeBlocker("ipset")

	l := &DetectionLoop{
		app:       &AppContext{Config: cfg},
		log:       logr.Discard(),
		now:       func() int64 { return 1000 },
		detectors: detMap(det),
		blockers:  blkMap(blk),
		blockList: map[string]user.User{},
	}

	require.NoError(t, l.Iterate(context.Background()))

	assert.True(t, blk.blocked["2.2.2.1"])
	assert.True(t, blk.blocked["2.2.2.2"])
	assert.Equal(t, 1, blk.applies)
}

func TestDwellReleasesOnlyAtOrAfterBlockingTime(t *testing.T) {
	cfg := config.Default()
	cfg.BlockingTimeMin = 1 // BlockingTime() == 60s, matching spec's literal scenario

	blk := newFakeBlocker("ipset")
	l := &DetectionLoop{
		app:       &AppContext{Config: cfg},
		log:       logr.Discard(),
		detectors: detMap(&fakeDetector{name: "ip_rps"}),
		blockers:  blkMap(blk),
		blockList: map[string]user.User{},
	}

	blockedAt := int64(1000)
	u := user.User{IP: []string{"9.9.9.9"}, BlockedAt: &blockedAt}
	l.blockList[u.Hash()] = u
	blk.blocked["9.9.9.9"] = true

	l.releaseExpired(context.Background(), 1059)
	assert.True(t, blk.blocked["9.9.9.9"], "must not release before blocking_time_sec elapses")
	assert.Contains(t, l.blockList, u.Hash())

	l.releaseExpired(context.Background(), 1060)
	assert.False(t, blk.blocked["9.9.9.9"], "must release once blocking_time_sec has elapsed")
	assert.NotContains(t, l.blockList, u.Hash())
}

func TestBurstScenarioAppliesExactCohort(t *testing.T) {
	det := &fakeDetector{
		name: "ip_rps",
		before: []user.User{
			{IP: []string{"1.1.1.1"}, Value: decimal.NewFromInt(5)},
			{IP: []string{"1.1.1.2"}, Value: decimal.NewFromInt(5)},
		},
		after: []user.User{
			{IP: []string{"2.2.2.1"}, Value: decimal.NewFromInt(50)},
			{IP: []string{"2.2.2.2"}, Value: decimal.NewFromInt(40)},
			{IP: []string{"2.2.2.3"}, Value: decimal.NewFromInt(30)},
		},
	}

	cfg := config.Default()
	cfg.PersistentUsersAllow = false
	blk := newFakeBlocker("ipset")

	l := &DetectionLoop{
		app:       &AppContext{Config: cfg},
		log:       logr.Discard(),
		now:       func() int64 { return 1000 },
		detectors: detMap(det),
		blockers:  blkMap(blk),
		blockList: map[string]user.User{},
	}

	require.NoError(t, l.Iterate(context.Background()))

	assert.ElementsMatch(t, []string{"2.2.2.1", "2.2.2.2", "2.2.2.3"}, infoIPs(blk))
}

func TestTrainingModeRealSuppressesEnforcement(t *testing.T) {
	det := &fakeDetector{
		name:   "ip_rps",
		before: []user.User{{IP: []string{"1.1.1.1"}, Value: decimal.NewFromInt(5)}},
		after:  []user.User{{IP: []string{"2.2.2.1"}, Value: decimal.NewFromInt(50)}},
	}

	cfg := config.Default()
	cfg.PersistentUsersAllow = false
	cfg.TrainingMode = config.TrainingReal
	cfg.TrainingModeDurationMin = 10

	blk := newFakeBlocker("ipset")

	l := &DetectionLoop{
		app:       &AppContext{Config: cfg},
		log:       logr.Discard(),
		now:       func() int64 { return 1000 },
		detectors: detMap(det),
		blockers:  blkMap(blk),
		blockList: map[string]user.User{},
	}

	require.NoError(t, l.Iterate(context.Background()))

	assert.Empty(t, blk.Info(), "training mode real must not enforce blocks")
	assert.Equal(t, 0, blk.applies)
}

func infoIPs(b *fakeBlocker) []string {
	var out []string
	for ip := range b.blocked {
		out = append(out, ip)
	}
	return out
}
