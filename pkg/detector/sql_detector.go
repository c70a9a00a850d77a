package detector

import (
	"context"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/tempesta-tech/webshield/internal/stats"
	"github.com/tempesta-tech/webshield/pkg/accesslog"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// querier is the access-log surface a detector needs. Defined here
// rather than depending on *accesslog.Client directly, so a fake can
// stand in for tests.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) ([]accesslog.Row, error)
}

// sqlDetector is the single parameterized implementation behind all
// ten named detector variants: the delta between them is the grouping
// column, the validation key, the metric, and (for the error variants)
// the allowed-status list — data, not a class hierarchy.
type sqlDetector struct {
	name string

	groupBy         string
	validationKey   user.Key
	metric          metric
	allowedStatuses []int

	defaultThreshold       decimal.Decimal
	intersectionPercent    decimal.Decimal
	blockUsersPerIteration decimal.Decimal

	threshold decimal.Decimal

	accessLog querier
}

func newSQLDetector(name, groupBy string, validationKey user.Key, m metric, allowedStatuses []int, defaultThreshold, intersectionPercent, blockLimit decimal.Decimal, log querier) *sqlDetector {
	return &sqlDetector{
		name:                   name,
		groupBy:                groupBy,
		validationKey:          validationKey,
		metric:                 m,
		allowedStatuses:        allowedStatuses,
		defaultThreshold:       defaultThreshold,
		intersectionPercent:    intersectionPercent,
		blockUsersPerIteration: blockLimit,
		threshold:              defaultThreshold,
		accessLog:              log,
	}
}

func (d *sqlDetector) Name() string { return d.name }

func (d *sqlDetector) Prepare(ctx context.Context) error { return nil }

func (d *sqlDetector) Threshold() decimal.Decimal {
	return d.threshold.Round(2)
}

// FindUsers fetches the two candidate cohorts concurrently, mirroring
// the original's asyncio.gather fan-out with an errgroup.
func (d *sqlDetector) FindUsers(ctx context.Context, currentTime, interval int64) ([]user.User, []user.User, error) {
	var before, after []user.User

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		u, err := d.fetchForPeriod(gctx, currentTime-2*interval, currentTime-interval)
		if err != nil {
			return err
		}
		before = u
		return nil
	})

	g.Go(func() error {
		u, err := d.fetchForPeriod(gctx, currentTime-interval, currentTime)
		if err != nil {
			return err
		}
		after = u
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	return before, after, nil
}

func (d *sqlDetector) fetchForPeriod(ctx context.Context, startAt, finishAt int64) ([]user.User, error) {
	sql := buildQuery(d.groupBy, d.metric, d.allowedStatuses, startAt, finishAt, d.Threshold(), d.blockUsersPerIteration)

	rows, err := d.accessLog.Query(ctx, sql)
	if err != nil {
		return nil, err
	}

	return parseRows(rows), nil
}

func (d *sqlDetector) ValidateModel(before, after []user.User) []user.User {
	return validateModel(d.validationKey, d.intersectionPercent.InexactFloat64(), before, after)
}

func (d *sqlDetector) UpdateThreshold(users []user.User) {
	if len(users) == 0 {
		d.threshold = d.defaultThreshold
		return
	}

	values := make([]decimal.Decimal, len(users))
	for i, u := range users {
		values[i] = u.Value
	}

	mean := stats.Mean(values)
	stddev := stats.StandardDeviation(values, mean)
	d.threshold = mean.Add(stddev)
}
