package detector

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tempesta-tech/webshield/pkg/accesslog"
	"github.com/tempesta-tech/webshield/pkg/user"
)

// metric selects which aggregate a detector computes per group.
type metric string

const (
	metricRPS    metric = "rps"
	metricTime   metric = "time"
	metricErrors metric = "errors"
)

func (m metric) expression(allowedStatuses []int) string {
	switch m {
	case metricTime:
		return "sum(response_time)"
	case metricErrors:
		statuses := make([]string, len(allowedStatuses))
		for i, s := range allowedStatuses {
			statuses[i] = strconv.Itoa(s)
		}
		return fmt.Sprintf("countIf(status NOT IN (%s))", strings.Join(statuses, ", "))
	default:
		return "count(1)"
	}
}

// buildQuery renders the abstract aggregate query from spec: filter by
// the two allow-list side tables, group by groupBy, compute the
// detector's metric, and emit the top limit groups at or above
// threshold. The SQL dialect is deliberately generic ANSI SQL — the
// core's contract is the query's semantics, not its text.
func buildQuery(groupBy string, m metric, allowedStatuses []int, startAt, finishAt int64, threshold, limit decimal.Decimal) string {
	return fmt.Sprintf(`
SELECT
    array_agg(DISTINCT tft) AS tft,
    array_agg(DISTINCT tfh) AS tfh,
    array_agg(DISTINCT address) AS address,
    %s AS value
FROM access_log
WHERE created_at >= %d AND created_at < %d
  AND address NOT IN (SELECT address FROM persistent_users)
  AND user_agent NOT IN (SELECT user_agent FROM user_agents)
GROUP BY %s
HAVING %s >= %s
ORDER BY value DESC
LIMIT %s
`, m.expression(allowedStatuses), startAt, finishAt, groupBy, m.expression(allowedStatuses), threshold.String(), limit.StringFixed(0))
}

// parseRows turns access-log row tuples (tft, tfh, address, value) into
// Users.
func parseRows(rows []accesslog.Row) []user.User {
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		if len(row) < 4 {
			continue
		}

		u := user.User{
			TFt:   toStrings(row[0]),
			TFh:   toStrings(row[1]),
			IP:    toStrings(row[2]),
			Value: toDecimal(row[3]),
		}
		users = append(users, u)
	}
	return users
}

func toStrings(v any) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []any:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			out = append(out, fmt.Sprint(e))
		}
		return out
	case nil:
		return nil
	default:
		return []string{fmt.Sprint(vv)}
	}
}

func toDecimal(v any) decimal.Decimal {
	switch vv := v.(type) {
	case decimal.Decimal:
		return vv
	case int64:
		return decimal.NewFromInt(vv)
	case float64:
		return decimal.NewFromFloat(vv)
	case string:
		d, err := decimal.NewFromString(vv)
		if err != nil {
			return decimal.Zero
		}
		return d
	default:
		return decimal.Zero
	}
}
