package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
)

type MetricsTotals struct {
	Count         int64 `json:"count"`
	UniqueUsers   int64 `json:"unique_users"`
	UniqueDevices int64 `json:"unique_devices"`
}

type MetricsBucket struct {
	BucketStart int64 `json:"bucket_start"`
	Count       int64 `json:"count"`
	UniqueUsers int64 `json:"unique_users"`
}

// deviceType is optional (empty string means "no filter")
func filter(from, to time.Time, deviceType string) (string, []any) {
	cond := "WHERE create_date >= $1 AND create_date <= $2"
	args := []any{from, to}
	if deviceType != "" {
		cond += " AND device_type=$3"
		args = append(args, deviceType)
	}
	return cond, args
}

func (db *DB) QueryTotals(ctx context.Context, from, to time.Time, deviceType string) (MetricsTotals, error) {
	var res MetricsTotals
	cond, args := filter(from, to, deviceType)

	sql := "SELECT COUNT(*)::bigint, COUNT(DISTINCT user_id)::bigint, COUNT(DISTINCT masked_device_id)::bigint FROM user_logins " + cond
	row := db.Pool.QueryRow(ctx, sql, args...)
	if err := row.Scan(&res.Count, &res.UniqueUsers, &res.UniqueDevices); err != nil {
		return res, errors.Wrap(err, "scan totals")
	}
	return res, nil
}

func (db *DB) QueryBucketsDaily(ctx context.Context, from, to time.Time, deviceType string) ([]MetricsBucket, error) {
	cond, args := filter(from, to, deviceType)

	sql := fmt.Sprintf(`
SELECT
  EXTRACT(EPOCH FROM date_trunc('day', create_date))::bigint AS bucket_start,
  COUNT(*)::bigint AS cnt,
  COUNT(DISTINCT user_id)::bigint AS uniq
FROM user_logins
%s
GROUP BY 1
ORDER BY 1 ASC`, cond)

	rows, err := db.Pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query buckets")
	}
	defer rows.Close()

	var out []MetricsBucket
	for rows.Next() {
		var b MetricsBucket
		if err := rows.Scan(&b.BucketStart, &b.Count, &b.UniqueUsers); err != nil {
			return nil, errors.Wrap(err, "scan bucket")
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate buckets")
	}
	return out, nil
}
