package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

// QueryUsageBuckets returns raw metric points for a provider (or all
// providers when providerID is empty), re-bucketed to the requested
// granularity. The result is sparse and possibly unsorted across the union
// of providers; normalization is the caller's job.
func (r *ProviderRepo) QueryUsageBuckets(
	ctx context.Context,
	providerID string,
	since time.Time,
	bucket string, // "minute" or "day"
) ([]domain.MetricPoint, error) {
	if bucket != "minute" && bucket != "day" {
		return nil, fmt.Errorf("postgres: unsupported bucket %q", bucket)
	}

	query := `
		SELECT date_trunc($1, window_start) AS bucket_start,
		       SUM(total_requests),
		       SUM(error_4xx), SUM(error_5xx), SUM(error_429), SUM(error_timeout),
		       COALESCE(PERCENTILE_CONT(0.5) WITHIN GROUP (ORDER BY latency_p50_ms), 0),
		       COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY latency_p95_ms), 0),
		       COALESCE(PERCENTILE_CONT(0.99) WITHIN GROUP (ORDER BY latency_p99_ms), 0)
		FROM usage_buckets
		WHERE window_start >= $2`

	args := []interface{}{bucket, since}
	if providerID != "" {
		query += " AND provider_id = $3"
		args = append(args, providerID)
	}
	query += " GROUP BY bucket_start"

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query usage buckets: %w", err)
	}
	defer rows.Close()

	points := make([]domain.MetricPoint, 0)
	for rows.Next() {
		var p domain.MetricPoint
		err := rows.Scan(
			&p.WindowStart, &p.TotalRequests,
			&p.Error4xx, &p.Error5xx, &p.Error429, &p.ErrorTimeout,
			&p.LatencyP50Ms, &p.LatencyP95Ms, &p.LatencyP99Ms,
		)
		if err != nil {
			return nil, fmt.Errorf("postgres: failed to scan usage bucket: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return points, nil
}

// GetDashboardStats aggregates the trailing-hour KPI snapshot. PERCENTILE_CONT
// gives an honest p95 across buckets instead of an average of percentiles'
// extremes.
func (r *ProviderRepo) GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	d := &domain.DashboardStats{}

	err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE audit_status IN ('approved', 'approved_limited') AND operation_status = 'active'),
			COUNT(*) FILTER (WHERE audit_status = 'pending' AND visibility <> 'private'),
			COUNT(*) FILTER (WHERE audit_status = 'testing'),
			COUNT(*) FILTER (WHERE operation_status = 'paused'),
			COUNT(*) FILTER (WHERE operation_status = 'offline')
		FROM providers`).Scan(
		&d.Activity.ActiveProviders,
		&d.Audits.PendingProviders,
		&d.Audits.TestingProviders,
		&d.Incidents.PausedProviders,
		&d.Incidents.OfflineProviders,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch provider counts: %w", err)
	}

	var errorRequests int64
	err = r.pool.QueryRow(ctx, `
		SELECT
			COALESCE(SUM(total_requests), 0),
			COALESCE(SUM(error_4xx + error_5xx + error_429 + error_timeout), 0),
			COALESCE(PERCENTILE_CONT(0.95) WITHIN GROUP (ORDER BY latency_p95_ms), 0)
		FROM usage_buckets
		WHERE window_start > NOW() - INTERVAL '60 minutes'`).Scan(
		&d.Activity.TotalRequests,
		&errorRequests,
		&d.Quality.LatencyP95Ms,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch usage aggregates: %w", err)
	}

	d.Incidents.ErrorRequests = errorRequests
	d.Activity.RPS = float64(d.Activity.TotalRequests) / 3600
	if d.Activity.TotalRequests > 0 {
		d.Quality.ErrorRatePercent = float64(errorRequests) / float64(d.Activity.TotalRequests) * 100
	}

	return d, nil
}

// InsertUsageBatch upserts one recorder flush. Buckets may be re-flushed for
// the same (provider, window) when traffic straddles a flush boundary, so
// counts accumulate and latency percentiles keep the most recent estimate.
func (r *ProviderRepo) InsertUsageBatch(ctx context.Context, buckets []domain.UsageBucket) error {
	if len(buckets) == 0 {
		return nil
	}

	const numFields = 10
	var sb strings.Builder
	vals := make([]interface{}, 0, len(buckets)*numFields)

	for i, b := range buckets {
		if i > 0 {
			sb.WriteString(",")
		}
		p := i * numFields
		fmt.Fprintf(&sb, "($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			p+1, p+2, p+3, p+4, p+5, p+6, p+7, p+8, p+9, p+10)

		vals = append(vals,
			b.ProviderID, b.WindowStart, b.TotalRequests,
			b.Error4xx, b.Error5xx, b.Error429, b.ErrorTimeout,
			b.LatencyP50Ms, b.LatencyP95Ms, b.LatencyP99Ms,
		)
	}

	query := fmt.Sprintf(`
		INSERT INTO usage_buckets
			(provider_id, window_start, total_requests,
			 error_4xx, error_5xx, error_429, error_timeout,
			 latency_p50_ms, latency_p95_ms, latency_p99_ms)
		VALUES %s
		ON CONFLICT (provider_id, window_start) DO UPDATE SET
			total_requests = usage_buckets.total_requests + EXCLUDED.total_requests,
			error_4xx = usage_buckets.error_4xx + EXCLUDED.error_4xx,
			error_5xx = usage_buckets.error_5xx + EXCLUDED.error_5xx,
			error_429 = usage_buckets.error_429 + EXCLUDED.error_429,
			error_timeout = usage_buckets.error_timeout + EXCLUDED.error_timeout,
			latency_p50_ms = EXCLUDED.latency_p50_ms,
			latency_p95_ms = EXCLUDED.latency_p95_ms,
			latency_p99_ms = EXCLUDED.latency_p99_ms`, sb.String())

	_, err := r.pool.Exec(ctx, query, vals...)
	if err != nil {
		return fmt.Errorf("postgres: failed to insert usage batch: %w", err)
	}
	return nil
}
