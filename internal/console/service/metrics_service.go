package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/health"
	"github.com/lishushu94/provider-console/internal/infra"
	"github.com/lishushu94/provider-console/internal/timeseries"
)

// MetricsRepository serves the aggregate queries behind the dashboard.
type MetricsRepository interface {
	GetDashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	QueryUsageBuckets(ctx context.Context, providerID string, since time.Time, bucket string) ([]domain.MetricPoint, error)
}

const statsCacheTTL = 60 * time.Second

type MetricsService struct {
	repo   MetricsRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewMetricsService(repo MetricsRepository, rdb *redis.Client, logger *zap.Logger) *MetricsService {
	return &MetricsService{
		repo:   repo,
		rdb:    rdb,
		logger: logger.Named("metrics-service"),
	}
}

// DashboardStats returns the KPI snapshot with the derived health badge.
// The heavy aggregate query is cached in Redis for 60 seconds; a cache miss
// or Redis outage falls through to Postgres.
func (s *MetricsService) DashboardStats(ctx context.Context) (*domain.DashboardStats, error) {
	if cached, err := s.rdb.Get(ctx, infra.RedisKeyDashboardStats).Bytes(); err == nil {
		var stats domain.DashboardStats
		if err := json.Unmarshal(cached, &stats); err == nil {
			return &stats, nil
		}
		// A corrupt cache entry is recomputed, not served.
	}

	stats, err := s.repo.GetDashboardStats(ctx)
	if err != nil {
		return nil, err
	}

	// The badge is always derived fresh from the snapshot, never stored
	// as state of its own.
	stats.Health = string(health.Badge(false, stats.Quality.ErrorRatePercent, stats.Quality.LatencyP95Ms))

	if data, err := json.Marshal(stats); err == nil {
		if err := s.rdb.Set(ctx, infra.RedisKeyDashboardStats, data, statsCacheTTL).Err(); err != nil {
			s.logger.Warn("failed to cache dashboard stats", zap.Error(err))
		}
	}

	return stats, nil
}

// ThroughputTrend is the dense request-volume chart: every minute between
// the first and last bucket gets a point, missing minutes render as zero.
func (s *MetricsService) ThroughputTrend(ctx context.Context, providerID string, window time.Duration) ([]timeseries.ChartPoint, error) {
	if window <= 0 {
		window = time.Hour
	}

	points, err := s.repo.QueryUsageBuckets(ctx, providerID, time.Now().Add(-window), "minute")
	if err != nil {
		return nil, err
	}

	normalized := timeseries.Normalize(points, timeseries.Options{
		Granularity: time.Minute,
		Fill:        timeseries.FillDense,
	})
	return timeseries.Project(normalized, timeseries.StyleHourMinute), nil
}

// LatencyTrend is the sparse latency chart over the trailing day. Latency
// has no meaningful zero, so only wide gaps are bridged and short series
// pass through untouched.
func (s *MetricsService) LatencyTrend(ctx context.Context, providerID string) ([]timeseries.ChartPoint, error) {
	points, err := s.repo.QueryUsageBuckets(ctx, providerID, time.Now().Add(-24*time.Hour), "minute")
	if err != nil {
		return nil, err
	}

	normalized := timeseries.Normalize(points, timeseries.Options{
		Granularity: time.Minute,
		Fill:        timeseries.FillSparse,
	})
	return timeseries.Project(normalized, timeseries.StyleHourMinute), nil
}

// DailyTrend aggregates per-day buckets for the long-range view.
func (s *MetricsService) DailyTrend(ctx context.Context, providerID string, days int) ([]timeseries.ChartPoint, error) {
	if days <= 0 {
		days = 30
	}

	points, err := s.repo.QueryUsageBuckets(ctx, providerID, time.Now().AddDate(0, 0, -days), "day")
	if err != nil {
		return nil, err
	}

	normalized := timeseries.Normalize(points, timeseries.Options{
		Granularity: 24 * time.Hour,
		Fill:        timeseries.FillDense,
	})
	return timeseries.Project(normalized, timeseries.StyleMonthDay), nil
}
