package domain

import "time"

// MetricPoint is one observation bucket of provider traffic. After
// normalization points are strictly ordered by WindowStart with no duplicate
// timestamps; buckets absent from raw input are synthesized all-zero.
type MetricPoint struct {
	WindowStart   time.Time `json:"window_start"`
	TotalRequests int64     `json:"total_requests"`

	Error4xx     int64 `json:"error_4xx_requests"`
	Error5xx     int64 `json:"error_5xx_requests"`
	Error429     int64 `json:"error_429_requests"`
	ErrorTimeout int64 `json:"error_timeout_requests"`

	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
	LatencyP99Ms float64 `json:"latency_p99_ms"`
}

// ErrorTotal sums all error classes in the bucket.
func (p MetricPoint) ErrorTotal() int64 {
	return p.Error4xx + p.Error5xx + p.Error429 + p.ErrorTimeout
}

// UsageBucket binds a metric point to the provider that produced it.
// Written by the gateway recorder, read by the console trend queries.
type UsageBucket struct {
	ProviderID string `json:"provider_id"`
	MetricPoint
}

// DashboardStats is the console's top-level KPI snapshot, aggregated over the
// trailing hour.
type DashboardStats struct {
	Activity  ActivityStats `json:"activity"`
	Audits    AuditStats    `json:"audits"`
	Incidents IncidentStats `json:"incidents"`
	Quality   QualityStats  `json:"quality"`

	// Health is derived from Quality on every snapshot, never stored.
	Health string `json:"health"`
}

type ActivityStats struct {
	RPS             float64 `json:"rps"`
	TotalRequests   int64   `json:"total_requests"`
	ActiveProviders int     `json:"active_providers"`
}

type AuditStats struct {
	PendingProviders int `json:"pending_providers"`
	TestingProviders int `json:"testing_providers"`
}

type IncidentStats struct {
	PausedProviders  int   `json:"paused_providers"`
	OfflineProviders int   `json:"offline_providers"`
	ErrorRequests    int64 `json:"error_requests"`
}

type QualityStats struct {
	ErrorRatePercent float64 `json:"error_rate_percent"`
	LatencyP95Ms     float64 `json:"latency_p95_ms"`
}
