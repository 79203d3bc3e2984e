// Package health derives a provider health status from its KPI snapshot.
package health

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"

	// StatusLoading is the placeholder shown before the first KPI snapshot
	// arrives. It is a display state, not a classification result.
	StatusLoading Status = "loading"
)

// Classify maps (error rate %, latency p95 ms) to a health status.
//
// First match wins; the ranges overlap at their boundaries, so the order of
// the checks is part of the contract: 5% error rate and 3000ms p95 are still
// degraded, 1% and 1000ms are already degraded.
//
// The function is total: negative or NaN inputs fail every comparison and
// fall through to healthy. Callers feed server-computed non-negative KPIs.
func Classify(errorRatePercent, latencyP95Ms float64) Status {
	if errorRatePercent > 5 || latencyP95Ms > 3000 {
		return StatusUnhealthy
	}
	if errorRatePercent >= 1 || latencyP95Ms >= 1000 {
		return StatusDegraded
	}
	return StatusHealthy
}

// Badge is the tri-state display contract: while loading, classification is
// bypassed entirely and the fixed placeholder is returned.
func Badge(loading bool, errorRatePercent, latencyP95Ms float64) Status {
	if loading {
		return StatusLoading
	}
	return Classify(errorRatePercent, latencyP95Ms)
}
