package timeseries

import (
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

// LabelStyle selects the time presentation for chart axis labels.
type LabelStyle int

const (
	// StyleHourMinute renders "15:04", for sub-day buckets.
	StyleHourMinute LabelStyle = iota
	// StyleMonthDay renders "01-02", for daily buckets.
	StyleMonthDay
)

// ChartPoint is the display shape consumed by chart renderers.
type ChartPoint struct {
	Label string `json:"label"`

	Requests     int64 `json:"requests"`
	Errors       int64 `json:"errors"`
	Error4xx     int64 `json:"error_4xx"`
	Error5xx     int64 `json:"error_5xx"`
	Error429     int64 `json:"error_429"`
	ErrorTimeout int64 `json:"error_timeout"`

	LatencyP50Ms float64 `json:"latency_p50_ms"`
	LatencyP95Ms float64 `json:"latency_p95_ms"`
	LatencyP99Ms float64 `json:"latency_p99_ms"`
}

// Project maps normalized points to the chart display shape.
func Project(points []domain.MetricPoint, style LabelStyle) []ChartPoint {
	out := make([]ChartPoint, 0, len(points))
	for _, p := range points {
		out = append(out, ChartPoint{
			Label:        FormatLabel(p.WindowStart, style),
			Requests:     p.TotalRequests,
			Errors:       p.ErrorTotal(),
			Error4xx:     p.Error4xx,
			Error5xx:     p.Error5xx,
			Error429:     p.Error429,
			ErrorTimeout: p.ErrorTimeout,
			LatencyP50Ms: p.LatencyP50Ms,
			LatencyP95Ms: p.LatencyP95Ms,
			LatencyP99Ms: p.LatencyP99Ms,
		})
	}
	return out
}

// FormatLabel renders a bucket start for the chart axis. A zero time (the
// soft-fail result of parsing a malformed window_start) yields an empty
// label instead of a bogus one.
func FormatLabel(ts time.Time, style LabelStyle) string {
	if ts.IsZero() {
		return ""
	}
	switch style {
	case StyleMonthDay:
		return ts.Format("01-02")
	default:
		return ts.Format("15:04")
	}
}

// ParseWindow parses an ISO-8601 window_start. Label formatting is a
// rendering fallback, so malformed input fails soft to the zero time rather
// than returning an error.
func ParseWindow(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
