// Package timeseries normalizes sparse usage-bucket series for chart
// rendering: sort, gap-fill at a fixed granularity, bound the point count.
package timeseries

import (
	"sort"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

const (
	// DefaultMaxDisplayPoints bounds render cost; callers needing
	// statistical accuracy must pre-aggregate server-side.
	DefaultMaxDisplayPoints = 200

	// Sparse fill is skipped entirely below this point count.
	sparseMinPoints = 10

	// Sparse fill only bridges gaps wider than this many granularity units.
	sparseGapFactor = 5
)

// FillPolicy selects how missing buckets are synthesized.
type FillPolicy int

const (
	// FillNone returns the sorted, deduplicated series as-is.
	FillNone FillPolicy = iota

	// FillDense inserts a zero bucket at every granularity step between the
	// first and last timestamp. Missing buckets mean "zero activity", so the
	// axis stays fully continuous.
	FillDense

	// FillSparse bridges only gaps wider than 5x the granularity, and skips
	// filling entirely for series under 10 points. Avoids synthesizing
	// thousands of zeros for naturally coarse or bursty series.
	FillSparse
)

type Options struct {
	Granularity      time.Duration
	MaxDisplayPoints int
	Fill             FillPolicy
}

// Normalize sorts the input ascending by bucket start, collapses duplicate
// timestamps (last write wins), gap-fills per the policy and downsamples to
// the display budget. Empty input yields empty output. The input slice is
// not modified.
func Normalize(points []domain.MetricPoint, opts Options) []domain.MetricPoint {
	if opts.Granularity <= 0 {
		opts.Granularity = time.Minute
	}
	if opts.MaxDisplayPoints <= 0 {
		opts.MaxDisplayPoints = DefaultMaxDisplayPoints
	}

	if len(points) == 0 {
		return []domain.MetricPoint{}
	}

	sorted := dedupeSorted(points)

	var filled []domain.MetricPoint
	switch opts.Fill {
	case FillDense:
		filled = fillDense(sorted, opts.Granularity)
	case FillSparse:
		filled = fillSparse(sorted, opts.Granularity)
	default:
		filled = sorted
	}

	return downsample(filled, opts.MaxDisplayPoints)
}

// dedupeSorted collapses duplicate bucket starts via a map keyed on the
// timestamp (later occurrences win) and returns the points in ascending order.
func dedupeSorted(points []domain.MetricPoint) []domain.MetricPoint {
	byStart := make(map[int64]domain.MetricPoint, len(points))
	for _, p := range points {
		byStart[p.WindowStart.UnixNano()] = p
	}

	out := make([]domain.MetricPoint, 0, len(byStart))
	for _, p := range byStart {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].WindowStart.Before(out[j].WindowStart)
	})
	return out
}

func zeroPoint(ts time.Time) domain.MetricPoint {
	return domain.MetricPoint{WindowStart: ts}
}

func fillDense(sorted []domain.MetricPoint, g time.Duration) []domain.MetricPoint {
	if len(sorted) < 2 {
		return sorted
	}

	first := sorted[0].WindowStart
	last := sorted[len(sorted)-1].WindowStart

	existing := make(map[int64]domain.MetricPoint, len(sorted))
	for _, p := range sorted {
		existing[p.WindowStart.UnixNano()] = p
	}

	out := make([]domain.MetricPoint, 0, int(last.Sub(first)/g)+1)
	for ts := first; !ts.After(last); ts = ts.Add(g) {
		if p, ok := existing[ts.UnixNano()]; ok {
			out = append(out, p)
		} else {
			out = append(out, zeroPoint(ts))
		}
	}
	return out
}

func fillSparse(sorted []domain.MetricPoint, g time.Duration) []domain.MetricPoint {
	if len(sorted) < sparseMinPoints {
		return sorted
	}

	threshold := time.Duration(sparseGapFactor) * g
	out := make([]domain.MetricPoint, 0, len(sorted))

	for i, p := range sorted {
		if i > 0 {
			prev := sorted[i-1].WindowStart
			if p.WindowStart.Sub(prev) > threshold {
				for ts := prev.Add(g); ts.Before(p.WindowStart); ts = ts.Add(g) {
					out = append(out, zeroPoint(ts))
				}
			}
		}
		out = append(out, p)
	}
	return out
}

// downsample keeps every step-th point by index. The stride is ceil(n/max)
// so the output never exceeds the budget; index 0 is always kept, the last
// index only when it falls on the stride.
func downsample(points []domain.MetricPoint, maxPoints int) []domain.MetricPoint {
	n := len(points)
	if n <= maxPoints {
		return points
	}

	step := (n + maxPoints - 1) / maxPoints
	out := make([]domain.MetricPoint, 0, maxPoints)
	for i := 0; i < n; i += step {
		out = append(out, points[i])
	}
	return out
}
