package timeseries

import (
	"reflect"
	"testing"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

var t0 = time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

func point(ts time.Time, requests int64) domain.MetricPoint {
	return domain.MetricPoint{WindowStart: ts, TotalRequests: requests}
}

func TestNormalizeEmptyInput(t *testing.T) {
	got := Normalize(nil, Options{Granularity: time.Minute, Fill: FillDense})
	if len(got) != 0 {
		t.Fatalf("expected empty output, got %d points", len(got))
	}
}

func TestNormalizeSortsAndDeduplicates(t *testing.T) {
	in := []domain.MetricPoint{
		point(t0.Add(2*time.Minute), 3),
		point(t0, 1),
		point(t0, 7), // duplicate timestamp, last write wins
		point(t0.Add(time.Minute), 2),
	}

	got := Normalize(in, Options{Granularity: time.Minute})
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	if got[0].TotalRequests != 7 {
		t.Errorf("duplicate timestamp: want last write (7), got %d", got[0].TotalRequests)
	}
	for i := 1; i < len(got); i++ {
		if !got[i-1].WindowStart.Before(got[i].WindowStart) {
			t.Errorf("output not strictly ordered at index %d", i)
		}
	}
}

func TestDenseFillCompleteness(t *testing.T) {
	// Points at t0 and t0+2g only: dense fill yields exactly three points
	// with an all-zero middle bucket.
	in := []domain.MetricPoint{
		point(t0, 5),
		point(t0.Add(2*time.Minute), 9),
	}

	got := Normalize(in, Options{Granularity: time.Minute, Fill: FillDense})
	if len(got) != 3 {
		t.Fatalf("expected 3 points, got %d", len(got))
	}
	want := []time.Time{t0, t0.Add(time.Minute), t0.Add(2 * time.Minute)}
	for i, ts := range want {
		if !got[i].WindowStart.Equal(ts) {
			t.Errorf("point %d: window %v, want %v", i, got[i].WindowStart, ts)
		}
	}
	mid := got[1]
	if mid.TotalRequests != 0 || mid.ErrorTotal() != 0 || mid.LatencyP95Ms != 0 {
		t.Errorf("synthesized bucket not all-zero: %+v", mid)
	}
}

func TestSparseFillSkipsSmallSeries(t *testing.T) {
	// Under 10 points sparse mode returns the sorted input unchanged even
	// though the gap is far beyond the threshold.
	in := []domain.MetricPoint{
		point(t0, 1),
		point(t0.Add(3*time.Hour), 2),
	}

	got := Normalize(in, Options{Granularity: time.Minute, Fill: FillSparse})
	if len(got) != 2 {
		t.Fatalf("expected sorted input unchanged (2 points), got %d", len(got))
	}
}

func TestSparseFillBridgesWideGaps(t *testing.T) {
	g := time.Minute
	in := make([]domain.MetricPoint, 0, 12)
	for i := 0; i < 11; i++ {
		in = append(in, point(t0.Add(time.Duration(i)*g), int64(i+1)))
	}
	// One gap of 10 granularity units, above the 5x threshold.
	in = append(in, point(t0.Add(21*g), 99))

	got := Normalize(in, Options{Granularity: g, Fill: FillSparse})

	// 12 real points plus 10 synthesized zeros inside the gap.
	if len(got) != 22 {
		t.Fatalf("expected 22 points, got %d", len(got))
	}
	for _, p := range got[11:21] {
		if p.TotalRequests != 0 {
			t.Errorf("gap bucket at %v not zero-valued", p.WindowStart)
		}
	}
	if got[21].TotalRequests != 99 {
		t.Errorf("trailing real point lost, got %+v", got[21])
	}
}

func TestSparseFillLeavesNarrowGapsAlone(t *testing.T) {
	g := time.Minute
	in := make([]domain.MetricPoint, 0, 10)
	for i := 0; i < 10; i++ {
		// Consecutive gaps of exactly 5x the granularity: at the threshold,
		// not above it, so nothing is synthesized.
		in = append(in, point(t0.Add(time.Duration(i*5)*g), int64(i+1)))
	}

	got := Normalize(in, Options{Granularity: g, Fill: FillSparse})
	if len(got) != 10 {
		t.Fatalf("expected 10 points (no fill at threshold), got %d", len(got))
	}
}

func TestNormalizeIdempotence(t *testing.T) {
	in := make([]domain.MetricPoint, 0, 60)
	for i := 0; i < 60; i++ {
		in = append(in, point(t0.Add(time.Duration(i)*time.Minute), int64(i)))
	}

	opts := Options{Granularity: time.Minute, Fill: FillDense, MaxDisplayPoints: 200}
	once := Normalize(in, opts)
	twice := Normalize(once, opts)

	if !reflect.DeepEqual(once, twice) {
		t.Fatal("normalizing an already-normalized series changed it")
	}
}

func TestDownsampleBound(t *testing.T) {
	tests := []struct {
		name string
		n    int
		max  int
	}{
		{"just over budget", 201, 200},
		{"five times budget", 1000, 200},
		{"uneven stride", 1001, 200},
		{"small budget", 17, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]domain.MetricPoint, 0, tt.n)
			for i := 0; i < tt.n; i++ {
				in = append(in, point(t0.Add(time.Duration(i)*time.Minute), int64(i)))
			}

			got := Normalize(in, Options{Granularity: time.Minute, MaxDisplayPoints: tt.max})
			if len(got) > tt.max {
				t.Fatalf("output %d exceeds display budget %d", len(got), tt.max)
			}
			if !got[0].WindowStart.Equal(t0) {
				t.Errorf("first original point not preserved")
			}
			// Every survivor sits on the stride.
			step := (tt.n + tt.max - 1) / tt.max
			for i, p := range got {
				want := t0.Add(time.Duration(i*step) * time.Minute)
				if !p.WindowStart.Equal(want) {
					t.Errorf("point %d at %v, want stride position %v", i, p.WindowStart, want)
				}
			}
		})
	}
}

func TestDownsampleNoopWithinBudget(t *testing.T) {
	in := make([]domain.MetricPoint, 0, 200)
	for i := 0; i < 200; i++ {
		in = append(in, point(t0.Add(time.Duration(i)*time.Minute), int64(i)))
	}
	got := Normalize(in, Options{Granularity: time.Minute, MaxDisplayPoints: 200})
	if len(got) != 200 {
		t.Fatalf("series at the budget must pass through, got %d points", len(got))
	}
}
