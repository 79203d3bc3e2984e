package health

import "testing"

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		errorRate float64
		latency   float64
		expected  Status
	}{
		{"clean traffic", 0, 300, StatusHealthy},
		{"just under both degraded thresholds", 0.99, 999, StatusHealthy},
		{"error rate exactly at degraded threshold", 1, 999, StatusDegraded},
		{"latency exactly at degraded threshold", 0.99, 1000, StatusDegraded},
		{"both exactly at unhealthy boundary stay degraded", 5, 3000, StatusDegraded},
		{"just past both unhealthy thresholds", 5.01, 3001, StatusUnhealthy},
		{"error rate alone trips unhealthy", 8, 1000, StatusUnhealthy},
		{"latency alone trips unhealthy", 2, 4000, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.errorRate, tt.latency); got != tt.expected {
				t.Errorf("Classify(%v, %v) = %q, want %q", tt.errorRate, tt.latency, got, tt.expected)
			}
		})
	}
}

func TestBadgeLoadingBypassesClassification(t *testing.T) {
	// Even inputs that would classify as unhealthy yield the placeholder.
	if got := Badge(true, 99, 99999); got != StatusLoading {
		t.Errorf("Badge(loading) = %q, want %q", got, StatusLoading)
	}
	if got := Badge(false, 99, 99999); got != StatusUnhealthy {
		t.Errorf("Badge(!loading) = %q, want %q", got, StatusUnhealthy)
	}
}
