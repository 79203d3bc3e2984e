package upstream

import (
	"context"
	"net/http"
	"time"

	"github.com/lishushu94/provider-console/internal/domain"
)

// ProbeResult is what the audit "test" step records for the reviewer.
type ProbeResult struct {
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Status    int    `json:"status,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Prober runs a connectivity check against a provider's upstream endpoint
// when the provider enters testing. One shot, no retries: the reviewer wants
// to see the raw first-attempt behavior.
type Prober struct {
	client *http.Client
}

func NewProber(timeout time.Duration) *Prober {
	return &Prober{client: &http.Client{Timeout: timeout}}
}

func (p *Prober) Probe(ctx context.Context, provider *domain.Provider) ProbeResult {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, provider.BaseURL+"/v1/models", nil)
	if err != nil {
		return ProbeResult{Error: err.Error()}
	}

	resp, err := p.client.Do(req)
	elapsed := time.Since(start).Milliseconds()
	if err != nil {
		return ProbeResult{LatencyMs: elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()

	return ProbeResult{
		OK:        resp.StatusCode < 400,
		LatencyMs: elapsed,
		Status:    resp.StatusCode,
	}
}
