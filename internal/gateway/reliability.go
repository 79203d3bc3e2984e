package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/infra"
	"github.com/lishushu94/provider-console/internal/upstream"
)

// GuardedConnector wraps one provider's connector with the full reliability
// stack: per-provider rate limit (the audit QPS cap), circuit breaker, and
// retries that honor upstream Retry-After hints.
type GuardedConnector struct {
	next    upstream.Connector
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewGuardedConnector(providerID string, next upstream.Connector, qps int, cfg infra.GatewayConfig, metrics *Metrics) *GuardedConnector {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        providerID,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// More than 5 consecutive failures: open and block traffic.
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if metrics == nil {
				return
			}
			var v float64
			if to == gobreaker.StateOpen {
				v = 1
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(v)
		},
	})

	// Burst of qps/5 (min 1) smooths short spikes without letting a capped
	// provider exceed its budget over any full second.
	burst := qps / 5
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(qps), burst)

	return &GuardedConnector{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (w *GuardedConnector) Call(ctx context.Context, model string, payload []byte) ([]byte, error) {
	// 1. Rate limiter: the audit-assigned QPS cap.
	if err := w.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit exceeded: %w", err)
	}

	var finalData []byte

	// 2. Circuit breaker around the retried call.
	cbResult, err := w.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.DelayType(func(n uint, err error, config retry.DelayContext) time.Duration {
				// The upstream told us when to come back: honor it.
				var tErr *upstream.ThrottleError
				if errors.As(err, &tErr) {
					return tErr.RetryAfter
				}

				// Network lag, 5xx: standard exponential backoff.
				return retry.BackOffDelay(n, err, config)
			}),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()

			var callErr error
			finalData, callErr = w.next.Call(tCtx, model, payload)
			return callErr
		})

		return finalData, retryErr
	})

	if err != nil {
		return nil, err
	}
	return cbResult.([]byte), nil
}

// ConnectorRegistry builds and caches one guarded connector per provider.
// Breaker and limiter state must survive across requests, so connectors are
// created once and invalidated only when the provider's cap changes.
type ConnectorRegistry struct {
	mu      sync.Mutex
	entries map[string]*registryEntry

	cfg     infra.GatewayConfig
	metrics *Metrics

	// NewConnector builds the raw transport for a provider; swapped for a
	// mock in tests and local development.
	NewConnector func(p *domain.Provider) upstream.Connector
}

type registryEntry struct {
	guarded *GuardedConnector
	qps     int
}

func NewConnectorRegistry(cfg infra.GatewayConfig, metrics *Metrics) *ConnectorRegistry {
	return &ConnectorRegistry{
		entries: make(map[string]*registryEntry),
		cfg:     cfg,
		metrics: metrics,
		NewConnector: func(p *domain.Provider) upstream.Connector {
			return upstream.NewHTTPConnector(p.BaseURL, "", 30*time.Second)
		},
	}
}

// Get returns the guarded connector for a provider, rebuilding it when the
// audit QPS cap changed since it was cached.
func (r *ConnectorRegistry) Get(p *domain.Provider) *GuardedConnector {
	qps := r.cfg.DefaultQPS
	if p.LimitQPS != nil {
		qps = *p.LimitQPS
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[p.ID]; ok && e.qps == qps {
		return e.guarded
	}

	g := NewGuardedConnector(p.ID, r.NewConnector(p), qps, r.cfg, r.metrics)
	r.entries[p.ID] = &registryEntry{guarded: g, qps: qps}
	return g
}
