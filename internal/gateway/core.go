package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/lishushu94/provider-console/internal/domain"
)

// ProviderResolver is the slice of the repository the data plane needs.
type ProviderResolver interface {
	GetProviderByModel(ctx context.Context, model string) (*domain.Provider, error)
	TouchLastActivity(ctx context.Context, id string) error
}

// Core is the data-plane pipeline: resolve the provider for the requested
// model, check it is actually serving, call the guarded connector, account
// the result.
type Core struct {
	repo     ProviderResolver
	cache    *OperationStateCache
	registry *ConnectorRegistry
	recorder *UsageRecorder
	metrics  *Metrics
	logger   *zap.Logger
}

func NewCore(
	repo ProviderResolver,
	cache *OperationStateCache,
	registry *ConnectorRegistry,
	recorder *UsageRecorder,
	metrics *Metrics,
	logger *zap.Logger,
) *Core {
	return &Core{
		repo:     repo,
		cache:    cache,
		registry: registry,
		recorder: recorder,
		metrics:  metrics,
		logger:   logger.With(zap.String("mod", "gateway-core")),
	}
}

func (c *Core) ProcessChat(ctx context.Context, model string, payload []byte) ([]byte, error) {
	start := time.Now()
	traceID := extractTraceID(ctx)

	provider, err := c.repo.GetProviderByModel(ctx, model)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}

	c.metrics.TotalRequests.WithLabelValues(provider.ID, model).Inc()

	// Cheapest check first: in-memory operation state.
	if !c.cache.IsServable(provider.ID) {
		c.metrics.ErrorTotal.WithLabelValues("not_servable").Inc()
		c.logger.Info("request rejected: provider not serving",
			zap.String("trace_id", traceID),
			zap.String("provider_id", provider.ID),
			zap.String("model", model),
		)
		return nil, domain.ErrNotServable
	}

	resp, callErr := c.registry.Get(provider).Call(ctx, model, payload)
	elapsed := time.Since(start)

	status := "SUCCESS"
	class := ClassifyError(callErr)
	if callErr != nil {
		status = "FAILED"
		c.metrics.ErrorTotal.WithLabelValues(string(class)).Inc()
	}
	c.metrics.RequestDuration.WithLabelValues(provider.ID, model, status).Observe(elapsed.Seconds())

	c.recorder.Record(Observation{
		ProviderID: provider.ID,
		Timestamp:  start,
		LatencyMs:  float64(elapsed.Milliseconds()),
		Class:      class,
	})

	if callErr == nil {
		// Best effort, off the hot path.
		go func() {
			tCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := c.repo.TouchLastActivity(tCtx, provider.ID); err != nil {
				c.logger.Warn("failed to touch last activity",
					zap.String("provider_id", provider.ID), zap.Error(err))
			}
		}()
	}

	return resp, callErr
}

type chatRequest struct {
	Model string `json:"model"`
}

// HandleChat is the single data-plane endpoint: POST a chat completion
// payload, the model field picks the provider.
func (c *Core) HandleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "only POST allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusInternalServerError)
		return
	}
	defer r.Body.Close()

	var req chatRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Model == "" {
		writeJSONError(w, http.StatusBadRequest, "model field is required")
		return
	}

	resp, err := c.ProcessChat(r.Context(), req.Model, body)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrNotFound):
			writeJSONError(w, http.StatusNotFound, "no serving provider for model")
		case errors.Is(err, domain.ErrNotServable):
			writeJSONError(w, http.StatusServiceUnavailable, "provider is paused or offline")
		default:
			// Upstream details stay in the logs, not the response.
			writeJSONError(w, http.StatusBadGateway, "upstream call failed")
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Write(resp)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
