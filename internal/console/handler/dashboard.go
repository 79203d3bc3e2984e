package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/timeseries"
)

// TrendProvider serves the dashboard KPIs and the chart series.
type TrendProvider interface {
	DashboardStats(ctx context.Context) (*domain.DashboardStats, error)
	ThroughputTrend(ctx context.Context, providerID string, window time.Duration) ([]timeseries.ChartPoint, error)
	LatencyTrend(ctx context.Context, providerID string) ([]timeseries.ChartPoint, error)
	DailyTrend(ctx context.Context, providerID string, days int) ([]timeseries.ChartPoint, error)
}

type DashboardHandler struct {
	service TrendProvider
}

func NewDashboardHandler(s TrendProvider) *DashboardHandler {
	return &DashboardHandler{service: s}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.DashboardStats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetTrend serves the global throughput chart; ?window=2h widens the range.
func (h *DashboardHandler) GetTrend(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			window = d
		}
	}

	points, err := h.service.ThroughputTrend(r.Context(), "", window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// GetProviderTrend is the per-provider throughput chart.
func (h *DashboardHandler) GetProviderTrend(w http.ResponseWriter, r *http.Request) {
	window := time.Hour
	if raw := r.URL.Query().Get("window"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			window = d
		}
	}

	points, err := h.service.ThroughputTrend(r.Context(), chi.URLParam(r, "id"), window)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

func (h *DashboardHandler) GetProviderLatency(w http.ResponseWriter, r *http.Request) {
	points, err := h.service.LatencyTrend(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}

// GetProviderDaily is the long-range view; ?days=90 widens it.
func (h *DashboardHandler) GetProviderDaily(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			days = n
		}
	}

	points, err := h.service.DailyTrend(r.Context(), chi.URLParam(r, "id"), days)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, points)
}
