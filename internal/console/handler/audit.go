package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lishushu94/provider-console/internal/audit"
)

type HistoryReader interface {
	History(ctx context.Context, providerID string, limit int) ([]audit.Entry, error)
}

type AuditHandler struct {
	service HistoryReader
}

func NewAuditHandler(s HistoryReader) *AuditHandler {
	return &AuditHandler{service: s}
}

// GetHistory returns recent trail entries for a provider. The service is
// best-effort, so this endpoint practically never fails.
func (h *AuditHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.service.History(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
