package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lishushu94/provider-console/internal/console/service"
	"github.com/lishushu94/provider-console/internal/domain"
	"github.com/lishushu94/provider-console/internal/infra/auth"
)

// ProviderActions is what the handler needs from the provider service.
type ProviderActions interface {
	GetProvider(ctx context.Context, viewer domain.Viewer, id string) (*service.ProviderView, error)
	ListProviders(ctx context.Context, viewer domain.Viewer) ([]*service.ProviderView, error)
	Test(ctx context.Context, viewer domain.Viewer, id, remark string) (*service.ProviderView, error)
	Approve(ctx context.Context, viewer domain.Viewer, id string, limited bool, limitQPS *int, remark string) (*service.ProviderView, error)
	Reject(ctx context.Context, viewer domain.Viewer, id, reason, remark string) (*service.ProviderView, error)
	Pause(ctx context.Context, viewer domain.Viewer, id, remark string) (*service.ProviderView, error)
	Resume(ctx context.Context, viewer domain.Viewer, id, remark string) (*service.ProviderView, error)
	Offline(ctx context.Context, viewer domain.Viewer, id, remark string) (*service.ProviderView, error)
	ToggleModel(ctx context.Context, viewer domain.Viewer, id, model string, disabled bool) (*service.ProviderView, error)
}

type ProviderHandler struct {
	service ProviderActions
}

func NewProviderHandler(s ProviderActions) *ProviderHandler {
	return &ProviderHandler{service: s}
}

type approveRequest struct {
	Limited  bool   `json:"limited"`
	LimitQPS *int   `json:"limit_qps,omitempty"`
	Remark   string `json:"remark,omitempty"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
	Remark string `json:"remark,omitempty"`
}

type remarkRequest struct {
	Remark string `json:"remark,omitempty"`
}

type toggleRequest struct {
	Disabled bool `json:"disabled"`
}

func (h *ProviderHandler) List(w http.ResponseWriter, r *http.Request) {
	views, err := h.service.ListProviders(r.Context(), auth.ViewerFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *ProviderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	view, err := h.service.GetProvider(r.Context(), auth.ViewerFromContext(r.Context()), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ProviderHandler) Test(w http.ResponseWriter, r *http.Request) {
	var req remarkRequest
	decodeOptional(r, &req)

	view, err := h.service.Test(r.Context(), auth.ViewerFromContext(r.Context()), chi.URLParam(r, "id"), req.Remark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ProviderHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	decodeOptional(r, &req)

	view, err := h.service.Approve(r.Context(), auth.ViewerFromContext(r.Context()), chi.URLParam(r, "id"), req.Limited, req.LimitQPS, req.Remark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ProviderHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	view, err := h.service.Reject(r.Context(), auth.ViewerFromContext(r.Context()), chi.URLParam(r, "id"), req.Reason, req.Remark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ProviderHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.service.Pause)
}

func (h *ProviderHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.service.Resume)
}

func (h *ProviderHandler) Offline(w http.ResponseWriter, r *http.Request) {
	h.operation(w, r, h.service.Offline)
}

func (h *ProviderHandler) operation(
	w http.ResponseWriter,
	r *http.Request,
	act func(context.Context, domain.Viewer, string, string) (*service.ProviderView, error),
) {
	var req remarkRequest
	decodeOptional(r, &req)

	view, err := act(r.Context(), auth.ViewerFromContext(r.Context()), chi.URLParam(r, "id"), req.Remark)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *ProviderHandler) ToggleModel(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	view, err := h.service.ToggleModel(
		r.Context(),
		auth.ViewerFromContext(r.Context()),
		chi.URLParam(r, "id"),
		chi.URLParam(r, "model"),
		req.Disabled,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// decodeOptional tolerates an empty body: most transition endpoints take
// only an optional remark.
func decodeOptional(r *http.Request, v interface{}) {
	if r.Body == nil {
		return
	}
	_ = json.NewDecoder(r.Body).Decode(v)
}
