package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/lishushu94/provider-console/internal/domain"
)

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors to HTTP statuses in one place so every
// endpoint speaks the same error dialect.
func writeError(w http.ResponseWriter, err error) {
	var code int
	var msg string

	switch {
	case errors.Is(err, domain.ErrReasonRequired):
		code, msg = http.StatusBadRequest, "reject reason is required"
	case errors.Is(err, domain.ErrInvalidQPSCap):
		code, msg = http.StatusBadRequest, "qps cap must be a positive integer"
	case errors.Is(err, domain.ErrNotShared):
		code, msg = http.StatusForbidden, "provider is not in the shared pool"
	case errors.Is(err, domain.ErrForbidden):
		code, msg = http.StatusForbidden, "operation not permitted"
	case errors.Is(err, domain.ErrNotFound):
		code, msg = http.StatusNotFound, "not found"
	case errors.Is(err, domain.ErrAlreadyDecided):
		code, msg = http.StatusConflict, "status already changed by another decision"
	case errors.Is(err, domain.ErrInvalidTransition):
		code, msg = http.StatusConflict, "invalid status transition"
	default:
		code, msg = http.StatusInternalServerError, "internal error"
	}

	writeJSON(w, code, map[string]string{"error": msg})
}
