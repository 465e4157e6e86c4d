package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/agentmesh/internal/document"
	"github.com/kalambet/agentmesh/internal/opportunity"
	"github.com/kalambet/agentmesh/internal/rooms"
	"github.com/kalambet/agentmesh/internal/storage"
)

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// classify maps a domain error onto an HTTP status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, rooms.ErrNotFound),
		errors.Is(err, opportunity.ErrNotFound),
		errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, rooms.ErrNotParticipant),
		errors.Is(err, opportunity.ErrForbidden):
		return http.StatusForbidden, "permission_error"
	case errors.Is(err, rooms.ErrInvalidCode),
		errors.Is(err, rooms.ErrInvalidInput),
		errors.Is(err, opportunity.ErrInvalidDecision),
		errors.Is(err, document.ErrEmpty),
		errors.Is(err, document.ErrNoText),
		errors.Is(err, document.ErrTooManyPages):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, document.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "invalid_request_error"
	}
	return http.StatusInternalServerError, "api_error"
}

// domainError writes err with its mapped status. Internal errors are logged
// and reported without detail.
func domainError(w http.ResponseWriter, r *http.Request, err error) {
	code, typ := classify(err)
	if code == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		httpError(w, code, typ, "internal error")
		return
	}
	httpError(w, code, typ, "%s", err.Error())
}
