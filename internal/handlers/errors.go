package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
)

// UserHeader carries the id of the calling user. Authentication happens upstream.
const UserHeader = "X-User-ID"

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, alert.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, alert.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, alert.ErrAlreadyResolved),
		errors.Is(err, alert.ErrConcurrentModification),
		errors.Is(err, alert.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, alert.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and writes the mapped status. Internal errors are not echoed to the client.
func (h *Handlers) handleError(w http.ResponseWriter, err error, op string, attrs ...any) {
	status := statusFor(err)
	attrs = append(attrs, "op", op, "error", err, "status", status)
	if status >= http.StatusInternalServerError {
		h.metrics.RecordError()
		slog.Error("Request failed", attrs...)
	} else {
		slog.Warn("Request rejected", attrs...)
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "Failed to " + op
	}
	http.Error(w, msg, status)
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// decodeBody decodes an optional JSON body. An empty body leaves v untouched.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// actorFrom returns the calling user, writing 401 when the header is missing.
func actorFrom(w http.ResponseWriter, r *http.Request) (alert.Actor, bool) {
	userID := strings.TrimSpace(r.Header.Get(UserHeader))
	if userID == "" {
		http.Error(w, UserHeader+" header is required", http.StatusUnauthorized)
		return alert.Actor{}, false
	}
	return alert.UserActor(userID), true
}
