package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

// Summary handles GET /api/v1/summary. Failed sections are listed in the errors field.
func (h *Handlers) Summary(w http.ResponseWriter, r *http.Request) {
	var orgID *string
	if v := strings.TrimSpace(r.URL.Query().Get("organization_id")); v != "" {
		orgID = &v
	}

	s := h.Deps.Summary.Build(r.Context(), orgID)
	if s.Partial() {
		slog.Warn("Summary is partial", "errors", s.Errors)
	}
	writeJSON(w, http.StatusOK, s)
}
