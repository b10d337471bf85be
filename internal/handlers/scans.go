package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stargan-id/jaga-gizi-alerting/internal/alert"
	"github.com/stargan-id/jaga-gizi-alerting/internal/escalation"
	"github.com/stargan-id/jaga-gizi-alerting/internal/resolver"
	"github.com/stargan-id/jaga-gizi-alerting/internal/rules"
)

type scanResponse struct {
	Rule    rules.Kind `json:"rule"`
	Created int        `json:"created"`
}

type scanAllResponse struct {
	Created map[rules.Kind]int `json:"created"`
	Errors  []string           `json:"errors,omitempty"`
}

type escalationResponse struct {
	escalation.Result
	Error string `json:"error,omitempty"`
}

type resolutionResponse struct {
	resolver.Result
	Error string `json:"error,omitempty"`
}

type recheckResponse struct {
	Outcome resolver.Outcome `json:"outcome"`
	Alert   *alert.Alert     `json:"alert"`
}

// ListRules handles GET /api/v1/rules.
func (h *Handlers) ListRules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Scanner.Rules())
}

// ScanRule handles POST /api/v1/scans/{rule}.
func (h *Handlers) ScanRule(w http.ResponseWriter, r *http.Request) {
	kind, err := rules.ParseKind(chi.URLParam(r, "rule"))
	if err != nil {
		h.handleError(w, err, "run scan")
		return
	}

	n, err := h.Scanner.Scan(r.Context(), kind, h.now())
	if err != nil {
		h.handleError(w, err, "run scan", "rule", kind)
		return
	}
	h.metrics.IncrementCustom("scans_triggered")
	writeJSON(w, http.StatusOK, scanResponse{Rule: kind, Created: n})
}

// ScanAll handles POST /api/v1/scans. Failing rules are reported alongside the
// counts of the rules that succeeded; the request fails only if every rule failed.
func (h *Handlers) ScanAll(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Scanner.ScanAll(r.Context(), h.now())
	h.metrics.IncrementCustom("scans_triggered")

	resp := scanAllResponse{Created: counts}
	if resp.Created == nil {
		resp.Created = map[rules.Kind]int{}
	}
	if err != nil {
		if len(counts) == 0 {
			h.handleError(w, err, "run scans")
			return
		}
		resp.Errors = splitJoined(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// SweepEscalation handles POST /api/v1/sweeps/escalation.
func (h *Handlers) SweepEscalation(w http.ResponseWriter, r *http.Request) {
	res, err := h.Escalation.Sweep(r.Context(), h.now())
	if err != nil && res.Inspected == 0 {
		h.handleError(w, err, "run escalation sweep")
		return
	}
	resp := escalationResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// SweepResolution handles POST /api/v1/sweeps/resolution.
func (h *Handlers) SweepResolution(w http.ResponseWriter, r *http.Request) {
	res, err := h.Resolver.Sweep(r.Context(), h.now())
	if err != nil && res.Checked == 0 {
		h.handleError(w, err, "run resolution sweep")
		return
	}
	resp := resolutionResponse{Result: res}
	if err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// RecheckAlert handles POST /api/v1/alerts/{id}/recheck.
func (h *Handlers) RecheckAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	out, a, err := h.Resolver.CheckOne(r.Context(), id, h.now())
	if err != nil {
		h.handleError(w, err, "recheck alert", "alert_id", id)
		return
	}
	writeJSON(w, http.StatusOK, recheckResponse{Outcome: out, Alert: a})
}

// splitJoined flattens an errors.Join result into messages.
func splitJoined(err error) []string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return []string{err.Error()}
	}
	var out []string
	for _, e := range joined.Unwrap() {
		out = append(out, e.Error())
	}
	return out
}
