package handlers

import (
	"net/http"

	"github.com/stargan-id/jaga-gizi-alerting/pkg/metrics"
)

type metricsResponse struct {
	Instances []*metrics.Snapshot `json:"instances"`
	Totals    map[string]uint64   `json:"totals"`
}

// Metrics handles GET /api/v1/metrics.
func (h *Handlers) Metrics(w http.ResponseWriter, r *http.Request) {
	if h.metricsReader == nil {
		http.Error(w, "Metrics are not configured", http.StatusServiceUnavailable)
		return
	}

	instances, err := h.metricsReader.Instances(r.Context())
	if err != nil {
		h.handleError(w, err, "read metrics")
		return
	}
	totals, err := h.metricsReader.Totals(r.Context())
	if err != nil {
		h.handleError(w, err, "read metrics")
		return
	}
	if instances == nil {
		instances = []*metrics.Snapshot{}
	}
	writeJSON(w, http.StatusOK, metricsResponse{Instances: instances, Totals: totals})
}
