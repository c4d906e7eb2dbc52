package api

import (
	"net/http"
	"strings"
	"time"
)

// StatusHandler handles per-region status requests.
type StatusHandler struct {
	deps Dependencies
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(deps Dependencies) *StatusHandler {
	return &StatusHandler{deps: deps}
}

type statusResponse struct {
	Region    regionJSON  `json:"region"`
	Metrics   metricsJSON `json:"metrics"`
	Rank      int         `json:"rank,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// HandleGetStatus handles GET /status?region=QUERY requests.
func (h *StatusHandler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	query := strings.TrimSpace(r.URL.Query().Get("region"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "bad_request", ErrBadRequest)
		return
	}
	st, err := h.deps.Status(r.Context(), query)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Region:    toRegionJSON(st.Region),
		Metrics:   toMetricsJSON(st.Metrics),
		Rank:      st.Rank,
		Timestamp: st.Timestamp.UTC().Format(time.RFC3339),
	})
}
