package api

import (
	"net/http"
	"time"
)

// SummaryHandler handles global summary requests.
type SummaryHandler struct {
	deps Dependencies
}

// NewSummaryHandler creates a new summary handler.
func NewSummaryHandler(deps Dependencies) *SummaryHandler {
	return &SummaryHandler{deps: deps}
}

type summaryResponse struct {
	Confirmed    int64              `json:"confirmed"`
	Deaths       int64              `json:"deaths"`
	Recovered    int64              `json:"recovered"`
	Active       int64              `json:"active"`
	Countries    int                `json:"countries"`
	Complete     bool               `json:"complete"`
	TopCountries []rankingEntryJSON `json:"top_countries"`
	TopProvinces []rankingEntryJSON `json:"top_provinces"`
	Timestamp    string             `json:"timestamp"`
}

// HandleGetSummary handles GET /summary requests.
func (h *SummaryHandler) HandleGetSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	s, err := h.deps.Summary(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		Confirmed:    s.Totals.Confirmed,
		Deaths:       s.Totals.Deaths,
		Recovered:    s.Totals.Recovered,
		Active:       s.Totals.Active,
		Countries:    s.Totals.Countries,
		Complete:     s.Totals.Complete,
		TopCountries: toRankingJSON(s.TopCountries),
		TopProvinces: toRankingJSON(s.TopProvinces),
		Timestamp:    s.Timestamp.UTC().Format(time.RFC3339),
	})
}
