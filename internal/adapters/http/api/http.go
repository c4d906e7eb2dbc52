// Package api declares HTTP contracts and route registration helpers.
//
// The API is the machine-facing command surface; turning responses into
// user-facing chat text is the dispatcher's job, not ours.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/app"
	"github.com/okian/epiwatch/internal/domain/aggregate"
	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
	"github.com/okian/epiwatch/pkg/metrics"
)

// Dependencies required by HTTP handlers. An interface bundle keeps the
// handler layer loosely coupled to the app service.
type Dependencies interface {
	Summary(ctx context.Context) (app.Summary, error)
	Ranking(ctx context.Context, start, limit int) ([]model.RankingEntry, error)
	Status(ctx context.Context, query string) (app.Status, error)
	Subscribe(ctx context.Context, subscriberID, query string) (model.Region, error)
	Unsubscribe(ctx context.Context, subscriberID, query string) (model.Region, error)
	Subscriptions(ctx context.Context, subscriberID string) ([]model.Region, error)
	ForceRefresh()
}

// Server wires HTTP routes for the command surface.
type Server struct {
	summaryHandler       *SummaryHandler
	rankingHandler       *RankingHandler
	statusHandler        *StatusHandler
	subscriptionsHandler *SubscriptionsHandler
	refreshHandler       *RefreshHandler
	healthHandler        *HealthHandler
}

// NewServer creates an API server with all handlers.
func NewServer(deps Dependencies) *Server {
	return &Server{
		summaryHandler:       NewSummaryHandler(deps),
		rankingHandler:       NewRankingHandler(deps),
		statusHandler:        NewStatusHandler(deps),
		subscriptionsHandler: NewSubscriptionsHandler(deps),
		refreshHandler:       NewRefreshHandler(deps),
		healthHandler:        NewHealthHandler(),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/summary", MetricsMiddleware(s.summaryHandler.HandleGetSummary, "summary"))
	mux.HandleFunc("/ranking", MetricsMiddleware(s.rankingHandler.HandleGetRanking, "ranking"))
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleGetStatus, "status"))
	mux.HandleFunc("/subscriptions", MetricsMiddleware(s.subscriptionsHandler.HandleSubscriptions, "subscriptions"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.refreshHandler.HandleRefresh, "refresh"))
}

// metricsJSON is the wire shape of a metric set; unknown fields are null.
type metricsJSON struct {
	Confirmed    *int64   `json:"confirmed"`
	Deaths       *int64   `json:"deaths"`
	Recovered    *int64   `json:"recovered"`
	Active       *int64   `json:"active"`
	IncidentRate *float64 `json:"incident_rate"`
	AsOf         string   `json:"as_of,omitempty"`
}

func toMetricsJSON(m model.MetricSet) metricsJSON {
	out := metricsJSON{}
	if m.Confirmed.Known {
		out.Confirmed = &m.Confirmed.Value
	}
	if m.Deaths.Known {
		out.Deaths = &m.Deaths.Value
	}
	if m.Recovered.Known {
		out.Recovered = &m.Recovered.Value
	}
	if m.Active.Known {
		out.Active = &m.Active.Value
	}
	if m.IncidentRate.Known {
		out.IncidentRate = &m.IncidentRate.Value
	}
	if !m.AsOf.IsZero() {
		out.AsOf = m.AsOf.UTC().Format(time.RFC3339)
	}
	return out
}

type regionJSON struct {
	Country  string `json:"country"`
	Province string `json:"province,omitempty"`
}

func toRegionJSON(r model.Region) regionJSON {
	return regionJSON{Country: r.Country, Province: r.Province}
}

type rankingEntryJSON struct {
	Rank      int        `json:"rank"`
	Region    regionJSON `json:"region"`
	Confirmed int64      `json:"confirmed"`
}

func toRankingJSON(entries []model.RankingEntry) []rankingEntryJSON {
	out := make([]rankingEntryJSON, len(entries))
	for i, e := range entries {
		out[i] = rankingEntryJSON{Rank: e.Rank, Region: toRegionJSON(e.Region), Confirmed: e.Confirmed}
	}
	return out
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeDomainError maps domain sentinels onto HTTP statuses so handlers
// never leak raw internals with a blanket 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrNoSnapshot):
		writeError(w, http.StatusServiceUnavailable, "no_snapshot", err)
	case errors.Is(err, region.ErrUnknownRegion):
		writeError(w, http.StatusNotFound, "unknown_region", err)
	case errors.Is(err, aggregate.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, aggregate.ErrInvalidLimit), errors.Is(err, aggregate.ErrInvalidStart):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, app.ErrSubscriptionLimit):
		writeError(w, http.StatusConflict, "subscription_limit", err)
	case errors.Is(err, repository.ErrNotSubscribed):
		writeError(w, http.StatusNotFound, "not_subscribed", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", ErrInternal)
	}
}
