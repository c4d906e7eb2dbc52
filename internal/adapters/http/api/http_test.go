package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/okian/epiwatch/internal/adapters/http/api"
	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/app"
	"github.com/okian/epiwatch/internal/domain/aggregate"
	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
	. "github.com/smartystreets/goconvey/convey"
)

// fakeDeps is a canned Dependencies implementation.
type fakeDeps struct {
	summary       app.Summary
	summaryErr    error
	ranking       []model.RankingEntry
	rankingErr    error
	status        app.Status
	statusErr     error
	subscribeErr  error
	unsubErr      error
	subscriptions []model.Region
	refreshed     int
}

func (f *fakeDeps) Summary(context.Context) (app.Summary, error) {
	return f.summary, f.summaryErr
}

func (f *fakeDeps) Ranking(_ context.Context, start, limit int) ([]model.RankingEntry, error) {
	if f.rankingErr != nil {
		return nil, f.rankingErr
	}
	if limit < 1 {
		return nil, aggregate.ErrInvalidLimit
	}
	if start < 1 {
		return nil, aggregate.ErrInvalidStart
	}
	return f.ranking, nil
}

func (f *fakeDeps) Status(context.Context, string) (app.Status, error) {
	return f.status, f.statusErr
}

func (f *fakeDeps) Subscribe(_ context.Context, _, query string) (model.Region, error) {
	if f.subscribeErr != nil {
		return model.Region{}, f.subscribeErr
	}
	return model.Region{Country: query}, nil
}

func (f *fakeDeps) Unsubscribe(_ context.Context, _, query string) (model.Region, error) {
	if f.unsubErr != nil {
		return model.Region{}, f.unsubErr
	}
	return model.Region{Country: query}, nil
}

func (f *fakeDeps) Subscriptions(context.Context, string) ([]model.Region, error) {
	return f.subscriptions, nil
}

func (f *fakeDeps) ForceRefresh() { f.refreshed++ }

func newMux(deps api.Dependencies) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func doJSON(mux *http.ServeMux, method, target string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndMetricsRoutes(t *testing.T) {
	Convey("Given the registered routes", t, func() {
		mux := newMux(&fakeDeps{})

		Convey("Then /healthz answers ok", func() {
			rec := doJSON(mux, http.MethodGet, "/healthz", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
			So(rec.Body.String(), ShouldContainSubstring, `"ok"`)
		})

		Convey("And /metrics serves the Prometheus exposition", func() {
			rec := doJSON(mux, http.MethodGet, "/metrics", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)
		})
	})
}

func TestSummaryEndpoint(t *testing.T) {
	Convey("Given a service with a snapshot", t, func() {
		deps := &fakeDeps{
			summary: app.Summary{
				Totals: aggregate.Totals{Confirmed: 6000, Deaths: 240, Recovered: 4400, Countries: 4, Complete: true},
				TopCountries: []model.RankingEntry{
					{Region: model.Region{Country: "Italy"}, Confirmed: 2000, Rank: 1},
				},
				Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			},
		}
		mux := newMux(deps)

		Convey("When fetching the summary", func() {
			rec := doJSON(mux, http.MethodGet, "/summary", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var got map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(got["confirmed"], ShouldEqual, 6000)
			So(got["countries"], ShouldEqual, 4)
			So(got["complete"], ShouldEqual, true)
			So(got["timestamp"], ShouldEqual, "2026-08-01T00:00:00Z")
		})

		Convey("When no snapshot has been published yet", func() {
			deps.summaryErr = app.ErrNoSnapshot
			rec := doJSON(mux, http.MethodGet, "/summary", nil)
			So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
			So(rec.Body.String(), ShouldContainSubstring, "no_snapshot")
		})

		Convey("When using the wrong method", func() {
			rec := doJSON(mux, http.MethodPost, "/summary", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRankingEndpoint(t *testing.T) {
	Convey("Given a ranked service", t, func() {
		deps := &fakeDeps{
			ranking: []model.RankingEntry{
				{Region: model.Region{Country: "Italy"}, Confirmed: 2000, Rank: 1},
				{Region: model.Region{Country: "Spain"}, Confirmed: 1500, Rank: 2},
			},
		}
		mux := newMux(deps)

		Convey("When fetching the ranking", func() {
			rec := doJSON(mux, http.MethodGet, "/ranking", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var got []map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[0]["rank"], ShouldEqual, 1)
			So(got[0]["confirmed"], ShouldEqual, 2000)
		})

		Convey("When pagination parameters are not numbers", func() {
			rec := doJSON(mux, http.MethodGet, "/ranking?start=abc", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When pagination parameters are out of range", func() {
			rec := doJSON(mux, http.MethodGet, "/ranking?limit=0", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestStatusEndpoint(t *testing.T) {
	Convey("Given a service that resolves regions", t, func() {
		deps := &fakeDeps{
			status: app.Status{
				Region: model.Region{Country: "US"},
				Metrics: model.MetricSet{
					Confirmed: model.Count(1000),
					Deaths:    model.Unknown(),
				},
				Rank:      4,
				Timestamp: time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
			},
		}
		mux := newMux(deps)

		Convey("When fetching a region's status", func() {
			rec := doJSON(mux, http.MethodGet, "/status?region=usa", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var got struct {
				Region  map[string]any `json:"region"`
				Metrics map[string]any `json:"metrics"`
				Rank    int            `json:"rank"`
			}
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(got.Region["country"], ShouldEqual, "US")
			So(got.Rank, ShouldEqual, 4)

			Convey("Then known metrics are numbers and unknowns are null", func() {
				So(got.Metrics["confirmed"], ShouldEqual, 1000)
				So(got.Metrics["deaths"], ShouldBeNil)
			})
		})

		Convey("When the region parameter is missing", func() {
			rec := doJSON(mux, http.MethodGet, "/status", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the region is unknown", func() {
			deps.statusErr = region.ErrUnknownRegion
			rec := doJSON(mux, http.MethodGet, "/status?region=atlantis", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(rec.Body.String(), ShouldContainSubstring, "unknown_region")
		})
	})
}

func TestSubscriptionsEndpoint(t *testing.T) {
	Convey("Given the subscriptions routes", t, func() {
		deps := &fakeDeps{
			subscriptions: []model.Region{{Country: "US"}, {Country: "US", Province: "California"}},
		}
		mux := newMux(deps)

		Convey("When listing watches", func() {
			rec := doJSON(mux, http.MethodGet, "/subscriptions?subscriber_id=alice", nil)
			So(rec.Code, ShouldEqual, http.StatusOK)

			var got []map[string]any
			So(json.Unmarshal(rec.Body.Bytes(), &got), ShouldBeNil)
			So(len(got), ShouldEqual, 2)
			So(got[1]["province"], ShouldEqual, "California")
		})

		Convey("When listing without a subscriber id", func() {
			rec := doJSON(mux, http.MethodGet, "/subscriptions", nil)
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When creating a watch", func() {
			rec := doJSON(mux, http.MethodPost, "/subscriptions",
				map[string]string{"subscriber_id": "alice", "region": "US"})
			So(rec.Code, ShouldEqual, http.StatusCreated)
			So(rec.Body.String(), ShouldContainSubstring, `"US"`)
		})

		Convey("When the create body is incomplete", func() {
			rec := doJSON(mux, http.MethodPost, "/subscriptions",
				map[string]string{"subscriber_id": "alice"})
			So(rec.Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When the watch cap is hit", func() {
			deps.subscribeErr = app.ErrSubscriptionLimit
			rec := doJSON(mux, http.MethodPost, "/subscriptions",
				map[string]string{"subscriber_id": "alice", "region": "US"})
			So(rec.Code, ShouldEqual, http.StatusConflict)
			So(rec.Body.String(), ShouldContainSubstring, "subscription_limit")
		})

		Convey("When removing a watch", func() {
			rec := doJSON(mux, http.MethodDelete, "/subscriptions",
				map[string]string{"subscriber_id": "alice", "region": "US"})
			So(rec.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When removing a watch that does not exist", func() {
			deps.unsubErr = repository.ErrNotSubscribed
			rec := doJSON(mux, http.MethodDelete, "/subscriptions",
				map[string]string{"subscriber_id": "alice", "region": "US"})
			So(rec.Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestRefreshEndpoint(t *testing.T) {
	Convey("Given the refresh route", t, func() {
		deps := &fakeDeps{}
		mux := newMux(deps)

		Convey("When posting a refresh", func() {
			rec := doJSON(mux, http.MethodPost, "/refresh", nil)
			So(rec.Code, ShouldEqual, http.StatusAccepted)
			So(deps.refreshed, ShouldEqual, 1)
		})

		Convey("When using the wrong method", func() {
			rec := doJSON(mux, http.MethodGet, "/refresh", nil)
			So(rec.Code, ShouldEqual, http.StatusNotFound)
			So(deps.refreshed, ShouldEqual, 0)
		})
	})
}
