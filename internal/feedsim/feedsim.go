// Package feedsim serves a synthetic tabular feed for local development.
// Each request observes a feed that drifts over time: confirmed counts
// grow, deaths and recoveries trail behind, and a few rows randomly drop
// their fields to exercise unknown-value handling downstream.
package feedsim

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/csv"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/okian/epiwatch/pkg/logger"
)

// Growth tuning for one mutation step.
const (
	confirmedStepMax = 500
	deathsStepMax    = 20
	recoveredStepMax = 400
	dropoutDivisor   = 25 // roughly 4% of rows lose a field per step
)

// row is one synthetic feed line. Counters only ever grow.
type row struct {
	country   string
	province  string
	confirmed int64
	deaths    int64
	recovered int64
}

// Simulator holds the mutable feed state and serves it as CSV.
type Simulator struct {
	mu      sync.Mutex
	rows    []row
	step    time.Duration
	last    time.Time
	started time.Time
	log     logger.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithStep sets the drift interval. State mutates at most once per step.
func WithStep(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.step = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.log = l
		}
	}
}

// New builds a Simulator seeded with a small fixed world.
func New(opts ...Option) *Simulator {
	s := &Simulator{
		rows: []row{
			{country: "US", province: "California", confirmed: 120000, deaths: 2400, recovered: 80000},
			{country: "US", province: "New York", confirmed: 98000, deaths: 3100, recovered: 71000},
			{country: "US", province: "Texas", confirmed: 87000, deaths: 1900, recovered: 64000},
			{country: "Italy", confirmed: 230000, deaths: 33000, recovered: 150000},
			{country: "Spain", confirmed: 240000, deaths: 27000, recovered: 170000},
			{country: "Germany", confirmed: 180000, deaths: 8500, recovered: 160000},
			{country: "France", confirmed: 150000, deaths: 29000, recovered: 68000},
			{country: "United Kingdom", confirmed: 270000, deaths: 38000, recovered: 1000},
			{country: "China", province: "Hubei", confirmed: 68000, deaths: 4500, recovered: 63000},
			{country: "China", province: "Guangdong", confirmed: 1600, deaths: 8, recovered: 1580},
			{country: "Korea, South", confirmed: 11000, deaths: 270, recovered: 10000},
			{country: "Brazil", confirmed: 390000, deaths: 24000, recovered: 150000},
			{country: "Russia", confirmed: 360000, deaths: 3800, recovered: 130000},
			{country: "India", confirmed: 150000, deaths: 4300, recovered: 64000},
			{country: "Iran", confirmed: 139000, deaths: 7500, recovered: 109000},
		},
		step:    30 * time.Second,
		started: time.Now(),
		log:     logger.Get(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.last = time.Now()
	return s
}

// randInt returns a random int64 in [0, max).
func randInt(max int64) int64 {
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		return 0
	}
	return n.Int64()
}

// advance mutates the world if at least one step has elapsed since the
// last mutation. Counters are monotone so the feed never regresses.
func (s *Simulator) advance(now time.Time) {
	steps := int(now.Sub(s.last) / s.step)
	if steps <= 0 {
		return
	}
	if steps > 10 {
		steps = 10
	}
	for i := 0; i < steps; i++ {
		for j := range s.rows {
			s.rows[j].confirmed += randInt(confirmedStepMax)
			s.rows[j].deaths += randInt(deathsStepMax)
			s.rows[j].recovered += randInt(recoveredStepMax)
		}
	}
	s.last = now
}

// Render produces the current feed as CSV bytes.
func (s *Simulator) Render(now time.Time) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.advance(now)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{"Province_State", "Country_Region", "Last_Update", "Confirmed", "Deaths", "Recovered", "Active", "Incident_Rate"})

	updated := now.UTC().Format(time.RFC3339)
	for i, r := range s.rows {
		confirmed := strconv.FormatInt(r.confirmed, 10)
		deaths := strconv.FormatInt(r.deaths, 10)
		recovered := strconv.FormatInt(r.recovered, 10)
		active := strconv.FormatInt(r.confirmed-r.deaths-r.recovered, 10)

		// Occasionally blank a field so consumers see unknowns.
		if int64(i)%dropoutDivisor == randInt(dropoutDivisor) {
			recovered = ""
			active = ""
		}

		_ = w.Write([]string{r.province, r.country, updated, confirmed, deaths, recovered, active, ""})
	}
	w.Flush()
	return buf.Bytes()
}

// Handler returns the HTTP handler serving the feed as text/csv.
func (s *Simulator) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.NotFound(w, r)
			return
		}
		body := s.Render(time.Now())
		w.Header().Set("Content-Type", "text/csv")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
		s.log.Debug(r.Context(), "served feed",
			logger.Int("bytes", len(body)),
			logger.Duration("uptime", time.Since(s.started)))
	})
}

// Serve runs an HTTP server on addr until ctx is cancelled.
func (s *Simulator) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/feed.csv", s.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info(ctx, "feed simulator listening", logger.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
