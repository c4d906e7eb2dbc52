// Package app provides the core service behind the command surface.
//
// The service owns the currently published snapshot. Snapshots are immutable
// and replaced by reference swap, so read queries never contend with the
// scheduler building the next one.
package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/epiwatch/internal/adapters/fetch"
	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/domain/aggregate"
	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
	"github.com/okian/epiwatch/internal/domain/snapshot"
	"github.com/okian/epiwatch/internal/notify"
	"github.com/okian/epiwatch/internal/scheduler"
	"github.com/okian/epiwatch/pkg/logger"
)

// Default service configuration constants.
const (
	defaultMaxSubscriptions = 10
	defaultMaxRankingLimit  = 100
	defaultNotifyWorkers    = 4
	summaryTopCount         = 3
)

// Service implements the command surface over the catalog, aggregator,
// subscription store, and reconciliation scheduler.
type Service struct {
	mu sync.Mutex

	// subMu serializes the cap check with the insert in Subscribe, so two
	// concurrent subscribes for one subscriber cannot both pass the check.
	subMu sync.Mutex

	catalog  *region.Catalog
	store    repository.Store
	fetcher  fetch.Fetcher
	notifier notify.Notifier

	current atomic.Pointer[model.Snapshot]
	sched   *scheduler.Scheduler
	cancel  context.CancelFunc
	started bool

	interval         time.Duration
	maxSubscriptions int
	maxRankingLimit  int
	notifyWorkers    int
	clock            scheduler.Clock

	logger logger.Logger
}

// Summary is the global view: totals plus the most affected regions.
type Summary struct {
	Totals       aggregate.Totals
	TopCountries []model.RankingEntry
	TopProvinces []model.RankingEntry
	Timestamp    time.Time
}

// Status is one region's current figures. Rank is the country's position in
// the confirmed ranking, zero for provinces and unranked countries.
type Status struct {
	Region    model.Region
	Metrics   model.MetricSet
	Rank      int
	Timestamp time.Time
}

// New constructs a service. Start wires and launches the scheduler.
func New(catalog *region.Catalog, store repository.Store, fetcher fetch.Fetcher,
	notifier notify.Notifier, opts ...Option) *Service {
	s := &Service{
		catalog:          catalog,
		store:            store,
		fetcher:          fetcher,
		notifier:         notifier,
		maxSubscriptions: defaultMaxSubscriptions,
		maxRankingLimit:  defaultMaxRankingLimit,
		notifyWorkers:    defaultNotifyWorkers,
		clock:            scheduler.NewRealClock(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds the parser, dispatcher, and scheduler, then launches the
// reconciliation loop.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	parser := snapshot.NewParser(s.catalog, snapshot.WithClock(s.clock.Now))
	dispatcher := notify.NewDispatcher(s.notifier, notify.WithWorkers(s.notifyWorkers))

	schedOpts := []scheduler.Option{scheduler.WithClock(s.clock)}
	if s.interval > 0 {
		schedOpts = append(schedOpts, scheduler.WithInterval(s.interval))
	}
	s.sched = scheduler.New(s.fetcher, parser, s.catalog, s.store, dispatcher,
		s.publish, schedOpts...)

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go s.sched.Run(runCtx)

	s.started = true
	s.logger.Info(ctx, "service started",
		logger.Duration("interval", s.interval),
		logger.Int("max_subscriptions", s.maxSubscriptions),
	)
	return nil
}

// Stop halts the scheduler and closes the store.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.cancel()
	if err := s.store.Close(); err != nil {
		s.logger.Error(context.Background(), "closing store failed", logger.Error(err))
	}
	s.started = false
	s.logger.Info(context.Background(), "service stopped")
}

// publish swaps in a freshly parsed snapshot. Called only by the scheduler.
func (s *Service) publish(snap *model.Snapshot) {
	s.current.Store(snap)
}

// CurrentSnapshot returns the latest published snapshot, or nil before the
// first successful tick.
func (s *Service) CurrentSnapshot() *model.Snapshot {
	return s.current.Load()
}

func (s *Service) snapshotOrErr() (*model.Snapshot, error) {
	snap := s.current.Load()
	if snap == nil {
		return nil, ErrNoSnapshot
	}
	return snap, nil
}

// Summary returns global totals and the most affected countries/provinces.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	snap, err := s.snapshotOrErr()
	if err != nil {
		return Summary{}, err
	}
	top, err := aggregate.Rank(snap, s.catalog, 1, summaryTopCount)
	if err != nil {
		return Summary{}, err
	}
	provs, err := aggregate.RankProvinces(snap, s.catalog, summaryTopCount)
	if err != nil {
		return Summary{}, err
	}
	return Summary{
		Totals:       aggregate.GlobalTotals(snap, s.catalog),
		TopCountries: top,
		TopProvinces: provs,
		Timestamp:    snap.Timestamp(),
	}, nil
}

// Ranking returns a page of the country ranking. start is 1-based; limit is
// clamped to the configured maximum.
func (s *Service) Ranking(ctx context.Context, start, limit int) ([]model.RankingEntry, error) {
	snap, err := s.snapshotOrErr()
	if err != nil {
		return nil, err
	}
	if limit > s.maxRankingLimit {
		limit = s.maxRankingLimit
	}
	return aggregate.Rank(snap, s.catalog, start, limit)
}

// Status resolves a raw region query and returns its current figures.
func (s *Service) Status(ctx context.Context, query string) (Status, error) {
	snap, err := s.snapshotOrErr()
	if err != nil {
		return Status{}, err
	}
	r, err := s.catalog.Resolve(query)
	if err != nil {
		return Status{}, err
	}

	st := Status{Region: r, Timestamp: snap.Timestamp()}
	if r.IsCountry() {
		m, err := aggregate.CountryMetrics(snap, s.catalog, r.Country)
		if err != nil {
			return Status{}, err
		}
		st.Metrics = m
		if rank, err := aggregate.CountryRank(snap, s.catalog, r.Country); err == nil {
			st.Rank = rank
		}
		return st, nil
	}

	m, err := aggregate.MetricsFor(snap, r)
	if err != nil {
		return Status{}, err
	}
	st.Metrics = m
	return st, nil
}

// Subscribe resolves the query and records a watch for the subscriber.
// Idempotent; enforces the per-subscriber cap.
func (s *Service) Subscribe(ctx context.Context, subscriberID, query string) (model.Region, error) {
	r, err := s.catalog.Resolve(query)
	if err != nil {
		return model.Region{}, err
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if s.maxSubscriptions > 0 {
		n, err := s.store.CountFor(ctx, subscriberID)
		if err != nil {
			return model.Region{}, err
		}
		if n >= s.maxSubscriptions {
			// At the cap, re-subscribing an existing watch stays a no-op.
			watched, err := s.store.ListFor(ctx, subscriberID)
			if err != nil {
				return model.Region{}, err
			}
			already := false
			for _, w := range watched {
				if w == r {
					already = true
					break
				}
			}
			if !already {
				return model.Region{}, fmt.Errorf("%w: %d watches", ErrSubscriptionLimit, s.maxSubscriptions)
			}
		}
	}
	if err := s.store.Subscribe(ctx, subscriberID, r); err != nil {
		return model.Region{}, err
	}
	return r, nil
}

// Unsubscribe resolves the query and removes the watch.
func (s *Service) Unsubscribe(ctx context.Context, subscriberID, query string) (model.Region, error) {
	r, err := s.catalog.Resolve(query)
	if err != nil {
		return model.Region{}, err
	}
	if err := s.store.Unsubscribe(ctx, subscriberID, r); err != nil {
		return model.Region{}, err
	}
	return r, nil
}

// Subscriptions returns the regions a subscriber watches.
func (s *Service) Subscriptions(ctx context.Context, subscriberID string) ([]model.Region, error) {
	return s.store.ListFor(ctx, subscriberID)
}

// ForceRefresh asks the scheduler for an immediate tick. Safe to call at
// any time; a refresh during an in-flight cycle coalesces.
func (s *Service) ForceRefresh() {
	s.mu.Lock()
	sched := s.sched
	s.mu.Unlock()
	if sched != nil {
		sched.Wake()
	}
}

// Catalog exposes the region catalog for presentation collaborators.
func (s *Service) Catalog() *region.Catalog {
	return s.catalog
}
