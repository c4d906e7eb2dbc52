// Package scheduler drives the recurring reconciliation loop.
//
// One tick walks the states Idle -> Fetching -> Parsing -> Reconciling ->
// Sleeping. Fetch or parse failures skip straight to Sleeping and the
// previously published snapshot stays the baseline: stale-but-valid data
// beats no data. Sleeping ends when the interval elapses or a manual wake
// arrives; a wake never aborts an in-flight cycle.
package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/okian/epiwatch/internal/adapters/fetch"
	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/domain/aggregate"
	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
	"github.com/okian/epiwatch/internal/domain/snapshot"
	"github.com/okian/epiwatch/internal/notify"
	"github.com/okian/epiwatch/pkg/logger"
	"github.com/okian/epiwatch/pkg/metrics"
)

// Default scheduler configuration constants.
const (
	defaultInterval = 20 * time.Minute
)

// State names one phase of the reconciliation loop.
type State int32

// Loop states in transition order.
const (
	StateIdle State = iota
	StateFetching
	StateParsing
	StateReconciling
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFetching:
		return "fetching"
	case StateParsing:
		return "parsing"
	case StateReconciling:
		return "reconciling"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

// Scheduler owns the fetch -> parse -> reconcile cycle.
type Scheduler struct {
	fetcher    fetch.Fetcher
	parser     *snapshot.Parser
	catalog    *region.Catalog
	store      repository.Store
	dispatcher *notify.Dispatcher
	publish    func(*model.Snapshot)

	interval time.Duration
	clock    Clock
	wake     chan struct{}
	state    atomic.Int32

	logger logger.Logger
}

// New creates a scheduler. publish is called with every successfully parsed
// snapshot before reconciliation, so read paths see fresh data immediately.
func New(fetcher fetch.Fetcher, parser *snapshot.Parser, catalog *region.Catalog,
	store repository.Store, dispatcher *notify.Dispatcher,
	publish func(*model.Snapshot), opts ...Option) *Scheduler {
	s := &Scheduler{
		fetcher:    fetcher,
		parser:     parser,
		catalog:    catalog,
		store:      store,
		dispatcher: dispatcher,
		publish:    publish,
		interval:   defaultInterval,
		clock:      NewRealClock(),
		wake:       make(chan struct{}, 1),
		logger:     nil,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("scheduler")
	}
	return s
}

// State returns the loop's current phase.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Wake requests an immediate tick. Non-blocking: a wake during an in-flight
// cycle coalesces into one additional tick.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run loops ticks until ctx is canceled. The first tick fires immediately
// so a restart republishes data without waiting a full interval.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		s.Tick(ctx)

		s.setState(StateSleeping)
		select {
		case <-ctx.Done():
			s.setState(StateIdle)
			return
		case <-s.clock.After(s.interval):
		case <-s.wake:
			s.logger.Info(ctx, "manual refresh requested")
		}
		s.setState(StateIdle)
	}
}

// Tick runs one full fetch -> parse -> reconcile cycle. Exported so tests
// and the force-refresh path can drive the loop without timers.
func (s *Scheduler) Tick(ctx context.Context) {
	s.setState(StateFetching)
	metrics.RecordFetch()
	fetchStart := s.clock.Now()
	raw, err := s.fetcher.Fetch(ctx)
	metrics.ObserveFetchDuration(s.clock.Now().Sub(fetchStart).Seconds())
	if err != nil {
		reason := "error"
		if errors.Is(err, fetch.ErrFetchTimeout) {
			reason = "timeout"
		}
		metrics.RecordFetchError(reason)
		metrics.RecordReconcileSkip("fetch")
		s.logger.Warn(ctx, "fetch failed, skipping tick", logger.Error(err))
		return
	}

	s.setState(StateParsing)
	snap, err := s.parser.Parse(raw)
	if err != nil {
		metrics.RecordParseError()
		metrics.RecordReconcileSkip("parse")
		s.logger.Warn(ctx, "parse failed, retaining previous snapshot", logger.Error(err))
		return
	}
	s.publish(snap)
	metrics.UpdateSnapshotRegions(snap.Len())
	metrics.UpdateSnapshotWarnings(len(snap.Warnings()))
	metrics.UpdateSnapshotTimestamp(snap.Timestamp().Unix())
	for _, w := range snap.Warnings() {
		s.logger.Debug(ctx, "row skipped", logger.String("warning", w))
	}

	s.setState(StateReconciling)
	start := s.clock.Now()
	s.reconcile(ctx, snap)
	metrics.ObserveReconcileDuration(s.clock.Now().Sub(start).Seconds())
	metrics.RecordReconcileTick()
}

// reconcile diffs every subscription against the fresh snapshot and fans
// out notifications for the changed ones. The baseline is only advanced
// after a confirmed delivery, so a failed delivery retries on the next
// snapshot that still differs.
func (s *Scheduler) reconcile(ctx context.Context, snap *model.Snapshot) {
	subs, err := s.store.AllSubscriptions(ctx)
	if err != nil {
		s.logger.Error(ctx, "listing subscriptions failed", logger.Error(err))
		return
	}
	metrics.UpdateSubscriptionsActive(len(subs))

	var jobs []notify.Job
	for _, sub := range subs {
		current, ok := s.currentMetrics(snap, sub.Region)
		if !ok {
			continue
		}
		if sub.LastNotified != nil && sub.LastNotified.Equal(current) {
			continue
		}
		jobs = append(jobs, notify.Job{
			SubscriberID: sub.SubscriberID,
			Region:       sub.Region,
			Previous:     sub.LastNotified,
			Current:      current,
		})
	}
	if len(jobs) == 0 {
		return
	}

	for _, res := range s.dispatcher.Dispatch(ctx, jobs) {
		if res.Err != nil {
			continue
		}
		if err := s.store.RecordNotified(ctx, res.Job.SubscriberID, res.Job.Region, res.Job.Current); err != nil {
			s.logger.Error(ctx, "recording baseline failed",
				logger.String("subscriber", res.Job.SubscriberID),
				logger.String("region", res.Job.Region.String()),
				logger.Error(err),
			)
		}
	}
}

// currentMetrics resolves a subscription's present figures: country watches
// use the rolled-up country figure, province watches the row itself.
func (s *Scheduler) currentMetrics(snap *model.Snapshot, r model.Region) (model.MetricSet, bool) {
	if r.IsCountry() {
		m, err := aggregate.CountryMetrics(snap, s.catalog, r.Country)
		if err != nil {
			return model.MetricSet{}, false
		}
		return m, true
	}
	m, err := aggregate.MetricsFor(snap, r)
	if err != nil {
		return model.MetricSet{}, false
	}
	return m, true
}
