package scheduler_test

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/okian/epiwatch/internal/adapters/fetch"
	"github.com/okian/epiwatch/internal/adapters/repository"
	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/internal/domain/region"
	"github.com/okian/epiwatch/internal/domain/snapshot"
	"github.com/okian/epiwatch/internal/notify"
	"github.com/okian/epiwatch/internal/scheduler"
	"github.com/okian/epiwatch/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.Init(); err != nil {
		os.Exit(1)
	}
	os.Exit(m.Run())
}

// fakeFetcher replays a scripted sequence of payloads and errors.
type fakeFetcher struct {
	mu      sync.Mutex
	replies []fetchReply
	calls   int
}

type fetchReply struct {
	body []byte
	err  error
}

func (f *fakeFetcher) push(body string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, fetchReply{body: []byte(body), err: err})
}

func (f *fakeFetcher) Fetch(context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.replies) == 0 {
		return nil, fetch.ErrFetch
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r.body, r.err
}

// fakeClock pins Now and hands out a timer channel the test controls.
type fakeClock struct {
	now   time.Time
	timer chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:   time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		timer: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time                       { return c.now }
func (c *fakeClock) After(time.Duration) <-chan time.Time { return c.timer }

// delivery is one observed Notify call.
type delivery struct {
	subscriberID string
	region       model.Region
	previous     *model.MetricSet
	current      model.MetricSet
}

// recordingNotifier captures deliveries and can fail the first n of them.
type recordingNotifier struct {
	mu         sync.Mutex
	deliveries []delivery
	failNext   int
}

func (n *recordingNotifier) Notify(_ context.Context, subscriberID string, r model.Region,
	previous *model.MetricSet, current model.MetricSet) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deliveries = append(n.deliveries, delivery{subscriberID, r, previous, current})
	if n.failNext > 0 {
		n.failNext--
		return errors.New("delivery refused")
	}
	return nil
}

func (n *recordingNotifier) all() []delivery {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]delivery(nil), n.deliveries...)
}

// harness wires a scheduler over in-memory collaborators.
type harness struct {
	fetcher  *fakeFetcher
	clock    *fakeClock
	notifier *recordingNotifier
	store    *repository.SQLiteStore
	sched    *scheduler.Scheduler

	mu        sync.Mutex
	published []*model.Snapshot
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cat, err := region.NewCatalog()
	if err != nil {
		t.Fatalf("building catalog: %v", err)
	}
	store, err := repository.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	h := &harness{
		fetcher:  &fakeFetcher{},
		clock:    newFakeClock(),
		notifier: &recordingNotifier{},
		store:    store,
	}
	parser := snapshot.NewParser(cat, snapshot.WithClock(h.clock.Now))
	dispatcher := notify.NewDispatcher(h.notifier, notify.WithWorkers(2))
	h.sched = scheduler.New(h.fetcher, parser, cat, store, dispatcher,
		func(snap *model.Snapshot) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.published = append(h.published, snap)
		},
		scheduler.WithClock(h.clock),
		scheduler.WithInterval(time.Minute),
	)
	return h
}

func (h *harness) publishedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.published)
}

func feedCSV(confirmed string) string {
	return "Country_Region,Confirmed,Deaths,Recovered\nUS," + confirmed + ",50,600\n"
}

func TestScheduler_NotifyOnChangeOnly(t *testing.T) {
	Convey("Given a subscriber watching one country", t, func() {
		h := newHarness(t)
		ctx := context.Background()
		us := model.Region{Country: "US"}
		So(h.store.Subscribe(ctx, "alice", us), ShouldBeNil)

		Convey("When the first snapshot arrives", func() {
			h.fetcher.push(feedCSV("1000"), nil)
			h.sched.Tick(ctx)

			Convey("Then one notification fires with no previous baseline", func() {
				got := h.notifier.all()
				So(len(got), ShouldEqual, 1)
				So(got[0].subscriberID, ShouldEqual, "alice")
				So(got[0].region, ShouldResemble, us)
				So(got[0].previous, ShouldBeNil)
				So(got[0].current.Confirmed, ShouldResemble, model.Count(1000))
			})

			Convey("And an identical snapshot stays silent", func() {
				h.fetcher.push(feedCSV("1000"), nil)
				h.sched.Tick(ctx)
				So(len(h.notifier.all()), ShouldEqual, 1)

				Convey("Until the figures actually change", func() {
					h.fetcher.push(feedCSV("1200"), nil)
					h.sched.Tick(ctx)

					got := h.notifier.all()
					So(len(got), ShouldEqual, 2)
					So(got[1].previous, ShouldNotBeNil)
					So(got[1].previous.Confirmed, ShouldResemble, model.Count(1000))
					So(got[1].current.Confirmed, ShouldResemble, model.Count(1200))
				})
			})
		})
	})
}

func TestScheduler_FailedDeliveryRetries(t *testing.T) {
	Convey("Given a notifier that refuses the first delivery", t, func() {
		h := newHarness(t)
		h.notifier.failNext = 1
		ctx := context.Background()
		So(h.store.Subscribe(ctx, "alice", model.Region{Country: "US"}), ShouldBeNil)

		Convey("When the first tick's delivery fails", func() {
			h.fetcher.push(feedCSV("1000"), nil)
			h.sched.Tick(ctx)
			So(len(h.notifier.all()), ShouldEqual, 1)

			Convey("Then the baseline is not advanced", func() {
				subs, err := h.store.AllSubscriptions(ctx)
				So(err, ShouldBeNil)
				So(subs[0].LastNotified, ShouldBeNil)
			})

			Convey("And the next tick retries the same figures", func() {
				h.fetcher.push(feedCSV("1000"), nil)
				h.sched.Tick(ctx)

				got := h.notifier.all()
				So(len(got), ShouldEqual, 2)
				So(got[1].previous, ShouldBeNil)
				So(got[1].current.Confirmed, ShouldResemble, model.Count(1000))

				Convey("And after success the baseline finally advances", func() {
					subs, err := h.store.AllSubscriptions(ctx)
					So(err, ShouldBeNil)
					So(subs[0].LastNotified, ShouldNotBeNil)
					So(subs[0].LastNotified.Confirmed, ShouldResemble, model.Count(1000))
				})
			})
		})
	})
}

func TestScheduler_FailureSkipsTick(t *testing.T) {
	Convey("Given a scheduler with one good snapshot published", t, func() {
		h := newHarness(t)
		ctx := context.Background()
		h.fetcher.push(feedCSV("1000"), nil)
		h.sched.Tick(ctx)
		So(h.publishedCount(), ShouldEqual, 1)

		Convey("When a fetch fails", func() {
			h.fetcher.push("", fetch.ErrFetchTimeout)
			h.sched.Tick(ctx)

			Convey("Then nothing new is published", func() {
				So(h.publishedCount(), ShouldEqual, 1)
			})
		})

		Convey("When a fetch returns garbage", func() {
			h.fetcher.push("not,a\nvalid feed", nil)
			h.sched.Tick(ctx)

			Convey("Then the previous snapshot stays current", func() {
				So(h.publishedCount(), ShouldEqual, 1)
			})

			Convey("And a later good fetch recovers", func() {
				h.fetcher.push(feedCSV("1100"), nil)
				h.sched.Tick(ctx)
				So(h.publishedCount(), ShouldEqual, 2)
			})
		})
	})
}

func TestScheduler_ProvinceWatch(t *testing.T) {
	Convey("Given a subscriber watching a province", t, func() {
		h := newHarness(t)
		ctx := context.Background()
		prov := model.Region{Country: "US", Province: "California"}
		So(h.store.Subscribe(ctx, "alice", prov), ShouldBeNil)

		Convey("When the feed publishes province rows", func() {
			csv := "Province_State,Country_Region,Confirmed\n" +
				"California,US,600\nNew York,US,400\n"
			h.fetcher.push(csv, nil)
			h.sched.Tick(ctx)

			Convey("Then the watch receives the province row, not the rollup", func() {
				got := h.notifier.all()
				So(len(got), ShouldEqual, 1)
				So(got[0].region, ShouldResemble, prov)
				So(got[0].current.Confirmed, ShouldResemble, model.Count(600))
			})
		})

		Convey("When the watched region is absent from the feed", func() {
			h.fetcher.push("Country_Region,Confirmed\nItaly,100\n", nil)
			h.sched.Tick(ctx)

			Convey("Then no notification fires", func() {
				So(h.notifier.all(), ShouldBeEmpty)
			})
		})
	})
}

func TestScheduler_RunAndWake(t *testing.T) {
	Convey("Given a running scheduler", t, func() {
		h := newHarness(t)
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		h.fetcher.push(feedCSV("1000"), nil)
		h.fetcher.push(feedCSV("1100"), nil)
		h.fetcher.push(feedCSV("1200"), nil)

		done := make(chan struct{})
		go func() {
			h.sched.Run(ctx)
			close(done)
		}()

		waitFor := func(n int) bool {
			deadline := time.After(2 * time.Second)
			for {
				if h.publishedCount() >= n {
					return true
				}
				select {
				case <-deadline:
					return false
				case <-time.After(5 * time.Millisecond):
				}
			}
		}

		Convey("Then the first tick fires without waiting for the interval", func() {
			So(waitFor(1), ShouldBeTrue)

			Convey("And a wake triggers an immediate extra tick", func() {
				h.sched.Wake()
				So(waitFor(2), ShouldBeTrue)
			})

			Convey("And the interval timer triggers the next tick", func() {
				h.clock.timer <- h.clock.now.Add(time.Minute)
				So(waitFor(2), ShouldBeTrue)
			})
		})

		Convey("When the context is canceled", func() {
			So(waitFor(1), ShouldBeTrue)
			cancel()
			select {
			case <-done:
				So(h.sched.State(), ShouldEqual, scheduler.StateIdle)
			case <-time.After(2 * time.Second):
				So("run loop did not stop", ShouldBeEmpty)
			}
		})
	})
}
