package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/pkg/logger"
	"github.com/okian/epiwatch/pkg/metrics"
)

// Default dispatcher configuration constants.
const (
	defaultWorkers = 4
)

// Job is one pending delivery: a subscription whose metrics changed this tick.
type Job struct {
	SubscriberID string
	Region       model.Region
	Previous     *model.MetricSet
	Current      model.MetricSet
}

// Result pairs a job with its delivery outcome.
type Result struct {
	Job Job
	Err error
}

// Dispatcher fans a tick's deliveries out over a fixed worker pool and
// waits for the drain. One Notify call per job, failures isolated per job.
type Dispatcher struct {
	notifier Notifier
	workers  int
	logger   logger.Logger
}

// DispatcherOption applies a configuration option to the Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithWorkers sets the number of concurrent delivery workers.
func WithWorkers(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

// NewDispatcher creates a dispatcher delivering through notifier.
func NewDispatcher(notifier Notifier, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		notifier: notifier,
		workers:  defaultWorkers,
		logger:   logger.Named("dispatch"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers all jobs and returns results in job order. It returns
// when every delivery attempt has finished; a failed job carries its error
// and never blocks its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, jobs []Job) []Result {
	results := make([]Result, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	workers := d.workers
	if workers > len(jobs) {
		workers = len(jobs)
	}

	indexes := make(chan int, len(jobs))
	for i := range jobs {
		indexes <- i
	}
	close(indexes)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range indexes {
				results[i] = Result{Job: jobs[i], Err: d.deliver(ctx, jobs[i])}
			}
		}()
	}
	wg.Wait()
	return results
}

func (d *Dispatcher) deliver(ctx context.Context, job Job) error {
	deliveryID := uuid.NewString()
	err := d.notifier.Notify(ctx, job.SubscriberID, job.Region, job.Previous, job.Current)
	if err != nil {
		metrics.RecordNotificationFailed()
		d.logger.Error(ctx, "delivery failed",
			logger.String("delivery_id", deliveryID),
			logger.String("subscriber", job.SubscriberID),
			logger.String("region", job.Region.String()),
			logger.Error(err),
		)
		return err
	}
	metrics.RecordNotificationSent()
	d.logger.Debug(ctx, "delivered",
		logger.String("delivery_id", deliveryID),
		logger.String("subscriber", job.SubscriberID),
		logger.String("region", job.Region.String()),
	)
	return nil
}
