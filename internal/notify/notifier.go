// Package notify defines the notification boundary and shipped sinks.
//
// The reconciliation scheduler hands changed subscriptions to a Notifier
// and treats it as an opaque sink: delivery retry/backoff policy belongs to
// the sink's owner, while the scheduler guarantees at most one Notify call
// per subscription per detected change per tick.
package notify

import (
	"context"

	"github.com/okian/epiwatch/internal/domain/model"
	"github.com/okian/epiwatch/pkg/logger"
)

// Notifier delivers one change notification. previous is nil for the first
// notification of a subscription.
type Notifier interface {
	Notify(ctx context.Context, subscriberID string, region model.Region,
		previous *model.MetricSet, current model.MetricSet) error
}

// Func adapts a plain function to the Notifier interface.
type Func func(ctx context.Context, subscriberID string, region model.Region,
	previous *model.MetricSet, current model.MetricSet) error

// Notify implements Notifier.
func (f Func) Notify(ctx context.Context, subscriberID string, region model.Region,
	previous *model.MetricSet, current model.MetricSet) error {
	return f(ctx, subscriberID, region, previous, current)
}

// LogNotifier writes notifications to the structured log. Useful as the
// default sink when no webhook is configured.
type LogNotifier struct {
	logger logger.Logger
}

// NewLogNotifier creates a log-backed sink.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

// Notify implements Notifier.
func (n *LogNotifier) Notify(ctx context.Context, subscriberID string, region model.Region,
	previous *model.MetricSet, current model.MetricSet) error {
	fields := []logger.Field{
		logger.String("subscriber", subscriberID),
		logger.String("region", region.String()),
		logger.Int64("confirmed", current.Confirmed.Value),
		logger.Bool("confirmed_known", current.Confirmed.Known),
	}
	if previous != nil {
		fields = append(fields, logger.Int64("previous_confirmed", previous.Confirmed.Value))
	}
	n.logger.Info(ctx, "status update", fields...)
	return nil
}
