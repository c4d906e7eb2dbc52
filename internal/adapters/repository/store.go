// Package repository persists subscriber watches and their last-notified
// baselines.
package repository

import (
	"context"

	"github.com/okian/epiwatch/internal/domain/model"
)

// Store provides durable access to subscription state. Implementations must
// serialize mutations (single-writer discipline) and survive a crash
// mid-write without corrupting existing entries.
type Store interface {
	// Subscribe records a watch. Subscribing twice to the same
	// (subscriber, region) pair is a no-op.
	Subscribe(ctx context.Context, subscriberID string, r model.Region) error

	// Unsubscribe removes a watch. Returns ErrNotSubscribed when the pair
	// was never recorded.
	Unsubscribe(ctx context.Context, subscriberID string, r model.Region) error

	// ListFor returns the regions a subscriber watches, ordered by region key.
	ListFor(ctx context.Context, subscriberID string) ([]model.Region, error)

	// AllSubscriptions returns every subscription ordered by subscriber then
	// region key, so reconciliation walks them deterministically.
	AllSubscriptions(ctx context.Context) ([]model.Subscription, error)

	// RecordNotified stores the metric set a subscriber was just notified
	// about, replacing the previous baseline.
	RecordNotified(ctx context.Context, subscriberID string, r model.Region, m model.MetricSet) error

	// CountFor returns the number of regions a subscriber watches.
	CountFor(ctx context.Context, subscriberID string) (int, error)

	// Close releases the underlying database.
	Close() error
}
