package app

import (
	"time"

	"github.com/okian/epiwatch/internal/scheduler"
	"github.com/okian/epiwatch/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithInterval sets the reconciliation polling interval.
func WithInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithMaxSubscriptions caps watches per subscriber. Zero means unlimited.
func WithMaxSubscriptions(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.maxSubscriptions = n
		}
	}
}

// WithMaxRankingLimit caps the page size of ranking queries.
func WithMaxRankingLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxRankingLimit = n
		}
	}
}

// WithNotifyWorkers sets the delivery worker count per tick.
func WithNotifyWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.notifyWorkers = n
		}
	}
}

// WithClock injects the scheduler's time source for tests.
func WithClock(c scheduler.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
