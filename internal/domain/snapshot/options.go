package snapshot

import "time"

// Option applies a configuration option to the Parser.
type Option func(*Parser)

// WithClock overrides the time source used when the feed carries no
// usable last-update column. Tests inject a fixed clock here.
func WithClock(now func() time.Time) Option {
	return func(p *Parser) {
		if now != nil {
			p.now = now
		}
	}
}
