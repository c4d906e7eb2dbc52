// Package fetch retrieves raw snapshot bytes from the upstream feed.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Default transport configuration constants.
const (
	defaultTimeout   = 2 * time.Minute
	defaultUserAgent = "epiwatch/1.0"
	maxBodyBytes     = 64 << 20 // refuse to slurp an unbounded body
)

// Fetcher yields one raw tabular publication per call. Retry policy belongs
// to the scheduler, not here.
type Fetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// HTTPFetcher implements Fetcher over plain HTTP GET.
type HTTPFetcher struct {
	url       string
	userAgent string
	timeout   time.Duration
	client    *http.Client
}

// NewHTTPFetcher creates a fetcher for the given feed URL.
func NewHTTPFetcher(url string, opts ...Option) *HTTPFetcher {
	f := &HTTPFetcher{
		url:       url,
		userAgent: defaultUserAgent,
		timeout:   defaultTimeout,
		client:    http.DefaultClient,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs one bounded GET and returns the body bytes.
func (f *HTTPFetcher) Fetch(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrFetchTimeout, f.timeout, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: upstream returned %s", ErrFetch, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrFetchTimeout, f.timeout, err)
		}
		return nil, fmt.Errorf("%w: reading body: %v", ErrFetch, err)
	}
	return body, nil
}
