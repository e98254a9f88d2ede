// Package icsfetch is the ICS fetcher collaborator: a
// plain HTTP GET of an ICS feed URL into bytes. The core never sees a
// URL or an HTTP client; this package's only job is "bytes in, error
// out," with a deployment-supplied timeout.
package icsfetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// DefaultTimeout is the fetcher's HTTP client timeout when none is
// configured.
const DefaultTimeout = 30 * time.Second

// BreakerConfig tunes the circuit breaker wrapping outbound fetches.
// A zero value disables the breaker entirely.
type BreakerConfig struct {
	Enabled      bool
	MaxRequests  uint32
	OpenTimeout  time.Duration
	FailureRatio float64
}

// Fetcher retrieves an ICS document over HTTP.
type Fetcher struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[[]byte]
}

// New returns a Fetcher with the given timeout. A zero timeout uses
// DefaultTimeout.
func New(timeout time.Duration) *Fetcher {
	return NewWithBreaker(timeout, BreakerConfig{})
}

// NewWithBreaker returns a Fetcher whose outbound calls are wrapped in
// a circuit breaker, tripped after repeated failures against a slow
// or unreachable calendar provider.
func NewWithBreaker(timeout time.Duration, bc BreakerConfig) *Fetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := &Fetcher{client: &http.Client{Timeout: timeout}}
	if bc.Enabled {
		f.breaker = gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
			Name:        "icsfetch",
			MaxRequests: bc.MaxRequests,
			Timeout:     bc.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				if counts.Requests < 3 {
					return false
				}
				return float64(counts.TotalFailures)/float64(counts.Requests) >= bc.FailureRatio
			},
		})
	}
	return f
}

// Fetch issues a GET request for url and returns the response body.
// A non-2xx status is an error; the core treats the returned bytes as
// opaque input to icslex.Lex.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	if f.breaker == nil {
		return f.doFetch(ctx, url)
	}
	return f.breaker.Execute(func() ([]byte, error) {
		return f.doFetch(ctx, url)
	})
}

func (f *Fetcher) doFetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("icsfetch: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("icsfetch: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("icsfetch: %s returned status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("icsfetch: read response body: %w", err)
	}
	return body, nil
}
