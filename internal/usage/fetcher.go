// Package usage queries the remote quota endpoint for every stored key.
//
// Fetches are independent: a failing key yields a sentinel snapshot and
// never affects the result of any other key.
package usage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/oroio/internal/models"
)

const (
	// DefaultURL is the chat usage endpoint of the organization API.
	DefaultURL = "https://app.factory.ai/api/organization/members/chat-usage"
	// DefaultTimeout bounds a single key's request.
	DefaultTimeout = 4 * time.Second
	// DefaultWorkers caps the number of concurrent requests.
	DefaultWorkers = 6

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	maxBodySize      = 1 << 20
)

// Fetcher queries usage for keys with a bounded worker pool.
type Fetcher struct {
	url       string
	client    *http.Client
	timeout   time.Duration
	workers   int
	userAgent string
	log       *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithURL overrides the usage endpoint. An empty url keeps the default.
func WithURL(url string) Option {
	return func(f *Fetcher) {
		if url != "" {
			f.url = url
		}
	}
}

// WithHTTPClient sets the client used for every request.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithTimeout sets the per-key request timeout.
func WithTimeout(d time.Duration) Option {
	return func(f *Fetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithWorkers sets the maximum number of concurrent requests.
func WithWorkers(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.workers = n
		}
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) { f.userAgent = ua }
}

// WithLogger sets the logger for per-key failures.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) {
		if l != nil {
			f.log = l
		}
	}
}

// NewFetcher returns a Fetcher with the defaults above applied before opts.
func NewFetcher(opts ...Option) *Fetcher {
	f := &Fetcher{
		url:       DefaultURL,
		client:    http.DefaultClient,
		timeout:   DefaultTimeout,
		workers:   DefaultWorkers,
		userAgent: defaultUserAgent,
		log:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FetchAll returns one snapshot per key, in the order of keys. It blocks
// until every request has completed or hit its own timeout.
func (f *Fetcher) FetchAll(ctx context.Context, keys []string) []models.Snapshot {
	out := make([]models.Snapshot, len(keys))
	if len(keys) == 0 {
		return out
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < min(f.workers, len(keys)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				out[i] = f.Fetch(ctx, keys[i])
			}
		}()
	}
	for i := range keys {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return out
}

// Fetch queries usage for a single key. Failures are folded into a
// sentinel snapshot.
func (f *Fetcher) Fetch(ctx context.Context, key string) models.Snapshot {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	body, err := f.get(ctx, key)
	if err != nil {
		f.log.Debug("usage request failed",
			zap.String("key", models.Fingerprint(key)),
			zap.Error(err),
		)
		return httpErrorSnapshot()
	}
	snap, err := ParseUsage(body)
	if err != nil {
		f.log.Debug("usage response rejected",
			zap.String("key", models.Fingerprint(key)),
			zap.Error(err),
		)
		return httpErrorSnapshot()
	}
	return snap
}

func (f *Fetcher) get(ctx context.Context, key string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+key)
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request usage: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("usage endpoint returned %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read usage response: %w", err)
	}
	return body, nil
}

func httpErrorSnapshot() models.Snapshot {
	return models.Snapshot{Expires: models.ExpiresInvalid, Raw: models.RawHTTPError}
}
