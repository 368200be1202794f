// Package trustomer implements the trustomer config cache (C9): a
// process-local, short-TTL cache of the remote trustomer configuration
// consumed by the escaper/formatter (C2) and the ORU generator (C5), per
// spec.md §4.9/§5.
package trustomer

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// Config is the subset of trustomer configuration this connector reads.
// OxygenMasks mirrors oru.OxygenMask but is kept independent so this
// package doesn't import internal/oru.
type Config struct {
	OutgoingSendingApplication   string
	OutgoingSendingFacility      string
	OutgoingReceivingApplication string
	OutgoingReceivingFacility    string
	OutgoingProcessingID         string
	OutgoingDateTimeFormat       string
	GenerateORUMessages          bool
	OxygenMasks                  []OxygenMask
}

type OxygenMask struct {
	Code string
	Name string
}

// Fetcher retrieves the live configuration for a trustomer (tenant,
// customer) pair, e.g. an HTTP client against the trustomer-config
// service. It is the only suspension point in this package.
type Fetcher interface {
	Fetch(ctx context.Context, product, trustomer string) (Config, error)
}

type entry struct {
	config   Config
	fetchedAt time.Time
}

// Cache is a process-local, TTL-bounded cache of trustomer configuration.
// A stale value is always preferred over a hard failure: if a refresh
// fails and a previous value exists, the stale value is returned.
type Cache struct {
	fetcher Fetcher
	ttl     time.Duration

	mu      sync.RWMutex
	entries map[string]entry
}

func New(fetcher Fetcher, ttl time.Duration) *Cache {
	return &Cache{
		fetcher: fetcher,
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

func key(product, trustomer string) string {
	return product + "|" + trustomer
}

// Get returns the configuration for (product, trustomer), refreshing from
// the fetcher when the cached entry is absent or older than the TTL. On a
// refresh error, a present-but-stale entry is returned instead of the
// error; only a true cache miss propagates the error.
func (c *Cache) Get(ctx context.Context, product, trustomer string) (Config, error) {
	k := key(product, trustomer)

	c.mu.RLock()
	e, ok := c.entries[k]
	c.mu.RUnlock()

	if ok && time.Since(e.fetchedAt) < c.ttl {
		return e.config, nil
	}

	fresh, err := c.fetcher.Fetch(ctx, product, trustomer)
	if err != nil {
		if ok {
			return e.config, nil
		}
		return Config{}, fmt.Errorf("trustomer: fetch %s/%s: %w", product, trustomer, err)
	}

	c.mu.Lock()
	c.entries[k] = entry{config: fresh, fetchedAt: time.Now()}
	c.mu.Unlock()

	return fresh, nil
}

// HTTPFetcher is the default Fetcher, calling the configured
// trustomer-config collaborator over HTTP.
type HTTPFetcher struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFetcher(baseURL string) *HTTPFetcher {
	return &HTTPFetcher{BaseURL: baseURL, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, product, trustomer string) (Config, error) {
	url := fmt.Sprintf("%s/dhos/v1/trustomer_config/%s/%s", f.BaseURL, product, trustomer)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Config{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Config{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Config{}, fmt.Errorf("trustomer: unexpected status %d", resp.StatusCode)
	}
	return decodeConfig(resp)
}
