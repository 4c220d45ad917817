package geocode

import (
	"context"
	"strings"
	"sync"

	"cafetrack/internal/geo"
)

// Cache memoizes address lookups for the lifetime of the process. Distinct
// addresses per deployment are few, so entries are never evicted.
//
// Concurrent lookups for the same normalized address share a single provider
// request. Failed lookups are not cached so they can be retried later.
type Cache struct {
	provider Geocoder

	mu      sync.Mutex
	entries map[string]geo.Point
	pending map[string]*lookup
}

// lookup tracks one in-flight provider request.
type lookup struct {
	done chan struct{}
	pt   geo.Point
	err  error
}

// NewCache creates a geocode cache backed by the given provider.
func NewCache(provider Geocoder) *Cache {
	return &Cache{
		provider: provider,
		entries:  make(map[string]geo.Point),
		pending:  make(map[string]*lookup),
	}
}

// NormalizeAddress produces the cache key for an address: trimmed,
// lowercased, inner whitespace collapsed.
func NormalizeAddress(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}

// Resolve returns the coordinate for an address, consulting the cache first.
// A second caller racing on the same address waits for the first request
// instead of issuing its own.
func (c *Cache) Resolve(ctx context.Context, address string) (geo.Point, error) {
	key := NormalizeAddress(address)
	if key == "" {
		return geo.Point{}, ErrNotFound
	}

	c.mu.Lock()
	if pt, ok := c.entries[key]; ok {
		c.mu.Unlock()
		return pt, nil
	}
	if l, ok := c.pending[key]; ok {
		c.mu.Unlock()
		select {
		case <-l.done:
			return l.pt, l.err
		case <-ctx.Done():
			return geo.Point{}, ctx.Err()
		}
	}

	l := &lookup{done: make(chan struct{})}
	c.pending[key] = l
	c.mu.Unlock()

	pt, err := c.provider.Geocode(ctx, address)

	c.mu.Lock()
	delete(c.pending, key)
	if err == nil {
		c.entries[key] = pt
	}
	l.pt, l.err = pt, err
	c.mu.Unlock()
	close(l.done)

	return pt, err
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
