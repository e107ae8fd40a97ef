// Package cache holds the derived reference prices behind a
// per-key time-to-live. Expiry is lazy: an entry past its TTL is
// evicted on read. The key domain is bounded (the four canonical
// pairs), so no background sweep is needed
package cache

import (
	"sync"
	"time"

	"github.com/sig-0/p2panel/market"
)

// DefaultTTL is the default entry time-to-live
const DefaultTTL = time.Minute

type entry struct {
	value      *market.ReferencePrice
	insertedAt time.Time
}

// Cache is a TTL-bound store of reference prices, keyed by pair
type Cache struct {
	data map[market.Pair]entry
	now  func() time.Time
	ttl  time.Duration

	// snapshotID identifies the snapshot the entries came from.
	// Empty when entries were set outside a snapshot publish
	snapshotID string

	mu sync.RWMutex
}

// New creates a new price cache
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Cache{
		data: make(map[market.Pair]entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// TTL returns the configured entry time-to-live
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Get returns the cached reference price for the pair,
// or nil if absent or expired
func (c *Cache) Get(pair market.Pair) *market.ReferencePrice {
	c.mu.RLock()
	e, ok := c.data[pair]
	c.mu.RUnlock()

	if !ok {
		return nil
	}

	if c.now().Sub(e.insertedAt) >= c.ttl {
		// Lazy eviction
		c.mu.Lock()
		if stored, ok := c.data[pair]; ok && stored.insertedAt.Equal(e.insertedAt) {
			delete(c.data, pair)
		}
		c.mu.Unlock()

		return nil
	}

	return e.value
}

// Set stores the reference price for the pair. A single-pair write
// invalidates the snapshot identity, the cached set no longer matches
// any published snapshot
func (c *Cache) Set(pair market.Pair, value *market.ReferencePrice) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshotID = ""

	c.data[pair] = entry{
		value:      value,
		insertedAt: c.now(),
	}
}

// SetSnapshot atomically replaces all four pair entries with the
// snapshot's rates. Readers never observe a partially-updated set
func (c *Cache) SetSnapshot(snapshot *market.PriceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	insertedAt := c.now()

	c.snapshotID = snapshot.ID

	for pair, rp := range snapshot.Rates {
		c.data[pair] = entry{
			value:      rp,
			insertedAt: insertedAt,
		}
	}
}

// Snapshot assembles the currently cached rates into a snapshot.
// It returns nil unless all four pairs are present and fresh
func (c *Cache) Snapshot() *market.PriceSnapshot {
	rates := make(map[market.Pair]*market.ReferencePrice, 4)

	var createdAt time.Time

	for _, pair := range market.Pairs() {
		rp := c.Get(pair)
		if rp == nil {
			return nil
		}

		rates[pair] = rp

		if rp.ComputedAt.After(createdAt) {
			createdAt = rp.ComputedAt
		}
	}

	c.mu.RLock()
	id := c.snapshotID
	c.mu.RUnlock()

	return &market.PriceSnapshot{
		ID:        id,
		Rates:     rates,
		CreatedAt: createdAt,
	}
}

// Clear drops all cached entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.snapshotID = ""
	c.data = make(map[market.Pair]entry)
}
