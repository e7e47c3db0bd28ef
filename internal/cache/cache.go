// Package cache provides timestamped, TTL-bounded read-through caches
// for balances, order books and market descriptors. Every component
// reads through one of these rather than calling the adapter directly;
// a freshness check precedes any price or balance decision.
package cache

import (
	"sync"
	"time"

	"github.com/dome/adamant-tradebot/internal/exchange"
	"github.com/dome/adamant-tradebot/internal/models"
)

// BalanceCache holds the most recent balance snapshot per coin, single
// writer (the adapter refresh), many readers. Refresh is lazy with a
// short TTL and eager after any successful placement or cancellation.
type BalanceCache struct {
	mu        sync.RWMutex
	ttl       time.Duration
	entries   map[string]exchange.BalanceEntry
	stampedAt time.Time
}

// NewBalanceCache builds a cache with the given freshness window.
func NewBalanceCache(ttl time.Duration) *BalanceCache {
	return &BalanceCache{ttl: ttl, entries: make(map[string]exchange.BalanceEntry)}
}

// Set replaces the full snapshot and stamps it with the current time.
func (c *BalanceCache) Set(entries []exchange.BalanceEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]exchange.BalanceEntry, len(entries))
	for _, e := range entries {
		c.entries[e.Coin] = e
	}
	c.stampedAt = time.Now()
}

// Invalidate forces the next Fresh check to report stale, prompting a
// refresh before the next placement or cancellation decision.
func (c *BalanceCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stampedAt = time.Time{}
}

// Fresh reports whether the snapshot is within the TTL.
func (c *BalanceCache) Fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return !c.stampedAt.IsZero() && time.Since(c.stampedAt) < c.ttl
}

// Get returns the cached entry for coin and whether it was present.
func (c *BalanceCache) Get(coin string) (exchange.BalanceEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[coin]
	return e, ok
}

// All returns a snapshot copy of every cached balance entry.
func (c *BalanceCache) All() []exchange.BalanceEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]exchange.BalanceEntry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e)
	}
	return out
}

// StampedAt returns the time of the last Set call.
func (c *BalanceCache) StampedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stampedAt
}

// orderBookEntry pairs a snapshot with its fetch time for TTL checks.
type orderBookEntry struct {
	snapshot  exchange.OrderBookSnapshot
	stampedAt time.Time
}

// OrderBookCache is keyed by pair, with a TTL per entry.
type OrderBookCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]orderBookEntry
}

// NewOrderBookCache builds a cache with the given freshness window.
func NewOrderBookCache(ttl time.Duration) *OrderBookCache {
	return &OrderBookCache{ttl: ttl, entries: make(map[string]orderBookEntry)}
}

// Set stores snapshot for pair, stamped with the current time.
func (c *OrderBookCache) Set(pair string, snapshot exchange.OrderBookSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[pair] = orderBookEntry{snapshot: snapshot, stampedAt: time.Now()}
}

// Get returns the cached snapshot for pair and whether it is within TTL.
// A snapshot present but stale is still returned, with fresh=false, so
// callers needing a last-known value under policy smart can use it.
func (c *OrderBookCache) Get(pair string) (snapshot exchange.OrderBookSnapshot, fresh bool, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[pair]
	if !ok {
		return exchange.OrderBookSnapshot{}, false, false
	}
	return e.snapshot, time.Since(e.stampedAt) < c.ttl, true
}

// MarketsCache holds the market descriptors loaded once per exchange
// via loadMarkets() and reused thereafter.
type MarketsCache struct {
	mu      sync.RWMutex
	markets map[string]models.MarketDescriptor
	loaded  bool
}

// NewMarketsCache builds an empty, unloaded cache.
func NewMarketsCache() *MarketsCache {
	return &MarketsCache{markets: make(map[string]models.MarketDescriptor)}
}

// SetAll replaces the full market map and marks the cache loaded.
func (c *MarketsCache) SetAll(markets map[string]models.MarketDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.markets = markets
	c.loaded = true
}

// Descriptor returns the cached descriptor for pair.
func (c *MarketsCache) Descriptor(pair string) (models.MarketDescriptor, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.markets[pair]
	return d, ok
}

// Loaded reports whether loadMarkets has populated the cache at least
// once since process start.
func (c *MarketsCache) Loaded() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loaded
}
