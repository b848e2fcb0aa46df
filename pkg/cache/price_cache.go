package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

const numShards = 16

func shardIndex(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32() % numShards
}

// Quote is the last traded price of a market as seen by the ticker stream.
type Quote struct {
	Price     float64
	Volume24h float64
	UpdatedAt time.Time
}

// PriceCache holds the latest quote per market, sharded by market code.
type PriceCache struct {
	shards [numShards]*quoteShard
	now    func() time.Time
}

type quoteShard struct {
	mu    sync.RWMutex
	items map[string]Quote
}

// NewPriceCache creates an empty cache.
func NewPriceCache() *PriceCache {
	c := &PriceCache{now: time.Now}
	for i := range c.shards {
		c.shards[i] = &quoteShard{items: make(map[string]Quote)}
	}
	return c
}

func (c *PriceCache) shard(market string) *quoteShard {
	return c.shards[shardIndex(market)]
}

// Set stores a quote. Stale updates (older than the stored one) are dropped.
func (c *PriceCache) Set(market string, q Quote) {
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = c.now()
	}
	s := c.shard(market)
	s.mu.Lock()
	if cur, ok := s.items[market]; !ok || !q.UpdatedAt.Before(cur.UpdatedAt) {
		s.items[market] = q
	}
	s.mu.Unlock()
}

// Get returns the quote for market.
func (c *PriceCache) Get(market string) (Quote, bool) {
	s := c.shard(market)
	s.mu.RLock()
	q, ok := s.items[market]
	s.mu.RUnlock()
	return q, ok
}

// Fresh returns the price only if it was updated within maxAge.
func (c *PriceCache) Fresh(market string, maxAge time.Duration) (float64, bool) {
	q, ok := c.Get(market)
	if !ok || c.now().Sub(q.UpdatedAt) > maxAge {
		return 0, false
	}
	return q.Price, true
}

// Len returns the number of cached markets.
func (c *PriceCache) Len() int {
	total := 0
	for _, s := range c.shards {
		s.mu.RLock()
		total += len(s.items)
		s.mu.RUnlock()
	}
	return total
}

// Evict removes quotes older than maxAge and returns how many were dropped.
func (c *PriceCache) Evict(maxAge time.Duration) int {
	cutoff := c.now().Add(-maxAge)
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for m, q := range s.items {
			if q.UpdatedAt.Before(cutoff) {
				delete(s.items, m)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Snapshot copies every cached quote.
func (c *PriceCache) Snapshot() map[string]Quote {
	out := make(map[string]Quote)
	for _, s := range c.shards {
		s.mu.RLock()
		for m, q := range s.items {
			out[m] = q
		}
		s.mu.RUnlock()
	}
	return out
}
