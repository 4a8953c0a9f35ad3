package transport

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MidCache tracks the most recently observed mid price per coin, so the
// Executor can resolve a plan.PriceSpec's symbolic "mid ± X%" form without
// blocking on a fresh venue round-trip for every order. Safe for concurrent
// use.
type MidCache struct {
	mu      sync.RWMutex
	mids    map[string]decimal.Decimal
	updated map[string]time.Time
}

// NewMidCache creates an empty cache.
func NewMidCache() *MidCache {
	return &MidCache{
		mids:    make(map[string]decimal.Decimal),
		updated: make(map[string]time.Time),
	}
}

// Set records a freshly observed mid price for coin.
func (c *MidCache) Set(coin string, mid decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mids[coin] = mid
	c.updated[coin] = time.Now()
}

// Get returns the cached mid for coin, and whether one has ever been set.
func (c *MidCache) Get(coin string) (decimal.Decimal, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	mid, ok := c.mids[coin]
	return mid, ok
}

// IsStale reports whether coin's cached mid is missing or older than maxAge.
func (c *MidCache) IsStale(coin string, maxAge time.Duration) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.updated[coin]
	if !ok {
		return true
	}
	return time.Since(t) > maxAge
}

// Resolve turns a PercentOffset applied to coin's cached mid into an
// absolute price: mid * (1 + offset/100). Returns false if no mid has been
// observed for coin yet.
func (c *MidCache) Resolve(coin string, percentOffset decimal.Decimal) (decimal.Decimal, bool) {
	mid, ok := c.Get(coin)
	if !ok {
		return decimal.Zero, false
	}
	factor := decimal.NewFromInt(1).Add(percentOffset.Div(decimal.NewFromInt(100)))
	return mid.Mul(factor), true
}
