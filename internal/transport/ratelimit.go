// ratelimit.go implements the venue's weight-based rate limit, not a flat
// request count: a per-address budget refills continuously, and every
// request consumes a weight proportional to how expensive it is for the
// venue to serve rather than always costing one unit. A batch of orders
// costs more the larger the batch; an info poll costs a fixed small weight.
// This mirrors the venue's own published cost model (a batch of N orders
// costs 1 + floor(N/40) weight units, an info request costs a flat 2) rather
// than treating every call as equivalent.
package transport

import (
	"context"
	"sync"
	"time"
)

// TokenBucket is a continuously-refilling weighted rate limiter. Callers
// block in WaitN until enough weight is available or ctx is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	weight   float64
	capacity float64
	rate     float64 // weight units refilled per second
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given burst capacity and
// refill rate, both expressed in weight units.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		weight:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait reserves a single weight unit, for requests with no batch cost.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	return tb.WaitN(ctx, 1)
}

// WaitN blocks until cost weight units are available or ctx is cancelled.
// cost must be <= capacity or it can never be satisfied; callers with a
// larger-than-capacity batch should split it rather than call WaitN once.
func (tb *TokenBucket) WaitN(ctx context.Context, cost float64) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.weight += elapsed * tb.rate
		if tb.weight > tb.capacity {
			tb.weight = tb.capacity
		}
		tb.lastTime = now

		if tb.weight >= cost {
			tb.weight -= cost
			tb.mu.Unlock()
			return nil
		}

		deficit := cost - tb.weight
		wait := time.Duration(deficit / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// orderBatchWeight returns the weight an order-batch action of the given
// size costs, per the venue's published cost model: one unit plus one
// extra for every 40 orders in the batch.
func orderBatchWeight(numOrders int) float64 {
	return 1 + float64(numOrders/40)
}

// infoRequestWeight is the flat weight cost of a lightweight info request
// such as allMids; heavier info requests (e.g. full L2 book snapshots) are
// out of scope since PollMids is the only info-endpoint caller.
const infoRequestWeight = 2

// RateLimiter groups the buckets the venue's two endpoint categories need:
// the exchange action endpoint (orders, cancels, transfers, leverage) and
// the info endpoint (mid price polling).
type RateLimiter struct {
	Exchange *TokenBucket
	Info     *TokenBucket
}

// NewRateLimiter creates rate limiters tuned to the venue's published
// per-address weight budget, scaled to a smooth per-second refill.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Exchange: NewTokenBucket(100, 10),
		Info:     NewTokenBucket(50, 5),
	}
}
