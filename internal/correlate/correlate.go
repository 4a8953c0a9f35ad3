// Package correlate implements the Effect Correlator: matching a submitted
// action against the venue's asynchronous confirmation stream via the
// arena-of-waiters pattern — a single mutex-guarded table from key (OID, or
// a transfer fingerprint) to a waiter, fed by one background ingest
// goroutine that dispatches incoming events by key the way the teacher's
// WSFeed dispatches by message type.
package correlate

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpbench/pkg/types"
)

// waiter accumulates observed events for one in-flight action. keys maps
// each not-yet-matched table entry to the status it requires (empty means
// any event on that key satisfies it) — a cancel waiter demands a canceled
// status on the same oid key an order waiter would accept unconditionally.
// done closes once every key has been satisfied (or the correlator is
// asked to finalize it on timeout).
type waiter struct {
	mu       sync.Mutex
	keys     map[string]types.StatusKind
	observed []types.VenueEvent
	done     chan struct{}
	closed   bool
}

func newWaiter(keys []string, requiredStatus types.StatusKind) *waiter {
	set := make(map[string]types.StatusKind, len(keys))
	for _, k := range keys {
		set[k] = requiredStatus
	}
	return &waiter{keys: set, done: make(chan struct{})}
}

// satisfy offers evt to the waiter for key. If the waiter requires a
// specific status on this key and evt doesn't carry it, the waiter stays
// registered for more events on the same key.
func (w *waiter) satisfy(key string, evt types.VenueEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	required, pending := w.keys[key]
	if !pending {
		return
	}
	if required != "" && evt.Status != required {
		return
	}
	w.observed = append(w.observed, evt)
	delete(w.keys, key)
	if len(w.keys) == 0 {
		close(w.done)
		w.closed = true
	}
}

func (w *waiter) finalize() []types.VenueEvent {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.done)
	}
	out := make([]types.VenueEvent, len(w.observed))
	copy(out, w.observed)
	return out
}

// Correlator matches submitted actions against a venue event stream.
type Correlator struct {
	mu      sync.Mutex
	waiters map[string]*waiter
	pending map[string][]types.VenueEvent // events seen before any waiter claimed them

	sink func(types.VenueEvent) // fire-and-forget forwarding, e.g. to ws_stream.jsonl
}

// New creates a Correlator. sink, if non-nil, receives every ingested event
// regardless of whether it matches a waiter — the Writer uses this to
// record the raw stream verbatim.
func New(sink func(types.VenueEvent)) *Correlator {
	return &Correlator{
		waiters: make(map[string]*waiter),
		pending: make(map[string][]types.VenueEvent),
		sink:    sink,
	}
}

// Ingest runs the background dispatch loop until events closes or ctx is
// cancelled. Must be started only after the transport's subscription has
// been confirmed, and before any action is submitted, so no event between
// subscription and the first submission is lost.
func (c *Correlator) Ingest(ctx context.Context, events <-chan types.VenueEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			if c.sink != nil {
				c.sink(evt)
			}
			c.dispatch(evt)
		}
	}
}

func (c *Correlator) dispatch(evt types.VenueEvent) {
	for _, key := range keysFor(evt) {
		c.mu.Lock()
		if w, ok := c.waiters[key]; ok {
			c.mu.Unlock()
			w.satisfy(key, evt)
			continue
		}
		c.pending[key] = append(c.pending[key], evt)
		c.mu.Unlock()
	}
}

// keysFor returns every correlation key an observed event could satisfy.
func keysFor(evt types.VenueEvent) []string {
	var keys []string
	switch evt.Channel {
	case types.ChannelOrderUpdates, types.ChannelUserFills:
		if evt.Oid != nil {
			keys = append(keys, oidKey(*evt.Oid))
		}
	case types.ChannelUserNonFundingLedgerUpdates:
		if evt.LedgerType == "classTransfer" && evt.ToPerp != nil {
			keys = append(keys, transferKey(*evt.ToPerp, evt.Usdc))
		}
	}
	return keys
}

func oidKey(oid uint64) string {
	return "oid:" + strconv.FormatUint(oid, 10)
}

func transferKey(toPerp bool, usdc float64) string {
	cents := int64(usdc*100 + 0.5)
	return fmt.Sprintf("xfer:%t:%d", toPerp, cents)
}

// register creates a waiter for the given keys requiring requiredStatus
// (empty for "any status"), resolving any already-pending events that
// satisfy it, and installs it in the waiters table for the rest.
func (c *Correlator) register(keys []string, requiredStatus types.StatusKind) *waiter {
	w := newWaiter(keys, requiredStatus)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, key := range keys {
		remaining := c.pending[key][:0]
		for _, evt := range c.pending[key] {
			if requiredStatus == "" || evt.Status == requiredStatus {
				w.observed = append(w.observed, evt)
				delete(w.keys, key)
			} else {
				remaining = append(remaining, evt)
			}
		}
		if len(remaining) == 0 {
			delete(c.pending, key)
		} else {
			c.pending[key] = remaining
		}
	}
	if len(w.keys) == 0 {
		w.closed = true
		close(w.done)
		return w
	}
	for key := range w.keys {
		c.waiters[key] = w
	}
	return w
}

func (c *Correlator) unregister(keys []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.waiters, key)
	}
}

// AwaitOrders blocks until a confirming event (order-updates or user-fills,
// any status) has been observed for every oid, or effectTimeout elapses.
// notes is non-empty iff some oids never confirmed.
func (c *Correlator) AwaitOrders(ctx context.Context, oids []uint64, effectTimeout time.Duration) (observed []types.VenueEvent, notes string) {
	return c.await(ctx, oidKeys(oids), "", effectTimeout, func(missing []string) string {
		return fmt.Sprintf("missing confirmations for oids %s", strings.Join(missing, ","))
	})
}

// AwaitCancel blocks until a canceled-status event has been observed for
// every oid, or effectTimeout elapses.
func (c *Correlator) AwaitCancel(ctx context.Context, oids []uint64, effectTimeout time.Duration) (observed []types.VenueEvent, notes string) {
	return c.await(ctx, oidKeys(oids), types.StatusCanceled, effectTimeout, func(missing []string) string {
		return fmt.Sprintf("missing cancel confirmations for oids %s", strings.Join(missing, ","))
	})
}

// AwaitTransfer blocks until a matching ledger event has been observed, or
// effectTimeout elapses.
func (c *Correlator) AwaitTransfer(ctx context.Context, toPerp bool, usdc decimal.Decimal, effectTimeout time.Duration) (observed []types.VenueEvent, notes string) {
	f, _ := usdc.Float64()
	key := transferKey(toPerp, f)
	return c.await(ctx, []string{key}, "", effectTimeout, func(missing []string) string {
		return "missing confirmation for usd class transfer"
	})
}

func (c *Correlator) await(ctx context.Context, keys []string, requiredStatus types.StatusKind, effectTimeout time.Duration, noteFn func(missing []string) string) (observed []types.VenueEvent, notes string) {
	w := c.register(keys, requiredStatus)
	defer c.unregister(keys)

	if effectTimeout <= 0 {
		effectTimeout = 2 * time.Second
	}

	select {
	case <-w.done:
		return w.finalize(), ""
	case <-ctx.Done():
		observed = w.finalize()
		return observed, noteFn(remainingKeys(w, keys))
	case <-time.After(effectTimeout):
		observed = w.finalize()
		return observed, noteFn(remainingKeys(w, keys))
	}
}

func remainingKeys(w *waiter, all []string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var missing []string
	for _, k := range all {
		if _, pending := w.keys[k]; pending {
			missing = append(missing, k)
		}
	}
	sort.Strings(missing)
	return missing
}

func oidKeys(oids []uint64) []string {
	keys := make([]string, len(oids))
	for i, oid := range oids {
		keys[i] = oidKey(oid)
	}
	return keys
}
