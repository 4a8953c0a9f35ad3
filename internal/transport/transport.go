// Package transport defines the venue-facing abstraction the Plan Executor
// drives: submitting perp order batches, cancels, transfers, and leverage
// changes, and receiving the asynchronous confirmation stream those actions
// produce. Two implementations exist — HTTPTransport, which signs and sends
// real REST/WS traffic, and DemoTransport, an in-process fake used for
// demo_mode runs and package tests.
package transport

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"perpbench/internal/plan"
	"perpbench/pkg/types"
)

// CancelKind identifies which cancel variant a SubmitCancel call performs.
type CancelKind string

const (
	CancelLast CancelKind = "last"
	CancelOids CancelKind = "oids"
	CancelAll  CancelKind = "all"
)

// OrderAck is the venue's acknowledgement of a perp order batch submission,
// unwrapped from the raw types.Ack for callers that need the per-order
// statuses without re-parsing AckData.
type OrderAck struct {
	Ack      types.Ack
	Statuses []types.OrderStatus
}

// CancelAck is the venue's acknowledgement of a cancel submission.
type CancelAck struct {
	Ack types.Ack
}

// Transport is the venue-facing capability set a Plan Executor needs. Every
// Submit* call returns as soon as the venue's synchronous HTTP acknowledgement
// is available; it does not wait for the asynchronous confirmation that
// SubscribeEvents delivers.
type Transport interface {
	SubmitOrderBatch(ctx context.Context, orders []plan.Order, builderCode string) (OrderAck, error)
	SubmitCancel(ctx context.Context, kind CancelKind, coin string, oids []uint64) (CancelAck, error)
	SubmitTransfer(ctx context.Context, toPerp bool, usdc decimal.Decimal) (types.Ack, error)
	SubmitLeverage(ctx context.Context, coin string, leverage uint32, cross bool) (types.Ack, error)

	// SubscribeEvents establishes the confirmation stream and must complete
	// before any Submit* call is made, so no event window is missed between
	// subscription and the first action (spec's ordering invariant).
	SubscribeEvents(ctx context.Context) (<-chan types.VenueEvent, error)

	// MidPrice resolves a coin's symbolic mid reference price, used by the
	// Executor to turn a plan.PriceSpec into an absolute decimal.
	MidPrice(coin string) (decimal.Decimal, bool)

	// Close releases any network resources (WS connection, HTTP idle conns).
	Close() error
}

// ErrNotConnected is returned by Submit* calls made before SubscribeEvents
// has established the underlying connection.
var ErrNotConnected = fmt.Errorf("transport: not connected")

// MidRefresher is implemented by transports whose MidPrice cache needs an
// active polling loop to stay populated. HTTPTransport implements it;
// DemoTransport does not: its cache holds only what SeedMid puts there.
// cmd/bench seeds no mids in demo mode, so a demo run resolves symbolic
// prices for no coin.
type MidRefresher interface {
	PollMids(ctx context.Context) error
}

// ResolveOrderPrice turns an Order's PriceSpec into an absolute price,
// consulting t.MidPrice only when the price is symbolic ("mid ± X%"). ok is
// false when the price is symbolic and no mid has been observed yet for the
// coin — callers must abort rather than guess (spec's resolution rule).
func ResolveOrderPrice(t Transport, o plan.Order) (px decimal.Decimal, ok bool) {
	if !o.Px.IsSymbolic() {
		return *o.Px.Absolute, true
	}
	mid, have := t.MidPrice(o.Coin)
	if !have {
		return decimal.Zero, false
	}
	factor := decimal.NewFromInt(1).Add(o.Px.Symbolic.PercentOffset.Div(decimal.NewFromInt(100)))
	return mid.Mul(factor), true
}
