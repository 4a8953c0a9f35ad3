package transport

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpbench/internal/plan"
	"perpbench/pkg/types"
)

// DemoTransport is an in-process fake Transport: every Submit* call
// immediately succeeds and, shortly after, synthesizes the matching
// VenueEvent onto the subscription channel. No network I/O occurs. It
// exists so the Executor and Writer can be exercised in demo_mode and in
// tests without a live venue — not as a full mock-venue protocol suite.
type DemoTransport struct {
	mu      sync.Mutex
	nextOid uint64
	events  chan types.VenueEvent
	mids    *MidCache
	delay   time.Duration
}

// NewDemoTransport creates a fake transport. delay controls how long after
// a Submit* call the corresponding VenueEvent is emitted, simulating venue
// confirmation latency; pass 0 for immediate delivery.
func NewDemoTransport(delay time.Duration) *DemoTransport {
	mids := NewMidCache()
	return &DemoTransport{
		events: make(chan types.VenueEvent, 256),
		mids:   mids,
		delay:  delay,
	}
}

// SeedMid pre-populates a mid price, for tests that use symbolic prices.
func (d *DemoTransport) SeedMid(coin string, mid decimal.Decimal) {
	d.mids.Set(coin, mid)
}

func (d *DemoTransport) MidPrice(coin string) (decimal.Decimal, bool) {
	return d.mids.Get(coin)
}

func (d *DemoTransport) SubscribeEvents(ctx context.Context) (<-chan types.VenueEvent, error) {
	return d.events, nil
}

func (d *DemoTransport) Close() error {
	return nil
}

func (d *DemoTransport) allocOid() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextOid++
	return d.nextOid
}

func (d *DemoTransport) emitLater(evt types.VenueEvent) {
	go func() {
		if d.delay > 0 {
			time.Sleep(d.delay)
		}
		select {
		case d.events <- evt:
		default:
		}
	}()
}

func (d *DemoTransport) SubmitOrderBatch(ctx context.Context, orders []plan.Order, builderCode string) (OrderAck, error) {
	statuses := make([]types.OrderStatus, 0, len(orders))
	for range orders {
		oid := d.allocOid()
		statuses = append(statuses, types.OrderStatus{Kind: types.StatusResting, Oid: &oid})
	}

	for _, s := range statuses {
		d.emitLater(types.VenueEvent{
			Channel: types.ChannelOrderUpdates,
			Oid:     s.Oid,
			Status:  types.StatusResting,
		})
	}

	return OrderAck{
		Ack:      types.Ack{Status: types.AckOK, Data: &types.AckData{Statuses: statuses}},
		Statuses: statuses,
	}, nil
}

func (d *DemoTransport) SubmitCancel(ctx context.Context, kind CancelKind, coin string, oids []uint64) (CancelAck, error) {
	for _, oid := range oids {
		o := oid
		d.emitLater(types.VenueEvent{
			Channel: types.ChannelOrderUpdates,
			Oid:     &o,
			Status:  types.StatusCanceled,
		})
	}
	return CancelAck{Ack: types.Ack{Status: types.AckOK}}, nil
}

func (d *DemoTransport) SubmitTransfer(ctx context.Context, toPerp bool, usdc decimal.Decimal) (types.Ack, error) {
	f, _ := usdc.Float64()
	toPerpCopy := toPerp
	d.emitLater(types.VenueEvent{
		Channel:    types.ChannelUserNonFundingLedgerUpdates,
		LedgerType: "classTransfer",
		ToPerp:     &toPerpCopy,
		Usdc:       f,
	})
	return types.Ack{Status: types.AckOK}, nil
}

func (d *DemoTransport) SubmitLeverage(ctx context.Context, coin string, leverage uint32, cross bool) (types.Ack, error) {
	return types.Ack{Status: types.AckOK}, nil
}
