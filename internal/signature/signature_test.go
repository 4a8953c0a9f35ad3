package signature

import (
	"reflect"
	"sort"
	"testing"

	"perpbench/pkg/types"
)

func oid(n uint64) *uint64 { return &n }

func TestNormalizePerpOrdersAcceptedStatuses(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionPerpOrders,
		Request: types.Request{
			Orders: []types.RequestOrder{
				{Coin: "ETH", Side: "buy", Tif: "alo", ReduceOnly: false, TriggerKind: "none"},
				{Coin: "ETH", Side: "sell", Tif: "GTC", ReduceOnly: true, TriggerKind: "none"},
			},
		},
		Ack: &types.Ack{
			Status: types.AckOK,
			Data: &types.AckData{
				Statuses: []types.OrderStatus{
					{Kind: types.StatusResting, Oid: oid(1)},
					{Kind: types.StatusError},
				},
			},
		},
	}

	sigs, isNoop, err := Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isNoop {
		t.Fatal("expected not a no-op")
	}
	want := []string{"perp.order.ALO:false:none"}
	if !reflect.DeepEqual(sigs, want) {
		t.Errorf("sigs = %v, want %v", sigs, want)
	}
}

func TestNormalizePerpOrdersRejectsUnknownTriggerKind(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionPerpOrders,
		Request: types.Request{
			Orders: []types.RequestOrder{
				{Coin: "ETH", Tif: "GTC", TriggerKind: "trailing_stop"},
			},
		},
		Ack: &types.Ack{
			Status: types.AckOK,
			Data:   &types.AckData{Statuses: []types.OrderStatus{{Kind: types.StatusResting, Oid: oid(1)}}},
		},
	}

	sigs, isNoop, err := Normalize(rec)
	if err == nil {
		t.Fatal("expected an error for an unrecognized trigger kind")
	}
	if sigs != nil || isNoop {
		t.Errorf("sigs = %v, isNoop = %v, want zero values alongside the error", sigs, isNoop)
	}
}

func TestNormalizePerpOrdersUnmatchedInheritsStepAck(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionPerpOrders,
		Request: types.Request{
			Orders: []types.RequestOrder{
				{Coin: "ETH", Tif: "IOC", ReduceOnly: false},
				{Coin: "ETH", Tif: "IOC", ReduceOnly: false},
			},
		},
		Ack: &types.Ack{Status: types.AckOK}, // no Data.Statuses at all
	}

	sigs, _, err := Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 2 {
		t.Fatalf("expected both unmatched orders to inherit ok ack, got %v", sigs)
	}
}

func TestNormalizePerpOrdersUnmatchedInheritsRejection(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionPerpOrders,
		Request: types.Request{
			Orders: []types.RequestOrder{{Coin: "ETH", Tif: "IOC"}},
		},
		Ack: &types.Ack{Status: types.AckErr},
	}

	sigs, isNoop, err := Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 {
		t.Errorf("expected no signatures, got %v", sigs)
	}
	if !isNoop {
		t.Error("expected no-op when ack errs and nothing observed")
	}
}

func TestNormalizeCancelRequiresOK(t *testing.T) {
	t.Parallel()

	okRec := types.ActionLogRecord{ActionKind: types.ActionCancelLast, Ack: &types.Ack{Status: types.AckOK}}
	sigs, _, err := Normalize(okRec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sigs, []string{"perp.cancel.last"}) {
		t.Errorf("sigs = %v", sigs)
	}

	errRec := types.ActionLogRecord{ActionKind: types.ActionCancelAll, Ack: &types.Ack{Status: types.AckErr}}
	sigs, isNoop, err := Normalize(errRec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sigs) != 0 || !isNoop {
		t.Errorf("expected no-op on errored cancel, got sigs=%v isNoop=%v", sigs, isNoop)
	}
}

func TestNormalizeTransferDirection(t *testing.T) {
	t.Parallel()

	toPerp := types.ActionLogRecord{
		ActionKind: types.ActionUsdClassTransfer,
		Request:    types.Request{ToPerp: true},
		Ack:        &types.Ack{Status: types.AckOK},
	}
	sigs, _, err := Normalize(toPerp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sigs, []string{"account.usdClassTransfer.toPerp"}) {
		t.Errorf("sigs = %v", sigs)
	}

	fromPerp := types.ActionLogRecord{
		ActionKind: types.ActionUsdClassTransfer,
		Request:    types.Request{ToPerp: false},
		Ack:        &types.Ack{Status: types.AckOK},
	}
	sigs, _, err = Normalize(fromPerp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sigs, []string{"account.usdClassTransfer.fromPerp"}) {
		t.Errorf("sigs = %v", sigs)
	}
}

func TestNormalizeLeverageUppercasesCoin(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionSetLeverage,
		Request:    types.Request{Coin: "eth"},
		Ack:        &types.Ack{Status: types.AckOK},
	}
	sigs, _, err := Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(sigs, []string{"risk.setLeverage.ETH"}) {
		t.Errorf("sigs = %v", sigs)
	}
}

func TestNormalizeNoopRequiresNoObservedEvents(t *testing.T) {
	t.Parallel()

	rec := types.ActionLogRecord{
		ActionKind: types.ActionCancelLast,
		Ack:        &types.Ack{Status: types.AckErr},
		Observed:   []types.VenueEvent{{Channel: types.ChannelOrderUpdates}},
	}
	_, isNoop, err := Normalize(rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isNoop {
		t.Error("expected not a no-op when an event was observed, even on ack error")
	}
}

func TestNormalizeIsDeterministicRequestEchoOnly(t *testing.T) {
	t.Parallel()

	base := types.ActionLogRecord{
		ActionKind: types.ActionPerpOrders,
		Request: types.Request{
			Orders: []types.RequestOrder{{Coin: "ETH", Tif: "GTC", ReduceOnly: false}},
		},
		Ack: &types.Ack{
			Status: types.AckOK,
			Data:   &types.AckData{Statuses: []types.OrderStatus{{Kind: types.StatusResting, Oid: oid(7)}}},
		},
	}

	withObserved := base
	withObserved.Observed = []types.VenueEvent{{Channel: types.ChannelOrderUpdates, Oid: oid(7), Status: types.StatusResting}}

	sigsA, _, err := Normalize(base)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sigsB, _, err := Normalize(withObserved)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sort.Strings(sigsA)
	sort.Strings(sigsB)
	if !reflect.DeepEqual(sigsA, sigsB) {
		t.Errorf("signatures differed based on Observed: %v vs %v", sigsA, sigsB)
	}
}
