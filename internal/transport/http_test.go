package transport

import (
	"testing"

	"github.com/shopspring/decimal"

	"perpbench/internal/plan"
)

var (
	_ Transport = (*HTTPTransport)(nil)
	_ Transport = (*DemoTransport)(nil)
)

func TestResolveOrderPriceAbsolute(t *testing.T) {
	t.Parallel()

	tr := NewDemoTransport(0)
	abs := decimal.NewFromInt(1500)
	order := plan.Order{Coin: "ETH", Px: plan.PriceSpec{Absolute: &abs}}

	px, ok := ResolveOrderPrice(tr, order)
	if !ok {
		t.Fatal("expected ok for absolute price")
	}
	if !px.Equal(abs) {
		t.Errorf("px = %s, want %s", px, abs)
	}
}

func TestResolveOrderPriceSymbolicRequiresCachedMid(t *testing.T) {
	t.Parallel()

	tr := NewDemoTransport(0)
	order := plan.Order{
		Coin: "ETH",
		Px:   plan.PriceSpec{Symbolic: &plan.SymbolicPrice{PercentOffset: decimal.NewFromInt(1)}},
	}

	if _, ok := ResolveOrderPrice(tr, order); ok {
		t.Fatal("expected not ok when no mid is cached")
	}

	tr.SeedMid("ETH", decimal.NewFromInt(2000))
	px, ok := ResolveOrderPrice(tr, order)
	if !ok {
		t.Fatal("expected ok once mid is cached")
	}
	if !px.Equal(decimal.NewFromInt(2020)) {
		t.Errorf("px = %s, want 2020", px)
	}
}
