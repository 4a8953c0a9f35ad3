package transport

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestMidCacheSetGet(t *testing.T) {
	t.Parallel()

	c := NewMidCache()
	if _, ok := c.Get("ETH"); ok {
		t.Fatal("expected no mid before Set")
	}

	c.Set("ETH", decimal.NewFromInt(3000))
	mid, ok := c.Get("ETH")
	if !ok || !mid.Equal(decimal.NewFromInt(3000)) {
		t.Errorf("Get(ETH) = %v, %v; want 3000, true", mid, ok)
	}
}

func TestMidCacheIsStale(t *testing.T) {
	t.Parallel()

	c := NewMidCache()
	if !c.IsStale("ETH", time.Second) {
		t.Fatal("expected stale before any Set")
	}
	c.Set("ETH", decimal.NewFromInt(3000))
	if c.IsStale("ETH", time.Minute) {
		t.Fatal("expected fresh immediately after Set")
	}
}

func TestMidCacheResolve(t *testing.T) {
	t.Parallel()

	c := NewMidCache()
	c.Set("ETH", decimal.NewFromInt(2000))

	px, ok := c.Resolve("ETH", decimal.NewFromFloat(1.0))
	if !ok {
		t.Fatal("expected resolve to succeed")
	}
	if !px.Equal(decimal.NewFromInt(2020)) {
		t.Errorf("Resolve(ETH, +1%%) = %s, want 2020", px)
	}

	px, ok = c.Resolve("ETH", decimal.NewFromFloat(-1.0))
	if !ok {
		t.Fatal("expected resolve to succeed")
	}
	if !px.Equal(decimal.NewFromInt(1980)) {
		t.Errorf("Resolve(ETH, -1%%) = %s, want 1980", px)
	}
}

func TestMidCacheResolveUnknownCoin(t *testing.T) {
	t.Parallel()

	c := NewMidCache()
	if _, ok := c.Resolve("BTC", decimal.Zero); ok {
		t.Fatal("expected resolve to fail for unknown coin")
	}
}
