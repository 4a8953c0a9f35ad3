// Package plan defines the declarative action plan the Executor drives
// forward, and the Order/PriceSpec vocabulary it is built from.
//
// A Plan is produced outside this package (hand-authored, or by an LLM plan
// generator — both explicitly out of scope, spec.md §1) and is treated as
// immutable once loaded.
package plan

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side is the direction of an order.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// TIF is the time-in-force of an order.
type TIF string

const (
	TifALO TIF = "ALO"
	TifGTC TIF = "GTC"
	TifIOC TIF = "IOC"
)

// TriggerKind enumerates order trigger types. Only TriggerNone is defined
// by any plan in the corpus; the grammar stays extensible for future kinds,
// but internal/signature refuses anything else (spec.md §9 Open Questions).
type TriggerKind string

const (
	TriggerNone TriggerKind = "none"
)

// Trigger wraps a trigger kind. Present for forward compatibility with the
// signature grammar's `{trigger}` segment (spec.md §3).
type Trigger struct {
	Kind TriggerKind `json:"kind"`
}

// PriceSpec is either an absolute price or a symbolic "mid ± X%" price
// resolved at submission time against a live mid-price snapshot.
type PriceSpec struct {
	// Absolute is set when the price is a literal number.
	Absolute *decimal.Decimal
	// Symbolic is set when the price is "mid", "mid+X%" or "mid-X%".
	Symbolic *SymbolicPrice
}

// SymbolicPrice represents the reserved "mid ± X%" price form.
// PercentOffset is signed: +1.0 means mid+1%, -1.0 means mid-1%.
// A bare "mid" (no percent) parses to PercentOffset == 0, per the spec's
// Open Question resolution (treated as mid+0%).
type SymbolicPrice struct {
	PercentOffset decimal.Decimal
}

// IsSymbolic reports whether the price must be resolved against a live mid.
func (p PriceSpec) IsSymbolic() bool { return p.Symbolic != nil }

// Order is a single order within a PerpOrders step.
type Order struct {
	Coin        string
	Side        Side
	Sz          decimal.Decimal
	Tif         TIF
	ReduceOnly  bool
	Px          PriceSpec
	Trigger     Trigger
	Cloid       *uuid.UUID
	BuilderCode string
}

// Validate checks the static invariants spec.md §3 places on an Order,
// independent of any live venue state.
func (o Order) Validate() error {
	if o.Coin == "" {
		return fmt.Errorf("order: coin is required")
	}
	if o.Side != Buy && o.Side != Sell {
		return fmt.Errorf("order: side must be buy or sell, got %q", o.Side)
	}
	if !o.Sz.IsPositive() {
		return fmt.Errorf("order: sz must be > 0, got %s", o.Sz)
	}
	switch o.Tif {
	case TifALO, TifGTC, TifIOC:
	default:
		return fmt.Errorf("order: tif must be one of ALO,GTC,IOC, got %q", o.Tif)
	}
	if o.Trigger.Kind != TriggerNone {
		return fmt.Errorf("order: unsupported trigger kind %q", o.Trigger.Kind)
	}
	return nil
}

// StepKind identifies which of the seven tagged variants a Step is.
type StepKind string

const (
	StepPerpOrders       StepKind = "perp_orders"
	StepCancelLast       StepKind = "cancel_last"
	StepCancelOids       StepKind = "cancel_oids"
	StepCancelAll        StepKind = "cancel_all"
	StepUsdClassTransfer StepKind = "usd_class_transfer"
	StepSetLeverage      StepKind = "set_leverage"
	StepSleepMs          StepKind = "sleep_ms"
)

// Step is one tagged variant of spec.md §3's plan step union. Exactly the
// fields relevant to Kind are populated; the rest are zero values.
type Step struct {
	Kind StepKind

	// PerpOrders
	Orders      []Order
	BuilderCode string

	// CancelLast / CancelAll (both accept an optional coin scope)
	Coin string

	// CancelOids
	Oids []uint64

	// UsdClassTransfer
	ToPerp bool
	Usdc   decimal.Decimal

	// SetLeverage
	LeverageCoin string
	Leverage     uint32
	Cross        bool

	// SleepMs
	DurationMs uint64
}

// Plan is an ordered, immutable sequence of steps.
type Plan struct {
	Steps []Step
}

// Validate walks every step and returns the first structural error found.
func (p Plan) Validate() error {
	for i, s := range p.Steps {
		if err := s.validate(); err != nil {
			return fmt.Errorf("step %d: %w", i, err)
		}
	}
	return nil
}

func (s Step) validate() error {
	switch s.Kind {
	case StepPerpOrders:
		if len(s.Orders) == 0 {
			return fmt.Errorf("perp_orders: at least one order is required")
		}
		for i, o := range s.Orders {
			if err := o.Validate(); err != nil {
				return fmt.Errorf("order %d: %w", i, err)
			}
		}
	case StepCancelOids:
		if s.Coin == "" {
			return fmt.Errorf("cancel_oids: coin is required")
		}
		if len(s.Oids) == 0 {
			return fmt.Errorf("cancel_oids: at least one oid is required")
		}
	case StepUsdClassTransfer:
		if !s.Usdc.IsPositive() {
			return fmt.Errorf("usd_class_transfer: usdc must be > 0")
		}
	case StepSetLeverage:
		if s.LeverageCoin == "" {
			return fmt.Errorf("set_leverage: coin is required")
		}
		if s.Leverage == 0 {
			return fmt.Errorf("set_leverage: leverage must be > 0")
		}
	case StepCancelLast, StepCancelAll, StepSleepMs:
		// no mandatory fields beyond Kind
	default:
		return fmt.Errorf("unknown step kind %q", s.Kind)
	}
	return nil
}
