package plan

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// wirePlan is the line-delimited JSON shape a Plan is loaded from. Field
// names match spec.md §3/§6 exactly.
type wirePlan struct {
	Steps []wireStep `json:"steps"`
}

type wireStep struct {
	Type string `json:"type"`

	// perp_orders
	Orders      []wireOrder `json:"orders,omitempty"`
	BuilderCode string      `json:"builder_code,omitempty"`

	// cancel_last / cancel_all / cancel_oids
	Coin string   `json:"coin,omitempty"`
	Oids []uint64 `json:"oids,omitempty"`

	// usd_class_transfer
	ToPerp bool    `json:"to_perp,omitempty"`
	Usdc   *string `json:"usdc,omitempty"`

	// set_leverage
	Leverage uint32 `json:"leverage,omitempty"`
	Cross    bool   `json:"cross,omitempty"`

	// sleep_ms
	DurationMs uint64 `json:"duration_ms,omitempty"`
}

type wireOrder struct {
	Coin        string          `json:"coin"`
	Side        string          `json:"side"`
	Sz          string          `json:"sz"`
	Tif         string          `json:"tif"`
	ReduceOnly  bool            `json:"reduce_only"`
	Px          json.RawMessage `json:"px"`
	Trigger     wireTrigger     `json:"trigger"`
	Cloid       string          `json:"cloid,omitempty"`
	BuilderCode string          `json:"builder_code,omitempty"`
}

type wireTrigger struct {
	Kind string `json:"kind"`
}

var symbolicPriceRe = regexp.MustCompile(`^mid(?:([+-])(\d+(?:\.\d+)?)%)?$`)

// parsePriceSpec parses an order's `px` field: either a JSON number
// (absolute price) or a string of the reserved symbolic form "mid",
// "mid+X%", "mid-X%".
func parsePriceSpec(raw json.RawMessage) (PriceSpec, error) {
	var asString string
	if err := json.Unmarshal(raw, &asString); err == nil {
		m := symbolicPriceRe.FindStringSubmatch(strings.TrimSpace(asString))
		if m == nil {
			return PriceSpec{}, fmt.Errorf("px: invalid symbolic price %q", asString)
		}
		offset := decimal.Zero
		if m[2] != "" {
			val, err := decimal.NewFromString(m[2])
			if err != nil {
				return PriceSpec{}, fmt.Errorf("px: invalid percent in %q: %w", asString, err)
			}
			if m[1] == "-" {
				val = val.Neg()
			}
			offset = val
		}
		return PriceSpec{Symbolic: &SymbolicPrice{PercentOffset: offset}}, nil
	}

	var asNumber decimal.Decimal
	if err := json.Unmarshal(raw, &asNumber); err != nil {
		return PriceSpec{}, fmt.Errorf("px: not a number or symbolic string: %w", err)
	}
	return PriceSpec{Absolute: &asNumber}, nil
}

func decodeOrder(w wireOrder) (Order, error) {
	sz, err := decimal.NewFromString(w.Sz)
	if err != nil {
		return Order{}, fmt.Errorf("sz: %w", err)
	}
	px, err := parsePriceSpec(w.Px)
	if err != nil {
		return Order{}, err
	}

	var side Side
	switch strings.ToLower(w.Side) {
	case "buy":
		side = Buy
	case "sell":
		side = Sell
	default:
		return Order{}, fmt.Errorf("side: must be buy or sell, got %q", w.Side)
	}

	o := Order{
		Coin:        w.Coin,
		Side:        side,
		Sz:          sz,
		Tif:         TIF(strings.ToUpper(w.Tif)),
		ReduceOnly:  w.ReduceOnly,
		Px:          px,
		Trigger:     Trigger{Kind: TriggerKind(w.Trigger.Kind)},
		BuilderCode: w.BuilderCode,
	}
	if o.Trigger.Kind == "" {
		o.Trigger.Kind = TriggerNone
	}
	if w.Cloid != "" {
		id, err := uuid.Parse(w.Cloid)
		if err != nil {
			return Order{}, fmt.Errorf("cloid: %w", err)
		}
		o.Cloid = &id
	}
	return o, nil
}

func decodeStep(w wireStep) (Step, error) {
	switch w.Type {
	case "perp_orders":
		orders := make([]Order, 0, len(w.Orders))
		for i, wo := range w.Orders {
			o, err := decodeOrder(wo)
			if err != nil {
				return Step{}, fmt.Errorf("order %d: %w", i, err)
			}
			orders = append(orders, o)
		}
		return Step{Kind: StepPerpOrders, Orders: orders, BuilderCode: w.BuilderCode}, nil

	case "cancel_last":
		return Step{Kind: StepCancelLast, Coin: w.Coin}, nil

	case "cancel_oids":
		return Step{Kind: StepCancelOids, Coin: w.Coin, Oids: w.Oids}, nil

	case "cancel_all":
		return Step{Kind: StepCancelAll, Coin: w.Coin}, nil

	case "usd_class_transfer":
		if w.Usdc == nil {
			return Step{}, fmt.Errorf("usd_class_transfer: usdc is required")
		}
		usdc, err := decimal.NewFromString(*w.Usdc)
		if err != nil {
			return Step{}, fmt.Errorf("usd_class_transfer: usdc: %w", err)
		}
		return Step{Kind: StepUsdClassTransfer, ToPerp: w.ToPerp, Usdc: usdc}, nil

	case "set_leverage":
		return Step{Kind: StepSetLeverage, LeverageCoin: w.Coin, Leverage: w.Leverage, Cross: w.Cross}, nil

	case "sleep_ms":
		return Step{Kind: StepSleepMs, DurationMs: w.DurationMs}, nil

	default:
		return Step{}, fmt.Errorf("unknown step type %q", w.Type)
	}
}

// DecodePlan decodes a single plan document's raw JSON bytes into a Plan.
func DecodePlan(data []byte) (Plan, error) {
	var w wirePlan
	if err := json.Unmarshal(data, &w); err != nil {
		return Plan{}, fmt.Errorf("decode plan: %w", err)
	}
	steps := make([]Step, 0, len(w.Steps))
	for i, ws := range w.Steps {
		s, err := decodeStep(ws)
		if err != nil {
			return Plan{}, fmt.Errorf("step %d: %w", i, err)
		}
		steps = append(steps, s)
	}
	p := Plan{Steps: steps}
	if err := p.Validate(); err != nil {
		return Plan{}, err
	}
	return p, nil
}
