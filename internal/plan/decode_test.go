package plan

import "testing"

func TestParsePriceSpecAbsolute(t *testing.T) {
	t.Parallel()

	spec, err := parsePriceSpec([]byte(`1234.5`))
	if err != nil {
		t.Fatalf("parsePriceSpec: %v", err)
	}
	if spec.IsSymbolic() {
		t.Fatal("expected absolute price spec")
	}
	if !spec.Absolute.Equal(mustDecimal(t, "1234.5")) {
		t.Errorf("Absolute = %s, want 1234.5", spec.Absolute)
	}
}

func TestParsePriceSpecSymbolic(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in         string
		wantOffset string
	}{
		{`"mid"`, "0"},
		{`"mid-1%"`, "-1"},
		{`"mid+1%"`, "1"},
		{`"mid+0.5%"`, "0.5"},
	}

	for _, tt := range tests {
		spec, err := parsePriceSpec([]byte(tt.in))
		if err != nil {
			t.Fatalf("parsePriceSpec(%s): %v", tt.in, err)
		}
		if !spec.IsSymbolic() {
			t.Fatalf("parsePriceSpec(%s): expected symbolic", tt.in)
		}
		if !spec.Symbolic.PercentOffset.Equal(mustDecimal(t, tt.wantOffset)) {
			t.Errorf("parsePriceSpec(%s): offset = %s, want %s", tt.in, spec.Symbolic.PercentOffset, tt.wantOffset)
		}
	}
}

func TestParsePriceSpecInvalidSymbol(t *testing.T) {
	t.Parallel()

	if _, err := parsePriceSpec([]byte(`"median"`)); err == nil {
		t.Fatal("expected error for unrecognized symbolic price")
	}
}

func TestDecodePlanBasicCoverageScenario(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"steps": [
			{"type": "perp_orders", "orders": [
				{"coin": "ETH", "side": "buy", "sz": "0.01", "tif": "ALO", "reduce_only": false, "px": "mid-1%", "trigger": {"kind": "none"}}
			]},
			{"type": "perp_orders", "orders": [
				{"coin": "ETH", "side": "sell", "sz": "0.01", "tif": "GTC", "reduce_only": false, "px": "mid+1%", "trigger": {"kind": "none"}}
			]},
			{"type": "cancel_last"}
		]
	}`)

	p, err := DecodePlan(doc)
	if err != nil {
		t.Fatalf("DecodePlan: %v", err)
	}
	if len(p.Steps) != 3 {
		t.Fatalf("len(Steps) = %d, want 3", len(p.Steps))
	}
	if p.Steps[0].Kind != StepPerpOrders || p.Steps[0].Orders[0].Tif != TifALO {
		t.Errorf("step 0 decoded incorrectly: %+v", p.Steps[0])
	}
	if p.Steps[2].Kind != StepCancelLast {
		t.Errorf("step 2 kind = %q, want cancel_last", p.Steps[2].Kind)
	}
}

func TestDecodePlanRejectsUnknownTriggerKind(t *testing.T) {
	t.Parallel()

	doc := []byte(`{
		"steps": [
			{"type": "perp_orders", "orders": [
				{"coin": "ETH", "side": "buy", "sz": "0.01", "tif": "GTC", "px": 100, "trigger": {"kind": "stopLoss"}}
			]}
		]
	}`)

	if _, err := DecodePlan(doc); err == nil {
		t.Fatal("expected error for unsupported trigger kind")
	}
}

func TestDecodePlanRejectsUnknownStepType(t *testing.T) {
	t.Parallel()

	doc := []byte(`{"steps": [{"type": "teleport"}]}`)
	if _, err := DecodePlan(doc); err == nil {
		t.Fatal("expected error for unknown step type")
	}
}
