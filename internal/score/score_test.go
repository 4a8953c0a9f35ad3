package score

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"perpbench/internal/domain"
	"perpbench/pkg/types"
)

func oid(n uint64) *uint64 { return &n }

func linesOf(t *testing.T, recs []types.ActionLogRecord) string {
	t.Helper()
	var b strings.Builder
	for _, r := range recs {
		data, err := json.Marshal(r)
		if err != nil {
			t.Fatalf("marshal record: %v", err)
		}
		b.Write(data)
		b.WriteByte('\n')
	}
	return b.String()
}

func singleDomainPolicy() *domain.Policy {
	return &domain.Policy{
		PerActionWindowMs: 200,
		PerSignatureCap:   3,
		PenaltyFactor:     0.1,
		Domains: []domain.Domain{
			{Name: "perp", Weight: 1.0, Allow: []string{"perp.order.*", "perp.cancel.*", "account.usdClassTransfer.*", "risk.setLeverage.*"}},
		},
	}
}

func threeDomainPolicy() *domain.Policy {
	return &domain.Policy{
		PerActionWindowMs: 200,
		PerSignatureCap:   3,
		PenaltyFactor:     0.1,
		Domains: []domain.Domain{
			{Name: "treasury", Weight: 1.0, Allow: []string{"account.usdClassTransfer.*"}},
			{Name: "risk_mgmt", Weight: 1.0, Allow: []string{"risk.setLeverage.*"}},
			{Name: "quoting", Weight: 1.0, Allow: []string{"perp.order.*", "perp.cancel.*"}},
		},
	}
}

func acceptedOrderRecord(stepIdx int, windowKey int64, coin, tif string, reduceOnly bool) types.ActionLogRecord {
	return types.ActionLogRecord{
		StepIdx:     stepIdx,
		ActionKind:  types.ActionPerpOrders,
		SubmitTsMs:  windowKey,
		WindowKeyMs: windowKey,
		Request: types.Request{
			Orders: []types.RequestOrder{{Coin: coin, Side: "buy", Tif: tif, ReduceOnly: reduceOnly}},
		},
		Ack: &types.Ack{
			Status: types.AckOK,
			Data:   &types.AckData{Statuses: []types.OrderStatus{{Kind: types.StatusResting, Oid: oid(uint64(stepIdx) + 1)}}},
		},
	}
}

func TestBasicCoverageScenario(t *testing.T) {
	t.Parallel()

	recs := []types.ActionLogRecord{
		acceptedOrderRecord(0, 0, "ETH", "ALO", false),
		acceptedOrderRecord(1, 0, "ETH", "GTC", false),
		{
			StepIdx: 2, ActionKind: types.ActionCancelLast, SubmitTsMs: 0, WindowKeyMs: 0,
			Ack: &types.Ack{Status: types.AckOK},
		},
	}

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, recs)), &eval, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Base != 3.0 {
		t.Errorf("Base = %v, want 3.0", report.Base)
	}
	if report.Bonus != 0.5 {
		t.Errorf("Bonus = %v, want 0.5", report.Bonus)
	}
	if report.Penalty != 0 {
		t.Errorf("Penalty = %v, want 0", report.Penalty)
	}
	if report.FinalScore != 3.5 {
		t.Errorf("FinalScore = %v, want 3.5", report.FinalScore)
	}
}

func TestCrossDomainWindowScenario(t *testing.T) {
	t.Parallel()

	recs := []types.ActionLogRecord{
		{
			StepIdx: 0, ActionKind: types.ActionUsdClassTransfer, SubmitTsMs: 0, WindowKeyMs: 0,
			Request: types.Request{ToPerp: true, Usdc: 10.0},
			Ack:     &types.Ack{Status: types.AckOK},
		},
		{
			StepIdx: 1, ActionKind: types.ActionSetLeverage, SubmitTsMs: 0, WindowKeyMs: 0,
			Request: types.Request{Coin: "ETH", Leverage: 5, Cross: false},
			Ack:     &types.Ack{Status: types.AckOK},
		},
		acceptedOrderRecord(2, 0, "ETH", "IOC", true),
	}

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, recs)), &eval, Options{Policy: threeDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.Base != 3.0 {
		t.Errorf("Base = %v, want 3.0", report.Base)
	}
	if report.Bonus != 0.5 {
		t.Errorf("Bonus = %v, want 0.5", report.Bonus)
	}
	if report.FinalScore != 3.5 {
		t.Errorf("FinalScore = %v, want 3.5", report.FinalScore)
	}
}

func TestNoopFilterScenario(t *testing.T) {
	t.Parallel()

	rejected := types.ActionLogRecord{
		StepIdx: 0, ActionKind: types.ActionPerpOrders, SubmitTsMs: 0, WindowKeyMs: 0,
		Request: types.Request{Orders: []types.RequestOrder{{Coin: "ETH", Tif: "IOC"}}},
		Ack:     &types.Ack{Status: types.AckErr},
	}

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, []types.ActionLogRecord{rejected})), &eval, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.FinalScore != 0 {
		t.Errorf("FinalScore = %v, want 0 for an all-rejected run", report.FinalScore)
	}
}

func TestCapSaturationScenario(t *testing.T) {
	t.Parallel()

	var recs []types.ActionLogRecord
	for i := 0; i < 10; i++ {
		recs = append(recs, acceptedOrderRecord(i, int64(i)*1000, "ETH", "GTC", false))
	}

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, recs)), &eval, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if report.PerDomain[0].UniqueCount < 1 {
		t.Errorf("expected unique_count >= 1, got %d", report.PerDomain[0].UniqueCount)
	}
	// Computed in float64 at run time, as Run does; the untyped constant
	// 0.1 * 7 would fold to exactly 0.7 and differ in the last bit.
	penaltyFactor := 0.1
	wantPenalty := penaltyFactor * 7
	if report.Penalty != wantPenalty {
		t.Errorf("Penalty = %v, want %v", report.Penalty, wantPenalty)
	}
}

func TestDirectionSwitchScenario(t *testing.T) {
	t.Parallel()

	recs := []types.ActionLogRecord{
		{
			StepIdx: 0, ActionKind: types.ActionUsdClassTransfer, SubmitTsMs: 0, WindowKeyMs: 0,
			Request: types.Request{ToPerp: true, Usdc: 5.0},
			Ack:     &types.Ack{Status: types.AckOK},
		},
		{
			StepIdx: 1, ActionKind: types.ActionUsdClassTransfer, SubmitTsMs: 0, WindowKeyMs: 0,
			Request: types.Request{ToPerp: false, Usdc: 5.0},
			Ack:     &types.Ack{Status: types.AckOK},
		},
	}

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, recs)), &eval, Options{Policy: threeDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(report.UniqueSignatures) != 2 {
		t.Fatalf("expected 2 distinct signatures, got %v", report.UniqueSignatures)
	}
	if report.Bonus < 0.25 {
		t.Errorf("Bonus = %v, want >= 0.25", report.Bonus)
	}
}

func TestRunIsDeterministicAcrossRepeatedCalls(t *testing.T) {
	t.Parallel()

	recs := []types.ActionLogRecord{
		acceptedOrderRecord(0, 0, "ETH", "ALO", false),
		acceptedOrderRecord(1, 0, "BTC", "GTC", true),
	}
	body := linesOf(t, recs)

	var eval1, eval2 bytes.Buffer
	r1, err := Run(strings.NewReader(body), &eval1, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r2, err := Run(strings.NewReader(body), &eval2, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	b1, _ := json.Marshal(r1)
	b2, _ := json.Marshal(r2)
	if string(b1) != string(b2) {
		t.Errorf("reports differ across identical runs:\n%s\nvs\n%s", b1, b2)
	}
	if eval1.String() != eval2.String() {
		t.Error("eval_per_action output differs across identical runs")
	}
}

func TestMalformedLineIsSkippedAndCounted(t *testing.T) {
	t.Parallel()

	body := "not valid json\n" + linesOf(t, []types.ActionLogRecord{acceptedOrderRecord(0, 0, "ETH", "ALO", false)})

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(body), &eval, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Metadata.NormalizationDrops != 1 {
		t.Errorf("NormalizationDrops = %d, want 1", report.Metadata.NormalizationDrops)
	}
	if report.Base != 1.0 {
		t.Errorf("Base = %v, want 1.0 (the valid record still scores)", report.Base)
	}
}

func TestUnknownTriggerKindIsSkippedAndCounted(t *testing.T) {
	t.Parallel()

	rec := acceptedOrderRecord(0, 0, "ETH", "ALO", false)
	rec.Request.Orders[0].TriggerKind = "trailing_stop"

	var eval bytes.Buffer
	report, err := Run(strings.NewReader(linesOf(t, []types.ActionLogRecord{rec})), &eval, Options{Policy: singleDomainPolicy()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Metadata.NormalizationDrops != 1 {
		t.Errorf("NormalizationDrops = %d, want 1", report.Metadata.NormalizationDrops)
	}
	if report.Base != 0 {
		t.Errorf("Base = %v, want 0 (unrecognized trigger kind must not count as coverage)", report.Base)
	}
	if eval.Len() != 0 {
		t.Errorf("expected no eval line written for a normalization-dropped record, got %q", eval.String())
	}
}

func TestWindowOverrideRecomputesWindowKey(t *testing.T) {
	t.Parallel()

	rec := acceptedOrderRecord(0, 0, "ETH", "ALO", false)
	rec.SubmitTsMs = 450
	rec.WindowKeyMs = 0 // stale/incorrect stored value

	var eval bytes.Buffer
	_, err := Run(strings.NewReader(linesOf(t, []types.ActionLogRecord{rec})), &eval, Options{
		Policy:           singleDomainPolicy(),
		WindowMsOverride: 100,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	var got EvalRecord
	if err := json.Unmarshal(bytes.TrimSpace(eval.Bytes()), &got); err != nil {
		t.Fatalf("unmarshal eval record: %v", err)
	}
	if got.WindowKeyMs != 400 {
		t.Errorf("WindowKeyMs = %d, want 400", got.WindowKeyMs)
	}
}
