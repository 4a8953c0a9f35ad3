// Package signature implements the Signature Normalizer: a pure function
// turning one ActionLogRecord into the set of canonical action signatures it
// represents, anchored solely to the request echo so that scoring never
// depends on how fast or in what order the venue's confirmations arrive.
package signature

import (
	"fmt"
	"strings"

	"perpbench/pkg/types"
)

// acceptedStatuses are the per-order status kinds that count as an accepted
// order for signature emission. Anything else (including "error") is
// dropped.
var acceptedStatuses = map[types.StatusKind]bool{
	types.StatusResting:           true,
	types.StatusFilled:            true,
	types.StatusSuccess:           true,
	types.StatusWaitingForFill:    true,
	types.StatusWaitingForTrigger: true,
}

// Normalize derives the canonical signatures for rec and whether the step is
// a no-op (contributes nothing to scoring). err is non-nil when rec carries
// a value the signature grammar cannot represent (an unrecognized trigger
// kind) — callers must treat rec as a normalization failure, not score it,
// the same as a malformed input record.
func Normalize(rec types.ActionLogRecord) (signatures []string, isNoop bool, err error) {
	switch rec.ActionKind {
	case types.ActionPerpOrders:
		signatures, err = normalizePerpOrders(rec)
	case types.ActionCancelLast, types.ActionCancelOids, types.ActionCancelAll:
		signatures = normalizeCancel(rec)
	case types.ActionUsdClassTransfer:
		signatures = normalizeTransfer(rec)
	case types.ActionSetLeverage:
		signatures = normalizeLeverage(rec)
	}
	if err != nil {
		return nil, false, err
	}

	ackOK := rec.Ack != nil && rec.Ack.Status == types.AckOK
	isNoop = len(signatures) == 0 && !ackOK && len(rec.Observed) == 0
	return signatures, isNoop, nil
}

func normalizePerpOrders(rec types.ActionLogRecord) ([]string, error) {
	orders := rec.Request.Orders
	var statuses []types.OrderStatus
	if rec.Ack != nil && rec.Ack.Data != nil {
		statuses = rec.Ack.Data.Statuses
	}

	stepAccepted := rec.Ack != nil && rec.Ack.Status == types.AckOK

	sigs := make([]string, 0, len(orders))
	for i, o := range orders {
		trigger, err := normalizeTrigger(o.TriggerKind)
		if err != nil {
			return nil, fmt.Errorf("order %d: %w", i, err)
		}

		var accepted bool
		if i < len(statuses) {
			kind := statuses[i].Kind
			if kind == types.StatusError {
				continue
			}
			accepted = acceptedStatuses[kind]
		} else {
			// More orders than statuses: unmatched orders inherit the
			// step-level ack status.
			accepted = stepAccepted
		}
		if !accepted {
			continue
		}
		sigs = append(sigs, fmt.Sprintf("perp.order.%s:%t:%s",
			strings.ToUpper(o.Tif), o.ReduceOnly, trigger))
	}
	return sigs, nil
}

// normalizeTrigger rejects any trigger kind the grammar doesn't define.
// Only "none" (or an absent value, the pre-trigger-field default) is valid;
// anything else is a normalization error, never silently passed through.
func normalizeTrigger(triggerKind string) (string, error) {
	if triggerKind == "" || triggerKind == "none" {
		return "none", nil
	}
	return "", fmt.Errorf("unrecognized trigger kind %q", triggerKind)
}

func normalizeCancel(rec types.ActionLogRecord) []string {
	if rec.Ack == nil || rec.Ack.Status != types.AckOK {
		return nil
	}
	var kind string
	switch rec.ActionKind {
	case types.ActionCancelLast:
		kind = "last"
	case types.ActionCancelOids:
		kind = "oids"
	case types.ActionCancelAll:
		kind = "all"
	}
	return []string{fmt.Sprintf("perp.cancel.%s", kind)}
}

func normalizeTransfer(rec types.ActionLogRecord) []string {
	if rec.Ack == nil || rec.Ack.Status != types.AckOK {
		return nil
	}
	direction := "fromPerp"
	if rec.Request.ToPerp {
		direction = "toPerp"
	}
	return []string{fmt.Sprintf("account.usdClassTransfer.%s", direction)}
}

func normalizeLeverage(rec types.ActionLogRecord) []string {
	if rec.Ack == nil || rec.Ack.Status != types.AckOK {
		return nil
	}
	return []string{fmt.Sprintf("risk.setLeverage.%s", strings.ToUpper(rec.Request.Coin))}
}
