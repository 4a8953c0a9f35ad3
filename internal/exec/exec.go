// Package exec implements the Plan Executor: the sequential driver that
// submits each plan step to a transport, waits for the Correlator's
// confirmation, and commits the resulting ActionLogRecord via the Writer
// before advancing — the same single-threaded orchestration shape as the
// teacher's engine.Engine, reduced from a multi-market goroutine fan-out to
// one strictly sequential step loop.
package exec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpbench/internal/artifact"
	"perpbench/internal/correlate"
	"perpbench/internal/plan"
	"perpbench/internal/transport"
	"perpbench/pkg/types"
)

// Clock abstracts wall-clock time so tests can supply a deterministic one.
type Clock func() time.Time

// Executor drives a Plan forward one step at a time.
type Executor struct {
	transport     transport.Transport
	correlator    *correlate.Correlator
	writer        *artifact.Writer
	windowMs      int64
	effectTimeout time.Duration
	logger        *slog.Logger
	clock         Clock

	lastOidMu sync.Mutex
	lastOid   map[string]uint64 // coin -> most recently resting oid
}

// New builds an Executor. windowMs and effectTimeout come from RunConfig.
func New(tr transport.Transport, corr *correlate.Correlator, w *artifact.Writer, windowMs int64, effectTimeout time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		transport:     tr,
		correlator:    corr,
		writer:        w,
		windowMs:      windowMs,
		effectTimeout: effectTimeout,
		logger:        logger.With("component", "exec"),
		clock:         time.Now,
		lastOid:       make(map[string]uint64),
	}
}

// Run drives every step of p in order. It returns an error only for fatal
// conditions (ctx cancellation, or an error bubbled up from a component
// that cannot recover); ordinary transport errors are captured per-step and
// do not stop the run.
func (e *Executor) Run(ctx context.Context, p plan.Plan) error {
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled at step %d: %w", i, err)
		}

		if step.Kind == plan.StepSleepMs {
			e.sleep(ctx, step.DurationMs)
			continue
		}

		rec := e.runStep(ctx, i, step)
		if err := e.writer.WriteAction(rec); err != nil {
			return fmt.Errorf("write action record for step %d: %w", i, err)
		}
	}
	return nil
}

func (e *Executor) sleep(ctx context.Context, durationMs uint64) {
	select {
	case <-time.After(time.Duration(durationMs) * time.Millisecond):
	case <-ctx.Done():
	}
}

func (e *Executor) windowKey(submitTsMs int64) int64 {
	if e.windowMs <= 0 {
		return submitTsMs
	}
	return (submitTsMs / e.windowMs) * e.windowMs
}

func (e *Executor) runStep(ctx context.Context, idx int, step plan.Step) types.ActionLogRecord {
	submitTsMs := e.clock().UnixMilli()
	rec := types.ActionLogRecord{
		StepIdx:     idx,
		SubmitTsMs:  submitTsMs,
		WindowKeyMs: e.windowKey(submitTsMs),
	}

	switch step.Kind {
	case plan.StepPerpOrders:
		e.runPerpOrders(ctx, step, &rec)
	case plan.StepCancelLast:
		e.runCancelLast(ctx, step, &rec)
	case plan.StepCancelOids:
		e.runCancelOids(ctx, step, &rec)
	case plan.StepCancelAll:
		e.runCancelAll(ctx, step, &rec)
	case plan.StepUsdClassTransfer:
		e.runTransfer(ctx, step, &rec)
	case plan.StepSetLeverage:
		e.runLeverage(ctx, step, &rec)
	default:
		rec.ActionKind = types.ActionKind(step.Kind)
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: fmt.Sprintf("unknown step kind %q", step.Kind)}}
	}

	return rec
}

func (e *Executor) runPerpOrders(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionPerpOrders
	rec.Request = types.Request{Orders: requestOrders(step.Orders), BuilderCode: step.BuilderCode}

	prices := make([]decimal.Decimal, len(step.Orders))
	for i, o := range step.Orders {
		px, ok := transport.ResolveOrderPrice(e.transport, o)
		if !ok {
			rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{
				Error: fmt.Sprintf("no cached mid for %s: cannot resolve symbolic price", o.Coin),
			}}
			return
		}
		prices[i] = px
	}
	for i, o := range step.Orders {
		e.writeOrderRow(rec.SubmitTsMs, o, prices[i], step.BuilderCode)
	}

	ack, err := e.transport.SubmitOrderBatch(ctx, step.Orders, step.BuilderCode)
	if err != nil {
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: err.Error()}}
		return
	}
	rec.Ack = &ack.Ack

	var oids []uint64
	for _, s := range ack.Statuses {
		if s.Oid == nil {
			continue
		}
		oids = append(oids, *s.Oid)
	}
	e.trackLastOids(step.Orders, ack.Statuses)

	if rec.Ack.Status == types.AckOK && len(oids) > 0 {
		observed, notes := e.correlator.AwaitOrders(ctx, oids, e.effectTimeout)
		rec.Observed = observed
		rec.Notes = notes
	}
}

// trackLastOids records, per coin, the oid of the last order in the batch
// that came back resting — the Executor's "most recent resting OID per
// coin" bookkeeping for CancelLast (spec responsibility #6).
func (e *Executor) trackLastOids(orders []plan.Order, statuses []types.OrderStatus) {
	e.lastOidMu.Lock()
	defer e.lastOidMu.Unlock()
	for i, o := range orders {
		if i >= len(statuses) {
			break
		}
		s := statuses[i]
		if s.Kind != types.StatusResting || s.Oid == nil {
			continue
		}
		e.lastOid[o.Coin] = *s.Oid
	}
}

func (e *Executor) peekLastOid(coin string) (uint64, bool) {
	e.lastOidMu.Lock()
	defer e.lastOidMu.Unlock()
	oid, ok := e.lastOid[coin]
	return oid, ok
}

func (e *Executor) runCancelLast(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionCancelLast
	rec.Request = types.Request{CancelKind: "last", Coin: step.Coin}

	var oids []uint64
	if oid, ok := e.peekLastOid(step.Coin); ok {
		oids = []uint64{oid}
		rec.Request.Oids = oids
	}

	ack, err := e.transport.SubmitCancel(ctx, transport.CancelLast, step.Coin, oids)
	e.finishCancel(ctx, ack, err, oids, rec)
}

func (e *Executor) runCancelOids(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionCancelOids
	rec.Request = types.Request{CancelKind: "oids", Coin: step.Coin, Oids: step.Oids}

	ack, err := e.transport.SubmitCancel(ctx, transport.CancelOids, step.Coin, step.Oids)
	e.finishCancel(ctx, ack, err, step.Oids, rec)
}

func (e *Executor) runCancelAll(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionCancelAll
	rec.Request = types.Request{CancelKind: "all", Coin: step.Coin}

	ack, err := e.transport.SubmitCancel(ctx, transport.CancelAll, step.Coin, nil)
	if err != nil {
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: err.Error()}}
		return
	}
	rec.Ack = &ack.Ack
	// Per-OID confirmation is not attempted for cancel_all: the client does
	// not know in advance which OIDs the venue will cancel, so ack-level
	// success is the scoring signal and any stream events are diagnostic
	// only (DESIGN.md Open Question decision #4).
}

func (e *Executor) finishCancel(ctx context.Context, ack transport.CancelAck, err error, oids []uint64, rec *types.ActionLogRecord) {
	if err != nil {
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: err.Error()}}
		return
	}
	rec.Ack = &ack.Ack
	if rec.Ack.Status == types.AckOK && len(oids) > 0 {
		observed, notes := e.correlator.AwaitCancel(ctx, oids, e.effectTimeout)
		rec.Observed = observed
		rec.Notes = notes
	}
}

func (e *Executor) runTransfer(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionUsdClassTransfer
	usdcF, _ := step.Usdc.Float64()
	rec.Request = types.Request{ToPerp: step.ToPerp, Usdc: usdcF}

	ack, err := e.transport.SubmitTransfer(ctx, step.ToPerp, step.Usdc)
	if err != nil {
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: err.Error()}}
		return
	}
	rec.Ack = &ack
	if rec.Ack.Status == types.AckOK {
		observed, notes := e.correlator.AwaitTransfer(ctx, step.ToPerp, step.Usdc, e.effectTimeout)
		rec.Observed = observed
		rec.Notes = notes
	}
}

func (e *Executor) runLeverage(ctx context.Context, step plan.Step, rec *types.ActionLogRecord) {
	rec.ActionKind = types.ActionSetLeverage
	rec.Request = types.Request{Coin: step.LeverageCoin, Leverage: step.Leverage, Cross: step.Cross}

	ack, err := e.transport.SubmitLeverage(ctx, step.LeverageCoin, step.Leverage, step.Cross)
	if err != nil {
		rec.Ack = &types.Ack{Status: types.AckErr, Data: &types.AckData{Error: err.Error()}}
		return
	}
	rec.Ack = &ack
	// Leverage is ack-only: the HTTP acknowledgement suffices and no stream
	// confirmation is awaited (spec.md §4.3 predicate table).
}

func requestOrders(orders []plan.Order) []types.RequestOrder {
	out := make([]types.RequestOrder, 0, len(orders))
	for _, o := range orders {
		sz, _ := o.Sz.Float64()
		ro := types.RequestOrder{
			Coin:        o.Coin,
			Side:        string(o.Side),
			Sz:          sz,
			Tif:         string(o.Tif),
			ReduceOnly:  o.ReduceOnly,
			TriggerKind: string(o.Trigger.Kind),
			BuilderCode: o.BuilderCode,
		}
		if o.Cloid != nil {
			ro.Cloid = o.Cloid.String()
		}
		out = append(out, ro)
	}
	return out
}

// writeOrderRow records one orders_routed.csv row at submission time; the
// venue-assigned oid is not yet known, so the oid column is left empty for
// routing rows (it is populated only by the confirmation stream, which this
// file does not carry).
func (e *Executor) writeOrderRow(submitTsMs int64, o plan.Order, px decimal.Decimal, builderCode string) {
	if err := e.writer.WriteOrderRow(artifact.OrderRow{
		TimestampMs: submitTsMs,
		Coin:        o.Coin,
		Side:        string(o.Side),
		Px:          px,
		Sz:          o.Sz,
		Tif:         string(o.Tif),
		ReduceOnly:  o.ReduceOnly,
		BuilderCode: builderCode,
	}); err != nil {
		e.logger.Error("write order row", "error", err)
	}
}
