// Package artifact writes the four run artifacts the Plan Executor produces:
// per_action.jsonl, ws_stream.jsonl, orders_routed.csv, and run_meta.json.
// Every write is flushed immediately — the Executor's "Logged" state is
// terminal only once the record is durable, so there is no batching window
// where a crash could lose a committed step.
package artifact

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"

	"perpbench/pkg/types"
)

const (
	perActionFile = "per_action.jsonl"
	wsStreamFile  = "ws_stream.jsonl"
	ordersFile    = "orders_routed.csv"
	runMetaFile   = "run_meta.json"
)

var orderCSVHeader = []string{"timestamp", "oid", "coin", "side", "px", "sz", "tif", "reduce_only", "builder_code"}

// RunMeta is the run's environment fingerprint, written once at startup.
type RunMeta struct {
	NetworkLabel    string `json:"network_label"`
	EffectTimeoutMs int64  `json:"effect_timeout_ms"`
	WindowMs        int64  `json:"window_ms"`
	WalletAddress   string `json:"wallet_address"`
	BuilderCodeHint string `json:"builder_code_hint"`
	BenchVersion    string `json:"bench_version"`
	DemoMode        bool   `json:"demo_mode"`
}

// OrderRow is one row of orders_routed.csv.
type OrderRow struct {
	TimestampMs int64
	Oid         *uint64
	Coin        string
	Side        string
	Px          decimal.Decimal
	Sz          decimal.Decimal
	Tif         string
	ReduceOnly  bool
	BuilderCode string
}

// Writer owns the four run-artifact files. All methods are safe for
// concurrent use — the ws_stream sink is fed from the correlator's ingest
// goroutine while per_action/orders rows are written from the Executor's
// own goroutine.
type Writer struct {
	mu sync.Mutex

	perActionFile *os.File
	perAction     *bufio.Writer

	wsStreamFile *os.File
	wsStream     *bufio.Writer

	ordersFile *os.File
	orders     *csv.Writer
}

// Open creates dir if needed and opens the three append/streaming files.
// run_meta.json is written separately via WriteRunMeta once the run's
// environment fingerprint is known.
func Open(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create run dir: %w", err)
	}

	perAction, err := os.OpenFile(filepath.Join(dir, perActionFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", perActionFile, err)
	}
	wsStream, err := os.OpenFile(filepath.Join(dir, wsStreamFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		perAction.Close()
		return nil, fmt.Errorf("open %s: %w", wsStreamFile, err)
	}
	ordersF, err := os.OpenFile(filepath.Join(dir, ordersFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		perAction.Close()
		wsStream.Close()
		return nil, fmt.Errorf("open %s: %w", ordersFile, err)
	}

	w := &Writer{
		perActionFile: perAction,
		perAction:     bufio.NewWriter(perAction),
		wsStreamFile:  wsStream,
		wsStream:      bufio.NewWriter(wsStream),
		ordersFile:    ordersF,
		orders:        csv.NewWriter(ordersF),
	}

	if stat, err := ordersF.Stat(); err == nil && stat.Size() == 0 {
		if err := w.orders.Write(orderCSVHeader); err != nil {
			w.Close()
			return nil, fmt.Errorf("write orders header: %w", err)
		}
		w.orders.Flush()
	}

	return w, nil
}

// WriteAction appends one ActionLogRecord and flushes immediately.
func (w *Writer) WriteAction(rec types.ActionLogRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal action record: %w", err)
	}
	if _, err := w.perAction.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write action record: %w", err)
	}
	if err := w.perAction.Flush(); err != nil {
		return fmt.Errorf("flush per_action.jsonl: %w", err)
	}
	return nil
}

// WriteEvent appends a raw venue event to ws_stream.jsonl. Intended to be
// passed directly as the correlate.Correlator's sink.
func (w *Writer) WriteEvent(evt types.VenueEvent) {
	w.mu.Lock()
	defer w.mu.Unlock()

	line, err := json.Marshal(evt)
	if err != nil {
		return
	}
	if _, err := w.wsStream.Write(append(line, '\n')); err != nil {
		return
	}
	w.wsStream.Flush()
}

// WriteOrderRow appends one row to orders_routed.csv.
func (w *Writer) WriteOrderRow(row OrderRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	oid := ""
	if row.Oid != nil {
		oid = strconv.FormatUint(*row.Oid, 10)
	}
	record := []string{
		strconv.FormatInt(row.TimestampMs, 10),
		oid,
		row.Coin,
		row.Side,
		row.Px.String(),
		row.Sz.String(),
		row.Tif,
		strconv.FormatBool(row.ReduceOnly),
		row.BuilderCode,
	}
	if err := w.orders.Write(record); err != nil {
		return fmt.Errorf("write order row: %w", err)
	}
	w.orders.Flush()
	return w.orders.Error()
}

// WriteRunMeta writes run_meta.json, overwriting any previous content.
func (w *Writer) WriteRunMeta(dir string, meta RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal run meta: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, runMetaFile), data, 0o644)
}

// Close flushes and closes every open file. Safe to call once.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(w.perAction.Flush())
	record(w.perActionFile.Close())
	record(w.wsStream.Flush())
	record(w.wsStreamFile.Close())
	w.orders.Flush()
	record(w.orders.Error())
	record(w.ordersFile.Close())

	return firstErr
}
