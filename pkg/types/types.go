// Package types defines the wire-level vocabulary shared by every layer of
// the benchmark harness: the per-step record the Executor writes and the
// Scoring Engine reads, the venue acknowledgement/event shapes, and the
// small enums those shapes are built from.
//
// This package has no dependency on any other internal package, so it can
// be imported by both halves of the harness (execution and scoring)
// without creating an import cycle.
package types

// ActionKind identifies which plan step variant produced an ActionLogRecord.
type ActionKind string

const (
	ActionPerpOrders       ActionKind = "perp_orders"
	ActionCancelLast       ActionKind = "cancel_last"
	ActionCancelOids       ActionKind = "cancel_oids"
	ActionCancelAll        ActionKind = "cancel_all"
	ActionUsdClassTransfer ActionKind = "usd_class_transfer"
	ActionSetLeverage      ActionKind = "set_leverage"
)

// AckStatus is the coarse status returned by the venue's HTTP acknowledgement.
type AckStatus string

const (
	AckOK  AckStatus = "ok"
	AckErr AckStatus = "err"
)

// StatusKind is the per-order status the venue returns inside an ack for a
// perp order batch. Only a subset counts as "accepted" for normalization
// (see internal/signature).
type StatusKind string

const (
	StatusResting           StatusKind = "resting"
	StatusFilled            StatusKind = "filled"
	StatusSuccess           StatusKind = "success"
	StatusWaitingForFill    StatusKind = "waitingForFill"
	StatusWaitingForTrigger StatusKind = "waitingForTrigger"
	StatusError             StatusKind = "error"
	StatusCanceled          StatusKind = "canceled"
)

// OrderStatus is one element of AckData.Statuses: the venue's disposition
// for a single order within a batch acknowledgement.
type OrderStatus struct {
	Kind StatusKind `json:"kind"`
	Oid  *uint64    `json:"oid,omitempty"`
}

// AckData is the optional payload attached to an Ack.
type AckData struct {
	Statuses []OrderStatus `json:"statuses,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Ack is the HTTP acknowledgement returned by any transport submit call.
type Ack struct {
	Status AckStatus `json:"status"`
	Data   *AckData  `json:"data,omitempty"`
}

// VenueEventChannel enumerates the asynchronous confirmation channels the
// transport multiplexes events from.
type VenueEventChannel string

const (
	ChannelOrderUpdates                VenueEventChannel = "orderUpdates"
	ChannelUserFills                   VenueEventChannel = "userFills"
	ChannelUserNonFundingLedgerUpdates VenueEventChannel = "userNonFundingLedgerUpdates"
)

// VenueEvent is a single observed venue-side event, stored verbatim — this
// is what ws_stream.jsonl holds, including initial snapshot frames.
type VenueEvent struct {
	Channel    VenueEventChannel `json:"channel"`
	IsSnapshot bool              `json:"isSnapshot,omitempty"`
	Oid        *uint64           `json:"oid,omitempty"`
	Coin       string            `json:"coin,omitempty"`
	Status     StatusKind        `json:"status,omitempty"`

	// Ledger-update fields, populated for class-transfer confirmations.
	LedgerType string  `json:"ledgerType,omitempty"` // "classTransfer"
	ToPerp     *bool   `json:"toPerp,omitempty"`
	Usdc       float64 `json:"usdc,omitempty"`

	Raw map[string]any `json:"raw,omitempty"` // passthrough for unrecognized fields
}

// ActionLogRecord is the single per-step record the Plan Executor
// (component D) writes and the Scoring Engine (component F) reads.
// Request is the normalized echo of what was submitted — the Signature
// Normalizer reads only this field, never Observed.
type ActionLogRecord struct {
	StepIdx     int          `json:"step_idx"`
	ActionKind  ActionKind   `json:"action_kind"`
	SubmitTsMs  int64        `json:"submit_ts_ms"`
	WindowKeyMs int64        `json:"window_key_ms"`
	Request     Request      `json:"request"`
	Ack         *Ack         `json:"ack,omitempty"`
	Observed    []VenueEvent `json:"observed,omitempty"`
	Notes       string       `json:"notes,omitempty"`
}

// Request is the opaque normalized echo of a submitted action. Exactly one
// group of fields is populated, matching ActionKind.
type Request struct {
	Orders      []RequestOrder `json:"orders,omitempty"`
	BuilderCode string         `json:"builder_code,omitempty"`

	CancelKind string   `json:"cancel_kind,omitempty"` // "last" | "oids" | "all"
	Coin       string   `json:"coin,omitempty"`
	Oids       []uint64 `json:"oids,omitempty"`

	ToPerp bool    `json:"to_perp,omitempty"`
	Usdc   float64 `json:"usdc,omitempty"`

	Leverage uint32 `json:"leverage,omitempty"`
	Cross    bool   `json:"cross,omitempty"`
}

// RequestOrder is the echoed form of a single order within a perp order
// batch request.
type RequestOrder struct {
	Coin        string  `json:"coin"`
	Side        string  `json:"side"` // "buy" | "sell"
	Sz          float64 `json:"sz"`
	Tif         string  `json:"tif"` // "ALO" | "GTC" | "IOC"
	ReduceOnly  bool    `json:"reduce_only"`
	Px          float64 `json:"px"`
	TriggerKind string  `json:"trigger_kind"` // "none"
	Cloid       string  `json:"cloid,omitempty"`
	BuilderCode string  `json:"builder_code,omitempty"`
}
