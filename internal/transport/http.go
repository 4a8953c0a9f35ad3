// http.go implements the live venue transport: a go-resty REST client for
// the synchronous /exchange and /info endpoints, and a gorilla/websocket
// feed for the asynchronous order/fill/ledger confirmation stream. Every
// mutating request is EIP-712 signed by Signer the way the teacher's Auth
// signs CLOB orders.
package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"

	"perpbench/internal/config"
	"perpbench/internal/plan"
	"perpbench/pkg/types"
)

// HTTPTransport is the live, network-facing Transport implementation.
type HTTPTransport struct {
	http   *resty.Client
	signer *Signer
	rl     *RateLimiter
	feed   *EventFeed
	mids   *MidCache
	nonce  atomic.Int64
	logger *slog.Logger
}

// NewHTTPTransport builds a transport from configuration. It does not dial
// the WebSocket feed; call SubscribeEvents to do that.
func NewHTTPTransport(cfg *config.Config, logger *slog.Logger) (*HTTPTransport, error) {
	signer, err := NewSigner(cfg.Wallet)
	if err != nil {
		return nil, fmt.Errorf("new signer: %w", err)
	}

	httpClient := resty.New().
		SetBaseURL(cfg.API.RESTBaseURL).
		SetTimeout(10 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &HTTPTransport{
		http:   httpClient,
		signer: signer,
		rl:     NewRateLimiter(),
		feed:   NewEventFeed(cfg.API.WSURL, logger),
		mids:   NewMidCache(),
		logger: logger.With("component", "transport"),
	}, nil
}

// SubscribeEvents dials the WebSocket feed and returns its event channel.
// Must be called, and must have returned, before any Submit* call.
func (t *HTTPTransport) SubscribeEvents(ctx context.Context) (<-chan types.VenueEvent, error) {
	if err := t.feed.Connect(ctx); err != nil {
		return nil, fmt.Errorf("subscribe events: %w", err)
	}
	go func() {
		if err := t.feed.Run(ctx); err != nil && ctx.Err() == nil {
			t.logger.Error("event feed stopped", "error", err)
		}
	}()
	return t.feed.Events(), nil
}

// MidPrice returns the cached mid for coin, refreshed by cmd/bench's
// mid-refresh ticker (see MidRefresher).
func (t *HTTPTransport) MidPrice(coin string) (decimal.Decimal, bool) {
	return t.mids.Get(coin)
}

// PollMids fetches a mid price snapshot from the venue's info endpoint and
// refreshes the cache. HTTPTransport implements MidRefresher; cmd/bench
// drives this on a ticker at config.Run.MidRefreshInterval rather than
// calling it per-order.
func (t *HTTPTransport) PollMids(ctx context.Context) error {
	if err := t.rl.Info.WaitN(ctx, infoRequestWeight); err != nil {
		return err
	}

	var mids map[string]string
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"type": "allMids"}).
		SetResult(&mids).
		Post("/info")
	if err != nil {
		return fmt.Errorf("poll mids: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("poll mids: status %d: %s", resp.StatusCode(), resp.String())
	}

	for coin, raw := range mids {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		t.mids.Set(coin, d)
	}
	return nil
}

func (t *HTTPTransport) nextNonce() int64 {
	return t.nonce.Add(1)
}

// wireOrder is the venue's on-wire order shape within an order-batch action.
type wireOrder struct {
	Coin        string `json:"coin"`
	IsBuy       bool   `json:"is_buy"`
	Sz          string `json:"sz"`
	LimitPx     string `json:"limit_px"`
	ReduceOnly  bool   `json:"reduce_only"`
	Tif         string `json:"tif"`
	Cloid       string `json:"cloid,omitempty"`
	BuilderCode string `json:"builder_code,omitempty"`
}

type orderBatchAction struct {
	Type        string      `json:"type"`
	Orders      []wireOrder `json:"orders"`
	BuilderCode string      `json:"builder_code,omitempty"`
}

// SubmitOrderBatch signs and posts a perp order batch.
func (t *HTTPTransport) SubmitOrderBatch(ctx context.Context, orders []plan.Order, builderCode string) (OrderAck, error) {
	if err := t.rl.Exchange.WaitN(ctx, orderBatchWeight(len(orders))); err != nil {
		return OrderAck{}, err
	}

	wire := make([]wireOrder, 0, len(orders))
	for _, o := range orders {
		px, ok := ResolveOrderPrice(t, o)
		if !ok {
			return OrderAck{}, fmt.Errorf("resolve price: no mid cached for %s", o.Coin)
		}
		wo := wireOrder{
			Coin:        o.Coin,
			IsBuy:       o.Side == plan.Buy,
			Sz:          o.Sz.String(),
			LimitPx:     px.String(),
			ReduceOnly:  o.ReduceOnly,
			Tif:         string(o.Tif),
			BuilderCode: o.BuilderCode,
		}
		if o.Cloid != nil {
			wo.Cloid = o.Cloid.String()
		}
		wire = append(wire, wo)
	}

	action := orderBatchAction{Type: "order", Orders: wire, BuilderCode: builderCode}
	return t.submitAction(ctx, "/exchange", action, decodeOrderAck)
}

// SubmitCancel signs and posts a cancel action.
func (t *HTTPTransport) SubmitCancel(ctx context.Context, kind CancelKind, coin string, oids []uint64) (CancelAck, error) {
	if err := t.rl.Exchange.Wait(ctx); err != nil {
		return CancelAck{}, err
	}

	action := struct {
		Type string   `json:"type"`
		Kind string   `json:"kind"`
		Coin string   `json:"coin,omitempty"`
		Oids []uint64 `json:"oids,omitempty"`
	}{Type: "cancel", Kind: string(kind), Coin: coin, Oids: oids}

	ack, err := t.postAction(ctx, "/exchange", action)
	if err != nil {
		return CancelAck{}, err
	}
	return CancelAck{Ack: ack}, nil
}

// SubmitTransfer signs and posts a usdClassTransfer action.
func (t *HTTPTransport) SubmitTransfer(ctx context.Context, toPerp bool, usdc decimal.Decimal) (types.Ack, error) {
	if err := t.rl.Exchange.Wait(ctx); err != nil {
		return types.Ack{}, err
	}

	action := struct {
		Type   string `json:"type"`
		ToPerp bool   `json:"toPerp"`
		Usdc   string `json:"usdc"`
	}{Type: "usdClassTransfer", ToPerp: toPerp, Usdc: usdc.String()}

	return t.postAction(ctx, "/exchange", action)
}

// SubmitLeverage signs and posts a setLeverage action.
func (t *HTTPTransport) SubmitLeverage(ctx context.Context, coin string, leverage uint32, cross bool) (types.Ack, error) {
	if err := t.rl.Exchange.Wait(ctx); err != nil {
		return types.Ack{}, err
	}

	action := struct {
		Type     string `json:"type"`
		Coin     string `json:"coin"`
		Leverage uint32 `json:"leverage"`
		Cross    bool   `json:"cross"`
	}{Type: "setLeverage", Coin: coin, Leverage: leverage, Cross: cross}

	return t.postAction(ctx, "/exchange", action)
}

// Close releases the HTTP client's idle connections and stops the event feed.
func (t *HTTPTransport) Close() error {
	t.http.GetClient().CloseIdleConnections()
	return t.feed.Close()
}

func (t *HTTPTransport) submitAction(ctx context.Context, path string, action any, decode func(types.Ack) (OrderAck, error)) (OrderAck, error) {
	ack, err := t.postAction(ctx, path, action)
	if err != nil {
		return OrderAck{}, err
	}
	return decode(ack)
}

func (t *HTTPTransport) postAction(ctx context.Context, path string, action any) (types.Ack, error) {
	if !t.feed.IsConnected() {
		return types.Ack{}, ErrNotConnected
	}

	nonce := t.nextNonce()
	sig, err := t.signer.SignAction(action, nonce)
	if err != nil {
		return types.Ack{}, fmt.Errorf("sign action: %w", err)
	}

	envelope := struct {
		Action       any    `json:"action"`
		Nonce        int64  `json:"nonce"`
		Signature    string `json:"signature"`
		VaultAddress string `json:"vaultAddress,omitempty"`
	}{
		Action:       action,
		Nonce:        nonce,
		Signature:    sig,
		VaultAddress: t.signer.VaultAddress().Hex(),
	}

	var ack types.Ack
	resp, err := t.http.R().
		SetContext(ctx).
		SetBody(envelope).
		SetResult(&ack).
		Post(path)
	if err != nil {
		return types.Ack{}, fmt.Errorf("post %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.Ack{}, fmt.Errorf("post %s: status %d: %s", path, resp.StatusCode(), resp.String())
	}
	return ack, nil
}

func decodeOrderAck(ack types.Ack) (OrderAck, error) {
	out := OrderAck{Ack: ack}
	if ack.Data != nil {
		out.Statuses = ack.Data.Statuses
	}
	return out, nil
}
