package broker

import (
	"context"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"main/internal/schema"
)

const (
	alpacaPaperURL = "https://paper-api.alpaca.markets"

	// Submitted market orders usually fill within one poll.
	orderPollInterval = 250 * time.Millisecond
)

// Alpaca adapts the Alpaca trading and market-data APIs to the Client
// interface. All money values cross the SDK boundary as decimals and are
// converted to float64 at the edge.
type Alpaca struct {
	trading *alpaca.Client
	data    *marketdata.Client
}

// NewAlpaca builds a client from config. Credentials are required; the base
// URL defaults to the paper endpoint.
func NewAlpaca(cfg Config) (*Alpaca, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, ErrMissingCredential
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = alpacaPaperURL
	}
	return &Alpaca{
		trading: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
			BaseURL:   baseURL,
		}),
		data: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    cfg.APIKey,
			APISecret: cfg.APISecret,
		}),
	}, nil
}

func (a *Alpaca) Name() string { return "alpaca" }

// Connect verifies credentials with an account probe.
func (a *Alpaca) Connect(ctx context.Context) error {
	if _, err := a.trading.GetAccount(); err != nil {
		return errors.Wrap(ErrConnection, err.Error())
	}
	return nil
}

// SubmitOrder places the order and polls briefly for a terminal status so
// the caller receives fill details rather than a bare acknowledgment.
func (a *Alpaca) SubmitOrder(ctx context.Context, order schema.Order) (schema.OrderResult, error) {
	qty := decimal.NewFromFloat(order.Qty)
	req := alpaca.PlaceOrderRequest{
		Symbol:        order.Ticker,
		Qty:           &qty,
		Side:          alpaca.Side(order.Side),
		Type:          alpaca.OrderType(order.Type),
		TimeInForce:   alpacaTIF(order.TimeInForce),
		ClientOrderID: order.ClientID,
	}
	if order.Type == schema.OrderTypeLimit && order.LimitPrice > 0 {
		limit := decimal.NewFromFloat(order.LimitPrice).Round(2)
		req.LimitPrice = &limit
	}
	if order.Type == schema.OrderTypeStop && order.StopPrice > 0 {
		stop := decimal.NewFromFloat(order.StopPrice).Round(2)
		req.StopPrice = &stop
	}

	placed, err := a.trading.PlaceOrder(req)
	if err != nil {
		return schema.OrderResult{}, errors.Wrap(err, "place order").With("ticker", order.Ticker)
	}

	final := placed
	for !alpacaTerminal(string(final.Status)) {
		select {
		case <-ctx.Done():
			return a.toResult(final), ctx.Err()
		case <-time.After(orderPollInterval):
		}
		refreshed, err := a.trading.GetOrderByClientOrderID(order.ClientID)
		if err != nil {
			return a.toResult(final), errors.Wrap(err, "poll order status")
		}
		final = refreshed
	}
	return a.toResult(final), nil
}

// CancelOrder cancels an open order by broker order ID.
func (a *Alpaca) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	if err := a.trading.CancelOrder(orderID); err != nil {
		return false, errors.Wrap(err, "cancel order").With("orderId", orderID)
	}
	return true, nil
}

// GetPositions maps the broker's open positions into the pipeline shape.
func (a *Alpaca) GetPositions(ctx context.Context) ([]schema.Position, error) {
	raw, err := a.trading.GetPositions()
	if err != nil {
		return nil, errors.Wrap(err, "get positions")
	}
	out := make([]schema.Position, 0, len(raw))
	for _, p := range raw {
		dir := schema.DirectionLong
		qty := p.Qty
		if qty.IsNegative() {
			dir = schema.DirectionShort
			qty = qty.Neg()
		}
		pos := schema.Position{
			Ticker:     p.Symbol,
			Kind:       schema.InstrumentStock,
			Direction:  dir,
			Quantity:   decToFloat(qty),
			EntryPrice: decToFloat(p.AvgEntryPrice),
		}
		if p.CurrentPrice != nil {
			pos.CurrentPrice = decToFloat(*p.CurrentPrice)
		}
		out = append(out, pos)
	}
	return out, nil
}

// GetAccount fetches the account snapshot, including open positions.
func (a *Alpaca) GetAccount(ctx context.Context) (schema.AccountState, error) {
	acct, err := a.trading.GetAccount()
	if err != nil {
		return schema.AccountState{}, errors.Wrap(err, "get account")
	}
	positions, err := a.GetPositions(ctx)
	if err != nil {
		return schema.AccountState{}, err
	}
	equity := decToFloat(acct.Equity)
	return schema.AccountState{
		Equity:        equity,
		Cash:          decToFloat(acct.Cash),
		BuyingPower:   decToFloat(acct.BuyingPower),
		OpenPositions: positions,
		DailyTrades:   int(acct.DaytradeCount),
		PDTCompliant:  equity >= 25_000 || !acct.PatternDayTrader,
	}, nil
}

// GetQuote combines the latest quote and daily bar into one snapshot.
func (a *Alpaca) GetQuote(ctx context.Context, ticker string) (schema.Quote, error) {
	snap, err := a.data.GetSnapshot(ticker, marketdata.GetSnapshotRequest{})
	if err != nil {
		return schema.Quote{}, errors.Wrap(err, "get snapshot").With("ticker", ticker)
	}
	if snap == nil {
		return schema.Quote{}, ErrNoQuote
	}
	q := schema.Quote{Ticker: ticker, Timestamp: time.Now().UTC()}
	if snap.LatestQuote != nil {
		q.Bid = snap.LatestQuote.BidPrice
		q.Ask = snap.LatestQuote.AskPrice
		q.Timestamp = snap.LatestQuote.Timestamp
	}
	if snap.LatestTrade != nil {
		q.Last = snap.LatestTrade.Price
	}
	if snap.DailyBar != nil {
		q.DailyVolume = float64(snap.DailyBar.Volume)
	}
	return q, nil
}

func (a *Alpaca) toResult(o *alpaca.Order) schema.OrderResult {
	res := schema.OrderResult{
		OrderID:   o.ID,
		ClientID:  o.ClientOrderID,
		Status:    alpacaStatus(string(o.Status)),
		FilledQty: decToFloat(o.FilledQty),
		Broker:    a.Name(),
		Timestamp: o.SubmittedAt,
	}
	if o.FilledAvgPrice != nil {
		res.FilledPrice = decToFloat(*o.FilledAvgPrice)
	}
	if o.FilledAt != nil {
		res.Timestamp = *o.FilledAt
	}
	return res
}

func alpacaStatus(s string) schema.OrderStatus {
	switch s {
	case "filled":
		return schema.OrderStatusFilled
	case "partially_filled":
		return schema.OrderStatusPartial
	case "canceled", "cancelled":
		return schema.OrderStatusCancelled
	case "rejected", "expired":
		return schema.OrderStatusRejected
	default:
		return schema.OrderStatusPending
	}
}

func alpacaTerminal(s string) bool {
	switch s {
	case "filled", "partially_filled", "canceled", "cancelled", "rejected", "expired":
		return true
	default:
		return false
	}
}

func alpacaTIF(tif schema.TimeInForce) alpaca.TimeInForce {
	switch tif {
	case schema.TimeInForceGTC:
		return alpaca.GTC
	case schema.TimeInForceIOC:
		return alpaca.IOC
	default:
		return alpaca.Day
	}
}

func decToFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}
