package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"main/internal/schema"
)

// Paper simulates execution in memory against the last seeded price. Orders
// never touch an exchange; fills are immediate at the current price plus the
// configured slippage. Failure injection covers the router's retry paths.
type Paper struct {
	mu sync.Mutex

	quotes    map[string]schema.Quote
	positions map[string]schema.Position
	cash      float64
	equity    float64

	SlippagePct float64

	failSubmits int
	failErr     error
}

// NewPaper creates a paper broker with a default account.
func NewPaper() *Paper {
	return &Paper{
		quotes:    make(map[string]schema.Quote),
		positions: make(map[string]schema.Position),
		cash:      100_000,
		equity:    100_000,
	}
}

func (p *Paper) Name() string { return "paper" }

// Connect always succeeds.
func (p *Paper) Connect(ctx context.Context) error { return nil }

// SetQuote seeds the market snapshot for a ticker.
func (p *Paper) SetQuote(q schema.Quote) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.quotes[q.Ticker] = q
}

// SetPrice seeds a tight synthetic quote around the given price.
func (p *Paper) SetPrice(ticker string, price float64) {
	p.SetQuote(schema.Quote{
		Ticker:      ticker,
		Bid:         price * 0.9995,
		Ask:         price * 1.0005,
		Last:        price,
		DailyVolume: 10_000_000,
		Timestamp:   time.Now().UTC(),
	})
}

// SetAccount overrides the simulated balances.
func (p *Paper) SetAccount(equity, cash float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.equity = equity
	p.cash = cash
}

// SeedPosition places a holding directly at the broker, bypassing order
// flow. Reconciliation tests use this to fabricate orphans.
func (p *Paper) SeedPosition(pos schema.Position) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.positions[pos.Ticker] = pos
}

// DropPosition removes a holding directly, fabricating a ghost.
func (p *Paper) DropPosition(ticker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.positions, ticker)
}

// FailNextSubmits makes the next n submissions return err.
func (p *Paper) FailNextSubmits(n int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failSubmits = n
	p.failErr = err
}

// SubmitOrder fills market orders at the seeded price immediately.
func (p *Paper) SubmitOrder(ctx context.Context, order schema.Order) (schema.OrderResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.failSubmits > 0 {
		p.failSubmits--
		err := p.failErr
		if err == nil {
			err = ErrConnection
		}
		return schema.OrderResult{}, err
	}

	q, ok := p.quotes[order.Ticker]
	if !ok {
		return schema.OrderResult{
			OrderID:   uuid.New().String(),
			ClientID:  order.ClientID,
			Status:    schema.OrderStatusRejected,
			Broker:    p.Name(),
			Timestamp: time.Now().UTC(),
		}, nil
	}

	price := q.Mid()
	if order.Type == schema.OrderTypeLimit && order.LimitPrice > 0 {
		price = order.LimitPrice
	}
	switch order.Side {
	case schema.OrderSideBuy:
		price *= 1 + p.SlippagePct/100
	case schema.OrderSideSell:
		price *= 1 - p.SlippagePct/100
	}

	p.applyFill(order, price)

	return schema.OrderResult{
		OrderID:     uuid.New().String(),
		ClientID:    order.ClientID,
		Status:      schema.OrderStatusFilled,
		FilledQty:   order.Qty,
		FilledPrice: price,
		Broker:      p.Name(),
		Timestamp:   time.Now().UTC(),
	}, nil
}

func (p *Paper) applyFill(order schema.Order, price float64) {
	pos, held := p.positions[order.Ticker]
	signed := order.Qty
	if order.Side == schema.OrderSideSell {
		signed = -signed
	}
	current := 0.0
	if held {
		current = pos.Quantity
		if pos.Direction == schema.DirectionShort {
			current = -current
		}
	}
	next := current + signed
	p.cash -= signed * price

	if next == 0 {
		delete(p.positions, order.Ticker)
		return
	}
	dir := schema.DirectionLong
	if next < 0 {
		dir = schema.DirectionShort
		next = -next
	}
	if !held {
		pos = schema.Position{
			ID:        uuid.New().String(),
			Ticker:    order.Ticker,
			Kind:      schema.InstrumentStock,
			EntryTime: time.Now().UTC(),
		}
	}
	pos.Direction = dir
	pos.Quantity = next
	pos.EntryPrice = price
	pos.CurrentPrice = price
	p.positions[order.Ticker] = pos
}

// CancelOrder always reports success; paper fills are immediate so there is
// never an open order to cancel.
func (p *Paper) CancelOrder(ctx context.Context, orderID string) (bool, error) {
	return true, nil
}

// GetPositions returns the simulated holdings.
func (p *Paper) GetPositions(ctx context.Context) ([]schema.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]schema.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if q, ok := p.quotes[pos.Ticker]; ok {
			pos.CurrentPrice = q.Mid()
		}
		out = append(out, pos)
	}
	return out, nil
}

// GetAccount returns the simulated account view.
func (p *Paper) GetAccount(ctx context.Context) (schema.AccountState, error) {
	positions, _ := p.GetPositions(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	return schema.AccountState{
		Equity:        p.equity,
		Cash:          p.cash,
		BuyingPower:   p.cash * 2,
		OpenPositions: positions,
		PDTCompliant:  p.equity >= 25_000,
	}, nil
}

// GetQuote returns the seeded quote for a ticker.
func (p *Paper) GetQuote(ctx context.Context, ticker string) (schema.Quote, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	q, ok := p.quotes[ticker]
	if !ok {
		return schema.Quote{}, ErrNoQuote
	}
	return q, nil
}
