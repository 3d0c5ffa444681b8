package og

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/broker"
	"main/internal/schema"
)

// scriptedBroker returns pre-programmed outcomes in order and records the
// client IDs it was handed.
type scriptedBroker struct {
	name      string
	script    []func(schema.Order) (schema.OrderResult, error)
	calls     int
	clientIDs []string
}

func (b *scriptedBroker) Name() string                  { return b.name }
func (b *scriptedBroker) Connect(context.Context) error { return nil }
func (b *scriptedBroker) CancelOrder(_ context.Context, orderID string) (bool, error) {
	return true, nil
}
func (b *scriptedBroker) GetPositions(context.Context) ([]schema.Position, error) { return nil, nil }
func (b *scriptedBroker) GetAccount(context.Context) (schema.AccountState, error) {
	return schema.AccountState{}, nil
}
func (b *scriptedBroker) GetQuote(context.Context, string) (schema.Quote, error) {
	return schema.Quote{}, broker.ErrNoQuote
}

func (b *scriptedBroker) SubmitOrder(_ context.Context, order schema.Order) (schema.OrderResult, error) {
	b.clientIDs = append(b.clientIDs, order.ClientID)
	step := b.calls
	if step >= len(b.script) {
		step = len(b.script) - 1
	}
	b.calls++
	return b.script[step](order)
}

func fill(order schema.Order) (schema.OrderResult, error) {
	return schema.OrderResult{
		OrderID:     "o-1",
		ClientID:    order.ClientID,
		Status:      schema.OrderStatusFilled,
		FilledQty:   order.Qty,
		FilledPrice: 100,
		Timestamp:   time.Now(),
	}, nil
}

func timeout(schema.Order) (schema.OrderResult, error) {
	return schema.OrderResult{}, broker.ErrTimeout
}

func reject(schema.Order) (schema.OrderResult, error) {
	return schema.OrderResult{Status: schema.OrderStatusRejected}, broker.ErrOrderNotFound
}

func newTestRouter(primary, secondary broker.Client) (*Router, *[]time.Duration) {
	r := NewRouter(RouterConfig{MaxAttempts: 3, BackoffBase: time.Second}, primary, secondary)
	waits := &[]time.Duration{}
	r.sleep = func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
	return r, waits
}

func TestSubmitRetriesTimeoutsThenSucceeds(t *testing.T) {
	primary := &scriptedBroker{name: "alpaca", script: []func(schema.Order) (schema.OrderResult, error){
		timeout, timeout, fill,
	}}
	r, waits := newTestRouter(primary, nil)

	outcome, err := r.Submit(context.Background(), schema.Order{
		Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 10, Type: schema.OrderTypeMarket,
	})
	require.NoError(t, err)

	assert.Equal(t, schema.OrderStatusFilled, outcome.Result.Status)
	assert.Equal(t, "alpaca", outcome.Broker)
	assert.Equal(t, 3, primary.calls)

	require.Len(t, outcome.Retries, 2)
	assert.Equal(t, 1, outcome.Retries[0].Attempt)
	assert.Equal(t, 2, outcome.Retries[1].Attempt)

	// Exponential schedule off a 1s base: 1s then 2s.
	require.Len(t, *waits, 2)
	assert.Equal(t, time.Second, (*waits)[0])
	assert.Equal(t, 2*time.Second, (*waits)[1])
}

func TestSubmitKeepsClientIDAcrossRetriesAndFallback(t *testing.T) {
	primary := &scriptedBroker{name: "alpaca", script: []func(schema.Order) (schema.OrderResult, error){timeout}}
	secondary := &scriptedBroker{name: "paper", script: []func(schema.Order) (schema.OrderResult, error){fill}}
	r, _ := newTestRouter(primary, secondary)

	outcome, err := r.Submit(context.Background(), schema.Order{Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 5})
	require.NoError(t, err)
	assert.Equal(t, "paper", outcome.Broker)

	seen := append(append([]string{}, primary.clientIDs...), secondary.clientIDs...)
	require.NotEmpty(t, seen)
	for _, id := range seen {
		assert.Equal(t, seen[0], id, "idempotency key must not change between attempts")
	}
	assert.Equal(t, seen[0], outcome.Result.ClientID)
}

func TestSubmitDoesNotRetryBusinessRejections(t *testing.T) {
	primary := &scriptedBroker{name: "alpaca", script: []func(schema.Order) (schema.OrderResult, error){reject}}
	secondary := &scriptedBroker{name: "paper", script: []func(schema.Order) (schema.OrderResult, error){fill}}
	r, waits := newTestRouter(primary, secondary)

	_, err := r.Submit(context.Background(), schema.Order{Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 5})
	require.Error(t, err)

	assert.Equal(t, 1, primary.calls)
	assert.Equal(t, 0, secondary.calls, "non-transient errors must not fall back")
	assert.Empty(t, *waits)
}

func TestSubmitExhaustsAllBrokers(t *testing.T) {
	primary := &scriptedBroker{name: "alpaca", script: []func(schema.Order) (schema.OrderResult, error){timeout}}
	secondary := &scriptedBroker{name: "paper", script: []func(schema.Order) (schema.OrderResult, error){timeout}}
	r, _ := newTestRouter(primary, secondary)

	_, err := r.Submit(context.Background(), schema.Order{Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 5})
	require.ErrorIs(t, err, ErrOrderRouting)

	assert.Equal(t, 3, primary.calls)
	assert.Equal(t, 3, secondary.calls)
}

func TestSubmitRejectsReusedClientID(t *testing.T) {
	primary := &scriptedBroker{name: "alpaca", script: []func(schema.Order) (schema.OrderResult, error){fill}}
	r, _ := newTestRouter(primary, nil)

	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 10}
	_, err := r.Submit(context.Background(), order)
	require.NoError(t, err)

	// The first submission reached a terminal state; reusing its client ID
	// must fail before any broker is contacted.
	_, err = r.Submit(context.Background(), order)
	require.ErrorIs(t, err, ErrDuplicateOrder)
	assert.Equal(t, 1, primary.calls)
}

func TestStateMachineRejectsTerminalResubmit(t *testing.T) {
	m := NewStateMachine()
	order := schema.Order{ClientID: "c-1", Ticker: "AAPL", Side: schema.OrderSideBuy, Qty: 10}

	_, err := m.ApplySubmit(order)
	require.NoError(t, err)

	// Retrying while in flight is allowed and counted.
	tracked, err := m.ApplySubmit(order)
	require.NoError(t, err)
	assert.Equal(t, 2, tracked.Attempts)

	_, err = m.ApplyResult(schema.OrderResult{ClientID: "c-1", Status: schema.OrderStatusFilled})
	require.NoError(t, err)

	_, err = m.ApplySubmit(order)
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}
