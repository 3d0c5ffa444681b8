package og

import (
	"errors"

	"main/internal/schema"
)

var (
	ErrDuplicateOrder    = errors.New("og: order already exists")
	ErrUnknownOrder      = errors.New("og: order not found")
	ErrInvalidTransition = errors.New("og: invalid order state transition")
)

// OrderState tracks the lifecycle of a routed order.
type OrderState uint16

const (
	OrderStateUnknown OrderState = iota
	OrderStateSent
	OrderStatePartFilled
	OrderStateFilled
	OrderStateCancelled
	OrderStateRejected
)

// Tracked holds the gateway's view of an order keyed by its client ID.
type Tracked struct {
	ClientID string
	OrderID  string
	Ticker   string
	Side     schema.OrderSide
	Qty      float64
	State    OrderState
	Attempts int
}

// StateMachine updates tracked orders from submissions and results.
type StateMachine struct {
	orders map[string]*Tracked
}

// NewStateMachine creates an empty state machine.
func NewStateMachine() *StateMachine {
	return &StateMachine{orders: make(map[string]*Tracked)}
}

// Order returns the current order state by client ID.
func (m *StateMachine) Order(clientID string) (*Tracked, bool) {
	o, ok := m.orders[clientID]
	return o, ok
}

// ApplySubmit registers a new order in Sent state. Re-registering the same
// client ID counts an attempt instead of duplicating, which keeps retries
// idempotent at this layer.
func (m *StateMachine) ApplySubmit(order schema.Order) (*Tracked, error) {
	if order.ClientID == "" {
		return nil, ErrUnknownOrder
	}
	if existing, ok := m.orders[order.ClientID]; ok {
		if existing.State == OrderStateSent {
			existing.Attempts++
			return existing, nil
		}
		return existing, ErrDuplicateOrder
	}
	o := &Tracked{
		ClientID: order.ClientID,
		Ticker:   order.Ticker,
		Side:     order.Side,
		Qty:      order.Qty,
		State:    OrderStateSent,
		Attempts: 1,
	}
	m.orders[o.ClientID] = o
	return o, nil
}

// ApplyResult transitions an order from a broker result.
func (m *StateMachine) ApplyResult(res schema.OrderResult) (*Tracked, error) {
	o, ok := m.orders[res.ClientID]
	if !ok {
		return nil, ErrUnknownOrder
	}
	if isTerminal(o.State) {
		return o, ErrInvalidTransition
	}
	o.OrderID = res.OrderID
	switch res.Status {
	case schema.OrderStatusFilled:
		o.State = OrderStateFilled
	case schema.OrderStatusPartial:
		o.State = OrderStatePartFilled
	case schema.OrderStatusCancelled:
		o.State = OrderStateCancelled
	case schema.OrderStatusRejected:
		o.State = OrderStateRejected
	default:
		o.State = OrderStateSent
	}
	return o, nil
}

func isTerminal(state OrderState) bool {
	switch state {
	case OrderStateFilled, OrderStateCancelled, OrderStateRejected:
		return true
	default:
		return false
	}
}
