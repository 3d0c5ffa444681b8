package schema

import "time"

// OrderSide describes order direction.
type OrderSide string

const (
	OrderSideUnknown OrderSide = ""
	OrderSideBuy     OrderSide = "buy"
	OrderSideSell    OrderSide = "sell"
)

// SideFor maps a trade direction and open/close intent to an order side.
func SideFor(d Direction, closing bool) OrderSide {
	long := d == DirectionLong
	if closing {
		long = !long
	}
	if long {
		return OrderSideBuy
	}
	return OrderSideSell
}

// OrderType describes order type.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
	OrderTypeStop   OrderType = "stop"
)

// TimeInForce describes order time-in-force.
type TimeInForce string

const (
	TimeInForceDay TimeInForce = "day"
	TimeInForceGTC TimeInForce = "gtc"
	TimeInForceIOC TimeInForce = "ioc"
)

// OrderStatus is the broker-reported lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusRejected  OrderStatus = "rejected"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Terminal reports whether no further fills can arrive for this status.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusRejected, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Order is a broker-agnostic order request. ClientID is the caller-generated
// idempotency key; it stays constant across retries of the same submission.
type Order struct {
	ClientID    string      `json:"clientId"`
	Ticker      string      `json:"ticker"`
	Side        OrderSide   `json:"side"`
	Qty         float64     `json:"qty"`
	Type        OrderType   `json:"type"`
	LimitPrice  float64     `json:"limitPrice,omitempty"`
	StopPrice   float64     `json:"stopPrice,omitempty"`
	TimeInForce TimeInForce `json:"timeInForce"`
}

// OrderResult is the broker's terminal (or last observed) response to an Order.
type OrderResult struct {
	OrderID     string      `json:"orderId"`
	ClientID    string      `json:"clientId"`
	Status      OrderStatus `json:"status"`
	FilledQty   float64     `json:"filledQty"`
	FilledPrice float64     `json:"filledPrice"`
	Broker      string      `json:"broker"`
	Timestamp   time.Time   `json:"timestamp"`
}
