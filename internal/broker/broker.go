// Package broker models execution backends behind one capability interface.
// The pipeline depends only on Client; the concrete set is closed and
// selected at construction time.
package broker

import (
	"context"
	"errors"
	"net"

	"main/internal/schema"
)

var (
	ErrConnection        = errors.New("broker: connection failed")
	ErrTimeout           = errors.New("broker: request timed out")
	ErrUnknownBroker     = errors.New("broker: unknown broker name")
	ErrOrderNotFound     = errors.New("broker: order not found")
	ErrNoQuote           = errors.New("broker: no quote for ticker")
	ErrMissingCredential = errors.New("broker: missing api credentials")
)

// Client is the minimal surface the pipeline needs from a brokerage.
type Client interface {
	Name() string
	Connect(ctx context.Context) error
	SubmitOrder(ctx context.Context, order schema.Order) (schema.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
	GetPositions(ctx context.Context) ([]schema.Position, error)
	GetAccount(ctx context.Context) (schema.AccountState, error)
	GetQuote(ctx context.Context, ticker string) (schema.Quote, error)
}

// Config selects and parameterizes a concrete broker.
type Config struct {
	Name      string `json:"name"`
	BaseURL   string `json:"baseUrl,omitempty"`
	APIKey    string `json:"-"`
	APISecret string `json:"-"`
}

// New constructs a broker from the closed implementation set.
func New(cfg Config) (Client, error) {
	switch cfg.Name {
	case "alpaca":
		return NewAlpaca(cfg)
	case "paper":
		return NewPaper(), nil
	default:
		return nil, ErrUnknownBroker
	}
}

// Transient reports whether an error is a connectivity or timeout failure
// worth retrying. Business rejections are never transient.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrConnection) || errors.Is(err, ErrTimeout) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return false
}
