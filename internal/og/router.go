// Package og is the order gateway: it routes orders to the primary broker
// with retry, backoff, and secondary-broker fallback, and validates fills
// before they may become positions. Every submission carries a
// client-generated idempotency key, and every terminal outcome is returned
// to the caller; there is no fire-and-forget path.
package og

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	yerrors "github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/broker"
	"main/internal/schema"
	"main/pkg/backoff"
)

var ErrOrderRouting = errors.New("og: order routing failed on all brokers")

// RouterConfig controls retry and fallback behavior.
type RouterConfig struct {
	MaxAttempts    int           `json:"maxAttempts"`
	BackoffBase    time.Duration `json:"backoffBase"`
	AttemptTimeout time.Duration `json:"attemptTimeout"`
}

func (c RouterConfig) withDefaults() RouterConfig {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 10 * time.Second
	}
	return c
}

// RetryEvent records one retried attempt for audit.
type RetryEvent struct {
	Attempt int           `json:"attempt"`
	Broker  string        `json:"broker"`
	Wait    time.Duration `json:"wait"`
	Cause   string        `json:"cause"`
}

// SubmitOutcome is the terminal result of a routed submission.
type SubmitOutcome struct {
	Result  schema.OrderResult
	Broker  string
	Retries []RetryEvent
}

// Router submits orders to the primary broker, falling back to the
// secondary after exhausting retries on transient failures.
type Router struct {
	cfg       RouterConfig
	primary   broker.Client
	secondary broker.Client
	orders    *StateMachine
	bo        backoff.Backoff
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRouter creates a router. The secondary broker may be nil.
func NewRouter(cfg RouterConfig, primary, secondary broker.Client) *Router {
	cfg = cfg.withDefaults()
	return &Router{
		cfg:       cfg,
		primary:   primary,
		secondary: secondary,
		orders:    NewStateMachine(),
		// Deterministic schedule: wait = base * 2^(attempt-1).
		bo:    backoff.Backoff{Min: cfg.BackoffBase, Max: cfg.BackoffBase << 6, Factor: 2, Jitter: 0},
		sleep: sleepCtx,
	}
}

// Orders exposes the tracked order states.
func (r *Router) Orders() *StateMachine {
	return r.orders
}

// Submit routes the order and returns its terminal outcome. A missing
// client ID is assigned here and reused verbatim across every retry and
// fallback attempt.
func (r *Router) Submit(ctx context.Context, order schema.Order) (SubmitOutcome, error) {
	if order.ClientID == "" {
		order.ClientID = uuid.New().String()
	}
	// In-flight resubmits are counted by the state machine; a client ID
	// reused after a terminal outcome never reaches a broker.
	if _, err := r.orders.ApplySubmit(order); err != nil {
		return SubmitOutcome{}, err
	}

	outcome := SubmitOutcome{}
	brokers := []broker.Client{r.primary}
	if r.secondary != nil {
		brokers = append(brokers, r.secondary)
	}

	var lastErr error
	for _, b := range brokers {
		res, err := r.submitWithRetry(ctx, b, order, &outcome.Retries)
		if err == nil {
			outcome.Result = res
			outcome.Broker = b.Name()
			if _, err := r.orders.ApplyResult(res); err != nil && !errors.Is(err, ErrInvalidTransition) {
				logs.Warnf("order state update failed: %+v", err)
			}
			return outcome, nil
		}
		lastErr = err
		if !broker.Transient(err) {
			return outcome, err
		}
		logs.Warnf("broker %s exhausted for order %s: %+v", b.Name(), order.ClientID, err)
	}

	return outcome, yerrors.Wrap(ErrOrderRouting, lastErr.Error()).With("clientId", order.ClientID)
}

func (r *Router) submitWithRetry(ctx context.Context, b broker.Client, order schema.Order, retries *[]RetryEvent) (schema.OrderResult, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
		res, err := b.SubmitOrder(attemptCtx, order)
		cancel()

		if err == nil {
			return res, nil
		}
		lastErr = err
		if !broker.Transient(err) {
			return schema.OrderResult{}, err
		}

		// A timed-out submission is in an unknown state at the broker. The
		// idempotency key makes the retry safe: the broker either resumes
		// the original order or accepts the resend, never both.
		if attempt < r.cfg.MaxAttempts {
			wait := r.bo.Next(attempt)
			*retries = append(*retries, RetryEvent{
				Attempt: attempt,
				Broker:  b.Name(),
				Wait:    wait,
				Cause:   err.Error(),
			})
			if sleepErr := r.sleep(ctx, wait); sleepErr != nil {
				return schema.OrderResult{}, sleepErr
			}
		}
	}
	return schema.OrderResult{}, lastErr
}

// Cancel cancels an order at the broker that accepted it, trying the
// secondary when the primary does not know the order.
func (r *Router) Cancel(ctx context.Context, orderID string) (bool, error) {
	ok, err := r.primary.CancelOrder(ctx, orderID)
	if err == nil && ok {
		return true, nil
	}
	if r.secondary != nil {
		return r.secondary.CancelOrder(ctx, orderID)
	}
	return ok, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
