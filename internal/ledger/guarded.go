package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/shovel-house/shovel-api/internal/config"
	"github.com/shovel-house/shovel-api/pkg/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// Guarded bounds every gateway call with a timeout and a circuit breaker.
// A timeout surfaces as ErrUnknownOutcome wrapped in a GatewayError.
type Guarded struct {
	next    Ledger
	breaker *gobreaker.CircuitBreaker
	timeout time.Duration
}

// Make sure we conform to Ledger interface
var _ Ledger = (*Guarded)(nil)

func NewGuarded(next Ledger, cfg *config.LedgerConfig) *Guarded {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ledger",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		// only an unhealthy gateway counts against the breaker
		IsSuccessful: func(err error) bool {
			return err == nil || IsRejected(err)
		},
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			zap.S().Named("ledger").Warnw("circuit breaker state changed", "name", name, "from", from.String(), "to", to.String())
		},
	})

	timeout := cfg.CallTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Guarded{next: next, breaker: cb, timeout: timeout}
}

func guard[T any](ctx context.Context, g *Guarded, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	cctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	res, err := g.breaker.Execute(func() (any, error) {
		return fn(cctx)
	})
	if err != nil {
		metrics.IncreaseLedgerCallsMetric(op, "error")
		switch {
		case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
			return zero, NewGatewayError(op, err)
		case errors.Is(err, context.DeadlineExceeded), errors.Is(cctx.Err(), context.DeadlineExceeded):
			return zero, NewGatewayError(op, ErrUnknownOutcome)
		}

		var gwErr *GatewayError
		if errors.As(err, &gwErr) {
			return zero, err
		}
		return zero, NewGatewayError(op, err)
	}

	metrics.IncreaseLedgerCallsMetric(op, "success")
	return res.(T), nil
}

func (g *Guarded) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	return guard(ctx, g, "create_checkout_session", func(ctx context.Context) (*CheckoutSession, error) {
		return g.next.CreateCheckoutSession(ctx, req)
	})
}

func (g *Guarded) CapturePayment(ctx context.Context, paymentIntentID, idempotencyKey string) (*PaymentIntent, error) {
	return guard(ctx, g, "capture_payment", func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.CapturePayment(ctx, paymentIntentID, idempotencyKey)
	})
}

func (g *Guarded) CancelPayment(ctx context.Context, paymentIntentID string) (*PaymentIntent, error) {
	return guard(ctx, g, "cancel_payment", func(ctx context.Context) (*PaymentIntent, error) {
		return g.next.CancelPayment(ctx, paymentIntentID)
	})
}

func (g *Guarded) Transfer(ctx context.Context, req TransferRequest) (*Transfer, error) {
	return guard(ctx, g, "transfer", func(ctx context.Context) (*Transfer, error) {
		return g.next.Transfer(ctx, req)
	})
}

func (g *Guarded) GetAccount(ctx context.Context, accountID string) (*Account, error) {
	return guard(ctx, g, "get_account", func(ctx context.Context) (*Account, error) {
		return g.next.GetAccount(ctx, accountID)
	})
}

func (g *Guarded) ListPayoutPaymentIntents(ctx context.Context, payoutID, accountID string) ([]string, error) {
	return guard(ctx, g, "list_payout_payment_intents", func(ctx context.Context) ([]string, error) {
		return g.next.ListPayoutPaymentIntents(ctx, payoutID, accountID)
	})
}

func (g *Guarded) ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]CheckoutSession, error) {
	return guard(ctx, g, "list_checkout_sessions", func(ctx context.Context) ([]CheckoutSession, error) {
		return g.next.ListCheckoutSessions(ctx, paymentIntentID)
	})
}
