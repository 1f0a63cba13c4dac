package ledger

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnknownOutcome means the call did not return in time. The operation may
// or may not have happened at the gateway; it is only safe to retry with the
// same idempotency key.
var ErrUnknownOutcome = errors.New("ledger call outcome unknown")

// ErrInvalidSignature is returned when a webhook payload cannot be verified.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// ErrMalformedEvent is returned when a verified payload cannot be decoded.
var ErrMalformedEvent = errors.New("malformed webhook event")

// Ledger is the payment gateway as consumed by the job lifecycle.
type Ledger interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
	CapturePayment(ctx context.Context, paymentIntentID, idempotencyKey string) (*PaymentIntent, error)
	CancelPayment(ctx context.Context, paymentIntentID string) (*PaymentIntent, error)
	Transfer(ctx context.Context, req TransferRequest) (*Transfer, error)
	GetAccount(ctx context.Context, accountID string) (*Account, error)
	// ListPayoutPaymentIntents walks payout -> balance transactions -> charges
	// and returns the payment intent behind every charge in the payout.
	ListPayoutPaymentIntents(ctx context.Context, payoutID, accountID string) ([]string, error)
	// ListCheckoutSessions returns the checkout sessions created for a payment intent.
	ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]CheckoutSession, error)
}

type CheckoutRequest struct {
	JobID          string
	Amount         int64
	Currency       string
	Description    string
	SuccessURL     string
	CancelURL      string
	IdempotencyKey string
}

type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

type PaymentIntentStatus string

const (
	PaymentIntentSucceeded       PaymentIntentStatus = "succeeded"
	PaymentIntentCanceled        PaymentIntentStatus = "canceled"
	PaymentIntentRequiresCapture PaymentIntentStatus = "requires_capture"
	PaymentIntentProcessing      PaymentIntentStatus = "processing"
	PaymentIntentRequiresPayment PaymentIntentStatus = "requires_payment_method"
	PaymentIntentRequiresConfirm PaymentIntentStatus = "requires_confirmation"
	PaymentIntentRequiresAction  PaymentIntentStatus = "requires_action"
)

type PaymentIntent struct {
	ID     string
	Amount int64
	Status PaymentIntentStatus
}

type TransferRequest struct {
	Amount             int64
	Currency           string
	DestinationAccount string
	TransferGroup      string
	IdempotencyKey     string
	Metadata           map[string]string
}

type Transfer struct {
	ID     string
	Amount int64
}

type CapabilityStatus string

const (
	CapabilityActive   CapabilityStatus = "active"
	CapabilityInactive CapabilityStatus = "inactive"
	CapabilityPending  CapabilityStatus = "pending"
)

// Account is a connected payout account.
type Account struct {
	ID                 string
	ChargesEnabled     bool
	DisabledReason     string
	CardPaymentsStatus CapabilityStatus
	TransfersStatus    CapabilityStatus
}

// GatewayError wraps a failure reported by the gateway itself.
type GatewayError struct {
	Op  string
	Err error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("ledger %s failed: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

func NewGatewayError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err}
}

// RejectedError is a definitive answer from a healthy gateway: the request
// was understood and turned down, e.g. a declined card or an intent in the
// wrong state.
type RejectedError struct {
	StatusCode int
	Code       string
	Err        error
}

func NewRejectedError(statusCode int, code string, err error) *RejectedError {
	return &RejectedError{StatusCode: statusCode, Code: code, Err: err}
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("rejected by gateway (%d %s): %v", e.StatusCode, e.Code, e.Err)
}

func (e *RejectedError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}
