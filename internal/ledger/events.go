package ledger

import "context"

type EventType string

const (
	EventCheckoutCompleted     EventType = "checkout.session.completed"
	EventPaymentIntentCanceled EventType = "payment_intent.canceled"
	EventAccountUpdated        EventType = "account.updated"
	EventPayoutCreated         EventType = "payout.created"
	EventPayoutPaid            EventType = "payout.paid"
	EventPayoutFailed          EventType = "payout.failed"
	EventPayoutUpdated         EventType = "payout.updated"
)

// EventCategory selects which signing secret verifies a payload.
type EventCategory string

const (
	CategoryPayments EventCategory = "payments"
	CategoryConnect  EventCategory = "connect"
)

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "pending"
	PayoutInTransit PayoutStatus = "in_transit"
	PayoutPaid      PayoutStatus = "paid"
	PayoutFailed    PayoutStatus = "failed"
	PayoutCanceled  PayoutStatus = "canceled"
)

type Payout struct {
	ID     string
	Status PayoutStatus
}

// Event is a verified gateway event. Exactly one payload field is set,
// matching Type; unknown types carry no payload.
type Event struct {
	ID      string
	Type    EventType
	Account string

	CheckoutSession  *CheckoutSession
	PaymentIntent    *PaymentIntent
	ConnectedAccount *Account
	Payout           *Payout
}

// Verifier authenticates and decodes raw webhook deliveries.
type Verifier interface {
	Verify(ctx context.Context, category EventCategory, payload []byte, signature string) (*Event, error)
}
