package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shovel-house/shovel-api/internal/ledger"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// Verifier checks Stripe-Signature headers. Payment events and
// connected-account events are signed with different endpoint secrets.
type Verifier struct {
	secrets map[ledger.EventCategory]string
}

// Make sure we conform to Verifier interface
var _ ledger.Verifier = (*Verifier)(nil)

func NewVerifier(paymentsSecret, connectSecret string) *Verifier {
	return &Verifier{
		secrets: map[ledger.EventCategory]string{
			ledger.CategoryPayments: paymentsSecret,
			ledger.CategoryConnect:  connectSecret,
		},
	}
}

func (v *Verifier) Verify(_ context.Context, category ledger.EventCategory, payload []byte, signature string) (*ledger.Event, error) {
	secret, ok := v.secrets[category]
	if !ok || secret == "" {
		return nil, fmt.Errorf("%w: no secret configured for %q events", ledger.ErrInvalidSignature, category)
	}

	evt, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		if isSignatureError(err) {
			return nil, fmt.Errorf("%w: %v", ledger.ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ledger.ErrMalformedEvent, err)
	}

	return decode(evt)
}

func isSignatureError(err error) bool {
	return errors.Is(err, webhook.ErrNotSigned) ||
		errors.Is(err, webhook.ErrInvalidHeader) ||
		errors.Is(err, webhook.ErrNoValidSignature) ||
		errors.Is(err, webhook.ErrTooOld)
}

func decode(evt stripego.Event) (*ledger.Event, error) {
	event := &ledger.Event{
		ID:      evt.ID,
		Type:    ledger.EventType(evt.Type),
		Account: evt.Account,
	}
	if event.ID == "" {
		return nil, fmt.Errorf("%w: missing event id", ledger.ErrMalformedEvent)
	}
	if evt.Data == nil {
		return nil, fmt.Errorf("%w: missing event data", ledger.ErrMalformedEvent)
	}

	switch event.Type {
	case ledger.EventCheckoutCompleted:
		var s stripego.CheckoutSession
		if err := unmarshal(evt.Data.Raw, &s); err != nil {
			return nil, err
		}
		event.CheckoutSession = toCheckoutSession(&s)
	case ledger.EventPaymentIntentCanceled:
		var pi stripego.PaymentIntent
		if err := unmarshal(evt.Data.Raw, &pi); err != nil {
			return nil, err
		}
		event.PaymentIntent = toPaymentIntent(&pi)
	case ledger.EventAccountUpdated:
		var a stripego.Account
		if err := unmarshal(evt.Data.Raw, &a); err != nil {
			return nil, err
		}
		event.ConnectedAccount = toAccount(&a)
	case ledger.EventPayoutCreated, ledger.EventPayoutPaid, ledger.EventPayoutFailed, ledger.EventPayoutUpdated:
		var p stripego.Payout
		if err := unmarshal(evt.Data.Raw, &p); err != nil {
			return nil, err
		}
		event.Payout = &ledger.Payout{ID: p.ID, Status: ledger.PayoutStatus(p.Status)}
	}

	return event, nil
}

func unmarshal(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %v", ledger.ErrMalformedEvent, err)
	}
	return nil
}
