// Package ledgertest provides an in-memory ledger for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shovel-house/shovel-api/internal/ledger"
)

// Fake records every call, failed ones included, and replays idempotency
// keys the way the real gateway does: a repeated key returns the first
// result.
type Fake struct {
	mu sync.Mutex

	// Delay is applied to capture and transfer calls, widening race windows.
	Delay time.Duration

	CaptureErr       error
	CancelErr        error
	TransferErr      error
	CheckoutErr      error
	CancelStatus     ledger.PaymentIntentStatus
	Accounts         map[string]*ledger.Account
	PayoutIntents    map[string][]string
	SessionsByIntent map[string][]ledger.CheckoutSession
	// SessionErrs fails ListCheckoutSessions for the listed intents only.
	SessionErrs      map[string]error

	captures  []string
	cancels   []string
	transfers []ledger.TransferRequest
	checkouts []ledger.CheckoutRequest
	seenKeys  map[string]any
	sequence  int
}

// Make sure we conform to Ledger interface
var _ ledger.Ledger = (*Fake)(nil)

func NewFake() *Fake {
	return &Fake{
		CancelStatus:     ledger.PaymentIntentCanceled,
		Accounts:         map[string]*ledger.Account{},
		PayoutIntents:    map[string][]string{},
		SessionsByIntent: map[string][]ledger.CheckoutSession{},
		SessionErrs:      map[string]error{},
		seenKeys:         map[string]any{},
	}
}

func (f *Fake) next(prefix string) string {
	f.sequence++
	return fmt.Sprintf("%s_%d", prefix, f.sequence)
}

func (f *Fake) sleep(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Fake) CreateCheckoutSession(_ context.Context, req ledger.CheckoutRequest) (*ledger.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.checkouts = append(f.checkouts, req)
	if f.CheckoutErr != nil {
		return nil, f.CheckoutErr
	}
	if prev, ok := f.seenKeys[req.IdempotencyKey].(*ledger.CheckoutSession); ok && req.IdempotencyKey != "" {
		return prev, nil
	}
	id := f.next("cs")
	session := &ledger.CheckoutSession{ID: id, URL: "https://checkout.test/" + id}
	if req.IdempotencyKey != "" {
		f.seenKeys[req.IdempotencyKey] = session
	}
	return session, nil
}

func (f *Fake) CapturePayment(ctx context.Context, paymentIntentID, idempotencyKey string) (*ledger.PaymentIntent, error) {
	if err := f.sleep(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.captures = append(f.captures, paymentIntentID)
	if f.CaptureErr != nil {
		return nil, f.CaptureErr
	}
	if prev, ok := f.seenKeys[idempotencyKey].(*ledger.PaymentIntent); ok {
		return prev, nil
	}
	pi := &ledger.PaymentIntent{ID: paymentIntentID, Status: ledger.PaymentIntentSucceeded}
	f.seenKeys[idempotencyKey] = pi
	return pi, nil
}

func (f *Fake) CancelPayment(_ context.Context, paymentIntentID string) (*ledger.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancels = append(f.cancels, paymentIntentID)
	if f.CancelErr != nil {
		return nil, f.CancelErr
	}
	return &ledger.PaymentIntent{ID: paymentIntentID, Status: f.CancelStatus}, nil
}

func (f *Fake) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Transfer, error) {
	if err := f.sleep(ctx); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.transfers = append(f.transfers, req)
	if f.TransferErr != nil {
		return nil, f.TransferErr
	}
	if prev, ok := f.seenKeys[req.IdempotencyKey].(*ledger.Transfer); ok {
		return prev, nil
	}
	t := &ledger.Transfer{ID: f.next("tr"), Amount: req.Amount}
	f.seenKeys[req.IdempotencyKey] = t
	return t, nil
}

func (f *Fake) GetAccount(_ context.Context, accountID string) (*ledger.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if acct, ok := f.Accounts[accountID]; ok {
		return acct, nil
	}
	return &ledger.Account{
		ID:                 accountID,
		ChargesEnabled:     true,
		CardPaymentsStatus: ledger.CapabilityActive,
		TransfersStatus:    ledger.CapabilityActive,
	}, nil
}

func (f *Fake) ListPayoutPaymentIntents(_ context.Context, payoutID, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PayoutIntents[payoutID], nil
}

func (f *Fake) ListCheckoutSessions(_ context.Context, paymentIntentID string) ([]ledger.CheckoutSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.SessionErrs[paymentIntentID]; err != nil {
		return nil, err
	}
	return f.SessionsByIntent[paymentIntentID], nil
}

func (f *Fake) SetTransferErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.TransferErr = err
}

func (f *Fake) SetCaptureErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CaptureErr = err
}

func (f *Fake) Captures() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.captures...)
}

func (f *Fake) Cancels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.cancels...)
}

func (f *Fake) Transfers() []ledger.TransferRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.TransferRequest{}, f.transfers...)
}

func (f *Fake) Checkouts() []ledger.CheckoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledger.CheckoutRequest{}, f.checkouts...)
}
