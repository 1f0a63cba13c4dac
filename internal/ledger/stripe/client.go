package stripe

import (
	"context"
	"errors"
	"net/http"

	"github.com/shovel-house/shovel-api/internal/ledger"
	stripego "github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

// Client implements ledger.Ledger on top of the Stripe API. Every call
// carries the caller's context so the guarded wrapper can bound it.
type Client struct {
	api *client.API
}

// Make sure we conform to Ledger interface
var _ ledger.Ledger = (*Client)(nil)

func NewClient(secretKey string) *Client {
	return &Client{api: client.New(secretKey, nil)}
}

func (c *Client) CreateCheckoutSession(ctx context.Context, req ledger.CheckoutRequest) (*ledger.CheckoutSession, error) {
	params := &stripego.CheckoutSessionParams{
		Mode:              stripego.String(string(stripego.CheckoutSessionModePayment)),
		SuccessURL:        stripego.String(req.SuccessURL),
		CancelURL:         stripego.String(req.CancelURL),
		ClientReferenceID: stripego.String(req.JobID),
		LineItems: []*stripego.CheckoutSessionLineItemParams{
			{
				PriceData: &stripego.CheckoutSessionLineItemPriceDataParams{
					Currency: stripego.String(req.Currency),
					ProductData: &stripego.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripego.String(req.Description),
					},
					UnitAmount: stripego.Int64(req.Amount),
				},
				Quantity: stripego.Int64(1),
			},
		},
		PaymentIntentData: &stripego.CheckoutSessionPaymentIntentDataParams{
			CaptureMethod: stripego.String(string(stripego.PaymentIntentCaptureMethodManual)),
			TransferGroup: stripego.String(req.JobID),
		},
	}
	params.Context = ctx
	params.AddMetadata("job_id", req.JobID)
	if req.IdempotencyKey != "" {
		params.SetIdempotencyKey(req.IdempotencyKey)
	}

	session, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return toCheckoutSession(session), nil
}

func (c *Client) CapturePayment(ctx context.Context, paymentIntentID, idempotencyKey string) (*ledger.PaymentIntent, error) {
	params := &stripego.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)

	pi, err := c.api.PaymentIntents.Capture(paymentIntentID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) CancelPayment(ctx context.Context, paymentIntentID string) (*ledger.PaymentIntent, error) {
	params := &stripego.PaymentIntentCancelParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Cancel(paymentIntentID, params)
	if err != nil {
		// canceling twice is reported as an invalid state; surface the
		// current intent so callers can treat it as success
		var stripeErr *stripego.Error
		if errors.As(err, &stripeErr) && stripeErr.Code == stripego.ErrorCodePaymentIntentUnexpectedState {
			return c.getPaymentIntent(ctx, paymentIntentID)
		}
		return nil, classify(err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) getPaymentIntent(ctx context.Context, paymentIntentID string) (*ledger.PaymentIntent, error) {
	params := &stripego.PaymentIntentParams{}
	params.Context = ctx

	pi, err := c.api.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toPaymentIntent(pi), nil
}

func (c *Client) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.Transfer, error) {
	params := &stripego.TransferParams{
		Amount:      stripego.Int64(req.Amount),
		Currency:    stripego.String(req.Currency),
		Destination: stripego.String(req.DestinationAccount),
	}
	if req.TransferGroup != "" {
		params.TransferGroup = stripego.String(req.TransferGroup)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetIdempotencyKey(req.IdempotencyKey)

	t, err := c.api.Transfers.New(params)
	if err != nil {
		return nil, classify(err)
	}
	return &ledger.Transfer{ID: t.ID, Amount: t.Amount}, nil
}

func (c *Client) GetAccount(ctx context.Context, accountID string) (*ledger.Account, error) {
	params := &stripego.AccountParams{}
	params.Context = ctx

	acct, err := c.api.Accounts.GetByID(accountID, params)
	if err != nil {
		return nil, classify(err)
	}
	return toAccount(acct), nil
}

func (c *Client) ListPayoutPaymentIntents(ctx context.Context, payoutID, accountID string) ([]string, error) {
	params := &stripego.BalanceTransactionListParams{
		Payout: stripego.String(payoutID),
	}
	params.Context = ctx
	params.AddExpand("data.source")
	if accountID != "" {
		params.SetStripeAccount(accountID)
	}

	var intents []string
	it := c.api.BalanceTransactions.List(params)
	for it.Next() {
		bt := it.BalanceTransaction()
		if bt.Source == nil || bt.Source.Charge == nil || bt.Source.Charge.PaymentIntent == nil {
			continue
		}
		intents = append(intents, bt.Source.Charge.PaymentIntent.ID)
	}
	if err := it.Err(); err != nil {
		return nil, classify(err)
	}
	return intents, nil
}

func (c *Client) ListCheckoutSessions(ctx context.Context, paymentIntentID string) ([]ledger.CheckoutSession, error) {
	params := &stripego.CheckoutSessionListParams{
		PaymentIntent: stripego.String(paymentIntentID),
	}
	params.Context = ctx

	var sessions []ledger.CheckoutSession
	it := c.api.CheckoutSessions.List(params)
	for it.Next() {
		sessions = append(sessions, *toCheckoutSession(it.CheckoutSession()))
	}
	if err := it.Err(); err != nil {
		return nil, classify(err)
	}
	return sessions, nil
}

// classify marks client errors as rejections. Transport failures, 5xx and
// rate limiting pass through unchanged.
func classify(err error) error {
	var stripeErr *stripego.Error
	if !errors.As(err, &stripeErr) {
		return err
	}
	status := stripeErr.HTTPStatusCode
	if status < http.StatusBadRequest || status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
		return err
	}
	return ledger.NewRejectedError(status, string(stripeErr.Code), err)
}

func toCheckoutSession(s *stripego.CheckoutSession) *ledger.CheckoutSession {
	session := &ledger.CheckoutSession{ID: s.ID, URL: s.URL}
	if s.PaymentIntent != nil {
		session.PaymentIntentID = s.PaymentIntent.ID
	}
	return session
}

func toPaymentIntent(pi *stripego.PaymentIntent) *ledger.PaymentIntent {
	return &ledger.PaymentIntent{
		ID:     pi.ID,
		Amount: pi.Amount,
		Status: ledger.PaymentIntentStatus(pi.Status),
	}
}

func toAccount(a *stripego.Account) *ledger.Account {
	acct := &ledger.Account{
		ID:             a.ID,
		ChargesEnabled: a.ChargesEnabled,
	}
	if a.Requirements != nil {
		acct.DisabledReason = string(a.Requirements.DisabledReason)
	}
	if a.Capabilities != nil {
		acct.CardPaymentsStatus = ledger.CapabilityStatus(a.Capabilities.CardPayments)
		acct.TransfersStatus = ledger.CapabilityStatus(a.Capabilities.Transfers)
	}
	return acct
}
