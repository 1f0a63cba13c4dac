package stripe_test

import (
	"context"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/ledger/stripe"
	"github.com/stripe/stripe-go/v76/webhook"
)

const (
	paymentsSecret = "whsec_payments"
	connectSecret  = "whsec_connect"
)

func sign(payload, secret string) *webhook.SignedPayload {
	return webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    secret,
		Timestamp: time.Now(),
	})
}

func eventJSON(id, eventType, account, object string) string {
	return fmt.Sprintf(`{"id":%q,"object":"event","type":%q,"account":%q,"api_version":"2020-08-27","data":{"object":%s}}`,
		id, eventType, account, object)
}

var _ = Describe("Verifier", func() {
	var verifier *stripe.Verifier

	BeforeEach(func() {
		verifier = stripe.NewVerifier(paymentsSecret, connectSecret)
	})

	Context("signature", func() {
		It("rejects a payload signed with the wrong secret", func() {
			signed := sign(eventJSON("evt_1", "checkout.session.completed", "", `{"id":"cs_1","object":"checkout.session"}`), "whsec_other")

			_, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, signed.Payload, signed.Header)
			Expect(err).ToNot(BeNil())
			Expect(err).To(MatchError(ledger.ErrInvalidSignature))
		})

		It("rejects a payment event checked against the connect secret", func() {
			signed := sign(eventJSON("evt_1", "checkout.session.completed", "", `{"id":"cs_1","object":"checkout.session"}`), paymentsSecret)

			_, err := verifier.Verify(context.TODO(), ledger.CategoryConnect, signed.Payload, signed.Header)
			Expect(err).To(MatchError(ledger.ErrInvalidSignature))
		})

		It("rejects an unsigned payload", func() {
			_, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, []byte(`{}`), "")
			Expect(err).To(MatchError(ledger.ErrInvalidSignature))
		})

		It("rejects a tampered payload", func() {
			signed := sign(eventJSON("evt_1", "payment_intent.canceled", "", `{"id":"pi_1","object":"payment_intent"}`), paymentsSecret)
			tampered := append([]byte{}, signed.Payload...)
			tampered[len(tampered)-2] = ' '

			_, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, tampered, signed.Header)
			Expect(err).To(MatchError(ledger.ErrInvalidSignature))
		})
	})

	Context("decoding", func() {
		It("decodes a completed checkout session", func() {
			signed := sign(eventJSON("evt_checkout", "checkout.session.completed", "",
				`{"id":"cs_1","object":"checkout.session","url":"https://pay/cs_1","payment_intent":"pi_1"}`), paymentsSecret)

			event, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, signed.Payload, signed.Header)
			Expect(err).To(BeNil())
			Expect(event.ID).To(Equal("evt_checkout"))
			Expect(event.Type).To(Equal(ledger.EventCheckoutCompleted))
			Expect(event.CheckoutSession).ToNot(BeNil())
			Expect(event.CheckoutSession.ID).To(Equal("cs_1"))
			Expect(event.CheckoutSession.PaymentIntentID).To(Equal("pi_1"))
		})

		It("decodes a canceled payment intent", func() {
			signed := sign(eventJSON("evt_cancel", "payment_intent.canceled", "",
				`{"id":"pi_1","object":"payment_intent","amount":3000,"status":"canceled"}`), paymentsSecret)

			event, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, signed.Payload, signed.Header)
			Expect(err).To(BeNil())
			Expect(event.PaymentIntent.ID).To(Equal("pi_1"))
			Expect(event.PaymentIntent.Amount).To(Equal(int64(3000)))
			Expect(event.PaymentIntent.Status).To(Equal(ledger.PaymentIntentCanceled))
		})

		It("decodes an account update with capabilities", func() {
			signed := sign(eventJSON("evt_acct", "account.updated", "acct_1",
				`{"id":"acct_1","object":"account","charges_enabled":false,"requirements":{"disabled_reason":"requirements.past_due"},"capabilities":{"card_payments":"inactive","transfers":"active"}}`), connectSecret)

			event, err := verifier.Verify(context.TODO(), ledger.CategoryConnect, signed.Payload, signed.Header)
			Expect(err).To(BeNil())
			Expect(event.Account).To(Equal("acct_1"))
			Expect(event.ConnectedAccount.ChargesEnabled).To(BeFalse())
			Expect(event.ConnectedAccount.DisabledReason).To(Equal("requirements.past_due"))
			Expect(event.ConnectedAccount.CardPaymentsStatus).To(Equal(ledger.CapabilityInactive))
			Expect(event.ConnectedAccount.TransfersStatus).To(Equal(ledger.CapabilityActive))
		})

		It("decodes a payout event", func() {
			signed := sign(eventJSON("evt_payout", "payout.paid", "acct_1",
				`{"id":"po_1","object":"payout","status":"paid"}`), connectSecret)

			event, err := verifier.Verify(context.TODO(), ledger.CategoryConnect, signed.Payload, signed.Header)
			Expect(err).To(BeNil())
			Expect(event.Type).To(Equal(ledger.EventPayoutPaid))
			Expect(event.Payout.ID).To(Equal("po_1"))
			Expect(event.Payout.Status).To(Equal(ledger.PayoutPaid))
		})

		It("passes unknown event types through without a payload", func() {
			signed := sign(eventJSON("evt_other", "customer.created", "", `{"id":"cus_1","object":"customer"}`), paymentsSecret)

			event, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, signed.Payload, signed.Header)
			Expect(err).To(BeNil())
			Expect(event.Type).To(Equal(ledger.EventType("customer.created")))
			Expect(event.CheckoutSession).To(BeNil())
			Expect(event.Payout).To(BeNil())
		})

		It("reports a signed but undecodable body as malformed", func() {
			signed := sign(`{"id":"evt_bad","type":`, paymentsSecret)

			_, err := verifier.Verify(context.TODO(), ledger.CategoryPayments, signed.Payload, signed.Header)
			Expect(err).To(MatchError(ledger.ErrMalformedEvent))
		})
	})
})
