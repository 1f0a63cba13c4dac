package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/events"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
	"github.com/shovel-house/shovel-api/pkg/metrics"
)

// WebhookResult tells the caller what happened to a verified delivery.
type WebhookResult string

const (
	WebhookApplied   WebhookResult = "applied"
	WebhookDuplicate WebhookResult = "duplicate"
	WebhookIgnored   WebhookResult = "ignored"
)

const noReasonDetected = "no reason detected"

// WebhookReconciler applies gateway events to local state. Deliveries come
// at least once and in any order, so every handler compares against the
// current row instead of assuming a previous event was seen.
type WebhookReconciler struct {
	store      store.Store
	ledger     ledger.Ledger
	verifier   ledger.Verifier
	publisher  events.Publisher
	settlement *SettlementService
	logger     *log.StructuredLogger
}

func NewWebhookReconciler(s store.Store, l ledger.Ledger, v ledger.Verifier, p events.Publisher, settlement *SettlementService) *WebhookReconciler {
	return &WebhookReconciler{
		store:      s,
		ledger:     l,
		verifier:   v,
		publisher:  p,
		settlement: settlement,
		logger:     log.NewDebugLogger("webhook_reconciler"),
	}
}

// Handle verifies and applies one delivery. An ErrInvalidEvent must not be
// retried by the sender; any other error should be.
func (w *WebhookReconciler) Handle(ctx context.Context, category ledger.EventCategory, payload []byte, signature string) (WebhookResult, error) {
	tracer := w.logger.WithContext(ctx).
		Operation("handle_webhook").
		WithString("category", string(category)).
		Build()

	evt, err := w.verifier.Verify(ctx, category, payload, signature)
	if err != nil {
		metrics.IncreaseWebhookEventsMetric("unverified", "rejected")
		tracer.Error(err).Log()
		return "", NewErrInvalidEvent(err)
	}
	eventType := string(evt.Type)

	processed, err := w.store.WebhookEvent().Processed(ctx, evt.ID)
	if err != nil {
		tracer.Error(err).Log()
		return "", err
	}
	if processed {
		metrics.IncreaseWebhookEventsMetric(eventType, "duplicate")
		tracer.Success().WithString("event_id", evt.ID).WithString("result", string(WebhookDuplicate)).Log()
		return WebhookDuplicate, nil
	}

	result := WebhookApplied
	switch evt.Type {
	case ledger.EventCheckoutCompleted:
		err = w.onCheckoutCompleted(ctx, evt.CheckoutSession)
	case ledger.EventPaymentIntentCanceled:
		err = w.onPaymentIntentCanceled(ctx, evt.PaymentIntent)
	case ledger.EventAccountUpdated:
		err = w.onAccountUpdated(ctx, evt.ConnectedAccount)
	case ledger.EventPayoutCreated, ledger.EventPayoutPaid, ledger.EventPayoutFailed, ledger.EventPayoutUpdated:
		err = w.onPayoutEvent(ctx, evt)
	default:
		result = WebhookIgnored
	}
	if err != nil {
		metrics.IncreaseWebhookEventsMetric(eventType, "error")
		tracer.Error(err).WithString("event_id", evt.ID).WithString("type", eventType).Log()
		return "", err
	}

	if err := w.store.WebhookEvent().MarkProcessed(ctx, evt.ID, eventType); err != nil {
		tracer.Error(err).Log()
		return "", err
	}

	metrics.IncreaseWebhookEventsMetric(eventType, string(result))
	tracer.Success().
		WithString("event_id", evt.ID).
		WithString("type", eventType).
		WithString("result", string(result)).
		Log()
	return result, nil
}

func (w *WebhookReconciler) onCheckoutCompleted(ctx context.Context, session *ledger.CheckoutSession) error {
	if session == nil || session.ID == "" {
		return nil
	}

	job, err := w.store.Job().GetByPaymentReference(ctx, session.ID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	updates := map[string]any{"payment_status": model.PaymentStatusAuthorized}
	if session.PaymentIntentID != "" {
		updates["payment_intent_reference_id"] = session.PaymentIntentID
	}
	err = w.store.Job().UpdateWhere(ctx, job.ID,
		store.NewJobPredicate().WithPaymentStatus(model.PaymentStatusPending), updates)
	if err == nil {
		publishJob(ctx, w.publisher, events.JobAuthorized, job, uuid.Nil)
		return nil
	}
	if !errors.Is(err, store.ErrConditionFailed) {
		return err
	}

	current, err := w.store.Job().Get(ctx, job.ID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if current.PaymentStatus != model.PaymentStatusCanceled || session.PaymentIntentID == "" {
		return nil
	}

	// The job was withdrawn before the payment landed: release the hold.
	if current.PaymentIntentReferenceID == nil {
		err := w.store.Job().UpdateWhere(ctx, job.ID,
			store.NewJobPredicate().IsNull("payment_intent_reference_id"),
			map[string]any{"payment_intent_reference_id": session.PaymentIntentID})
		if err != nil && !errors.Is(err, store.ErrConditionFailed) {
			return err
		}
	}
	pi, err := w.ledger.CancelPayment(ctx, session.PaymentIntentID)
	if err != nil {
		return NewErrGateway("cancel payment", err)
	}
	if pi.Status != ledger.PaymentIntentCanceled {
		return NewErrGateway("cancel payment", fmt.Errorf("payment intent %s is %s", pi.ID, pi.Status))
	}
	return nil
}

func (w *WebhookReconciler) onPaymentIntentCanceled(ctx context.Context, pi *ledger.PaymentIntent) error {
	if pi == nil || pi.ID == "" {
		return nil
	}

	job, err := w.store.Job().GetByPaymentIntentReference(ctx, pi.ID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	err = w.store.Job().UpdateWhere(ctx, job.ID,
		store.NewJobPredicate().WithPaymentStatus(model.PaymentStatusPending, model.PaymentStatusAuthorized),
		map[string]any{"payment_status": model.PaymentStatusCanceled})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil
	}
	return err
}

func (w *WebhookReconciler) onAccountUpdated(ctx context.Context, account *ledger.Account) error {
	if account == nil || account.ID == "" {
		return nil
	}

	user, err := w.store.User().GetByPayoutAccount(ctx, account.ID)
	if errors.Is(err, store.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	status := model.PayoutAccountRestricted
	reason := ""
	if account.ChargesEnabled {
		status = model.PayoutAccountEnabled
	} else {
		reason = AccountDisabledReason(account)
	}

	err = w.store.User().UpdateProfileWhere(ctx, user.ID, nil, map[string]any{
		"charges_enabled":       account.ChargesEnabled,
		"payout_account_status": status,
		"payout_account_reason": reason,
	})
	if err != nil && !errors.Is(err, store.ErrConditionFailed) {
		return err
	}

	w.publisher.Publish(ctx, events.AccountUpdated, user.ID.String(), events.AccountEvent{
		UserID:         user.ID.String(),
		AccountID:      account.ID,
		ChargesEnabled: account.ChargesEnabled,
		Status:         string(status),
		Reason:         reason,
	})
	return nil
}

// AccountDisabledReason explains why charges are disabled on an account,
// most specific cause first.
func AccountDisabledReason(account *ledger.Account) string {
	switch {
	case account.DisabledReason != "":
		return "Charges are disabled due to verification issues: " + account.DisabledReason
	case account.CardPaymentsStatus == ledger.CapabilityInactive:
		return "Charges are disabled because card payments capability is inactive."
	case account.TransfersStatus == ledger.CapabilityInactive:
		return "Charges are disabled because transfers capability is inactive."
	default:
		return noReasonDetected
	}
}

// onPayoutEvent resolves every charge in the payout back to its job. One
// charge failing to resolve does not stop the others.
func (w *WebhookReconciler) onPayoutEvent(ctx context.Context, evt *ledger.Event) error {
	if evt.Payout == nil || evt.Payout.ID == "" {
		return nil
	}

	target, ok := payoutTarget(evt.Type, evt.Payout.Status)
	if !ok {
		return nil
	}

	intents, err := w.ledger.ListPayoutPaymentIntents(ctx, evt.Payout.ID, evt.Account)
	if err != nil {
		return NewErrGateway("list payout transactions", err)
	}

	var errs []error
	for _, intent := range intents {
		if err := w.applyPayout(ctx, intent, evt.Payout.ID, target); err != nil {
			errs = append(errs, fmt.Errorf("payment intent %s: %w", intent, err))
		}
	}
	return errors.Join(errs...)
}

func (w *WebhookReconciler) applyPayout(ctx context.Context, intent, payoutID string, target model.PayoutStatus) error {
	job, err := w.jobForIntent(ctx, intent)
	if err != nil || job == nil {
		return err
	}

	var winner *model.Assignment
	for i := range job.Assignments {
		if job.Assignments[i].OwnerAction == model.OwnerActionCompleted {
			winner = &job.Assignments[i]
			break
		}
	}
	if winner == nil {
		return nil
	}

	switch target {
	case model.PayoutStatusPaid:
		_, err = w.settlement.markPayoutPaid(ctx, job, winner.WorkerID, payoutID)
	case model.PayoutStatusCreated:
		err = w.store.Job().UpdateAssignmentWhere(ctx, job.ID, winner.WorkerID,
			store.NewAssignmentPredicate().WithPayoutStatus(model.PayoutStatusNone),
			map[string]any{
				"payout_status":       model.PayoutStatusCreated,
				"payout_reference_id": payoutID,
			})
	case model.PayoutStatusFailed:
		err = w.store.Job().UpdateAssignmentWhere(ctx, job.ID, winner.WorkerID,
			store.NewAssignmentPredicate().
				WithPayoutStatus(model.PayoutStatusNone, model.PayoutStatusCreated, model.PayoutStatusPaid),
			map[string]any{
				"payout_status":       model.PayoutStatusFailed,
				"payout_reference_id": payoutID,
				"payout_error":        "payout " + payoutID + " failed at the gateway",
			})
		if err == nil {
			w.publisher.Publish(ctx, events.PayoutFailed, job.ID.String(), events.PayoutEvent{
				JobID:     job.ID.String(),
				WorkerID:  winner.WorkerID.String(),
				Amount:    winner.PayoutAmount,
				Attempts:  winner.PayoutAttempts,
				Reference: payoutID,
				Error:     "payout failed at the gateway",
			})
		}
	}
	if errors.Is(err, store.ErrConditionFailed) {
		return nil
	}
	return err
}

// jobForIntent finds the job paid by a payment intent, falling back to the
// checkout sessions when the intent was never recorded on the job.
func (w *WebhookReconciler) jobForIntent(ctx context.Context, intent string) (*model.Job, error) {
	job, err := w.store.Job().GetByPaymentIntentReference(ctx, intent)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	sessions, err := w.ledger.ListCheckoutSessions(ctx, intent)
	if err != nil {
		return nil, NewErrGateway("list checkout sessions", err)
	}
	for _, session := range sessions {
		job, err := w.store.Job().GetByPaymentReference(ctx, session.ID)
		if err == nil {
			return job, nil
		}
		if !errors.Is(err, store.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func payoutTarget(eventType ledger.EventType, status ledger.PayoutStatus) (model.PayoutStatus, bool) {
	switch eventType {
	case ledger.EventPayoutCreated:
		return model.PayoutStatusCreated, true
	case ledger.EventPayoutPaid:
		return model.PayoutStatusPaid, true
	case ledger.EventPayoutFailed:
		return model.PayoutStatusFailed, true
	}

	switch status {
	case ledger.PayoutPaid:
		return model.PayoutStatusPaid, true
	case ledger.PayoutFailed, ledger.PayoutCanceled:
		return model.PayoutStatusFailed, true
	case ledger.PayoutPending, ledger.PayoutInTransit:
		return model.PayoutStatusCreated, true
	}
	return "", false
}
