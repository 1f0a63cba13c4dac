package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/config"
	"github.com/shovel-house/shovel-api/internal/events"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/notification"
	"github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
	"github.com/shovel-house/shovel-api/pkg/metrics"
)

// PayoutAmount is what the worker receives once the platform fee is taken.
func PayoutAmount(amount, feeBps int64) int64 {
	return amount - amount*feeBps/10000
}

// SettlementService captures the owner's payment and pays the worker.
//
// A job's capture is guarded by its settlement state and a payout by its
// payout status. Both are claimed with a conditional update before the
// gateway is called, and every gateway call carries an idempotency key
// derived from the job, so a retry after a crash replays instead of paying
// twice.
type SettlementService struct {
	store     store.Store
	ledger    ledger.Ledger
	notifier  notification.Notifier
	publisher events.Publisher
	referral  *ReferralService
	cfg       *config.Config
	logger    *log.StructuredLogger
	now       func() time.Time
}

func NewSettlementService(s store.Store, l ledger.Ledger, n notification.Notifier, p events.Publisher, referral *ReferralService, cfg *config.Config) *SettlementService {
	return &SettlementService{
		store:     s,
		ledger:    l,
		notifier:  n,
		publisher: p,
		referral:  referral,
		cfg:       cfg,
		logger:    log.NewDebugLogger("settlement_service"),
		now:       time.Now,
	}
}

func (s *SettlementService) staleBefore() time.Time {
	return s.now().Add(-s.cfg.Settlement.ClaimLease)
}

// Settle is the owner's completion: capture the hold, close the job and
// pay the worker. Calling it again after success is a no-op.
func (s *SettlementService) Settle(ctx context.Context, job *model.Job, workerID uuid.UUID) error {
	tracer := s.logger.WithContext(ctx).
		Operation("settle").
		WithUUID("job_id", job.ID).
		WithUUID("worker_id", workerID).
		Build()

	winner, ok := job.Winner()
	if !ok || winner.WorkerID != workerID {
		return NewErrIllegalTransition(job.ID, "worker is not the accepted worker of this job")
	}
	if job.SettlementState == model.SettlementCaptured {
		return nil
	}
	if job.PaymentStatus != model.PaymentStatusAuthorized || job.PaymentIntentReferenceID == nil {
		return NewErrIllegalTransition(job.ID, "payment is not authorized")
	}

	err := s.store.Job().UpdateWhere(ctx, job.ID,
		store.NewJobPredicate().
			WithStatus(model.JobStatusInProgress).
			WithPaymentStatus(model.PaymentStatusAuthorized).
			WithClaimableSettlement(s.staleBefore()),
		map[string]any{
			"settlement_state":      model.SettlementCapturing,
			"settlement_claimed_at": s.now(),
		})
	if errors.Is(err, store.ErrConditionFailed) {
		current, gerr := getJob(ctx, s.store, job.ID)
		if gerr != nil {
			return gerr
		}
		if current.SettlementState == model.SettlementCaptured {
			tracer.Success().WithString("result", "already_settled").Log()
			return nil
		}
		tracer.Error(err).WithString("settlement_state", string(current.SettlementState)).Log()
		return NewErrConflict("job %s is already being settled", job.ID)
	}
	if err != nil {
		tracer.Error(err).Log()
		return err
	}
	tracer.Step("settlement_claimed").Log()

	if err := s.capture(ctx, job, workerID); err != nil {
		tracer.Error(err).Log()
		return err
	}

	// The job is settled once captured. A failed transfer stays on the
	// assignment and is retried by the sweep.
	if err := s.payWorker(ctx, job.ID, workerID); err != nil {
		tracer.Error(err).WithString("step", "payout").Log()
	}

	tracer.Success().Log()
	return nil
}

// capture runs with the settlement claimed by the caller.
func (s *SettlementService) capture(ctx context.Context, job *model.Job, workerID uuid.UUID) error {
	pi, err := s.ledger.CapturePayment(ctx, *job.PaymentIntentReferenceID, ledger.CaptureKey(job.ID))
	if err == nil && pi.Status != ledger.PaymentIntentSucceeded {
		err = fmt.Errorf("payment intent %s is %s after capture", pi.ID, pi.Status)
	}
	if err != nil {
		metrics.IncreaseCapturesMetric("error")
		// An unknown outcome keeps the claim: only a replay with the same key
		// can tell whether the money moved.
		if !errors.Is(err, ledger.ErrUnknownOutcome) {
			s.releaseSettlement(ctx, job.ID)
		}
		return NewErrGateway("capture payment", err)
	}

	payout := PayoutAmount(job.PaymentAmount, s.cfg.Settlement.PlatformFeeBps)

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	err = s.store.Job().UpdateWhere(txCtx, job.ID,
		store.NewJobPredicate().WithSettlementState(model.SettlementCapturing),
		map[string]any{
			"status":           model.JobStatusCompleted,
			"payment_status":   model.PaymentStatusCaptured,
			"settlement_state": model.SettlementCaptured,
			"completed_at":     s.now(),
		})
	if err != nil {
		return err
	}
	err = s.store.Job().UpdateAssignmentWhere(txCtx, job.ID, workerID,
		store.NewAssignmentPredicate().WithOwnerAction(model.OwnerActionAccepted),
		map[string]any{
			"owner_action":  model.OwnerActionCompleted,
			"worker_action": model.WorkerActionCompleted,
			"payout_amount": payout,
		})
	if err != nil {
		return err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return err
	}

	metrics.IncreaseCapturesMetric("success")
	completed := *job
	completed.Status = model.JobStatusCompleted
	publishJob(ctx, s.publisher, events.JobCompleted, &completed, workerID)
	return nil
}

func (s *SettlementService) releaseSettlement(ctx context.Context, jobID uuid.UUID) {
	err := s.store.Job().UpdateWhere(ctx, jobID,
		store.NewJobPredicate().WithSettlementState(model.SettlementCapturing),
		map[string]any{
			"settlement_state":      model.SettlementNone,
			"settlement_claimed_at": nil,
		})
	if err != nil {
		s.logger.WithContext(ctx).Operation("release_settlement").WithUUID("job_id", jobID).Build().Error(err).Log()
	}
}

// payWorker transfers the worker's share of a captured job.
func (s *SettlementService) payWorker(ctx context.Context, jobID, workerID uuid.UUID) error {
	tracer := s.logger.WithContext(ctx).
		Operation("pay_worker").
		WithUUID("job_id", jobID).
		WithUUID("worker_id", workerID).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return err
	}
	a, found := job.Assignment(workerID)
	if !found {
		return NewErrAssignmentNotFound(jobID, workerID)
	}
	if a.OwnerAction != model.OwnerActionCompleted || a.PayoutStatus == model.PayoutStatusPaid {
		return nil
	}

	attempt := a.PayoutAttempts
	switch a.PayoutStatus {
	case model.PayoutStatusNone, model.PayoutStatusFailed:
		if a.PayoutAttempts >= s.cfg.Settlement.MaxPayoutAttempts {
			tracer.Step("attempts_exhausted").WithInt("attempts", a.PayoutAttempts).Log()
			return nil
		}
		attempt++
	}

	amount := a.PayoutAmount
	if amount == 0 {
		amount = PayoutAmount(job.PaymentAmount, s.cfg.Settlement.PlatformFeeBps)
	}

	err = s.store.Job().UpdateAssignmentWhere(ctx, jobID, workerID,
		store.NewAssignmentPredicate().
			WithOwnerAction(model.OwnerActionCompleted).
			WithClaimablePayout(s.staleBefore(), model.PayoutStatusNone, model.PayoutStatusFailed).
			WithPayoutAttempts(a.PayoutAttempts),
		map[string]any{
			"payout_status":     model.PayoutStatusCreated,
			"payout_attempts":   attempt,
			"payout_amount":     amount,
			"payout_claimed_at": s.now(),
			"payout_error":      nil,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		tracer.Step("payout_claimed_elsewhere").Log()
		return nil
	}
	if err != nil {
		return err
	}
	tracer.Step("payout_claimed").WithInt("attempt", attempt).Log()

	worker, err := getUser(ctx, s.store, workerID)
	if err != nil {
		return err
	}
	if worker.Shoveller == nil || worker.Shoveller.PayoutAccountID == nil {
		return s.failPayout(ctx, job, workerID, amount, attempt, errors.New("worker has no payout account"))
	}

	transfer, err := s.ledger.Transfer(ctx, ledger.TransferRequest{
		Amount:             amount,
		Currency:           s.cfg.Ledger.Currency,
		DestinationAccount: *worker.Shoveller.PayoutAccountID,
		TransferGroup:      jobID.String(),
		IdempotencyKey:     ledger.PayoutKey(jobID, workerID, attempt),
		Metadata: map[string]string{
			"job_id":    jobID.String(),
			"worker_id": workerID.String(),
		},
	})
	if errors.Is(err, ledger.ErrUnknownOutcome) {
		metrics.IncreasePayoutsMetric("unknown")
		tracer.Error(err).Log()
		return NewErrGateway("transfer", err)
	}
	if err != nil {
		return s.failPayout(ctx, job, workerID, amount, attempt, err)
	}

	if _, err := s.markPayoutPaid(ctx, job, workerID, transfer.ID); err != nil {
		tracer.Error(err).Log()
		return err
	}

	tracer.Success().WithString("transfer_id", transfer.ID).WithInt64("amount", amount).Log()
	return nil
}

func (s *SettlementService) failPayout(ctx context.Context, job *model.Job, workerID uuid.UUID, amount int64, attempt int, cause error) error {
	metrics.IncreasePayoutsMetric("failed")

	msg := cause.Error()
	err := s.store.Job().UpdateAssignmentWhere(ctx, job.ID, workerID,
		store.NewAssignmentPredicate().
			WithPayoutStatus(model.PayoutStatusCreated).
			WithPayoutAttempts(attempt),
		map[string]any{
			"payout_status": model.PayoutStatusFailed,
			"payout_error":  msg,
		})
	if err != nil && !errors.Is(err, store.ErrConditionFailed) {
		return err
	}

	evt := events.PayoutEvent{
		JobID:    job.ID.String(),
		WorkerID: workerID.String(),
		Amount:   amount,
		Attempts: attempt,
		Error:    msg,
	}
	s.publisher.Publish(ctx, events.PayoutFailed, job.ID.String(), evt)
	if attempt >= s.cfg.Settlement.MaxPayoutAttempts {
		s.publisher.Publish(ctx, events.PayoutExhausted, job.ID.String(), evt)
	}

	return NewErrGateway("transfer", cause)
}

// markPayoutPaid records a completed transfer. It reports false when the
// payout was already paid. The worker's job count moves with the status.
func (s *SettlementService) markPayoutPaid(ctx context.Context, job *model.Job, workerID uuid.UUID, reference string) (bool, error) {
	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return false, err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	err = s.store.Job().UpdateAssignmentWhere(txCtx, job.ID, workerID,
		store.NewAssignmentPredicate().
			WithOwnerAction(model.OwnerActionCompleted).
			WithPayoutStatus(model.PayoutStatusNone, model.PayoutStatusCreated),
		map[string]any{
			"payout_status":       model.PayoutStatusPaid,
			"payout_reference_id": reference,
			"payout_error":        nil,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.store.User().IncrementJobCount(txCtx, workerID); err != nil {
		return false, err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return false, err
	}

	metrics.IncreasePayoutsMetric("paid")

	var (
		amount   int64
		attempts int
	)
	if current, err := getJob(ctx, s.store, job.ID); err == nil {
		if a, ok := current.Assignment(workerID); ok {
			amount, attempts = a.PayoutAmount, a.PayoutAttempts
		}
	}
	if worker, err := s.store.User().Get(ctx, workerID); err == nil {
		s.notifier.Notify(ctx, notification.PaymentSent(worker.Email, worker.Name, amount, job.ID.String()))
	}
	s.publisher.Publish(ctx, events.PayoutPaid, job.ID.String(), events.PayoutEvent{
		JobID:     job.ID.String(),
		WorkerID:  workerID.String(),
		Amount:    amount,
		Attempts:  attempts,
		Reference: reference,
	})

	if s.referral != nil {
		s.referral.MaybePayBonus(ctx, workerID)
	}
	return true, nil
}

// SweepReport counts what a sweep re-drove.
type SweepReport struct {
	Captures int
	Payouts  int
	Bonuses  int
}

// Sweep re-drives settlements left behind by crashes or gateway failures:
// stale captures, failed or stale payouts, and referral bonuses that are
// due. Errors are collected and the sweep carries on.
func (s *SettlementService) Sweep(ctx context.Context) (SweepReport, error) {
	tracer := s.logger.WithContext(ctx).Operation("settlement_sweep").Build()

	var (
		report SweepReport
		errs   []error
	)

	captures, err := s.ResumeCaptures(ctx)
	report.Captures = captures
	if err != nil {
		errs = append(errs, err)
	}

	payouts, err := s.RetryPayouts(ctx)
	report.Payouts = payouts
	if err != nil {
		errs = append(errs, err)
	}

	if s.referral != nil {
		bonuses, err := s.referral.Sweep(ctx)
		report.Bonuses = bonuses
		if err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Join(errs...)
	if err != nil {
		tracer.Error(err).Log()
	}
	tracer.Success().
		WithInt("captures", report.Captures).
		WithInt("payouts", report.Payouts).
		WithInt("bonuses", report.Bonuses).
		Log()
	return report, err
}

// ResumeCaptures replays captures whose claim went stale.
func (s *SettlementService) ResumeCaptures(ctx context.Context) (int, error) {
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().BySettlementState(model.SettlementCapturing), nil)
	if err != nil {
		return 0, err
	}

	var (
		resumed int
		errs    []error
	)
	stale := s.staleBefore()
	for i := range jobs {
		job := &jobs[i]
		if job.SettlementClaimedAt != nil && job.SettlementClaimedAt.After(stale) {
			continue
		}
		winner, ok := job.Winner()
		if !ok || job.PaymentIntentReferenceID == nil {
			continue
		}

		err := s.store.Job().UpdateWhere(ctx, job.ID,
			store.NewJobPredicate().
				WithSettlementState(model.SettlementCapturing).
				WithClaimableSettlement(stale),
			map[string]any{"settlement_claimed_at": s.now()})
		if errors.Is(err, store.ErrConditionFailed) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}

		if err := s.capture(ctx, job, winner.WorkerID); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
			continue
		}
		resumed++
		if err := s.payWorker(ctx, job.ID, winner.WorkerID); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", job.ID, err))
		}
	}
	return resumed, errors.Join(errs...)
}

// RetryPayouts retries failed transfers under the attempt cap and replays
// created transfers whose claim went stale. A payout the gateway itself
// reported failed carries its reference and is left for an operator.
func (s *SettlementService) RetryPayouts(ctx context.Context) (int, error) {
	jobs, err := s.store.Job().List(ctx,
		store.NewJobQueryFilter().
			ByStatus(model.JobStatusCompleted).
			ByPayoutStatus(model.PayoutStatusNone, model.PayoutStatusFailed, model.PayoutStatusCreated), nil)
	if err != nil {
		return 0, err
	}

	var (
		retried int
		errs    []error
	)
	stale := s.staleBefore()
	for i := range jobs {
		a, ok := jobs[i].Winner()
		if !ok || a.OwnerAction != model.OwnerActionCompleted {
			continue
		}

		switch a.PayoutStatus {
		case model.PayoutStatusFailed:
			if a.PayoutReferenceID != nil || a.PayoutAttempts >= s.cfg.Settlement.MaxPayoutAttempts {
				continue
			}
		case model.PayoutStatusCreated:
			if a.PayoutReferenceID != nil || a.PayoutAttempts == 0 {
				continue
			}
			if a.PayoutClaimedAt != nil && a.PayoutClaimedAt.After(stale) {
				continue
			}
		}

		retried++
		if err := s.payWorker(ctx, jobs[i].ID, a.WorkerID); err != nil {
			errs = append(errs, fmt.Errorf("job %s: %w", jobs[i].ID, err))
		}
	}
	return retried, errors.Join(errs...)
}
