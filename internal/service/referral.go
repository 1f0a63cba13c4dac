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

// ReferralService pays the one-time bonus a referrer earns once the
// shoveller they recruited completes enough paid jobs.
type ReferralService struct {
	store     store.Store
	ledger    ledger.Ledger
	notifier  notification.Notifier
	publisher events.Publisher
	cfg       *config.ReferralConfig
	currency  string
	lease     time.Duration
	logger    *log.StructuredLogger
	now       func() time.Time
}

func NewReferralService(s store.Store, l ledger.Ledger, n notification.Notifier, p events.Publisher, cfg *config.Config) *ReferralService {
	return &ReferralService{
		store:     s,
		ledger:    l,
		notifier:  n,
		publisher: p,
		cfg:       cfg.Referral,
		currency:  cfg.Ledger.Currency,
		lease:     cfg.Settlement.ClaimLease,
		logger:    log.NewDebugLogger("referral_service"),
		now:       time.Now,
	}
}

// CheckProbation reports whether the worker reached the job threshold and
// the referral bonus for them has not been paid yet.
func (r *ReferralService) CheckProbation(ctx context.Context, workerID uuid.UUID) (bool, error) {
	worker, err := r.getShoveller(ctx, workerID)
	if err != nil {
		return false, err
	}
	p := worker.Shoveller
	return p.JobCount >= r.cfg.Threshold && !p.ReferralBonusPaid(), nil
}

// PayReferralBonus transfers the bonus to the worker's referrer. The
// in_flight claim is the gate: of two concurrent calls only one reaches
// the gateway.
func (r *ReferralService) PayReferralBonus(ctx context.Context, workerID uuid.UUID) error {
	tracer := r.logger.WithContext(ctx).
		Operation("pay_referral_bonus").
		WithUUID("worker_id", workerID).
		Build()

	worker, err := r.getShoveller(ctx, workerID)
	if err != nil {
		return err
	}
	profile := worker.Shoveller

	switch profile.ReferralBonusStatus {
	case model.ReferralBonusPaid:
		return nil
	case model.ReferralBonusInFlight:
		if profile.ReferralBonusClaimedAt != nil && profile.ReferralBonusClaimedAt.After(r.staleBefore()) {
			return NewErrConflict("referral bonus for %s is already being paid", workerID)
		}
	}
	if profile.ReferredBy == nil {
		return NewErrValidation("worker %s was not referred", workerID)
	}
	if profile.JobCount < r.cfg.Threshold {
		return NewErrValidation("worker %s completed %d of %d jobs", workerID, profile.JobCount, r.cfg.Threshold)
	}

	referrer, err := r.getShoveller(ctx, *profile.ReferredBy)
	if err != nil {
		return err
	}
	if referrer.Shoveller.PayoutAccountID == nil || !referrer.Shoveller.ChargesEnabled {
		return NewErrValidation("referrer %s cannot receive payouts", referrer.ID)
	}

	err = r.store.User().UpdateProfileWhere(ctx, workerID,
		store.NewProfilePredicate().
			WithClaimableReferralBonus(r.staleBefore()).
			WithMinJobCount(r.cfg.Threshold),
		map[string]any{
			"referral_bonus_status":     model.ReferralBonusInFlight,
			"referral_bonus_claimed_at": r.now(),
		})
	if errors.Is(err, store.ErrConditionFailed) {
		current, gerr := r.getShoveller(ctx, workerID)
		if gerr == nil && current.Shoveller.ReferralBonusPaid() {
			return nil
		}
		tracer.Error(err).Log()
		return NewErrConflict("referral bonus for %s is already being paid", workerID)
	}
	if err != nil {
		return err
	}
	tracer.Step("bonus_claimed").WithUUID("referrer_id", referrer.ID).Log()

	evt := events.ReferralEvent{
		WorkerID:   workerID.String(),
		ReferrerID: referrer.ID.String(),
		Amount:     r.cfg.BonusAmount,
	}

	transfer, err := r.ledger.Transfer(ctx, ledger.TransferRequest{
		Amount:             r.cfg.BonusAmount,
		Currency:           r.currency,
		DestinationAccount: *referrer.Shoveller.PayoutAccountID,
		IdempotencyKey:     ledger.ReferralBonusKey(workerID),
		Metadata: map[string]string{
			"worker_id":   workerID.String(),
			"referrer_id": referrer.ID.String(),
		},
	})
	if errors.Is(err, ledger.ErrUnknownOutcome) {
		metrics.IncreaseReferralBonusesMetric("unknown")
		tracer.Error(err).Log()
		return NewErrGateway("referral transfer", err)
	}
	if err != nil {
		metrics.IncreaseReferralBonusesMetric("failed")
		if rerr := r.store.User().UpdateProfileWhere(ctx, workerID,
			store.NewProfilePredicate().WithReferralBonusStatus(model.ReferralBonusInFlight),
			map[string]any{
				"referral_bonus_status":     model.ReferralBonusUnpaid,
				"referral_bonus_claimed_at": nil,
			}); rerr != nil {
			tracer.Error(rerr).WithString("step", "release_claim").Log()
		}
		evt.Error = err.Error()
		r.publisher.Publish(ctx, events.ReferralBonusFailed, workerID.String(), evt)
		tracer.Error(err).Log()
		return NewErrGateway("referral transfer", err)
	}

	err = r.store.User().UpdateProfileWhere(ctx, workerID,
		store.NewProfilePredicate().WithReferralBonusStatus(model.ReferralBonusInFlight),
		map[string]any{
			"referral_bonus_status":    model.ReferralBonusPaid,
			"referral_bonus_reference": transfer.ID,
		})
	if err != nil {
		tracer.Error(err).Log()
		return err
	}

	metrics.IncreaseReferralBonusesMetric("paid")
	r.notifier.Notify(ctx, notification.ReferralBonusPaid(referrer.Email, referrer.Name, r.cfg.BonusAmount))
	evt.Reference = transfer.ID
	r.publisher.Publish(ctx, events.ReferralBonusPaid, workerID.String(), evt)

	tracer.Success().WithString("transfer_id", transfer.ID).Log()
	return nil
}

// MaybePayBonus pays the bonus when the worker just became eligible.
// Failures are logged and left for the sweep.
func (r *ReferralService) MaybePayBonus(ctx context.Context, workerID uuid.UUID) {
	worker, err := r.getShoveller(ctx, workerID)
	if err != nil {
		return
	}
	p := worker.Shoveller
	if p.ReferredBy == nil || p.ReferralBonusStatus != model.ReferralBonusUnpaid || p.JobCount < r.cfg.Threshold {
		return
	}
	if err := r.PayReferralBonus(ctx, workerID); err != nil {
		r.logger.WithContext(ctx).
			Operation("maybe_pay_referral_bonus").
			WithUUID("worker_id", workerID).
			Build().
			Error(err).
			Log()
	}
}

// ListEligible returns referred shovellers whose bonus is due.
func (r *ReferralService) ListEligible(ctx context.Context) (model.UserList, error) {
	return r.store.User().List(ctx, store.NewUserQueryFilter().
		ByRole(model.RoleShoveller).
		ReferralEligible(r.cfg.Threshold))
}

func (r *ReferralService) GetReferralCode(ctx context.Context, workerID uuid.UUID) (string, error) {
	worker, err := r.getShoveller(ctx, workerID)
	if err != nil {
		return "", err
	}
	return worker.Shoveller.ReferralCode, nil
}

// ListReferredBy returns the shovellers who signed up with the worker's code.
func (r *ReferralService) ListReferredBy(ctx context.Context, workerID uuid.UUID) (model.UserList, error) {
	if _, err := r.getShoveller(ctx, workerID); err != nil {
		return nil, err
	}
	return r.store.User().List(ctx, store.NewUserQueryFilter().
		ByRole(model.RoleShoveller).
		ByReferredBy(workerID))
}

// GetReferrer returns who referred the worker, nil when nobody did.
func (r *ReferralService) GetReferrer(ctx context.Context, workerID uuid.UUID) (*model.User, error) {
	worker, err := r.getShoveller(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if worker.Shoveller.ReferredBy == nil {
		return nil, nil
	}
	return getUser(ctx, r.store, *worker.Shoveller.ReferredBy)
}

// Sweep pays every due bonus and replays claims that went stale.
func (r *ReferralService) Sweep(ctx context.Context) (int, error) {
	eligible, err := r.ListEligible(ctx)
	if err != nil {
		return 0, err
	}
	stale, err := r.store.User().List(ctx, store.NewUserQueryFilter().
		ByRole(model.RoleShoveller).
		ReferralBonusStale(r.staleBefore()))
	if err != nil {
		return 0, err
	}

	var (
		paid int
		errs []error
	)
	for _, u := range append(eligible, stale...) {
		if err := r.PayReferralBonus(ctx, u.ID); err != nil {
			errs = append(errs, fmt.Errorf("worker %s: %w", u.ID, err))
			continue
		}
		paid++
	}
	return paid, errors.Join(errs...)
}

func (r *ReferralService) staleBefore() time.Time {
	return r.now().Add(-r.lease)
}

func (r *ReferralService) getShoveller(ctx context.Context, id uuid.UUID) (*model.User, error) {
	user, err := getUser(ctx, r.store, id)
	if err != nil {
		return nil, err
	}
	if !user.IsShoveller() {
		return nil, NewErrValidation("user %s is not a shoveller", id)
	}
	return user, nil
}
