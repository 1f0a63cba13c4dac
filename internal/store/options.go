package store

import (
	"time"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type BaseQuerier struct {
	QueryFn []func(tx *gorm.DB) *gorm.DB
}

type SortOrder int

const (
	SortByCreatedTime SortOrder = iota
	SortByUpdatedTime
)

type JobQueryFilter BaseQuerier

func NewJobQueryFilter() *JobQueryFilter {
	return &JobQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *JobQueryFilter) ByOwnerID(id uuid.UUID) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("jobs.owner_id = ?", id)
	})
	return qf
}

func (qf *JobQueryFilter) ByStatus(statuses ...model.JobStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("jobs.status IN ?", statuses)
	})
	return qf
}

func (qf *JobQueryFilter) ByWorkerID(id uuid.UUID) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("EXISTS (SELECT 1 FROM assignments a WHERE a.job_id = jobs.id AND a.worker_id = ?)", id)
	})
	return qf
}

func (qf *JobQueryFilter) ByPayoutStatus(statuses ...model.PayoutStatus) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("EXISTS (SELECT 1 FROM assignments a WHERE a.job_id = jobs.id AND a.owner_action = ? AND a.payout_status IN ?)", model.OwnerActionCompleted, statuses)
	})
	return qf
}

func (qf *JobQueryFilter) BySettlementState(states ...model.SettlementState) *JobQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("jobs.settlement_state IN ?", states)
	})
	return qf
}

type JobQueryOptions BaseQuerier

func NewJobQueryOptions() *JobQueryOptions {
	return &JobQueryOptions{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (o *JobQueryOptions) WithSortOrder(sort SortOrder) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		switch sort {
		case SortByUpdatedTime:
			return tx.Order("jobs.updated_at DESC")
		default:
			return tx.Order("jobs.created_at DESC")
		}
	})
	return o
}

func (o *JobQueryOptions) WithLimit(limit int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Limit(limit)
	})
	return o
}

func (o *JobQueryOptions) WithOffset(offset int) *JobQueryOptions {
	o.QueryFn = append(o.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Offset(offset)
	})
	return o
}

type UserQueryFilter BaseQuerier

func NewUserQueryFilter() *UserQueryFilter {
	return &UserQueryFilter{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (qf *UserQueryFilter) ByRole(role model.Role) *UserQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("users.role = ?", role)
	})
	return qf
}

// ByReferredBy keeps the shovellers who signed up with referrerID's code.
func (qf *UserQueryFilter) ByReferredBy(referrerID uuid.UUID) *UserQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("users.id IN (SELECT user_id FROM shoveller_profiles WHERE referred_by = ?)", referrerID)
	})
	return qf
}

// ReferralEligible keeps shovellers that were referred, reached the job
// threshold and whose referral bonus is still unpaid.
func (qf *UserQueryFilter) ReferralEligible(threshold int64) *UserQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("EXISTS (SELECT 1 FROM shoveller_profiles p WHERE p.user_id = users.id AND p.referred_by IS NOT NULL AND p.job_count >= ? AND p.referral_bonus_status = ?)",
			threshold, model.ReferralBonusUnpaid)
	})
	return qf
}

// ReferralBonusStale keeps shovellers whose bonus transfer was claimed
// before staleBefore and never settled.
func (qf *UserQueryFilter) ReferralBonusStale(staleBefore time.Time) *UserQueryFilter {
	qf.QueryFn = append(qf.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("EXISTS (SELECT 1 FROM shoveller_profiles p WHERE p.user_id = users.id AND p.referral_bonus_status = ? AND p.referral_bonus_claimed_at < ?)",
			model.ReferralBonusInFlight, staleBefore)
	})
	return qf
}

// JobPredicate narrows a conditional update on a single job row.
type JobPredicate BaseQuerier

func NewJobPredicate() *JobPredicate {
	return &JobPredicate{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (p *JobPredicate) WithStatus(statuses ...model.JobStatus) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status IN ?", statuses)
	})
	return p
}

func (p *JobPredicate) WithoutStatus(statuses ...model.JobStatus) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("status NOT IN ?", statuses)
	})
	return p
}

func (p *JobPredicate) WithPaymentStatus(statuses ...model.PaymentStatus) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payment_status IN ?", statuses)
	})
	return p
}

func (p *JobPredicate) WithSettlementState(states ...model.SettlementState) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("settlement_state IN ?", states)
	})
	return p
}

// WithClaimableSettlement matches a job nobody is settling, or whose
// settlement claim is older than staleBefore.
func (p *JobPredicate) WithClaimableSettlement(staleBefore time.Time) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(settlement_state = ? OR (settlement_state = ? AND settlement_claimed_at < ?))",
			model.SettlementNone, model.SettlementCapturing, staleBefore)
	})
	return p
}

// WithPaymentIntent matches the recorded intent, or its absence when ref is nil.
func (p *JobPredicate) WithPaymentIntent(ref *string) *JobPredicate {
	if ref == nil {
		return p.IsNull("payment_intent_reference_id")
	}
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payment_intent_reference_id = ?", *ref)
	})
	return p
}

func (p *JobPredicate) IsNull(column string) *JobPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where(clause.Eq{Column: clause.Column{Name: column}, Value: nil})
	})
	return p
}

// UserPredicate narrows a conditional update on a user row.
type UserPredicate BaseQuerier

func NewUserPredicate() *UserPredicate {
	return &UserPredicate{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

// WithResetToken matches the token hash while it has not expired at now.
func (p *UserPredicate) WithResetToken(tokenHash string, now time.Time) *UserPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("reset_token_hash = ? AND reset_token_expires_at > ?", tokenHash, now)
	})
	return p
}

// AssignmentPredicate narrows a conditional update on one assignment.
type AssignmentPredicate BaseQuerier

func NewAssignmentPredicate() *AssignmentPredicate {
	return &AssignmentPredicate{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (p *AssignmentPredicate) WithWorkerAction(actions ...model.WorkerAction) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("worker_action IN ?", actions)
	})
	return p
}

func (p *AssignmentPredicate) WithoutWorkerAction(actions ...model.WorkerAction) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("worker_action NOT IN ?", actions)
	})
	return p
}

func (p *AssignmentPredicate) WithOwnerAction(actions ...model.OwnerAction) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("owner_action IN ?", actions)
	})
	return p
}

func (p *AssignmentPredicate) WithPayoutStatus(statuses ...model.PayoutStatus) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payout_status IN ?", statuses)
	})
	return p
}

// WithClaimablePayout matches a payout in one of statuses, or a created
// payout whose claim is older than staleBefore.
func (p *AssignmentPredicate) WithClaimablePayout(staleBefore time.Time, statuses ...model.PayoutStatus) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(payout_status IN ? OR (payout_status = ? AND payout_claimed_at < ?))",
			statuses, model.PayoutStatusCreated, staleBefore)
	})
	return p
}

func (p *AssignmentPredicate) WithPayoutAttempts(attempts int) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payout_attempts = ?", attempts)
	})
	return p
}

func (p *AssignmentPredicate) WithPayoutAttemptsBelow(max int) *AssignmentPredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("payout_attempts < ?", max)
	})
	return p
}

// ProfilePredicate narrows a conditional update on a shoveller profile.
type ProfilePredicate BaseQuerier

func NewProfilePredicate() *ProfilePredicate {
	return &ProfilePredicate{QueryFn: make([]func(tx *gorm.DB) *gorm.DB, 0)}
}

func (p *ProfilePredicate) WithReferralBonusStatus(statuses ...model.ReferralBonusStatus) *ProfilePredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("referral_bonus_status IN ?", statuses)
	})
	return p
}

// WithClaimableReferralBonus matches an unpaid bonus, or an in-flight bonus
// whose claim is older than staleBefore.
func (p *ProfilePredicate) WithClaimableReferralBonus(staleBefore time.Time) *ProfilePredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("(referral_bonus_status = ? OR (referral_bonus_status = ? AND referral_bonus_claimed_at < ?))",
			model.ReferralBonusUnpaid, model.ReferralBonusInFlight, staleBefore)
	})
	return p
}

func (p *ProfilePredicate) WithMinJobCount(count int64) *ProfilePredicate {
	p.QueryFn = append(p.QueryFn, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("job_count >= ?", count)
	})
	return p
}
