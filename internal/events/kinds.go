package events

// Kind is the cloudevent type of a lifecycle event.
type Kind string

const (
	JobCreated       Kind = "shovel.job.created"
	JobUpdated       Kind = "shovel.job.updated"
	JobApplied       Kind = "shovel.job.applied"
	JobAccepted      Kind = "shovel.job.accepted"
	JobRejected      Kind = "shovel.job.rejected"
	JobCompleted     Kind = "shovel.job.completed"
	JobWorkerDone    Kind = "shovel.job.worker_completed"
	JobUncompleted   Kind = "shovel.job.uncompleted"
	JobCanceled      Kind = "shovel.job.canceled"
	JobCancelRequest Kind = "shovel.job.cancel_requested"
	JobFeedback      Kind = "shovel.job.feedback"
	JobAuthorized    Kind = "shovel.job.payment_authorized"

	PayoutPaid      Kind = "shovel.payout.paid"
	PayoutFailed    Kind = "shovel.payout.failed"
	PayoutExhausted Kind = "shovel.payout.exhausted"

	ReferralBonusPaid   Kind = "shovel.referral.bonus_paid"
	ReferralBonusFailed Kind = "shovel.referral.bonus_failed"

	AccountUpdated Kind = "shovel.account.updated"
)

type JobEvent struct {
	JobID    string `json:"job_id"`
	OwnerID  string `json:"owner_id,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount,omitempty"`
}

type PayoutEvent struct {
	JobID     string `json:"job_id"`
	WorkerID  string `json:"worker_id"`
	Amount    int64  `json:"amount"`
	Attempts  int    `json:"attempts"`
	Reference string `json:"reference,omitempty"`
	Error     string `json:"error,omitempty"`
}

type ReferralEvent struct {
	WorkerID   string `json:"worker_id"`
	ReferrerID string `json:"referrer_id"`
	Amount     int64  `json:"amount"`
	Reference  string `json:"reference,omitempty"`
	Error      string `json:"error,omitempty"`
}

type AccountEvent struct {
	UserID         string `json:"user_id"`
	AccountID      string `json:"account_id"`
	ChargesEnabled bool   `json:"charges_enabled"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}
