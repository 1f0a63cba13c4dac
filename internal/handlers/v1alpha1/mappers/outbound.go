package mappers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

type Schedule struct {
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Period string `json:"period"`
}

type Assignment struct {
	WorkerID       uuid.UUID `json:"workerId"`
	WorkerAction   string    `json:"workerAction"`
	OwnerAction    string    `json:"ownerAction"`
	PayoutStatus   string    `json:"payoutStatus"`
	PayoutAmount   int64     `json:"payoutAmount,omitempty"`
	PayoutAttempts int       `json:"payoutAttempts,omitempty"`
	PayoutError    *string   `json:"payoutError,omitempty"`
}

type Payment struct {
	Amount          int64   `json:"amount"`
	Status          string  `json:"status"`
	Method          string  `json:"method"`
	Reference       *string `json:"reference,omitempty"`
	IntentReference *string `json:"intentReference,omitempty"`
}

type Job struct {
	ID              uuid.UUID    `json:"id"`
	OwnerID         uuid.UUID    `json:"ownerId"`
	Status          string       `json:"status"`
	Payment         Payment      `json:"payment"`
	Settlement      string       `json:"settlement"`
	CancelRequested bool         `json:"cancelRequested"`
	Schedule        *Schedule    `json:"schedule,omitempty"`
	Latitude        float64      `json:"latitude"`
	Longitude       float64      `json:"longitude"`
	Services        []string     `json:"services"`
	Rating          *int         `json:"rating,omitempty"`
	OwnerFeedback   *string      `json:"ownerFeedback,omitempty"`
	WorkerFeedback  *string      `json:"workerFeedback,omitempty"`
	Assignments     []Assignment `json:"assignments"`
	CreatedAt       time.Time    `json:"createdAt"`
	CompletedAt     *time.Time   `json:"completedAt,omitempty"`
}

func JobToApi(job model.Job) Job {
	j := Job{
		ID:      job.ID,
		OwnerID: job.OwnerID,
		Status:  string(job.Status),
		Payment: Payment{
			Amount:          job.PaymentAmount,
			Status:          string(job.PaymentStatus),
			Method:          string(job.PaymentMethod),
			Reference:       job.PaymentReferenceID,
			IntentReference: job.PaymentIntentReferenceID,
		},
		Settlement:      string(job.SettlementState),
		CancelRequested: job.CancelRequested,
		Latitude:        job.Latitude,
		Longitude:       job.Longitude,
		Services:        []string{},
		Rating:          job.Rating,
		OwnerFeedback:   job.OwnerFeedback,
		WorkerFeedback:  job.WorkerFeedback,
		Assignments:     make([]Assignment, 0, len(job.Assignments)),
		CreatedAt:       job.CreatedAt,
		CompletedAt:     job.CompletedAt,
	}
	if job.Schedule != nil {
		j.Schedule = &Schedule{
			Hour:   job.Schedule.Data.Hour,
			Minute: job.Schedule.Data.Minute,
			Period: job.Schedule.Data.Period,
		}
	}
	if job.Services != nil && job.Services.Data != nil {
		j.Services = job.Services.Data
	}
	for _, a := range job.Assignments {
		j.Assignments = append(j.Assignments, Assignment{
			WorkerID:       a.WorkerID,
			WorkerAction:   string(a.WorkerAction),
			OwnerAction:    string(a.OwnerAction),
			PayoutStatus:   string(a.PayoutStatus),
			PayoutAmount:   a.PayoutAmount,
			PayoutAttempts: a.PayoutAttempts,
			PayoutError:    a.PayoutError,
		})
	}
	return j
}

func JobListToApi(jobs model.JobList) []Job {
	out := make([]Job, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, JobToApi(job))
	}
	return out
}

type Checkout struct {
	Job       Job    `json:"job"`
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
}

func CheckoutToApi(job model.Job, session ledger.CheckoutSession) Checkout {
	return Checkout{Job: JobToApi(job), SessionID: session.ID, URL: session.URL}
}

type Decision struct {
	Job   Job    `json:"job"`
	Token string `json:"token"`
}

type Applicant struct {
	WorkerID     uuid.UUID `json:"workerId"`
	Name         string    `json:"name"`
	WorkerAction string    `json:"workerAction"`
	OwnerAction  string    `json:"ownerAction"`
	Schedule     *Schedule `json:"schedule,omitempty"`
}

func ApplicantsToApi(applicants []service.Applicant) []Applicant {
	out := make([]Applicant, 0, len(applicants))
	for _, a := range applicants {
		applicant := Applicant{
			WorkerID:     a.WorkerID,
			Name:         a.Name,
			WorkerAction: string(a.WorkerAction),
			OwnerAction:  string(a.OwnerAction),
		}
		if a.Schedule != nil {
			applicant.Schedule = &Schedule{Hour: a.Schedule.Hour, Minute: a.Schedule.Minute, Period: a.Schedule.Period}
		}
		out = append(out, applicant)
	}
	return out
}

type Shoveller struct {
	Latitude            float64    `json:"latitude"`
	Longitude           float64    `json:"longitude"`
	PayoutAccountID     *string    `json:"payoutAccountId,omitempty"`
	PayoutAccountStatus string     `json:"payoutAccountStatus"`
	PayoutAccountReason string     `json:"payoutAccountReason,omitempty"`
	ChargesEnabled      bool       `json:"chargesEnabled"`
	ReferralCode        string     `json:"referralCode"`
	ReferredBy          *uuid.UUID `json:"referredBy,omitempty"`
	ReferralBonusStatus string     `json:"referralBonusStatus"`
	JobCount            int64      `json:"jobCount"`
}

type User struct {
	ID        uuid.UUID  `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Role      string     `json:"role"`
	Status    string     `json:"status"`
	Services  []string   `json:"services,omitempty"`
	Shoveller *Shoveller `json:"shoveller,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func UserToApi(user model.User) User {
	u := User{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      string(user.Role),
		Status:    string(user.Status),
		CreatedAt: user.CreatedAt,
	}
	if user.Services != nil {
		u.Services = user.Services.Data
	}
	if p := user.Shoveller; p != nil {
		u.Shoveller = &Shoveller{
			Latitude:            p.Latitude,
			Longitude:           p.Longitude,
			PayoutAccountID:     p.PayoutAccountID,
			PayoutAccountStatus: string(p.PayoutAccountStatus),
			PayoutAccountReason: p.PayoutAccountReason,
			ChargesEnabled:      p.ChargesEnabled,
			ReferralCode:        p.ReferralCode,
			ReferredBy:          p.ReferredBy,
			ReferralBonusStatus: string(p.ReferralBonusStatus),
			JobCount:            p.JobCount,
		}
	}
	return u
}

func UserListToApi(users model.UserList) []User {
	out := make([]User, 0, len(users))
	for _, u := range users {
		out = append(out, UserToApi(u))
	}
	return out
}

type Session struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

type Probation struct {
	WorkerID uuid.UUID `json:"workerId"`
	Eligible bool      `json:"eligible"`
}

type ReferralCode struct {
	WorkerID uuid.UUID `json:"workerId"`
	Code     string    `json:"code"`
}

// Referrer is nil when the worker signed up without a referral code.
type Referrer struct {
	WorkerID uuid.UUID `json:"workerId"`
	Referrer *User     `json:"referrer"`
}

type Acknowledged struct {
	Message string `json:"message"`
}

type WebhookAck struct {
	Received bool   `json:"received"`
	Result   string `json:"result"`
}

type Error struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
