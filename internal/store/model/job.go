package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusInProgress JobStatus = "in-progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusNotAnymore JobStatus = "not-anymore"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusCanceled || s == JobStatusNotAnymore
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCaptured   PaymentStatus = "captured"
	PaymentStatusCanceled   PaymentStatus = "canceled"
)

type PaymentMethod string

const (
	PaymentMethodCard     PaymentMethod = "card"
	PaymentMethodPaypal   PaymentMethod = "paypal"
	PaymentMethodApplePay PaymentMethod = "applepay"
)

// SettlementState guards the owner-side capture so it runs at most once.
type SettlementState string

const (
	SettlementNone      SettlementState = "none"
	SettlementCapturing SettlementState = "capturing"
	SettlementCaptured  SettlementState = "captured"
)

type WorkerAction string

const (
	WorkerActionPending     WorkerAction = "pending"
	WorkerActionAccepted    WorkerAction = "accepted"
	WorkerActionCanceled    WorkerAction = "canceled"
	WorkerActionCompleted   WorkerAction = "completed"
	WorkerActionUncompleted WorkerAction = "uncompleted"
)

type OwnerAction string

const (
	OwnerActionPending   OwnerAction = "pending"
	OwnerActionAccepted  OwnerAction = "accepted"
	OwnerActionCanceled  OwnerAction = "canceled"
	OwnerActionCompleted OwnerAction = "completed"
)

type PayoutStatus string

const (
	PayoutStatusNone    PayoutStatus = "none"
	PayoutStatusCreated PayoutStatus = "created"
	PayoutStatusPaid    PayoutStatus = "paid"
	PayoutStatusFailed  PayoutStatus = "failed"
)

type Schedule struct {
	Hour   int    `json:"hour"`
	Minute int    `json:"minute"`
	Period string `json:"period"`
}

type Job struct {
	ID                       uuid.UUID       `gorm:"primaryKey;column:id;type:VARCHAR(255);"`
	CreatedAt                time.Time       `gorm:"not null;autoCreateTime"`
	UpdatedAt                time.Time       `gorm:"autoUpdateTime"`
	OwnerID                  uuid.UUID       `gorm:"not null;type:VARCHAR(255);index:jobs_owner_id_idx"`
	Status                   JobStatus       `gorm:"not null;type:VARCHAR(32);index:jobs_status_idx"`
	PaymentAmount            int64           `gorm:"not null"`
	PaymentStatus            PaymentStatus   `gorm:"not null;type:VARCHAR(32)"`
	PaymentMethod            PaymentMethod   `gorm:"not null;type:VARCHAR(32)"`
	PaymentReferenceID       *string         `gorm:"type:VARCHAR(255);uniqueIndex:jobs_payment_reference_id_idx"`
	PaymentIntentReferenceID *string         `gorm:"type:VARCHAR(255);index:jobs_payment_intent_reference_id_idx"`
	CancelRequested          bool            `gorm:"not null;default:false"`
	SettlementState          SettlementState `gorm:"not null;type:VARCHAR(32);default:none"`
	SettlementClaimedAt      *time.Time
	Rating                   *int
	OwnerFeedback            *string
	WorkerFeedback           *string
	Schedule                 *JSONField[Schedule]
	Latitude                 float64
	Longitude                float64
	Services                 *JSONField[[]string]
	CompletedAt              *time.Time
	Assignments              []Assignment `gorm:"foreignKey:JobID;references:ID;constraint:OnDelete:CASCADE;"`
}

type JobList []Job

// Assignment is a worker's application on a job. The composite primary key
// keeps a worker to one application per job.
type Assignment struct {
	JobID             uuid.UUID    `gorm:"primaryKey;type:VARCHAR(255);"`
	WorkerID          uuid.UUID    `gorm:"primaryKey;type:VARCHAR(255);index:assignments_worker_id_idx"`
	CreatedAt         time.Time    `gorm:"not null;autoCreateTime"`
	UpdatedAt         time.Time    `gorm:"autoUpdateTime"`
	WorkerAction      WorkerAction `gorm:"not null;type:VARCHAR(32)"`
	OwnerAction       OwnerAction  `gorm:"not null;type:VARCHAR(32)"`
	PayoutStatus      PayoutStatus `gorm:"not null;type:VARCHAR(32);default:none"`
	PayoutAttempts    int          `gorm:"not null;default:0"`
	PayoutAmount      int64        `gorm:"not null;default:0"`
	PayoutReferenceID *string      `gorm:"type:VARCHAR(255)"`
	PayoutError       *string
	PayoutClaimedAt   *time.Time
}

// Winner returns the assignment holding the job, if any.
func (j Job) Winner() (Assignment, bool) {
	for _, a := range j.Assignments {
		if a.OwnerAction == OwnerActionCompleted {
			return a, true
		}
	}
	for _, a := range j.Assignments {
		if a.OwnerAction == OwnerActionAccepted {
			return a, true
		}
	}
	return Assignment{}, false
}

func (j Job) Assignment(workerID uuid.UUID) (Assignment, bool) {
	for _, a := range j.Assignments {
		if a.WorkerID == workerID {
			return a, true
		}
	}
	return Assignment{}, false
}

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}
