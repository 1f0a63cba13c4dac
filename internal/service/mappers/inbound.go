package mappers

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

type CreateJobForm struct {
	OwnerID   uuid.UUID
	Amount    int64
	Method    model.PaymentMethod
	Schedule  model.Schedule
	Latitude  float64
	Longitude float64
	Services  []string
}

func (f CreateJobForm) ToJob(id uuid.UUID, paymentReference string) model.Job {
	return model.Job{
		ID:                 id,
		OwnerID:            f.OwnerID,
		Status:             model.JobStatusOpen,
		PaymentAmount:      f.Amount,
		PaymentStatus:      model.PaymentStatusPending,
		PaymentMethod:      f.Method,
		PaymentReferenceID: &paymentReference,
		SettlementState:    model.SettlementNone,
		Schedule:           model.MakeJSONField(f.Schedule),
		Latitude:           f.Latitude,
		Longitude:          f.Longitude,
		Services:           model.MakeJSONField(f.Services),
	}
}

// ShovellerForm carries the fields only a shoveller registers with.
type ShovellerForm struct {
	Latitude        float64
	Longitude       float64
	PayoutAccountID string
	ReferralCode    string
}

type RegisterForm struct {
	Name      string
	Email     string
	Password  string
	Role      model.Role
	Services  []string
	Shoveller *ShovellerForm
}

func (f RegisterForm) ToUser(id uuid.UUID, passwordHash string) model.User {
	user := model.User{
		ID:           id,
		Name:         strings.TrimSpace(f.Name),
		Email:        NormalizeEmail(f.Email),
		PasswordHash: passwordHash,
		Role:         f.Role,
		Status:       model.UserStatusActive,
	}
	if len(f.Services) > 0 {
		user.Services = model.MakeJSONField(f.Services)
	}
	return user
}

func (f ShovellerForm) ToProfile(referralCode string, referredBy *uuid.UUID) *model.ShovellerProfile {
	profile := &model.ShovellerProfile{
		Latitude:            f.Latitude,
		Longitude:           f.Longitude,
		PayoutAccountStatus: model.PayoutAccountPending,
		ReferralCode:        referralCode,
		ReferredBy:          referredBy,
		ReferralBonusStatus: model.ReferralBonusUnpaid,
	}
	if f.PayoutAccountID != "" {
		account := f.PayoutAccountID
		profile.PayoutAccountID = &account
	}
	return profile
}

func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
