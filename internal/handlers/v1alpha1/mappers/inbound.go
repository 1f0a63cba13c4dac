package mappers

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/service/mappers"
	"github.com/shovel-house/shovel-api/internal/store/model"
)

type ScheduleRequest struct {
	Hour   int    `json:"hour" validate:"gte=1,lte=12"`
	Minute int    `json:"minute" validate:"gte=0,lte=59"`
	Period string `json:"period" validate:"required,period"`
}

type CreateJobRequest struct {
	Amount        int64            `json:"amount" validate:"required,gt=0"`
	PaymentMethod string           `json:"paymentMethod" validate:"required,payment_method"`
	Schedule      *ScheduleRequest `json:"schedule" validate:"required"`
	Latitude      *float64         `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude     *float64         `json:"longitude" validate:"required,gte=-180,lte=180"`
	Services      []string         `json:"services" validate:"required,min=1,services"`
}

// JobFormApi builds the create form for ownerID. The request must have been
// validated.
func JobFormApi(ownerID uuid.UUID, req CreateJobRequest) mappers.CreateJobForm {
	return mappers.CreateJobForm{
		OwnerID: ownerID,
		Amount:  req.Amount,
		Method:  model.PaymentMethod(req.PaymentMethod),
		Schedule: model.Schedule{
			Hour:   req.Schedule.Hour,
			Minute: req.Schedule.Minute,
			Period: strings.ToUpper(req.Schedule.Period),
		},
		Latitude:  *req.Latitude,
		Longitude: *req.Longitude,
		Services:  req.Services,
	}
}

// UpdateJobRequest edits the descriptive fields of an open job. Omitted
// fields keep their value.
type UpdateJobRequest struct {
	Schedule  *ScheduleRequest `json:"schedule" validate:"omitempty"`
	Latitude  *float64         `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64         `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
	Services  []string         `json:"services" validate:"omitempty,min=1,services"`
}

func UpdateJobFormApi(req UpdateJobRequest) service.UpdateJobForm {
	form := service.UpdateJobForm{
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Services:  req.Services,
	}
	if req.Schedule != nil {
		form.Schedule = &model.Schedule{
			Hour:   req.Schedule.Hour,
			Minute: req.Schedule.Minute,
			Period: strings.ToUpper(req.Schedule.Period),
		}
	}
	return form
}

type ApplyRequest struct {
	Accept *bool `json:"accept" validate:"required"`
}

type DecisionRequest struct {
	WorkerID string `json:"workerId" validate:"required,uuid"`
	Accept   *bool  `json:"accept" validate:"required"`
}

// WorkerRequest names the assignment an owner-side action applies to.
// Shovellers acting on their own assignment may leave it empty.
type WorkerRequest struct {
	WorkerID string `json:"workerId" validate:"omitempty,uuid"`
}

type FeedbackRequest struct {
	Rating *int   `json:"rating" validate:"omitempty,gte=1,lte=5"`
	Text   string `json:"text" validate:"max=2000"`
}

func FeedbackFormApi(req FeedbackRequest) service.FeedbackForm {
	return service.FeedbackForm{Rating: req.Rating, Text: strings.TrimSpace(req.Text)}
}

type ShovellerRequest struct {
	Latitude        *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude       *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	PayoutAccountID string   `json:"payoutAccountId" validate:"max=255"`
	ReferralCode    string   `json:"referralCode" validate:"referral_code"`
}

type RegisterRequest struct {
	Name      string            `json:"name" validate:"required,max=255,person_name"`
	Email     string            `json:"email" validate:"required,email"`
	Password  string            `json:"password" validate:"required,min=8,max=72"`
	Role      string            `json:"role" validate:"required,role"`
	Services  []string          `json:"services" validate:"omitempty,services"`
	Shoveller *ShovellerRequest `json:"shoveller" validate:"required_if=Role shoveller,excluded_unless=Role shoveller"`
}

func RegisterFormApi(req RegisterRequest) mappers.RegisterForm {
	form := mappers.RegisterForm{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     model.Role(req.Role),
		Services: req.Services,
	}
	if req.Shoveller != nil {
		form.Shoveller = &mappers.ShovellerForm{
			Latitude:        *req.Shoveller.Latitude,
			Longitude:       *req.Shoveller.Longitude,
			PayoutAccountID: strings.TrimSpace(req.Shoveller.PayoutAccountID),
			ReferralCode:    req.Shoveller.ReferralCode,
		}
	}
	return form
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token" validate:"required,max=128"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type UserStatusRequest struct {
	Status string `json:"status" validate:"required,user_status"`
}
