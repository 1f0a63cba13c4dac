package v1alpha1

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/auth"
	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/handlers/validator"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/requestid"
)

// maxBodySize bounds JSON and webhook payloads.
const maxBodySize = 1 << 20

type ServiceHandler struct {
	jobSrv      *service.JobService
	userSrv     *service.UserService
	referralSrv *service.ReferralService
	webhookSrv  *service.WebhookReconciler
	validator   *validator.Validator
}

func NewServiceHandler(jobService *service.JobService, userService *service.UserService, referralService *service.ReferralService, webhookReconciler *service.WebhookReconciler) *ServiceHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)
	v.Register(validator.NewUserValidationRules()...)

	return &ServiceHandler{
		jobSrv:      jobService,
		userSrv:     userService,
		referralSrv: referralService,
		webhookSrv:  webhookReconciler,
		validator:   v,
	}
}

// Mount registers every route on r. Under /api/v1 only register, login
// and the password reset pair skip authn; each group carries its role
// allow-list.
func (h *ServiceHandler) Mount(r chi.Router, authn auth.Authenticator) {
	r.Get("/health", h.Health)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/payments", h.PaymentsWebhook)
		r.Post("/connect", h.ConnectWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/users/register", h.Register)
		r.Post("/users/login", h.Login)
		r.Post("/users/forgot-password", h.ForgotPassword)
		r.Post("/users/reset-password", h.ResetPassword)

		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticator)

			r.Get("/users/me", h.Me)
			r.Get("/jobs/mine", h.ListMyJobs)
			r.Get("/jobs/{id}", h.GetJob)

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(model.RoleAdmin))
				r.Get("/jobs", h.ListJobs)
				r.Patch("/users/{id}/status", h.UpdateUserStatus)
				r.Get("/referrals/eligible", h.ListReferralEligible)
				r.Get("/referrals/{workerId}/probation", h.CheckProbation)
				r.Post("/referrals/{workerId}/pay", h.PayReferralBonus)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(model.RoleAdmin, model.RoleShoveller))
				r.Get("/jobs/near", h.FindNear)
				r.Get("/referrals/{workerId}/code", h.GetReferralCode)
				r.Get("/referrals/{workerId}/referred", h.ListReferredBy)
				r.Get("/referrals/{workerId}/referrer", h.GetReferrer)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(model.RoleShoveller))
				r.Post("/jobs/{id}/apply", h.ApplyToJob)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(model.RoleAdmin, model.RoleHouseOwner))
				r.Post("/jobs", h.CreateJob)
				r.Patch("/jobs/{id}", h.UpdateJob)
				r.Get("/jobs/{id}/applicants", h.ListApplicants)
				r.Post("/jobs/{id}/decision", h.OwnerDecide)
				r.Post("/jobs/{id}/cancel", h.CancelJob)
				r.Post("/jobs/{id}/withdraw", h.CancelIfUnclaimed)
				r.Post("/jobs/{id}/uncomplete", h.MarkUncompleted)
			})

			r.Group(func(r chi.Router) {
				r.Use(auth.RequireRoles(model.RoleAdmin, model.RoleHouseOwner, model.RoleShoveller))
				r.Post("/jobs/{id}/complete", h.MarkCompleted)
				r.Post("/jobs/{id}/request-cancel", h.RequestCancel)
				r.Post("/jobs/{id}/feedback", h.Feedback)
			})
		})
	})
}

func actorFromRequest(r *http.Request) service.Actor {
	user := auth.MustHaveUser(r.Context())
	return service.Actor{ID: user.ID, Name: user.Name, Role: user.Role}
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, service.NewErrValidation("invalid %s %q", name, chi.URLParam(r, name))
	}
	return id, nil
}

// decode reads a JSON body into dst and runs the validator over it.
func (h *ServiceHandler) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	return h.decodeBody(w, r, dst, false)
}

// decodeOptional is decode for bodies a caller may omit entirely.
func (h *ServiceHandler) decodeOptional(w http.ResponseWriter, r *http.Request, dst any) error {
	return h.decodeBody(w, r, dst, true)
}

func (h *ServiceHandler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			return err
		case optional && errors.Is(err, io.EOF):
		default:
			return service.NewErrValidation("malformed request body: %v", err)
		}
	}
	return h.validator.Struct(dst)
}

func respond(w http.ResponseWriter, r *http.Request, status int, body any) {
	render.Status(r, status)
	render.JSON(w, r, body)
}

// respondError maps service errors onto status codes. Anything unknown is
// a 500 and its message is not leaked.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch err.(type) {
	case *service.ErrResourceNotFound:
		status, message = http.StatusNotFound, err.Error()
	case *service.ErrConflict:
		status, message = http.StatusConflict, err.Error()
	case *service.ErrValidation, *validator.ErrInvalidForm, *service.ErrInvalidEvent:
		status, message = http.StatusBadRequest, err.Error()
	case *service.ErrGateway:
		status, message = http.StatusBadGateway, err.Error()
	case *service.ErrForbidden:
		status, message = http.StatusForbidden, err.Error()
	case *service.ErrUnauthorized:
		status, message = http.StatusUnauthorized, err.Error()
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			status, message = http.StatusRequestEntityTooLarge, err.Error()
		}
	}

	respond(w, r, status, mappers.Error{Error: message, RequestID: requestid.FromRequest(r)})
}
