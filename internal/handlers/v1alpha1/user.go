package v1alpha1

import (
	"net/http"
	"strings"

	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
)

func (h *ServiceHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("user_handler").WithContext(ctx).Operation("register").Build()

	var req mappers.RegisterRequest
	if err := h.decode(w, r, &req); err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	user, err := h.userSrv.Register(ctx, mappers.RegisterFormApi(req))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithUUID("user_id", user.ID).WithString("role", string(user.Role)).Log()
	respond(w, r, http.StatusCreated, mappers.UserToApi(*user))
}

func (h *ServiceHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req mappers.LoginRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, token, err := h.userSrv.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.Session{User: mappers.UserToApi(*user), Token: token})
}

func (h *ServiceHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.userSrv.GetUser(r.Context(), actorFromRequest(r).ID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.UserToApi(*user))
}

// ForgotPassword answers the same way whether or not the email is known.
func (h *ServiceHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req mappers.ForgotPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.userSrv.ForgotPassword(r.Context(), req.Email); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusAccepted, mappers.Acknowledged{Message: "if the address is registered, a reset link is on its way"})
}

func (h *ServiceHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req mappers.ResetPasswordRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	if err := h.userSrv.ResetPassword(r.Context(), strings.TrimSpace(req.Token), req.Password); err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.Acknowledged{Message: "password updated"})
}

func (h *ServiceHandler) UpdateUserStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger := log.NewDebugLogger("user_handler").WithContext(ctx).Operation("update_user_status").WithUUID("user_id", id).Build()

	var req mappers.UserStatusRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	user, err := h.userSrv.UpdateUserStatus(ctx, id, model.UserStatus(req.Status), actorFromRequest(r))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithString("status", req.Status).Log()
	respond(w, r, http.StatusOK, mappers.UserToApi(*user))
}
