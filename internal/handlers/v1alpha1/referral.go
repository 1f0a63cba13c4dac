package v1alpha1

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
)

func (h *ServiceHandler) CheckProbation(w http.ResponseWriter, r *http.Request) {
	workerID, err := uuidParam(r, "workerId")
	if err != nil {
		respondError(w, r, err)
		return
	}

	eligible, err := h.referralSrv.CheckProbation(r.Context(), workerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.Probation{WorkerID: workerID, Eligible: eligible})
}

func (h *ServiceHandler) PayReferralBonus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	workerID, err := uuidParam(r, "workerId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger := log.NewDebugLogger("referral_handler").WithContext(ctx).Operation("pay_referral_bonus").WithUUID("worker_id", workerID).Build()

	if err := h.referralSrv.PayReferralBonus(ctx, workerID); err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	user, err := h.userSrv.GetUser(ctx, workerID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.UserToApi(*user))
}

func (h *ServiceHandler) ListReferralEligible(w http.ResponseWriter, r *http.Request) {
	users, err := h.referralSrv.ListEligible(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.UserListToApi(users))
}

func (h *ServiceHandler) GetReferralCode(w http.ResponseWriter, r *http.Request) {
	workerID, err := uuidParam(r, "workerId")
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := ownReferral(r, workerID); err != nil {
		respondError(w, r, err)
		return
	}

	code, err := h.referralSrv.GetReferralCode(r.Context(), workerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ReferralCode{WorkerID: workerID, Code: code})
}

func (h *ServiceHandler) ListReferredBy(w http.ResponseWriter, r *http.Request) {
	workerID, err := uuidParam(r, "workerId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := ownReferral(r, workerID); err != nil {
		respondError(w, r, err)
		return
	}

	users, err := h.referralSrv.ListReferredBy(r.Context(), workerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.UserListToApi(users))
}

func (h *ServiceHandler) GetReferrer(w http.ResponseWriter, r *http.Request) {
	workerID, err := uuidParam(r, "workerId")
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := ownReferral(r, workerID); err != nil {
		respondError(w, r, err)
		return
	}

	referrer, err := h.referralSrv.GetReferrer(r.Context(), workerID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := mappers.Referrer{WorkerID: workerID}
	if referrer != nil {
		u := mappers.UserToApi(*referrer)
		resp.Referrer = &u
	}
	respond(w, r, http.StatusOK, resp)
}

// ownReferral keeps shovellers to their own referral data.
func ownReferral(r *http.Request, workerID uuid.UUID) error {
	actor := actorFromRequest(r)
	if actor.Role == model.RoleShoveller && actor.ID != workerID {
		return service.NewErrForbidden("shovellers can only read their own referral data")
	}
	return nil
}
