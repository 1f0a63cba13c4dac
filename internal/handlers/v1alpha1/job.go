package v1alpha1

import (
	"context"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/handlers/v1alpha1/mappers"
	"github.com/shovel-house/shovel-api/internal/service"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
)

func (h *ServiceHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromRequest(r)
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("create_job").WithUUID("owner_id", actor.ID).Build()

	var req mappers.CreateJobRequest
	if err := h.decode(w, r, &req); err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	job, session, err := h.jobSrv.CreateJob(ctx, mappers.JobFormApi(actor.ID, req))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithUUID("job_id", job.ID).Log()
	respond(w, r, http.StatusCreated, mappers.CheckoutToApi(*job, *session))
}

func (h *ServiceHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

// ListJobs is the admin listing. Filters: status (repeatable), ownerId,
// workerId, limit, offset.
func (h *ServiceHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := service.JobFilter{}

	for _, s := range query["status"] {
		filter.Status = append(filter.Status, model.JobStatus(s))
	}
	for key, dst := range map[string]**uuid.UUID{"ownerId": &filter.OwnerID, "workerId": &filter.WorkerID} {
		if v := query.Get(key); v != "" {
			id, err := uuid.Parse(v)
			if err != nil {
				respondError(w, r, service.NewErrValidation("invalid %s %q", key, v))
				return
			}
			*dst = &id
		}
	}

	var err error
	if filter.Limit, err = intQuery(r, "limit", 0); err != nil {
		respondError(w, r, err)
		return
	}
	if filter.Offset, err = intQuery(r, "offset", 0); err != nil {
		respondError(w, r, err)
		return
	}

	jobs, err := h.jobSrv.ListJobs(r.Context(), filter)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobListToApi(jobs))
}

// ListMyJobs returns the owner's jobs, or the jobs a shoveller applied to.
func (h *ServiceHandler) ListMyJobs(w http.ResponseWriter, r *http.Request) {
	actor := actorFromRequest(r)

	var (
		jobs model.JobList
		err  error
	)
	switch actor.Role {
	case model.RoleShoveller:
		jobs, err = h.jobSrv.ListJobsForWorker(r.Context(), actor.ID)
	default:
		jobs, err = h.jobSrv.ListJobs(r.Context(), service.JobFilter{OwnerID: &actor.ID})
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobListToApi(jobs))
}

func (h *ServiceHandler) FindNear(w http.ResponseWriter, r *http.Request) {
	lat, err := floatQuery(r, "lat")
	if err != nil {
		respondError(w, r, err)
		return
	}
	lon, err := floatQuery(r, "lon")
	if err != nil {
		respondError(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 0)
	if err != nil {
		respondError(w, r, err)
		return
	}

	jobs, err := h.jobSrv.FindNear(r.Context(), lat, lon, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobListToApi(jobs))
}

func (h *ServiceHandler) UpdateJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("update_job").WithUUID("job_id", id).Build()

	var req mappers.UpdateJobRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.UpdateJob(ctx, id, mappers.UpdateJobFormApi(req), actorFromRequest(r))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) ListApplicants(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	applicants, err := h.jobSrv.ListApplicants(r.Context(), id, actorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.ApplicantsToApi(applicants))
}

func (h *ServiceHandler) ApplyToJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor := actorFromRequest(r)

	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("apply_to_job").WithUUID("job_id", id).WithUUID("worker_id", actor.ID).Build()

	var req mappers.ApplyRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.ApplyToJob(ctx, id, actor.ID, *req.Accept)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) OwnerDecide(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}
	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation("owner_decide").WithUUID("job_id", id).Build()

	var req mappers.DecisionRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, token, err := h.jobSrv.OwnerDecide(ctx, id, uuid.MustParse(req.WorkerID), *req.Accept, actorFromRequest(r))
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithString("status", string(job.Status)).Log()
	respond(w, r, http.StatusOK, mappers.Decision{Job: mappers.JobToApi(*job), Token: token})
}

func (h *ServiceHandler) MarkCompleted(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "mark_completed", h.jobSrv.MarkCompleted)
}

func (h *ServiceHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "cancel_job", h.jobSrv.CancelJob)
}

func (h *ServiceHandler) MarkUncompleted(w http.ResponseWriter, r *http.Request) {
	h.workerAction(w, r, "mark_uncompleted", h.jobSrv.MarkUncompleted)
}

type workerActionFn func(ctx context.Context, jobID, workerID uuid.UUID, actor service.Actor) (*model.Job, error)

// workerAction runs an operation on one assignment of the job. A shoveller
// always acts on their own assignment.
func (h *ServiceHandler) workerAction(w http.ResponseWriter, r *http.Request, op string, fn workerActionFn) {
	ctx := r.Context()
	actor := actorFromRequest(r)

	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req mappers.WorkerRequest
	if err := h.decodeOptional(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	workerID := actor.ID
	if actor.Role != model.RoleShoveller {
		if req.WorkerID == "" {
			respondError(w, r, service.NewErrValidation("workerId is required"))
			return
		}
		workerID = uuid.MustParse(req.WorkerID)
	}

	logger := log.NewDebugLogger("job_handler").WithContext(ctx).Operation(op).WithUUID("job_id", id).WithUUID("worker_id", workerID).Build()

	job, err := fn(ctx, id, workerID, actor)
	if err != nil {
		logger.Error(err).Log()
		respondError(w, r, err)
		return
	}

	logger.Success().WithString("status", string(job.Status)).Log()
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) CancelIfUnclaimed(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.CancelIfUnclaimed(r.Context(), id, actorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) RequestCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.RequestCancel(r.Context(), id, actorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func (h *ServiceHandler) Feedback(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req mappers.FeedbackRequest
	if err := h.decode(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	job, err := h.jobSrv.Feedback(r.Context(), id, mappers.FeedbackFormApi(req), actorFromRequest(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, mappers.JobToApi(*job))
}

func intQuery(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, service.NewErrValidation("invalid %s %q", key, v)
	}
	return n, nil
}

func floatQuery(r *http.Request, key string) (float64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, service.NewErrValidation("%s is required", key)
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, service.NewErrValidation("invalid %s %q", key, v)
	}
	return f, nil
}
