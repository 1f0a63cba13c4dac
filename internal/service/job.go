package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/config"
	"github.com/shovel-house/shovel-api/internal/events"
	"github.com/shovel-house/shovel-api/internal/ledger"
	"github.com/shovel-house/shovel-api/internal/notification"
	"github.com/shovel-house/shovel-api/internal/service/mappers"
	"github.com/shovel-house/shovel-api/internal/store"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"github.com/shovel-house/shovel-api/pkg/log"
)

const (
	maxNearLimit     = 100
	maxCloseAttempts = 3
)

// JobService is the only place that mutates job status and assignment
// actions. Every transition is a conditional update so concurrent callers
// cannot both win.
type JobService struct {
	store      store.Store
	ledger     ledger.Ledger
	notifier   notification.Notifier
	publisher  events.Publisher
	tokens     TokenIssuer
	settlement *SettlementService
	cfg        *config.Config
	logger     *log.StructuredLogger
}

func NewJobService(s store.Store, l ledger.Ledger, n notification.Notifier, p events.Publisher, tokens TokenIssuer, settlement *SettlementService, cfg *config.Config) *JobService {
	return &JobService{
		store:      s,
		ledger:     l,
		notifier:   n,
		publisher:  p,
		tokens:     tokens,
		settlement: settlement,
		cfg:        cfg,
		logger:     log.NewDebugLogger("job_service"),
	}
}

// CreateJob opens a job and its manual-capture checkout session.
func (s *JobService) CreateJob(ctx context.Context, form mappers.CreateJobForm) (*model.Job, *ledger.CheckoutSession, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("create_job").
		WithUUID("owner_id", form.OwnerID).
		WithInt64("amount", form.Amount).
		Build()

	if form.Amount <= 0 {
		return nil, nil, NewErrValidation("payment amount must be positive")
	}

	id := uuid.New()
	session, err := s.ledger.CreateCheckoutSession(ctx, ledger.CheckoutRequest{
		JobID:          id.String(),
		Amount:         form.Amount,
		Currency:       s.cfg.Ledger.Currency,
		Description:    "Snow shoveling job",
		SuccessURL:     s.cfg.Ledger.SuccessURL,
		CancelURL:      s.cfg.Ledger.CancelURL,
		IdempotencyKey: ledger.CheckoutKey(id),
	})
	if err != nil {
		tracer.Error(err).Log()
		return nil, nil, NewErrGateway("create checkout session", err)
	}
	tracer.Step("checkout_session_created").WithString("session_id", session.ID).Log()

	job, err := s.store.Job().Create(ctx, form.ToJob(id, session.ID))
	if err != nil {
		tracer.Error(err).Log()
		return nil, nil, err
	}

	s.publish(ctx, events.JobCreated, job, uuid.Nil)
	tracer.Success().WithUUID("job_id", job.ID).Log()
	return job, session, nil
}

func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return getJob(ctx, s.store, id)
}

type JobFilter struct {
	OwnerID  *uuid.UUID
	WorkerID *uuid.UUID
	Status   []model.JobStatus
	Limit    int
	Offset   int
}

func (s *JobService) ListJobs(ctx context.Context, filter JobFilter) (model.JobList, error) {
	qf := store.NewJobQueryFilter()
	if filter.OwnerID != nil {
		qf = qf.ByOwnerID(*filter.OwnerID)
	}
	if filter.WorkerID != nil {
		qf = qf.ByWorkerID(*filter.WorkerID)
	}
	if len(filter.Status) > 0 {
		qf = qf.ByStatus(filter.Status...)
	}

	opts := store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime)
	if filter.Limit > 0 {
		opts = opts.WithLimit(filter.Limit)
	}
	if filter.Offset > 0 {
		opts = opts.WithOffset(filter.Offset)
	}

	return s.store.Job().List(ctx, qf, opts)
}

func (s *JobService) ListJobsForWorker(ctx context.Context, workerID uuid.UUID) (model.JobList, error) {
	return s.ListJobs(ctx, JobFilter{WorkerID: &workerID})
}

// FindNear returns open jobs ordered by distance.
func (s *JobService) FindNear(ctx context.Context, lat, lon float64, limit int) (model.JobList, error) {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return nil, NewErrValidation("invalid coordinates %f,%f", lat, lon)
	}
	if limit <= 0 {
		limit = store.DefaultNearLimit
	}
	if limit > maxNearLimit {
		limit = maxNearLimit
	}
	return s.store.Job().FindNear(ctx, lat, lon, limit)
}

type Applicant struct {
	WorkerID     uuid.UUID
	Name         string
	WorkerAction model.WorkerAction
	OwnerAction  model.OwnerAction
	Schedule     *model.Schedule
}

func (s *JobService) ListApplicants(ctx context.Context, jobID uuid.UUID, actor Actor) ([]Applicant, error) {
	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner can list its applicants")
	}

	applicants := make([]Applicant, 0, len(job.Assignments))
	for _, a := range job.Assignments {
		applicant := Applicant{
			WorkerID:     a.WorkerID,
			WorkerAction: a.WorkerAction,
			OwnerAction:  a.OwnerAction,
		}
		if job.Schedule != nil {
			applicant.Schedule = &job.Schedule.Data
		}
		worker, err := s.store.User().Get(ctx, a.WorkerID)
		switch {
		case err == nil:
			applicant.Name = worker.Name
		case !errors.Is(err, store.ErrRecordNotFound):
			return nil, err
		}
		applicants = append(applicants, applicant)
	}
	return applicants, nil
}

// ApplyToJob appends the worker's application. The insert itself checks
// that the job is open and the worker has not applied yet.
func (s *JobService) ApplyToJob(ctx context.Context, jobID, workerID uuid.UUID, accept bool) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("apply_to_job").
		WithUUID("job_id", jobID).
		WithUUID("worker_id", workerID).
		WithBool("accept", accept).
		Build()

	action := model.WorkerActionCanceled
	if accept {
		action = model.WorkerActionAccepted
	}

	err := s.store.Job().AppendAssignment(ctx, model.Assignment{
		JobID:        jobID,
		WorkerID:     workerID,
		WorkerAction: action,
	})
	switch {
	case errors.Is(err, store.ErrDuplicateKey):
		tracer.Error(err).Log()
		return nil, NewErrAlreadyApplied(jobID, workerID)
	case errors.Is(err, store.ErrConditionFailed):
		job, gerr := getJob(ctx, s.store, jobID)
		if gerr != nil {
			return nil, gerr
		}
		tracer.Error(err).WithString("status", string(job.Status)).Log()
		return nil, NewErrIllegalTransition(jobID, "job is not open for applications")
	case err != nil:
		tracer.Error(err).Log()
		return nil, err
	}

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.JobApplied, job, workerID)
	tracer.Success().Log()
	return job, nil
}

// OwnerDecide accepts or rejects an applicant. Accepting moves the job
// open -> in-progress, which only one worker can win. The returned token
// carries the owner's current claims.
func (s *JobService) OwnerDecide(ctx context.Context, jobID, workerID uuid.UUID, accept bool, actor Actor) (*model.Job, string, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("owner_decide").
		WithUUID("job_id", jobID).
		WithUUID("worker_id", workerID).
		WithBool("accept", accept).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, "", err
	}
	if !actor.owns(job) {
		return nil, "", NewErrForbidden("only the job owner can decide on applicants")
	}
	assignment, found := job.Assignment(workerID)
	if !found {
		return nil, "", NewErrAssignmentNotFound(jobID, workerID)
	}

	if accept {
		err = s.accept(ctx, job, assignment)
	} else {
		err = s.reject(ctx, job, assignment)
	}
	if err != nil {
		tracer.Error(err).Log()
		return nil, "", err
	}

	token, err := s.tokens.Issue(actor.ID, actor.Name, actor.Role)
	if err != nil {
		tracer.Error(err).Log()
		return nil, "", err
	}

	job, err = getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, "", err
	}

	tracer.Success().WithString("status", string(job.Status)).Log()
	return job, token, nil
}

func (s *JobService) accept(ctx context.Context, job *model.Job, a model.Assignment) error {
	if a.OwnerAction == model.OwnerActionAccepted && job.Status == model.JobStatusInProgress {
		return nil
	}
	if a.WorkerAction != model.WorkerActionAccepted {
		return NewErrIllegalTransition(job.ID, "worker has not accepted the job")
	}

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	err = s.store.Job().UpdateWhere(txCtx, job.ID,
		store.NewJobPredicate().WithStatus(model.JobStatusOpen),
		map[string]any{"status": model.JobStatusInProgress})
	if errors.Is(err, store.ErrConditionFailed) {
		return NewErrIllegalTransition(job.ID, "job is not open or another worker was already accepted")
	}
	if err != nil {
		return err
	}

	err = s.store.Job().UpdateAssignmentWhere(txCtx, job.ID, a.WorkerID,
		store.NewAssignmentPredicate().
			WithOwnerAction(model.OwnerActionPending, model.OwnerActionCanceled).
			WithWorkerAction(model.WorkerActionAccepted),
		map[string]any{"owner_action": model.OwnerActionAccepted})
	if errors.Is(err, store.ErrConditionFailed) {
		return NewErrIllegalTransition(job.ID, "applicant changed concurrently")
	}
	if err != nil {
		return err
	}

	if _, err := store.Commit(txCtx); err != nil {
		return err
	}

	s.publish(ctx, events.JobAccepted, job, a.WorkerID)
	return nil
}

func (s *JobService) reject(ctx context.Context, job *model.Job, a model.Assignment) error {
	if a.OwnerAction == model.OwnerActionAccepted || a.OwnerAction == model.OwnerActionCompleted {
		return NewErrIllegalTransition(job.ID, "accepted worker cannot be rejected, cancel the job instead")
	}

	err := s.store.Job().UpdateAssignmentWhere(ctx, job.ID, a.WorkerID,
		store.NewAssignmentPredicate().WithOwnerAction(model.OwnerActionPending, model.OwnerActionCanceled),
		map[string]any{"owner_action": model.OwnerActionCanceled})
	if errors.Is(err, store.ErrConditionFailed) {
		return NewErrIllegalTransition(job.ID, "applicant was accepted concurrently")
	}
	if err != nil {
		return err
	}

	s.publish(ctx, events.JobRejected, job, a.WorkerID)
	return nil
}

// MarkCompleted records completion from either side. The worker's claim
// asks the owner for a review; the owner's confirmation settles the job.
func (s *JobService) MarkCompleted(ctx context.Context, jobID, workerID uuid.UUID, actor Actor) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("mark_completed").
		WithUUID("job_id", jobID).
		WithUUID("worker_id", workerID).
		WithString("role", string(actor.Role)).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	assignment, found := job.Assignment(workerID)
	if !found {
		return nil, NewErrAssignmentNotFound(jobID, workerID)
	}

	switch {
	case actor.Role == model.RoleShoveller:
		if actor.ID != workerID {
			return nil, NewErrForbidden("workers can only complete their own assignment")
		}
		if err := s.workerCompleted(ctx, job, assignment); err != nil {
			tracer.Error(err).Log()
			return nil, err
		}
	case actor.owns(job):
		if err := s.settlement.Settle(ctx, job, workerID); err != nil {
			tracer.Error(err).Log()
			return nil, err
		}
	default:
		return nil, NewErrForbidden("only the job owner or the worker can complete a job")
	}

	job, err = getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}

	tracer.Success().WithString("status", string(job.Status)).Log()
	return job, nil
}

func (s *JobService) workerCompleted(ctx context.Context, job *model.Job, a model.Assignment) error {
	if a.WorkerAction == model.WorkerActionCompleted {
		return nil
	}
	if job.Status != model.JobStatusInProgress || a.OwnerAction != model.OwnerActionAccepted {
		return NewErrIllegalTransition(job.ID, "only the accepted worker of an in-progress job can complete it")
	}

	err := s.store.Job().UpdateAssignmentWhere(ctx, job.ID, a.WorkerID,
		store.NewAssignmentPredicate().
			WithOwnerAction(model.OwnerActionAccepted).
			WithWorkerAction(model.WorkerActionAccepted, model.WorkerActionUncompleted),
		map[string]any{"worker_action": model.WorkerActionCompleted})
	if errors.Is(err, store.ErrConditionFailed) {
		return NewErrIllegalTransition(job.ID, "assignment changed concurrently")
	}
	if err != nil {
		return err
	}

	if owner, err := s.store.User().Get(ctx, job.OwnerID); err == nil {
		s.notifier.Notify(ctx, notification.ReviewRequested(owner.Email, owner.Name, job.ID.String()))
	}
	s.publish(ctx, events.JobWorkerDone, job, a.WorkerID)
	return nil
}

// CancelJob releases the payment hold and cancels the job. Nothing changes
// locally unless the gateway confirms the cancellation.
func (s *JobService) CancelJob(ctx context.Context, jobID, workerID uuid.UUID, actor Actor) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("cancel_job").
		WithUUID("job_id", jobID).
		WithUUID("worker_id", workerID).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner can cancel a job")
	}
	if job.Status == model.JobStatusCanceled {
		return job, nil
	}
	if job.PaymentIntentReferenceID == nil {
		return nil, NewErrIllegalTransition(jobID, "payment has not been authorized yet")
	}
	if job.Status.Terminal() || job.SettlementState != model.SettlementNone {
		return nil, NewErrIllegalTransition(jobID, "job is already being settled or closed")
	}
	assignment, found := job.Assignment(workerID)
	if !found {
		return nil, NewErrAssignmentNotFound(jobID, workerID)
	}
	if assignment.WorkerAction == model.WorkerActionCompleted && !job.CancelRequested {
		return nil, NewErrIllegalTransition(jobID, "worker already completed the job, request a cancellation first")
	}

	if err := s.cancelPayment(ctx, *job.PaymentIntentReferenceID); err != nil {
		tracer.Error(err).Log()
		return nil, err
	}
	tracer.Step("payment_canceled").Log()

	txCtx, err := s.store.NewTransactionContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		_, _ = store.Rollback(txCtx)
	}()

	err = s.store.Job().UpdateWhere(txCtx, jobID,
		store.NewJobPredicate().
			WithoutStatus(model.JobStatusCompleted, model.JobStatusCanceled).
			WithSettlementState(model.SettlementNone).
			WithPaymentStatus(model.PaymentStatusPending, model.PaymentStatusAuthorized, model.PaymentStatusCanceled),
		map[string]any{
			"status":         model.JobStatusCanceled,
			"payment_status": model.PaymentStatusCanceled,
		})
	if errors.Is(err, store.ErrConditionFailed) {
		tracer.Error(err).Log()
		return nil, NewErrIllegalTransition(jobID, "job changed while canceling")
	}
	if err != nil {
		return nil, err
	}
	if err := s.store.Job().UpdateAssignmentWhere(txCtx, jobID, workerID, nil,
		map[string]any{"owner_action": model.OwnerActionCanceled}); err != nil {
		return nil, err
	}
	if _, err := store.Commit(txCtx); err != nil {
		return nil, err
	}

	s.notifyCanceled(ctx, job, &workerID)
	s.publish(ctx, events.JobCanceled, job, workerID)

	job, err = getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	tracer.Success().Log()
	return job, nil
}

// CancelIfUnclaimed withdraws a job nobody holds. The job is parked as
// not-anymore first so no worker can be accepted while the hold is
// released.
func (s *JobService) CancelIfUnclaimed(ctx context.Context, jobID uuid.UUID, actor Actor) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("cancel_if_unclaimed").
		WithUUID("job_id", jobID).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner can withdraw a job")
	}
	switch job.Status {
	case model.JobStatusCanceled:
		return job, nil
	case model.JobStatusInProgress, model.JobStatusCompleted:
		return nil, NewErrIllegalTransition(jobID, "job was already taken")
	}

	err = s.store.Job().UpdateWhere(ctx, jobID,
		store.NewJobPredicate().WithStatus(model.JobStatusOpen, model.JobStatusNotAnymore),
		map[string]any{"status": model.JobStatusNotAnymore})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrIllegalTransition(jobID, "job was taken concurrently")
	}
	if err != nil {
		return nil, err
	}

	// A checkout may complete while the job is parked, so the intent is
	// re-read after every failed close and the close is tied to it.
	released := ""
	for attempt := 0; ; attempt++ {
		parked, err := getJob(ctx, s.store, jobID)
		if err != nil {
			return nil, err
		}
		intent := parked.PaymentIntentReferenceID
		if intent != nil && *intent != released {
			if err := s.cancelPayment(ctx, *intent); err != nil {
				tracer.Error(err).Log()
				s.reopen(ctx, tracer, jobID)
				return nil, err
			}
			released = *intent
		}

		err = s.store.Job().UpdateWhere(ctx, jobID,
			store.NewJobPredicate().
				WithStatus(model.JobStatusNotAnymore).
				WithPaymentStatus(model.PaymentStatusPending, model.PaymentStatusAuthorized, model.PaymentStatusCanceled).
				WithPaymentIntent(intent),
			map[string]any{
				"status":         model.JobStatusCanceled,
				"payment_status": model.PaymentStatusCanceled,
			})
		if err == nil {
			break
		}
		if !errors.Is(err, store.ErrConditionFailed) || attempt >= maxCloseAttempts {
			tracer.Error(err).Log()
			return nil, err
		}
		tracer.Step("payment_changed_while_parked").WithInt("attempt", attempt).Log()
	}

	s.notifyCanceled(ctx, job, nil)
	s.publish(ctx, events.JobCanceled, job, uuid.Nil)

	job, err = getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	tracer.Success().Log()
	return job, nil
}

// RequestCancel flags the job so the owner may cancel it even after the
// worker marked it completed. The status is left alone.
func (s *JobService) RequestCancel(ctx context.Context, jobID uuid.UUID, actor Actor) (*model.Job, error) {
	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner can request a cancellation")
	}
	if job.CancelRequested {
		return job, nil
	}

	err = s.store.Job().UpdateWhere(ctx, jobID,
		store.NewJobPredicate().WithoutStatus(model.JobStatusCompleted, model.JobStatusCanceled, model.JobStatusNotAnymore),
		map[string]any{"cancel_requested": true})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrIllegalTransition(jobID, "job is already closed")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.JobCancelRequest, job, uuid.Nil)
	return getJob(ctx, s.store, jobID)
}

// MarkUncompleted reverts a worker's completion claim the owner disputes.
// Payment is untouched.
func (s *JobService) MarkUncompleted(ctx context.Context, jobID, workerID uuid.UUID, actor Actor) (*model.Job, error) {
	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner or an admin can dispute a completion")
	}
	if _, found := job.Assignment(workerID); !found {
		return nil, NewErrAssignmentNotFound(jobID, workerID)
	}
	if job.Status != model.JobStatusInProgress {
		return nil, NewErrIllegalTransition(jobID, "only an in-progress job can be disputed")
	}

	err = s.store.Job().UpdateAssignmentWhere(ctx, jobID, workerID,
		store.NewAssignmentPredicate().WithWorkerAction(model.WorkerActionCompleted),
		map[string]any{"worker_action": model.WorkerActionUncompleted})
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrIllegalTransition(jobID, "worker has not marked the job completed")
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.JobUncompleted, job, workerID)
	return getJob(ctx, s.store, jobID)
}

// UpdateJobForm carries the descriptive fields of a job. Nil fields are
// left alone.
type UpdateJobForm struct {
	Schedule  *model.Schedule
	Latitude  *float64
	Longitude *float64
	Services  []string
}

// UpdateJob edits an open job. Payment fields never change here.
func (s *JobService) UpdateJob(ctx context.Context, jobID uuid.UUID, form UpdateJobForm, actor Actor) (*model.Job, error) {
	tracer := s.logger.WithContext(ctx).
		Operation("update_job").
		WithUUID("job_id", jobID).
		Build()

	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if !actor.owns(job) {
		return nil, NewErrForbidden("only the job owner can edit a job")
	}

	updates := map[string]any{}
	if form.Schedule != nil {
		updates["schedule"] = model.MakeJSONField(*form.Schedule)
	}
	if (form.Latitude == nil) != (form.Longitude == nil) {
		return nil, NewErrValidation("latitude and longitude must be updated together")
	}
	if form.Latitude != nil {
		updates["latitude"] = *form.Latitude
		updates["longitude"] = *form.Longitude
	}
	if form.Services != nil {
		if len(form.Services) == 0 {
			return nil, NewErrValidation("a job needs at least one service")
		}
		updates["services"] = model.MakeJSONField(form.Services)
	}
	if len(updates) == 0 {
		return nil, NewErrValidation("nothing to update")
	}

	err = s.store.Job().UpdateWhere(ctx, jobID, store.NewJobPredicate().WithStatus(model.JobStatusOpen), updates)
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrIllegalTransition(jobID, "only an open job can be edited")
	}
	if err != nil {
		tracer.Error(err).Log()
		return nil, err
	}

	s.publish(ctx, events.JobUpdated, job, uuid.Nil)
	tracer.Success().WithInt("fields", len(updates)).Log()
	return getJob(ctx, s.store, jobID)
}

type FeedbackForm struct {
	Rating *int
	Text   string
}

// Feedback is written once per side on a completed job. The owner's
// feedback carries the rating.
func (s *JobService) Feedback(ctx context.Context, jobID uuid.UUID, form FeedbackForm, actor Actor) (*model.Job, error) {
	job, err := getJob(ctx, s.store, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusCompleted {
		return nil, NewErrIllegalTransition(jobID, "feedback is only accepted on completed jobs")
	}

	var (
		where = store.NewJobPredicate().WithStatus(model.JobStatusCompleted)
		updates map[string]any
	)
	switch {
	case actor.owns(job):
		if form.Rating == nil || *form.Rating < 1 || *form.Rating > 5 {
			return nil, NewErrValidation("rating must be between 1 and 5")
		}
		where = where.IsNull("rating")
		updates = map[string]any{"rating": *form.Rating, "owner_feedback": form.Text}
	case actor.Role == model.RoleShoveller:
		winner, ok := job.Winner()
		if !ok || winner.WorkerID != actor.ID {
			return nil, NewErrForbidden("only the worker who completed the job can leave feedback")
		}
		where = where.IsNull("worker_feedback")
		updates = map[string]any{"worker_feedback": form.Text}
	default:
		return nil, NewErrForbidden("caller is not part of this job")
	}

	err = s.store.Job().UpdateWhere(ctx, jobID, where, updates)
	if errors.Is(err, store.ErrConditionFailed) {
		return nil, NewErrConflict("feedback for job %s was already submitted", jobID)
	}
	if err != nil {
		return nil, err
	}

	s.publish(ctx, events.JobFeedback, job, uuid.Nil)
	return getJob(ctx, s.store, jobID)
}

// reopen returns a parked job to open after its hold could not be released.
func (s *JobService) reopen(ctx context.Context, tracer *log.OperationTracer, jobID uuid.UUID) {
	if err := s.store.Job().UpdateWhere(ctx, jobID,
		store.NewJobPredicate().WithStatus(model.JobStatusNotAnymore),
		map[string]any{"status": model.JobStatusOpen}); err != nil {
		tracer.Error(err).WithString("step", "reopen").Log()
	}
}

func (s *JobService) cancelPayment(ctx context.Context, paymentIntentID string) error {
	pi, err := s.ledger.CancelPayment(ctx, paymentIntentID)
	if err != nil {
		return NewErrGateway("cancel payment", err)
	}
	if pi.Status != ledger.PaymentIntentCanceled {
		return NewErrGateway("cancel payment", errors.New("gateway reported status "+string(pi.Status)))
	}
	return nil
}

func (s *JobService) notifyCanceled(ctx context.Context, job *model.Job, workerID *uuid.UUID) {
	if owner, err := s.store.User().Get(ctx, job.OwnerID); err == nil {
		s.notifier.Notify(ctx, notification.JobCanceled(owner.Email, owner.Name, job.ID.String()))
	}
	if workerID == nil {
		return
	}
	if worker, err := s.store.User().Get(ctx, *workerID); err == nil {
		s.notifier.Notify(ctx, notification.JobCanceled(worker.Email, worker.Name, job.ID.String()))
	}
}

func (s *JobService) publish(ctx context.Context, kind events.Kind, job *model.Job, workerID uuid.UUID) {
	publishJob(ctx, s.publisher, kind, job, workerID)
}

func publishJob(ctx context.Context, p events.Publisher, kind events.Kind, job *model.Job, workerID uuid.UUID) {
	evt := events.JobEvent{
		JobID:   job.ID.String(),
		OwnerID: job.OwnerID.String(),
		Status:  string(job.Status),
		Amount:  job.PaymentAmount,
	}
	if workerID != uuid.Nil {
		evt.WorkerID = workerID.String()
	}
	p.Publish(ctx, kind, job.ID.String(), evt)
}

func getJob(ctx context.Context, s store.Store, id uuid.UUID) (*model.Job, error) {
	job, err := s.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}
	return job, nil
}

func getUser(ctx context.Context, s store.Store, id uuid.UUID) (*model.User, error) {
	user, err := s.User().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrUserNotFound(id)
		}
		return nil, err
	}
	return user, nil
}
