package store

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/shovel-house/shovel-api/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultNearLimit = 20

type Job interface {
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	GetByPaymentReference(ctx context.Context, ref string) (*model.Job, error)
	GetByPaymentIntentReference(ctx context.Context, ref string) (*model.Job, error)
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	FindNear(ctx context.Context, lat, lon float64, limit int) (model.JobList, error)
	UpdateWhere(ctx context.Context, id uuid.UUID, where *JobPredicate, updates map[string]any) error
	AppendAssignment(ctx context.Context, assignment model.Assignment) error
	UpdateAssignmentWhere(ctx context.Context, jobID, workerID uuid.UUID, where *AssignmentPredicate, updates map[string]any) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type JobStore struct {
	db *gorm.DB
}

// Make sure we conform to Job interface
var _ Job = (*JobStore)(nil)

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	result := j.getDB(ctx).Omit(clause.Associations).Create(&job)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return nil, ErrDuplicateKey
		}
		return nil, result.Error
	}
	return j.Get(ctx, job.ID)
}

func (j *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	return j.first(ctx, "id = ?", id)
}

func (j *JobStore) GetByPaymentReference(ctx context.Context, ref string) (*model.Job, error) {
	return j.first(ctx, "payment_reference_id = ?", ref)
}

func (j *JobStore) GetByPaymentIntentReference(ctx context.Context, ref string) (*model.Job, error) {
	return j.first(ctx, "payment_intent_reference_id = ?", ref)
}

func (j *JobStore) first(ctx context.Context, query string, args ...any) (*model.Job, error) {
	var job model.Job
	result := j.withAssignments(j.getDB(ctx)).Where(query, args...).First(&job)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, result.Error
	}
	return &job, nil
}

func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := j.withAssignments(j.getDB(ctx).Model(&jobs))

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	} else {
		tx = tx.Order("jobs.created_at DESC")
	}

	if err := tx.Find(&jobs).Error; err != nil {
		return nil, err
	}
	return jobs, nil
}

// FindNear returns open jobs sorted by distance from (lat, lon). Longitude
// deltas are scaled by cos(lat) so the ordering approximates great-circle
// distance for the short ranges jobs are searched in.
func (j *JobStore) FindNear(ctx context.Context, lat, lon float64, limit int) (model.JobList, error) {
	if limit <= 0 {
		limit = DefaultNearLimit
	}
	scale := math.Cos(lat * math.Pi / 180)

	var jobs model.JobList
	err := j.withAssignments(j.getDB(ctx).Model(&jobs)).
		Where("jobs.status = ?", model.JobStatusOpen).
		Order(clause.OrderBy{Expression: clause.Expr{
			SQL:                "((jobs.latitude - ?) * (jobs.latitude - ?)) + ((jobs.longitude - ?) * (jobs.longitude - ?) * ?)",
			Vars:               []any{lat, lat, lon, lon, scale * scale},
			WithoutParentheses: true,
		}}).
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

func (j *JobStore) UpdateWhere(ctx context.Context, id uuid.UUID, where *JobPredicate, updates map[string]any) error {
	tx := j.getDB(ctx).Model(&model.Job{}).Where("id = ?", id)
	if where != nil {
		for _, fn := range where.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Updates(updates)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return ErrDuplicateKey
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

// AppendAssignment inserts the assignment only while its job is open. The
// composite primary key rejects a second application from the same worker.
func (j *JobStore) AppendAssignment(ctx context.Context, a model.Assignment) error {
	now := time.Now()
	result := j.getDB(ctx).Exec(
		`INSERT INTO assignments (job_id, worker_id, created_at, updated_at, worker_action, owner_action, payout_status, payout_attempts, payout_amount)
		SELECT ?, ?, ?, ?, ?, ?, ?, 0, 0 WHERE EXISTS (SELECT 1 FROM jobs WHERE id = ? AND status = ?)`,
		a.JobID, a.WorkerID, now, now, a.WorkerAction, model.OwnerActionPending, model.PayoutStatusNone,
		a.JobID, model.JobStatusOpen,
	)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return ErrDuplicateKey
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (j *JobStore) UpdateAssignmentWhere(ctx context.Context, jobID, workerID uuid.UUID, where *AssignmentPredicate, updates map[string]any) error {
	tx := j.getDB(ctx).Model(&model.Assignment{}).Where("job_id = ? AND worker_id = ?", jobID, workerID)
	if where != nil {
		for _, fn := range where.QueryFn {
			tx = fn(tx)
		}
	}

	result := tx.Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConditionFailed
	}
	return nil
}

func (j *JobStore) Delete(ctx context.Context, id uuid.UUID) error {
	db := j.getDB(ctx)
	if err := db.Where("job_id = ?", id).Delete(&model.Assignment{}).Error; err != nil {
		return err
	}
	result := db.Unscoped().Delete(&model.Job{}, "id = ?", id)
	if result.Error != nil && !errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return result.Error
	}
	return nil
}

func (j *JobStore) withAssignments(tx *gorm.DB) *gorm.DB {
	return tx.Preload("Assignments", func(db *gorm.DB) *gorm.DB {
		return db.Order("assignments.created_at ASC")
	})
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	return getDB(ctx, j.db)
}
