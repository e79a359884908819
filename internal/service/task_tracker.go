package service

import (
	"context"
	"strings"
	"time"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/apperr"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/logger"
	"github.com/BestAchadirect/Project-WebChat-sub001/internal/repository"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskTracker owns the task state machine:
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// Transitions for one task are serialized in-process by a keyed lock and across
// processes by conditional updates, so a rejected transition never changes the row.
type TaskTracker struct {
	db    *gorm.DB
	tasks *repository.TaskRepository
	locks keyedMutex
	now   func() time.Time
}

// TaskTrackerOption customizes a TaskTracker.
type TaskTrackerOption func(*TaskTracker)

// WithClock overrides the time source used for task timestamps.
func WithClock(now func() time.Time) TaskTrackerOption {
	return func(t *TaskTracker) { t.now = now }
}

// NewTaskTracker creates a tracker backed by db.
func NewTaskTracker(db *gorm.DB, opts ...TaskTrackerOption) *TaskTracker {
	t := &TaskTracker{
		db:    db,
		tasks: repository.NewTaskRepository(db),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Create records a new pending task and returns it without waiting for any work.
// A zero metadata version is stamped with the current schema version.
func (t *TaskTracker) Create(ctx context.Context, taskType domain.TaskType, description string, meta domain.TaskMetadata) (*domain.Task, error) {
	if !taskType.Valid() {
		return nil, apperr.New(apperr.ErrValidation, "unknown task type %q", taskType)
	}
	if meta.Version == 0 {
		meta.Version = domain.TaskMetadataVersion
	}
	if err := meta.Validate(taskType); err != nil {
		return nil, apperr.Wrap(apperr.ErrValidation, err, "invalid task metadata")
	}

	task := &domain.Task{
		ID:          uuid.NewString(),
		Type:        taskType,
		Status:      domain.TaskStatusPending,
		Description: description,
		Metadata:    datatypes.NewJSONType(meta),
		CreatedAt:   t.now(),
	}
	if err := t.tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	logger.CtxInfo(logger.SetTaskID(ctx, task.ID), "Task created: type=%s", taskType)
	return task, nil
}

// Get returns a task by ID.
func (t *TaskTracker) Get(ctx context.Context, id string) (*domain.Task, error) {
	return t.tasks.GetByID(ctx, id)
}

// List returns a page of tasks, newest first, plus the total matching count.
func (t *TaskTracker) List(ctx context.Context, filter repository.TaskFilter) ([]domain.Task, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "unknown task status %q", filter.Status)
	}
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, 0, apperr.New(apperr.ErrInvalidArgument, "unknown task type %q", filter.Type)
	}
	return t.tasks.List(ctx, filter)
}

// Start moves a pending task to running.
func (t *TaskTracker) Start(ctx context.Context, id string) (*domain.Task, error) {
	return t.transition(ctx, id, "start", []domain.TaskStatus{domain.TaskStatusPending}, map[string]interface{}{
		"status":     domain.TaskStatusRunning,
		"started_at": t.now(),
	})
}

// Complete moves a running task to completed with progress 100.
func (t *TaskTracker) Complete(ctx context.Context, id string) (*domain.Task, error) {
	return t.transition(ctx, id, "complete", []domain.TaskStatus{domain.TaskStatusRunning}, t.completedUpdates())
}

// CompleteWith completes a running task in the same transaction as fn.
// If the task is not running, fn is not called and nothing is written; if fn fails
// the task stays running.
func (t *TaskTracker) CompleteWith(ctx context.Context, id string, fn func(tx *gorm.DB) error) (*domain.Task, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tasks := t.tasks.WithTx(tx)
		ok, err := tasks.Transition(ctx, id, []domain.TaskStatus{domain.TaskStatusRunning}, t.completedUpdates())
		if err != nil {
			return err
		}
		if !ok {
			return t.rejected(ctx, tasks, id, "complete")
		}
		return fn(tx)
	})
	if err != nil {
		return nil, err
	}
	return t.tasks.GetByID(ctx, id)
}

// Fail moves a running task to failed. The message must not be empty.
func (t *TaskTracker) Fail(ctx context.Context, id, errMsg string) (*domain.Task, error) {
	if strings.TrimSpace(errMsg) == "" {
		return nil, apperr.New(apperr.ErrValidation, "failure message is required")
	}
	return t.transition(ctx, id, "fail", []domain.TaskStatus{domain.TaskStatusRunning}, map[string]interface{}{
		"status":        domain.TaskStatusFailed,
		"error_message": errMsg,
		"completed_at":  t.now(),
	})
}

// Cancel moves a pending or running task to cancelled.
// Running work notices at its next checkpoint.
func (t *TaskTracker) Cancel(ctx context.Context, id string) (*domain.Task, error) {
	return t.transition(ctx, id, "cancel", []domain.TaskStatus{domain.TaskStatusPending, domain.TaskStatusRunning}, map[string]interface{}{
		"status":       domain.TaskStatusCancelled,
		"completed_at": t.now(),
	})
}

// ReportProgress raises the progress of a running task.
// Values outside [0, 100] are rejected; a value below the stored one is ignored.
func (t *TaskTracker) ReportProgress(ctx context.Context, id string, value int) (*domain.Task, error) {
	if value < 0 || value > 100 {
		return nil, apperr.New(apperr.ErrInvalidArgument, "progress %d out of range [0, 100]", value)
	}

	unlock := t.locks.Lock(id)
	defer unlock()

	if _, err := t.tasks.AdvanceProgress(ctx, id, value); err != nil {
		return nil, err
	}
	task, err := t.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.Status != domain.TaskStatusRunning {
		return nil, apperr.New(apperr.ErrInvalidTransition,
			"cannot report progress on task %s in status %s", id, task.Status)
	}
	return task, nil
}

// IsCancelled reports whether the task has been cancelled.
func (t *TaskTracker) IsCancelled(ctx context.Context, id string) (bool, error) {
	task, err := t.tasks.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	return task.Status == domain.TaskStatusCancelled, nil
}

func (t *TaskTracker) completedUpdates() map[string]interface{} {
	return map[string]interface{}{
		"status":       domain.TaskStatusCompleted,
		"progress":     100,
		"completed_at": t.now(),
	}
}

func (t *TaskTracker) transition(ctx context.Context, id, action string, from []domain.TaskStatus, updates map[string]interface{}) (*domain.Task, error) {
	unlock := t.locks.Lock(id)
	defer unlock()

	ok, err := t.tasks.Transition(ctx, id, from, updates)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, t.rejected(ctx, t.tasks, id, action)
	}

	task, err := t.tasks.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	logger.With(logger.Fields{logger.FieldStatus: task.Status}).
		Debug(logger.SetTaskID(ctx, id), "Task %s", action)
	return task, nil
}

// rejected builds the error for a transition that matched no row.
func (t *TaskTracker) rejected(ctx context.Context, tasks *repository.TaskRepository, id, action string) error {
	task, err := tasks.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.New(apperr.ErrInvalidTransition, "cannot %s task %s in status %s", action, id, task.Status)
}
