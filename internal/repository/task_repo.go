package repository

import (
	"context"

	"github.com/BestAchadirect/Project-WebChat-sub001/internal/domain"
	"gorm.io/gorm"
)

// TaskFilter narrows a task listing. Zero values mean "any".
type TaskFilter struct {
	Status domain.TaskStatus
	Type   domain.TaskType
	Limit  int
	Offset int
}

// TaskRepository persists task records.
type TaskRepository struct {
	db *gorm.DB
}

// NewTaskRepository creates a new TaskRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *TaskRepository: repository instance bound to db.
func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

// WithTx returns a repository bound to the given transaction.
func (r *TaskRepository) WithTx(tx *gorm.DB) *TaskRepository {
	return &TaskRepository{db: tx}
}

// Create inserts a new task record.
func (r *TaskRepository) Create(ctx context.Context, task *domain.Task) error {
	return r.db.WithContext(ctx).Create(task).Error
}

// GetByID retrieves a task by its ID.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - id: task ID.
// Returns:
//   - *domain.Task: task record if found.
//   - error: apperr.ErrNotFound if absent, other errors if lookup fails.
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	if err := r.db.WithContext(ctx).First(&task, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "task", id)
	}
	return &task, nil
}

// List returns one page of tasks, newest first, and the total count matching the filter.
func (r *TaskRepository) List(ctx context.Context, filter TaskFilter) ([]domain.Task, int64, error) {
	query := r.db.WithContext(ctx).Model(&domain.Task{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Type != "" {
		query = query.Where("type = ?", filter.Type)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit, offset := clampPage(filter.Limit, filter.Offset)
	var tasks []domain.Task
	err := query.Order("created_at DESC").Order("id ASC").
		Limit(limit).Offset(offset).
		Find(&tasks).Error
	return tasks, total, err
}

// Transition applies updates only when the task is currently in one of the from states.
// Returns:
//   - bool: true if the row matched and was updated.
//   - error: non-nil if the update fails.
func (r *TaskRepository) Transition(ctx context.Context, id string, from []domain.TaskStatus, updates map[string]interface{}) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// AdvanceProgress raises progress on a running task. Lower or equal values match no row.
func (r *TaskRepository) AdvanceProgress(ctx context.Context, id string, progress int) (bool, error) {
	result := r.db.WithContext(ctx).Model(&domain.Task{}).
		Where("id = ? AND status = ? AND progress < ?", id, domain.TaskStatusRunning, progress).
		Update("progress", progress)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
