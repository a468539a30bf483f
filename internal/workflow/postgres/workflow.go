package postgres

import (
	"errors"
	"time"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/workflow"
	"gorm.io/gorm"
)

type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) WithTx(tx *gorm.DB) workflow.Repository {
	return &TaskRepository{db: tx}
}

func (r *TaskRepository) Create(t *workflow.Task) error {
	return r.db.Create(t).Error
}

func (r *TaskRepository) GetByID(id string) (*workflow.Task, error) {
	var task workflow.Task
	if err := r.db.First(&task, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrTaskNotFound
		}
		return nil, err
	}
	return &task, nil
}

// List returns tasks pending first, newest first within each status.
func (r *TaskRepository) List(status workflow.TaskStatus, limit, offset int) ([]*workflow.Task, int64, error) {
	var tasks []*workflow.Task
	var total int64

	query := r.db.Model(&workflow.Task{})
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Order("CASE WHEN status = 'pending' THEN 0 ELSE 1 END").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, err
	}
	return tasks, total, nil
}

func (r *TaskRepository) FindPending(taskType workflow.TaskType, email string) (*workflow.Task, error) {
	var task workflow.Task
	err := r.db.
		Where("type = ? AND status = ? AND LOWER(employee_email) = LOWER(?)", taskType, workflow.StatusPending, email).
		First(&task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &task, nil
}

func (r *TaskRepository) Update(t *workflow.Task) error {
	return r.db.Save(t).Error
}

// CompletePending is the check-and-set completion: the WHERE clause on the
// pending status means a task already completed by a concurrent request
// matches zero rows.
func (r *TaskRepository) CompletePending(id string, targetUserID *string, snapshot workflow.Snapshot, completedAt time.Time) (bool, error) {
	result := r.db.Model(&workflow.Task{}).
		Where("id = ? AND status = ?", id, workflow.StatusPending).
		Updates(map[string]interface{}{
			"status":         workflow.StatusCompleted,
			"target_user_id": targetUserID,
			"snapshot":       snapshot,
			"completed_at":   completedAt,
			"updated_at":     completedAt,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *TaskRepository) Delete(id string) error {
	result := r.db.Delete(&workflow.Task{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrTaskNotFound
	}
	return nil
}

// ClearTargetUser nulls the user back reference on every task pointing at the
// user. Completed tasks keep their snapshot and employee fields.
func (r *TaskRepository) ClearTargetUser(tx *gorm.DB, userID string) error {
	return tx.Model(&workflow.Task{}).
		Where("target_user_id = ?", userID).
		Update("target_user_id", nil).Error
}
