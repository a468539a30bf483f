package workflow

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/attachments"
	"github.com/opslane/access-portal/internal/catalog"
	"github.com/opslane/access-portal/internal/department"
	"github.com/opslane/access-portal/internal/directory"
	"gorm.io/gorm"
)

// Repository defines the data access methods for workflow tasks
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(t *Task) error
	GetByID(id string) (*Task, error)
	List(status TaskStatus, limit, offset int) ([]*Task, int64, error)
	// FindPending returns the pending task of the given type for the email,
	// or nil when there is none.
	FindPending(taskType TaskType, email string) (*Task, error)
	Update(t *Task) error
	// CompletePending flips the task to completed only if it is still
	// pending, writing the target binding and snapshot in the same statement.
	// Returns false when another completion won the race.
	CompletePending(id string, targetUserID *string, snapshot Snapshot, completedAt time.Time) (bool, error)
	Delete(id string) error
}

// Directory is the user store the engine gates completions on.
type Directory interface {
	GetByEmail(email string) (*directory.User, error)
	GetByID(id string) (*directory.User, error)
	DeleteInTx(tx *gorm.DB, id string) error
}

// Grants exposes the live product grant set for pending-task previews, and
// the locked transaction-scoped read completion snapshots are built from.
type Grants interface {
	ProductIDsForUser(userID string) ([]string, error)
	ProductIDsForUserLocked(tx *gorm.DB, userID string) ([]string, error)
}

// Catalog resolves product ids into the denormalized snapshot read model.
type Catalog interface {
	ProductInfos(productIDs []string) ([]catalog.ProductInfo, error)
}

// Departments resolves department labels and their default products for the
// pending-onboarding preview.
type Departments interface {
	Get(id string) (*department.Department, error)
	DefaultProductIDsByName(name string) ([]string, error)
}

type AuditRecorder interface {
	Record(actor, action, targetID string, details map[string]interface{})
}

type WorkflowService struct {
	db          *gorm.DB
	repo        Repository
	directory   Directory
	grants      Grants
	catalog     Catalog
	departments Departments
	store       attachments.Store
	audit       AuditRecorder
	logger      *slog.Logger
}

func NewService(
	db *gorm.DB,
	repo Repository,
	dir Directory,
	grants Grants,
	cat Catalog,
	departments Departments,
	store attachments.Store,
	audit AuditRecorder,
	logger *slog.Logger,
) *WorkflowService {
	return &WorkflowService{
		db:          db,
		repo:        repo,
		directory:   dir,
		grants:      grants,
		catalog:     cat,
		departments: departments,
		store:       store,
		audit:       audit,
		logger:      logger,
	}
}

// IntakeOnboarding registers a new-hire signal. Intake is idempotent: a
// repeated signal for an email that already has a pending task, or for a user
// who already exists, is acknowledged without creating anything.
func (s *WorkflowService) IntakeOnboarding(sig OnboardingSignal) (*IntakeResult, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	if user, err := s.directory.GetByEmail(sig.Email); err == nil && user != nil {
		s.logger.Info("onboarding signal for existing user ignored", "email", sig.Email)
		return &IntakeResult{Created: false, Message: "user already exists"}, nil
	} else if err != nil && !errors.Is(err, internal.ErrUserNotFound) {
		return nil, err
	}

	if existing, err := s.repo.FindPending(TaskTypeOnboarding, sig.Email); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info("duplicate onboarding signal ignored", "email", sig.Email, "task_id", existing.ID)
		return &IntakeResult{Task: existing, Created: false, Message: "pending onboarding task already exists"}, nil
	}

	task := &Task{
		ID:             uuid.NewString(),
		Type:           TaskTypeOnboarding,
		Status:         StatusPending,
		EmployeeName:   sig.Name,
		EmployeeEmail:  sig.Email,
		DepartmentName: sig.Department,
		Position:       sig.Position,
		HireDate:       sig.HireDate,
	}
	if err := s.repo.Create(task); err != nil {
		s.logger.Error("failed to create onboarding task", "error", err, "email", sig.Email)
		return nil, err
	}

	s.logger.Info("onboarding task created", "task_id", task.ID, "email", sig.Email)
	s.audit.Record("hr-webhook", "task.onboarding.intake", task.ID, map[string]interface{}{
		"email": sig.Email,
		"name":  sig.Name,
	})
	return &IntakeResult{Task: task, Created: true}, nil
}

// IntakeOffboarding registers a leaver signal. The employee fields are copied
// from the live user row so the task survives the user's deletion.
func (s *WorkflowService) IntakeOffboarding(sig OffboardingSignal) (*IntakeResult, error) {
	if err := sig.Validate(); err != nil {
		return nil, err
	}

	user, err := s.directory.GetByEmail(sig.Email)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindPending(TaskTypeOffboarding, sig.Email); err != nil {
		return nil, err
	} else if existing != nil {
		s.logger.Info("duplicate offboarding signal ignored", "email", sig.Email, "task_id", existing.ID)
		return &IntakeResult{Task: existing, Created: false, Message: "pending offboarding task already exists"}, nil
	}

	task := &Task{
		ID:              uuid.NewString(),
		Type:            TaskTypeOffboarding,
		Status:          StatusPending,
		EmployeeName:    user.Name,
		EmployeeEmail:   user.Email,
		Position:        user.Position,
		HireDate:        user.HireDate,
		ResignationDate: sig.ResignationDate,
		TargetUserID:    &user.ID,
	}
	if task.ResignationDate == nil {
		task.ResignationDate = user.ResignationDate
	}
	if user.DepartmentID != nil {
		if dept, err := s.departments.Get(*user.DepartmentID); err == nil {
			task.DepartmentName = &dept.Name
		}
	}

	if err := s.repo.Create(task); err != nil {
		s.logger.Error("failed to create offboarding task", "error", err, "email", sig.Email)
		return nil, err
	}

	s.logger.Info("offboarding task created", "task_id", task.ID, "email", sig.Email)
	s.audit.Record("hr-webhook", "task.offboarding.intake", task.ID, map[string]interface{}{
		"email":   sig.Email,
		"user_id": user.ID,
	})
	return &IntakeResult{Task: task, Created: true}, nil
}

func (s *WorkflowService) List(status TaskStatus, limit, offset int) ([]*Task, int64, error) {
	return s.repo.List(status, limit, offset)
}

// Get returns the task with its product view. While pending, the product list
// is computed live; once completed, the stored snapshot is authoritative.
func (s *WorkflowService) Get(id string) (*TaskView, error) {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	view := &TaskView{Task: *task}
	if task.IsCompleted() {
		view.AssignedProducts = task.Snapshot
		if view.AssignedProducts == nil {
			view.AssignedProducts = Snapshot{}
		}
		return view, nil
	}

	productIDs, err := s.pendingProductIDs(task)
	if err != nil {
		return nil, err
	}
	view.AssignedProducts, err = s.buildSnapshot(productIDs)
	if err != nil {
		return nil, err
	}
	return view, nil
}

// pendingProductIDs resolves the live grant preview for a pending task.
// Onboarding has no user yet, so the preview is the department defaults.
func (s *WorkflowService) pendingProductIDs(task *Task) ([]string, error) {
	switch task.Type {
	case TaskTypeOnboarding:
		if task.DepartmentName == nil || *task.DepartmentName == "" {
			return nil, nil
		}
		ids, err := s.departments.DefaultProductIDsByName(*task.DepartmentName)
		if err != nil {
			if errors.Is(err, internal.ErrDepartmentNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return ids, nil
	case TaskTypeOffboarding:
		if task.TargetUserID == nil {
			return nil, nil
		}
		return s.grants.ProductIDsForUser(*task.TargetUserID)
	default:
		return nil, nil
	}
}

// snapshotForUser reads the user's product grants under the completion
// transaction's row locks and resolves them into the snapshot shape.
func (s *WorkflowService) snapshotForUser(tx *gorm.DB, userID string) (Snapshot, error) {
	productIDs, err := s.grants.ProductIDsForUserLocked(tx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildSnapshot(productIDs)
}

func (s *WorkflowService) buildSnapshot(productIDs []string) (Snapshot, error) {
	if len(productIDs) == 0 {
		return Snapshot{}, nil
	}

	infos, err := s.catalog.ProductInfos(productIDs)
	if err != nil {
		return nil, err
	}

	snapshot := make(Snapshot, 0, len(infos))
	for _, info := range infos {
		admins := make([]SnapshotAdmin, 0, len(info.ServiceAdmins))
		for _, a := range info.ServiceAdmins {
			admins = append(admins, SnapshotAdmin{Name: a.Name, Email: a.Email})
		}
		snapshot = append(snapshot, SnapshotProduct{
			ProductID:     info.ProductID,
			ProductName:   info.ProductName,
			ServiceName:   info.ServiceName,
			ServiceAdmins: admins,
		})
	}
	return snapshot, nil
}

// Update appends a comment to the task's detail log.
func (s *WorkflowService) Update(actor, id string, dto UpdateTaskDTO) (*Task, error) {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return nil, internal.ErrTaskCompleted
	}

	if dto.Comment != nil && strings.TrimSpace(*dto.Comment) != "" {
		line := fmt.Sprintf("Comment: %s", strings.TrimSpace(*dto.Comment))
		if task.Details == "" {
			task.Details = line
		} else {
			task.Details = task.Details + "\n" + line
		}
	}

	if dto.DueDate != nil {
		task.DueDate = dto.DueDate
	}

	if err := s.repo.Update(task); err != nil {
		s.logger.Error("failed to update task", "error", err, "task_id", id)
		return nil, err
	}

	s.audit.Record(actor, "task.update", id, map[string]interface{}{
		"email": task.EmployeeEmail,
	})
	return task, nil
}

// AttachChecklist stores the checklist file and binds it to the task,
// replacing any previous upload.
func (s *WorkflowService) AttachChecklist(actor, id, filename string, content io.Reader) (*Task, error) {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return nil, internal.ErrTaskCompleted
	}

	path, err := s.store.Save(task.ID, filename, content)
	if err != nil {
		return nil, err
	}

	oldPath := task.AttachmentPath
	task.AttachmentPath = &path
	task.AttachmentName = &filename

	if err := s.repo.Update(task); err != nil {
		s.store.Delete(path)
		s.logger.Error("failed to bind attachment", "error", err, "task_id", id)
		return nil, err
	}

	if oldPath != nil && *oldPath != path {
		if err := s.store.Delete(*oldPath); err != nil {
			s.logger.Warn("failed to remove replaced attachment", "error", err, "path", *oldPath)
		}
	}

	s.audit.Record(actor, "task.attachment.upload", id, map[string]interface{}{
		"filename": filename,
	})
	return task, nil
}

// Attachment opens the task's checklist file for download.
func (s *WorkflowService) Attachment(id string) (io.ReadCloser, string, error) {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return nil, "", err
	}
	if task.AttachmentPath == nil {
		return nil, "", internal.ErrAttachmentNotFound
	}

	rc, err := s.store.Open(*task.AttachmentPath)
	if err != nil {
		return nil, "", err
	}

	name := "checklist"
	if task.AttachmentName != nil {
		name = *task.AttachmentName
	}
	return rc, name, nil
}

// Complete drives the task's irreversible side effect. The status flip is a
// conditional update on the pending state, so of two racing completions
// exactly one wins and the loser sees a conflict.
func (s *WorkflowService) Complete(actor, id string) (*Task, error) {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if task.IsCompleted() {
		return nil, internal.ErrTaskCompleted
	}
	if task.AttachmentPath == nil || !s.store.Exists(*task.AttachmentPath) {
		return nil, internal.ErrChecklistRequired
	}

	switch task.Type {
	case TaskTypeOnboarding:
		return s.completeOnboarding(actor, task)
	case TaskTypeOffboarding:
		return s.completeOffboarding(actor, task)
	default:
		return nil, internal.NewValidationError("unknown task type", internal.ErrCodeValidationFailed)
	}
}

func (s *WorkflowService) completeOnboarding(actor string, task *Task) (*Task, error) {
	user, err := s.directory.GetByEmail(task.EmployeeEmail)
	if err != nil {
		if errors.Is(err, internal.ErrUserNotFound) {
			return nil, internal.ErrUserNotProvisioned
		}
		return nil, err
	}

	// snapshot and status flip share the transaction, and the grant read
	// holds the same row locks the reconciler takes, so the snapshot records
	// exactly the grant set the completion commits against
	completedAt := time.Now().UTC()
	var snapshot Snapshot
	err = s.db.Transaction(func(tx *gorm.DB) error {
		snapshot, err = s.snapshotForUser(tx, user.ID)
		if err != nil {
			return err
		}
		won, err := s.repo.WithTx(tx).CompletePending(task.ID, &user.ID, snapshot, completedAt)
		if err != nil {
			return err
		}
		if !won {
			return internal.ErrTaskCompleted
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("onboarding task completed", "task_id", task.ID, "user_id", user.ID, "products", len(snapshot))
	s.audit.Record(actor, "task.complete", task.ID, map[string]interface{}{
		"type":     string(TaskTypeOnboarding),
		"email":    task.EmployeeEmail,
		"user_id":  user.ID,
		"products": len(snapshot),
	})
	return s.repo.GetByID(task.ID)
}

// completeOffboarding snapshots the user's access before deleting the user
// row, inside one transaction, so the snapshot and the deletion commit or
// roll back together. Deletion is keyed strictly off the bound TargetUserID:
// a nil binding means the user row is already gone, and a user recreated
// under the same email later is never touched by a stale task.
func (s *WorkflowService) completeOffboarding(actor string, task *Task) (*Task, error) {
	var user *directory.User
	if task.TargetUserID != nil {
		u, err := s.directory.GetByID(*task.TargetUserID)
		if err != nil {
			if !errors.Is(err, internal.ErrUserNotFound) {
				return nil, err
			}
		} else {
			user = u
		}
	}

	completedAt := time.Now().UTC()
	snapshot := Snapshot{}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var targetID *string
		if user != nil {
			targetID = &user.ID
			var err error
			snapshot, err = s.snapshotForUser(tx, user.ID)
			if err != nil {
				return err
			}
		}
		won, err := s.repo.WithTx(tx).CompletePending(task.ID, targetID, snapshot, completedAt)
		if err != nil {
			return err
		}
		if !won {
			return internal.ErrTaskCompleted
		}
		if user != nil {
			return s.directory.DeleteInTx(tx, user.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	details := map[string]interface{}{
		"type":     string(TaskTypeOffboarding),
		"email":    task.EmployeeEmail,
		"name":     task.EmployeeName,
		"products": len(snapshot),
	}
	if user != nil {
		details["user_id"] = user.ID
	} else {
		s.logger.Warn("offboarding target user already gone", "task_id", task.ID, "email", task.EmployeeEmail)
		details["user_already_deleted"] = true
	}

	s.logger.Info("offboarding task completed", "task_id", task.ID, "email", task.EmployeeEmail, "products", len(snapshot))
	s.audit.Record(actor, "task.complete", task.ID, details)
	return s.repo.GetByID(task.ID)
}

// Delete removes a completed task and its attachment blob. Pending tasks are
// the work queue and cannot be deleted.
func (s *WorkflowService) Delete(actor, id string) error {
	task, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}
	if !task.IsCompleted() {
		return internal.ErrTaskNotCompleted
	}

	if err := s.repo.Delete(id); err != nil {
		s.logger.Error("failed to delete task", "error", err, "task_id", id)
		return err
	}

	if task.AttachmentPath != nil {
		if err := s.store.Delete(*task.AttachmentPath); err != nil {
			s.logger.Warn("failed to remove attachment blob", "error", err, "path", *task.AttachmentPath)
		}
	}

	s.audit.Record(actor, "task.delete", id, map[string]interface{}{
		"type":  string(task.Type),
		"email": task.EmployeeEmail,
	})
	return nil
}
