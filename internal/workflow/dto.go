package workflow

import (
	"strings"
	"time"

	"github.com/opslane/access-portal/internal"
)

// OnboardingSignal is the HR system's new-hire notification. Department is a
// display name, not an id: the department may not even exist in the portal
// yet when the signal arrives.
type OnboardingSignal struct {
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	Department *string    `json:"department,omitempty"`
	Position   *string    `json:"position,omitempty"`
	HireDate   *time.Time `json:"hire_date,omitempty"`
}

func (sig OnboardingSignal) Validate() error {
	if strings.TrimSpace(sig.Name) == "" {
		return internal.NewValidationError("name is required", internal.ErrCodeMissingField)
	}
	if strings.TrimSpace(sig.Email) == "" {
		return internal.NewValidationError("email is required", internal.ErrCodeMissingField)
	}
	if !strings.Contains(sig.Email, "@") {
		return internal.NewValidationError("email is malformed", internal.ErrCodeValidationFailed)
	}
	return nil
}

type OffboardingSignal struct {
	Name            string     `json:"name"`
	Email           string     `json:"email"`
	ResignationDate *time.Time `json:"resignation_date,omitempty"`
}

func (sig OffboardingSignal) Validate() error {
	if strings.TrimSpace(sig.Email) == "" {
		return internal.NewValidationError("email is required", internal.ErrCodeMissingField)
	}
	if !strings.Contains(sig.Email, "@") {
		return internal.NewValidationError("email is malformed", internal.ErrCodeValidationFailed)
	}
	return nil
}

// IntakeResult distinguishes a freshly created task from an idempotent no-op.
type IntakeResult struct {
	Task    *Task  `json:"task,omitempty"`
	Created bool   `json:"created"`
	Message string `json:"message,omitempty"`
}

// UpdateTaskDTO carries the edits allowed on a pending task. Comment is
// appended to the task's detail log, not stored as a separate row.
type UpdateTaskDTO struct {
	Comment *string    `json:"comment,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// TaskView is the detail read model. AssignedProducts is computed live while
// the task is pending and comes from the stored snapshot once completed.
type TaskView struct {
	Task
	AssignedProducts []SnapshotProduct `json:"assigned_products"`
}
