package workflow

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

type TaskType string

const (
	TaskTypeOnboarding  TaskType = "onboarding"
	TaskTypeOffboarding TaskType = "offboarding"
)

type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusCompleted TaskStatus = "completed"
)

// Task is one unit of provisioning work. The Employee* fields are copied from
// the HR signal (onboarding) or the live user row (offboarding) at intake, so
// the task remains readable after the user row is gone. Completed is a
// terminal state.
type Task struct {
	ID     string     `json:"id" gorm:"primaryKey"`
	Type   TaskType   `json:"type" gorm:"index"`
	Status TaskStatus `json:"status" gorm:"index"`

	EmployeeName    string     `json:"employee_name"`
	EmployeeEmail   string     `json:"employee_email" gorm:"index"`
	DepartmentName  *string    `json:"department_name,omitempty"`
	Position        *string    `json:"position,omitempty"`
	HireDate        *time.Time `json:"hire_date,omitempty"`
	ResignationDate *time.Time `json:"resignation_date,omitempty"`

	// TargetUserID binds the task to a user row once one exists. Nulled when
	// that row is deleted so the foreign key never dangles.
	TargetUserID *string `json:"target_user_id,omitempty"`

	AttachmentPath *string `json:"-"`
	AttachmentName *string `json:"attachment_name,omitempty"`

	Details string     `json:"details"`
	DueDate *time.Time `json:"due_date,omitempty"`

	// Snapshot is the product access recorded at completion time. It is the
	// historical record: live rows may change or disappear afterwards.
	Snapshot Snapshot `json:"snapshot,omitempty" gorm:"type:jsonb"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func (Task) TableName() string {
	return "workflow_tasks"
}

func (t *Task) IsCompleted() bool {
	return t.Status == StatusCompleted
}

type SnapshotProduct struct {
	ProductID     string          `json:"product_id"`
	ProductName   string          `json:"product_name"`
	ServiceName   string          `json:"service_name"`
	ServiceAdmins []SnapshotAdmin `json:"service_admins"`
}

type SnapshotAdmin struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Snapshot is stored as a JSON column.
type Snapshot []SnapshotProduct

func (s Snapshot) Value() (driver.Value, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (s *Snapshot) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var raw []byte
	switch v := value.(type) {
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("unsupported type for task snapshot: %T", value)
	}

	return json.Unmarshal(raw, s)
}
