package directory

import (
	"time"
)

// User is one employee identity record. Deleting a user cascades grant
// removal and nulls any workflow-task back references; the task rows survive.
type User struct {
	ID              string     `json:"id" gorm:"primaryKey"`
	Name            string     `json:"name" gorm:"not null"`
	Email           string     `json:"email" gorm:"not null;unique"`
	DepartmentID    *string    `json:"department_id,omitempty" gorm:"column:department_id"`
	Position        *string    `json:"position,omitempty"`
	HireDate        *time.Time `json:"hire_date,omitempty" gorm:"column:hire_date;type:date"`
	ResignationDate *time.Time `json:"resignation_date,omitempty" gorm:"column:resignation_date;type:date"`
	IsActive        bool       `json:"is_active" gorm:"column:is_active;default:true"`
	CreatedAt       time.Time  `json:"created_at" gorm:"column:created_at"`
	UpdatedAt       time.Time  `json:"updated_at" gorm:"column:updated_at"`
}

func (User) TableName() string {
	return "users"
}
