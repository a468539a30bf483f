package department

import (
	"time"
)

type Department struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"not null;unique"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Department) TableName() string {
	return "departments"
}

// DepartmentProduct is one default-product row of a department's catalog.
type DepartmentProduct struct {
	DepartmentID string `gorm:"column:department_id;primaryKey"`
	ProductID    string `gorm:"column:product_id;primaryKey"`
}

func (DepartmentProduct) TableName() string {
	return "department_product_assignments"
}
