package catalog

import (
	"time"
)

// Product status rows are seeded by migration; the IDs are stable.
const (
	StatusActive   = 1
	StatusInactive = 2
	StatusOverdue  = 3
)

type Service struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name" gorm:"not null"`
	Vendor    *string        `json:"vendor,omitempty"`
	URL       *string        `json:"url,omitempty" gorm:"column:url"`
	Admins    []ServiceAdmin `json:"admins,omitempty" gorm:"foreignKey:ServiceID"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (Service) TableName() string {
	return "services"
}

// ServiceAdmin is a contact responsible for granting access on the vendor
// side. Snapshots denormalize these contacts so they survive later edits.
type ServiceAdmin struct {
	ServiceID string `json:"-" gorm:"column:service_id;primaryKey"`
	Email     string `json:"email" gorm:"primaryKey"`
	Name      string `json:"name" gorm:"not null"`
}

func (ServiceAdmin) TableName() string {
	return "service_admins"
}

type ProductStatus struct {
	ID   int    `json:"id" gorm:"primaryKey"`
	Name string `json:"name" gorm:"not null;unique"`
}

func (ProductStatus) TableName() string {
	return "product_statuses"
}

type Product struct {
	ID          string    `json:"id" gorm:"primaryKey"`
	ServiceID   *string   `json:"service_id,omitempty" gorm:"column:service_id"`
	Name        string    `json:"name" gorm:"not null"`
	URL         *string   `json:"url,omitempty" gorm:"column:url"`
	Description *string   `json:"description,omitempty"`
	StatusID    int       `json:"status_id" gorm:"column:status_id;default:1"`
	CreatedAt   time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt   time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Product) TableName() string {
	return "products"
}

func (p *Product) IsActive() bool {
	return p.StatusID == StatusActive
}

// ProductInfo is the denormalized read model handed to snapshot builders:
// product name, owning service name and the service's admin contacts.
type ProductInfo struct {
	ProductID     string         `json:"product_id"`
	ProductName   string         `json:"product_name"`
	ServiceName   string         `json:"service_name"`
	ServiceAdmins []AdminContact `json:"service_admins"`
}

type AdminContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
