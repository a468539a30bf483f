package grants

import (
	"time"

	"gorm.io/gorm"
)

// Source records which side of the merge produced a grant: an explicit
// administrator action, or department-default inheritance.
type Source string

const (
	SourceManual     Source = "manual"
	SourceDepartment Source = "department"
)

type TargetKind string

const (
	TargetProduct TargetKind = "product"
	TargetService TargetKind = "service"
)

// Target identifies the thing a grant points at. Exactly one kind per grant.
type Target struct {
	Kind TargetKind
	ID   string
}

func ProductTarget(id string) Target {
	return Target{Kind: TargetProduct, ID: id}
}

func ServiceTarget(id string) Target {
	return Target{Kind: TargetService, ID: id}
}

// Assignment is one durable grant row. The (user, product) and (user, service)
// pairs are natural keys: a second write flips the row's source in place, it
// never duplicates.
type Assignment struct {
	ID        string    `json:"id" gorm:"primaryKey"`
	UserID    string    `json:"user_id" gorm:"column:user_id;not null"`
	ProductID *string   `json:"product_id,omitempty" gorm:"column:product_id"`
	ServiceID *string   `json:"service_id,omitempty" gorm:"column:service_id"`
	Source    Source    `json:"source" gorm:"column:source;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"column:created_at"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Assignment) TableName() string {
	return "grant_assignments"
}

func (a *Assignment) Target() Target {
	if a.ProductID != nil {
		return ProductTarget(*a.ProductID)
	}
	if a.ServiceID != nil {
		return ServiceTarget(*a.ServiceID)
	}
	return Target{}
}

// DesiredGrantState is an administrator's explicit grant selection for one
// user. A nil *DesiredGrantState means the administrator did not touch the
// explicit list at all, which is different from an empty one (revoke all).
type DesiredGrantState struct {
	ProductIDs []string `json:"product_ids"`
	ServiceIDs []string `json:"service_ids"`
}

func (d DesiredGrantState) Targets() []Target {
	targets := make([]Target, 0, len(d.ProductIDs)+len(d.ServiceIDs))
	for _, id := range d.ProductIDs {
		targets = append(targets, ProductTarget(id))
	}
	for _, id := range d.ServiceIDs {
		targets = append(targets, ServiceTarget(id))
	}
	return targets
}

// Repository defines the data access methods for grant rows. All mutation
// goes through the Reconciler except DeleteAllForUser, the cascade path of
// user deletion.
type Repository interface {
	// WithTx returns a repository bound to the given transaction.
	WithTx(tx *gorm.DB) Repository
	// Upsert writes a grant by natural key: insert when absent, otherwise
	// overwrite the existing row's source in place.
	Upsert(userID string, target Target, source Source) error
	Remove(userID string, target Target) error
	// ListForUser returns every grant row for the user, all sources.
	ListForUser(userID string) ([]Assignment, error)
	// ListForUserLocked additionally takes row locks so two reconciliations
	// of the same user serialize.
	ListForUserLocked(userID string) ([]Assignment, error)
	// ProductIDsForUser returns just the product-targeted grant ids, the
	// shape snapshots are built from.
	ProductIDsForUser(userID string) ([]string, error)
	// ProductIDsForUserLocked is the same read bound to tx and taken under
	// the reconciler's row locks, for snapshot-then-delete sequences.
	ProductIDsForUserLocked(tx *gorm.DB, userID string) ([]string, error)
	DeleteAllForUser(userID string) error
}
