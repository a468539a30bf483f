package postgres

import (
	"time"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal/grants"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GrantRepository implements the grants.Repository interface using GORM
type GrantRepository struct {
	db *gorm.DB
}

func NewGrantRepository(db *gorm.DB) grants.Repository {
	return &GrantRepository{db: db}
}

func (r *GrantRepository) WithTx(tx *gorm.DB) grants.Repository {
	return &GrantRepository{db: tx}
}

// Upsert writes a grant by its natural key. The conflict target is the
// partial unique index on (user_id, product_id) or (user_id, service_id);
// on conflict only the source is overwritten.
func (r *GrantRepository) Upsert(userID string, target grants.Target, source grants.Source) error {
	now := time.Now()
	row := grants.Assignment{
		ID:        uuid.NewString(),
		UserID:    userID,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}

	var conflictCols []clause.Column
	var targetWhere clause.Where
	switch target.Kind {
	case grants.TargetProduct:
		id := target.ID
		row.ProductID = &id
		conflictCols = []clause.Column{{Name: "user_id"}, {Name: "product_id"}}
		targetWhere = clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "product_id IS NOT NULL"}}}
	case grants.TargetService:
		id := target.ID
		row.ServiceID = &id
		conflictCols = []clause.Column{{Name: "user_id"}, {Name: "service_id"}}
		targetWhere = clause.Where{Exprs: []clause.Expression{clause.Expr{SQL: "service_id IS NOT NULL"}}}
	}

	// TargetWhere repeats the partial index predicate so conflict arbiter
	// inference matches the index.
	return r.db.Clauses(clause.OnConflict{
		Columns:     conflictCols,
		TargetWhere: targetWhere,
		DoUpdates:   clause.Assignments(map[string]interface{}{"source": source, "updated_at": now}),
	}).Create(&row).Error
}

func (r *GrantRepository) Remove(userID string, target grants.Target) error {
	query := r.db.Where("user_id = ?", userID)
	switch target.Kind {
	case grants.TargetProduct:
		query = query.Where("product_id = ?", target.ID)
	case grants.TargetService:
		query = query.Where("service_id = ?", target.ID)
	}
	// absent row is a no-op, not an error
	return query.Delete(&grants.Assignment{}).Error
}

func (r *GrantRepository) ListForUser(userID string) ([]grants.Assignment, error) {
	var assignments []grants.Assignment
	err := r.db.Where("user_id = ?", userID).Find(&assignments).Error
	return assignments, err
}

// ListForUserLocked reads the user's grant rows under FOR UPDATE so that two
// concurrent reconciliations of the same user serialize on the store's
// row-level locks. SQLite (tests) has no row locks; its single-writer model
// covers the same guarantee.
func (r *GrantRepository) ListForUserLocked(userID string) ([]grants.Assignment, error) {
	query := r.db.Where("user_id = ?", userID)
	if r.db.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var assignments []grants.Assignment
	err := query.Find(&assignments).Error
	return assignments, err
}

func (r *GrantRepository) ProductIDsForUser(userID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&grants.Assignment{}).
		Where("user_id = ? AND product_id IS NOT NULL", userID).
		Pluck("product_id", &ids).Error
	return ids, err
}

func (r *GrantRepository) ProductIDsForUserLocked(tx *gorm.DB, userID string) ([]string, error) {
	query := tx.Model(&grants.Assignment{}).
		Where("user_id = ? AND product_id IS NOT NULL", userID)
	if tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var ids []string
	err := query.Pluck("product_id", &ids).Error
	return ids, err
}

func (r *GrantRepository) DeleteAllForUser(userID string) error {
	return r.db.Where("user_id = ?", userID).Delete(&grants.Assignment{}).Error
}
