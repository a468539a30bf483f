package postgres

import (
	"errors"
	"strings"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/directory"
	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) WithTx(tx *gorm.DB) directory.Repository {
	return &UserRepository{db: tx}
}

func (r *UserRepository) Create(u *directory.User) error {
	return r.db.Create(u).Error
}

func (r *UserRepository) GetByID(id string) (*directory.User, error) {
	var user directory.User
	if err := r.db.First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(email string) (*directory.User, error) {
	var user directory.User
	if err := r.db.First(&user, "LOWER(email) = LOWER(?)", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) Search(search string, limit, offset int) ([]*directory.User, int64, error) {
	var users []*directory.User
	var total int64

	query := r.db.Model(&directory.User{})
	if search = strings.TrimSpace(search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := query.Order("name ASC").Limit(limit).Offset(offset).Find(&users).Error; err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (r *UserRepository) Update(u *directory.User) error {
	return r.db.Save(u).Error
}

func (r *UserRepository) Delete(id string) error {
	result := r.db.Delete(&directory.User{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return internal.ErrUserNotFound
	}
	return nil
}
