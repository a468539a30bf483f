package postgres

import (
	"time"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/catalog"
	"github.com/opslane/access-portal/internal/department"
	"gorm.io/gorm"
)

// DepartmentRepository implements the department.Repository interface using GORM
type DepartmentRepository struct {
	db *gorm.DB
}

func NewDepartmentRepository(db *gorm.DB) department.Repository {
	return &DepartmentRepository{db: db}
}

func (r *DepartmentRepository) Create(dept *department.Department) error {
	return r.db.Create(dept).Error
}

func (r *DepartmentRepository) GetByID(id string) (*department.Department, error) {
	var dept department.Department
	err := r.db.Where("id = ?", id).First(&dept).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dept, nil
}

func (r *DepartmentRepository) GetByName(name string) (*department.Department, error) {
	var dept department.Department
	err := r.db.Where("name = ?", name).First(&dept).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrDepartmentNotFound
		}
		return nil, err
	}
	return &dept, nil
}

func (r *DepartmentRepository) List(limit, offset int) ([]*department.Department, int64, error) {
	var depts []*department.Department

	var total int64
	if err := r.db.Model(&department.Department{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := r.db.Order("name ASC").Limit(limit).Offset(offset).Find(&depts).Error
	return depts, total, err
}

func (r *DepartmentRepository) Update(dept *department.Department) error {
	dept.UpdatedAt = time.Now()
	return r.db.Save(dept).Error
}

func (r *DepartmentRepository) Delete(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("department_id = ?", id).Delete(&department.DepartmentProduct{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&department.Department{}).Error
	})
}

// SetProducts replaces all default-product rows for a department in one
// transaction.
func (r *DepartmentRepository) SetProducts(departmentID string, productIDs []string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("department_id = ?", departmentID).Delete(&department.DepartmentProduct{}).Error; err != nil {
			return err
		}

		if len(productIDs) == 0 {
			return nil
		}

		rows := make([]department.DepartmentProduct, 0, len(productIDs))
		for _, pid := range productIDs {
			rows = append(rows, department.DepartmentProduct{
				DepartmentID: departmentID,
				ProductID:    pid,
			})
		}
		return tx.Create(&rows).Error
	})
}

func (r *DepartmentRepository) GetProducts(departmentID string) ([]*catalog.Product, error) {
	var products []*catalog.Product
	err := r.db.
		Joins("JOIN department_product_assignments dpa ON dpa.product_id = products.id").
		Where("dpa.department_id = ?", departmentID).
		Find(&products).Error
	return products, err
}

func (r *DepartmentRepository) ActiveProductsFor(departmentID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&catalog.Product{}).
		Joins("JOIN department_product_assignments dpa ON dpa.product_id = products.id").
		Where("dpa.department_id = ? AND products.status_id = ?", departmentID, catalog.StatusActive).
		Pluck("products.id", &ids).Error
	return ids, err
}
