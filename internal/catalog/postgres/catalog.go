package postgres

import (
	"time"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/catalog"
	"gorm.io/gorm"
)

// CatalogRepository implements the catalog.Repository interface using GORM
type CatalogRepository struct {
	db *gorm.DB
}

func NewCatalogRepository(db *gorm.DB) catalog.Repository {
	return &CatalogRepository{db: db}
}

func (r *CatalogRepository) CreateService(svc *catalog.Service) error {
	return r.db.Create(svc).Error
}

func (r *CatalogRepository) GetService(id string) (*catalog.Service, error) {
	var svc catalog.Service
	err := r.db.Preload("Admins").Where("id = ?", id).First(&svc).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrServiceNotFound
		}
		return nil, err
	}
	return &svc, nil
}

func (r *CatalogRepository) ListServices(search string, limit, offset int) ([]*catalog.Service, int64, error) {
	var services []*catalog.Service
	query := r.db.Model(&catalog.Service{})
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR vendor LIKE ?", pattern, pattern)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Admins").
		Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&services).Error
	return services, total, err
}

func (r *CatalogRepository) UpdateService(svc *catalog.Service) error {
	svc.UpdatedAt = time.Now()
	return r.db.Omit("Admins").Save(svc).Error
}

func (r *CatalogRepository) ReplaceServiceAdmins(serviceID string, admins []catalog.ServiceAdmin) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", serviceID).Delete(&catalog.ServiceAdmin{}).Error; err != nil {
			return err
		}
		if len(admins) == 0 {
			return nil
		}
		return tx.Create(&admins).Error
	})
}

func (r *CatalogRepository) DeleteService(id string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("service_id = ?", id).Delete(&catalog.ServiceAdmin{}).Error; err != nil {
			return err
		}
		// products keep existing with a null service reference
		if err := tx.Model(&catalog.Product{}).Where("service_id = ?", id).Update("service_id", nil).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&catalog.Service{}).Error
	})
}

func (r *CatalogRepository) CreateProduct(p *catalog.Product) error {
	return r.db.Create(p).Error
}

func (r *CatalogRepository) GetProduct(id string) (*catalog.Product, error) {
	var p catalog.Product
	err := r.db.Where("id = ?", id).First(&p).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, internal.ErrProductNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *CatalogRepository) ListProducts(search string, limit, offset int) ([]*catalog.Product, int64, error) {
	var products []*catalog.Product
	query := r.db.Model(&catalog.Product{})
	if search != "" {
		query = query.Where("name LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("name ASC").
		Limit(limit).
		Offset(offset).
		Find(&products).Error
	return products, total, err
}

func (r *CatalogRepository) UpdateProduct(p *catalog.Product) error {
	p.UpdatedAt = time.Now()
	return r.db.Save(p).Error
}

func (r *CatalogRepository) DeleteProduct(id string) error {
	return r.db.Where("id = ?", id).Delete(&catalog.Product{}).Error
}

func (r *CatalogRepository) ProductInfos(productIDs []string) ([]catalog.ProductInfo, error) {
	var products []*catalog.Product
	if err := r.db.Where("id IN ?", productIDs).Find(&products).Error; err != nil {
		return nil, err
	}

	// batch-load owning services with their admin contacts
	serviceIDs := make([]string, 0, len(products))
	for _, p := range products {
		if p.ServiceID != nil {
			serviceIDs = append(serviceIDs, *p.ServiceID)
		}
	}

	servicesByID := make(map[string]*catalog.Service)
	if len(serviceIDs) > 0 {
		var services []*catalog.Service
		if err := r.db.Preload("Admins").Where("id IN ?", serviceIDs).Find(&services).Error; err != nil {
			return nil, err
		}
		for _, svc := range services {
			servicesByID[svc.ID] = svc
		}
	}

	infos := make([]catalog.ProductInfo, 0, len(products))
	for _, p := range products {
		info := catalog.ProductInfo{
			ProductID:     p.ID,
			ProductName:   p.Name,
			ServiceName:   "N/A",
			ServiceAdmins: []catalog.AdminContact{},
		}
		if p.ServiceID != nil {
			if svc, ok := servicesByID[*p.ServiceID]; ok {
				info.ServiceName = svc.Name
				for _, admin := range svc.Admins {
					info.ServiceAdmins = append(info.ServiceAdmins, catalog.AdminContact{
						Name:  admin.Name,
						Email: admin.Email,
					})
				}
			}
		}
		infos = append(infos, info)
	}

	return infos, nil
}
