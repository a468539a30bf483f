package catalog

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal"
)

// Repository defines the data access methods for the product/service catalog
type Repository interface {
	CreateService(svc *Service) error
	GetService(id string) (*Service, error)
	ListServices(search string, limit, offset int) ([]*Service, int64, error)
	UpdateService(svc *Service) error
	ReplaceServiceAdmins(serviceID string, admins []ServiceAdmin) error
	DeleteService(id string) error

	CreateProduct(p *Product) error
	GetProduct(id string) (*Product, error)
	ListProducts(search string, limit, offset int) ([]*Product, int64, error)
	UpdateProduct(p *Product) error
	DeleteProduct(id string) error

	ProductInfos(productIDs []string) ([]ProductInfo, error)
}

type CatalogService struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *CatalogService {
	return &CatalogService{repo: repo, logger: logger}
}

func (s *CatalogService) CreateService(dto CreateServiceDTO) (*Service, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	svc := &Service{
		ID:     uuid.NewString(),
		Name:   dto.Name,
		Vendor: dto.Vendor,
		URL:    dto.URL,
	}
	for _, admin := range dto.Admins {
		svc.Admins = append(svc.Admins, ServiceAdmin{
			ServiceID: svc.ID,
			Name:      admin.Name,
			Email:     admin.Email,
		})
	}

	if err := s.repo.CreateService(svc); err != nil {
		s.logger.Error("failed to create service", "error", err, "name", dto.Name)
		return nil, err
	}

	s.logger.Info("service created", "service_id", svc.ID, "name", svc.Name)
	return svc, nil
}

func (s *CatalogService) GetService(id string) (*Service, error) {
	return s.repo.GetService(id)
}

// ValidateTargets checks that every product and service id in an explicit
// grant selection exists, so an unknown id fails as not-found instead of
// surfacing a foreign key violation from the store.
func (s *CatalogService) ValidateTargets(productIDs, serviceIDs []string) error {
	for _, id := range productIDs {
		if _, err := s.repo.GetProduct(id); err != nil {
			return err
		}
	}
	for _, id := range serviceIDs {
		if _, err := s.repo.GetService(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *CatalogService) ListServices(search string, limit, offset int) ([]*Service, int64, error) {
	return s.repo.ListServices(search, limit, offset)
}

func (s *CatalogService) UpdateService(id string, dto UpdateServiceDTO) (*Service, error) {
	svc, err := s.repo.GetService(id)
	if err != nil {
		return nil, err
	}

	if dto.Name != nil {
		if *dto.Name == "" {
			return nil, internal.NewValidationError("service name cannot be empty", internal.ErrCodeMissingField)
		}
		svc.Name = *dto.Name
	}
	if dto.Vendor != nil {
		svc.Vendor = dto.Vendor
	}
	if dto.URL != nil {
		svc.URL = dto.URL
	}

	if err := s.repo.UpdateService(svc); err != nil {
		s.logger.Error("failed to update service", "error", err, "service_id", id)
		return nil, err
	}

	if dto.Admins != nil {
		admins := make([]ServiceAdmin, 0, len(*dto.Admins))
		for _, contact := range *dto.Admins {
			admins = append(admins, ServiceAdmin{ServiceID: id, Name: contact.Name, Email: contact.Email})
		}
		if err := s.repo.ReplaceServiceAdmins(id, admins); err != nil {
			s.logger.Error("failed to replace service admins", "error", err, "service_id", id)
			return nil, err
		}
		svc.Admins = admins
	}

	return svc, nil
}

func (s *CatalogService) DeleteService(id string) error {
	if _, err := s.repo.GetService(id); err != nil {
		return err
	}
	return s.repo.DeleteService(id)
}

func (s *CatalogService) CreateProduct(dto CreateProductDTO) (*Product, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if dto.ServiceID != nil {
		if _, err := s.repo.GetService(*dto.ServiceID); err != nil {
			return nil, err
		}
	}

	statusID := dto.StatusID
	if statusID == 0 {
		statusID = StatusActive
	}

	p := &Product{
		ID:          uuid.NewString(),
		ServiceID:   dto.ServiceID,
		Name:        dto.Name,
		URL:         dto.URL,
		Description: dto.Description,
		StatusID:    statusID,
	}

	if err := s.repo.CreateProduct(p); err != nil {
		s.logger.Error("failed to create product", "error", err, "name", dto.Name)
		return nil, err
	}

	s.logger.Info("product created", "product_id", p.ID, "name", p.Name, "status_id", p.StatusID)
	return p, nil
}

func (s *CatalogService) GetProduct(id string) (*Product, error) {
	return s.repo.GetProduct(id)
}

func (s *CatalogService) ListProducts(search string, limit, offset int) ([]*Product, int64, error) {
	return s.repo.ListProducts(search, limit, offset)
}

func (s *CatalogService) UpdateProduct(id string, dto UpdateProductDTO) (*Product, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	p, err := s.repo.GetProduct(id)
	if err != nil {
		return nil, err
	}

	if dto.ServiceID != nil {
		if *dto.ServiceID != "" {
			if _, err := s.repo.GetService(*dto.ServiceID); err != nil {
				return nil, err
			}
			p.ServiceID = dto.ServiceID
		} else {
			p.ServiceID = nil
		}
	}
	if dto.Name != nil {
		p.Name = *dto.Name
	}
	if dto.URL != nil {
		p.URL = dto.URL
	}
	if dto.Description != nil {
		p.Description = dto.Description
	}
	if dto.StatusID != nil {
		p.StatusID = *dto.StatusID
	}

	if err := s.repo.UpdateProduct(p); err != nil {
		s.logger.Error("failed to update product", "error", err, "product_id", id)
		return nil, err
	}

	return p, nil
}

func (s *CatalogService) DeleteProduct(id string) error {
	if _, err := s.repo.GetProduct(id); err != nil {
		return err
	}
	return s.repo.DeleteProduct(id)
}

// ProductInfos resolves products into the denormalized shape snapshots use.
// Unknown IDs are skipped rather than erroring: a grant may reference a
// product deleted since.
func (s *CatalogService) ProductInfos(productIDs []string) ([]ProductInfo, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	return s.repo.ProductInfos(productIDs)
}
