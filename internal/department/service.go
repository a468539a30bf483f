package department

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/catalog"
)

// Repository defines the data access methods for departments
type Repository interface {
	Create(dept *Department) error
	GetByID(id string) (*Department, error)
	GetByName(name string) (*Department, error)
	List(limit, offset int) ([]*Department, int64, error)
	Update(dept *Department) error
	Delete(id string) error
	SetProducts(departmentID string, productIDs []string) error
	GetProducts(departmentID string) ([]*catalog.Product, error)
	// ActiveProductsFor is the defaults view the Reconciler consumes: only
	// products whose status is Active are eligible department defaults.
	ActiveProductsFor(departmentID string) ([]string, error)
}

type DeptService struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *DeptService {
	return &DeptService{repo: repo, logger: logger}
}

func (s *DeptService) Create(name string) (*Department, error) {
	if name == "" {
		return nil, internal.NewValidationError("department name is required", internal.ErrCodeMissingField)
	}

	if existing, err := s.repo.GetByName(name); err == nil && existing != nil {
		return nil, internal.ErrDepartmentTaken
	}

	dept := &Department{
		ID:   uuid.NewString(),
		Name: name,
	}
	if err := s.repo.Create(dept); err != nil {
		s.logger.Error("failed to create department", "error", err, "name", name)
		return nil, err
	}

	s.logger.Info("department created", "department_id", dept.ID, "name", name)
	return dept, nil
}

func (s *DeptService) Get(id string) (*Department, error) {
	return s.repo.GetByID(id)
}

func (s *DeptService) GetByName(name string) (*Department, error) {
	return s.repo.GetByName(name)
}

func (s *DeptService) List(limit, offset int) ([]*Department, int64, error) {
	return s.repo.List(limit, offset)
}

func (s *DeptService) Rename(id, name string) (*Department, error) {
	if name == "" {
		return nil, internal.NewValidationError("department name is required", internal.ErrCodeMissingField)
	}

	dept, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByName(name); err == nil && existing != nil && existing.ID != id {
		return nil, internal.ErrDepartmentTaken
	}

	dept.Name = name
	if err := s.repo.Update(dept); err != nil {
		s.logger.Error("failed to update department", "error", err, "department_id", id)
		return nil, err
	}

	return dept, nil
}

func (s *DeptService) Delete(id string) error {
	if _, err := s.repo.GetByID(id); err != nil {
		return err
	}
	return s.repo.Delete(id)
}

// SetProducts replaces the department's default-product catalog. Existing
// users are not touched: defaults flow to a user only when that user record
// is next saved.
func (s *DeptService) SetProducts(id string, productIDs []string) error {
	if _, err := s.repo.GetByID(id); err != nil {
		return err
	}

	if err := s.repo.SetProducts(id, productIDs); err != nil {
		s.logger.Error("failed to set department products", "error", err, "department_id", id)
		return err
	}

	s.logger.Info("department catalog replaced", "department_id", id, "products", len(productIDs))
	return nil
}

func (s *DeptService) GetProducts(id string) ([]*catalog.Product, error) {
	if _, err := s.repo.GetByID(id); err != nil {
		return nil, err
	}
	return s.repo.GetProducts(id)
}

// ActiveProductsFor satisfies the Reconciler's DefaultsSource.
func (s *DeptService) ActiveProductsFor(departmentID string) ([]string, error) {
	return s.repo.ActiveProductsFor(departmentID)
}

// Exists reports whether the department id resolves, as a sentinel error.
func (s *DeptService) Exists(id string) error {
	_, err := s.repo.GetByID(id)
	return err
}

// DefaultProductIDsByName resolves a department by its display name and
// returns its active default products. Pending onboarding tasks reference
// departments by name, before any user row exists.
func (s *DeptService) DefaultProductIDsByName(name string) ([]string, error) {
	dept, err := s.repo.GetByName(name)
	if err != nil {
		return nil, err
	}
	return s.repo.ActiveProductsFor(dept.ID)
}
