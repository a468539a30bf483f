package directory

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/grants"
	"gorm.io/gorm"
)

// Repository defines the data access methods for users
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(u *User) error
	GetByID(id string) (*User, error)
	GetByEmail(email string) (*User, error)
	Search(search string, limit, offset int) ([]*User, int64, error)
	Update(u *User) error
	Delete(id string) error
}

// Reconciler merges explicit and department-default grant state around every
// user save; see the grants package.
type Reconciler interface {
	OnCreate(tx *gorm.DB, userID string, departmentID *string, explicit grants.DesiredGrantState) error
	OnUpdate(tx *gorm.DB, userID string, departmentID *string, departmentChanged bool, explicit *grants.DesiredGrantState) error
}

// Departments validates department references.
type Departments interface {
	Exists(id string) error
}

// Catalog validates explicit grant targets before they reach the reconciler,
// so an unknown id fails as not-found rather than a foreign key violation.
type Catalog interface {
	ValidateTargets(productIDs, serviceIDs []string) error
}

// TaskRefs nulls workflow-task back references when a user row goes away, so
// completed tasks keep their audit trail.
type TaskRefs interface {
	ClearTargetUser(tx *gorm.DB, userID string) error
}

// AuditRecorder is best-effort; failures never abort the primary operation.
type AuditRecorder interface {
	Record(actor, action, targetID string, details map[string]interface{})
}

type Service struct {
	db          *gorm.DB
	repo        Repository
	grantRepo   grants.Repository
	reconciler  Reconciler
	departments Departments
	catalog     Catalog
	taskRefs    TaskRefs
	audit       AuditRecorder
	logger      *slog.Logger
}

func NewService(
	db *gorm.DB,
	repo Repository,
	grantRepo grants.Repository,
	reconciler Reconciler,
	departments Departments,
	catalog Catalog,
	taskRefs TaskRefs,
	audit AuditRecorder,
	logger *slog.Logger,
) *Service {
	return &Service{
		db:          db,
		repo:        repo,
		grantRepo:   grantRepo,
		reconciler:  reconciler,
		departments: departments,
		catalog:     catalog,
		taskRefs:    taskRefs,
		audit:       audit,
		logger:      logger,
	}
}

// Create inserts the user and seeds their grants in one transaction.
func (s *Service) Create(actor string, dto CreateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.GetByEmail(dto.Email); err == nil && existing != nil {
		return nil, internal.ErrEmailTaken
	}

	if dto.DepartmentID != nil && *dto.DepartmentID != "" {
		if err := s.departments.Exists(*dto.DepartmentID); err != nil {
			return nil, err
		}
	}
	if dto.Grants != nil {
		if err := s.catalog.ValidateTargets(dto.Grants.ProductIDs, dto.Grants.ServiceIDs); err != nil {
			return nil, err
		}
	}

	user := &User{
		ID:           uuid.NewString(),
		Name:         dto.Name,
		Email:        dto.Email,
		DepartmentID: normalizeDeptID(dto.DepartmentID),
		Position:     dto.Position,
		HireDate:     dto.HireDate,
		IsActive:     true,
	}

	explicit := grants.DesiredGrantState{}
	if dto.Grants != nil {
		explicit = *dto.Grants
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(user); err != nil {
			return err
		}
		return s.reconciler.OnCreate(tx, user.ID, user.DepartmentID, explicit)
	})
	if err != nil {
		s.logger.Error("failed to create user", "error", err, "email", dto.Email)
		return nil, err
	}

	s.logger.Info("user created", "user_id", user.ID, "email", user.Email)
	s.audit.Record(actor, "user.create", user.ID, map[string]interface{}{
		"email": user.Email,
		"name":  user.Name,
	})
	return user, nil
}

func (s *Service) Get(id string) (*UserWithGrants, error) {
	user, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	assignments, err := s.grantRepo.ListForUser(id)
	if err != nil {
		s.logger.Error("failed to list grants", "error", err, "user_id", id)
		return nil, err
	}

	return &UserWithGrants{User: *user, Grants: assignments}, nil
}

func (s *Service) GetByEmail(email string) (*User, error) {
	return s.repo.GetByEmail(email)
}

func (s *Service) GetByID(id string) (*User, error) {
	return s.repo.GetByID(id)
}

func (s *Service) List(search string, limit, offset int) ([]*User, int64, error) {
	return s.repo.Search(search, limit, offset)
}

// Update applies field edits and re-reconciles grants in one transaction.
// A department change swaps the department-default side of the merge; an
// explicit grant list in the DTO wins over whatever defaults compute to.
func (s *Service) Update(actor, id string, dto UpdateUserDTO) (*User, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	user, err := s.repo.GetByID(id)
	if err != nil {
		return nil, err
	}

	if dto.Grants != nil {
		if err := s.catalog.ValidateTargets(dto.Grants.ProductIDs, dto.Grants.ServiceIDs); err != nil {
			return nil, err
		}
	}

	departmentChanged := false
	if dto.DepartmentID != nil {
		newDept := normalizeDeptID(dto.DepartmentID)
		if newDept != nil {
			if err := s.departments.Exists(*newDept); err != nil {
				return nil, err
			}
		}
		if !equalDeptID(user.DepartmentID, newDept) {
			departmentChanged = true
			user.DepartmentID = newDept
		}
	}

	if dto.Name != nil {
		user.Name = *dto.Name
	}
	if dto.Position != nil {
		user.Position = dto.Position
	}
	if dto.HireDate != nil {
		user.HireDate = dto.HireDate
	}
	if dto.ResignationDate != nil {
		user.ResignationDate = dto.ResignationDate
	}
	if dto.IsActive != nil {
		user.IsActive = *dto.IsActive
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Update(user); err != nil {
			return err
		}
		if departmentChanged || dto.Grants != nil {
			return s.reconciler.OnUpdate(tx, user.ID, user.DepartmentID, departmentChanged, dto.Grants)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("failed to update user", "error", err, "user_id", id)
		return nil, err
	}

	s.audit.Record(actor, "user.update", user.ID, map[string]interface{}{
		"email":              user.Email,
		"department_changed": departmentChanged,
		"grants_edited":      dto.Grants != nil,
	})
	return user, nil
}

// UpdateGrants is the explicit permission edit: the submitted state is the
// administrator's full desired selection, applied with manual precedence.
func (s *Service) UpdateGrants(actor, id string, desired grants.DesiredGrantState) error {
	user, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	if err := s.catalog.ValidateTargets(desired.ProductIDs, desired.ServiceIDs); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.reconciler.OnUpdate(tx, user.ID, user.DepartmentID, false, &desired)
	})
	if err != nil {
		s.logger.Error("failed to update grants", "error", err, "user_id", id)
		return err
	}

	s.audit.Record(actor, "user.permissions.update", id, map[string]interface{}{
		"product_ids": desired.ProductIDs,
		"service_ids": desired.ServiceIDs,
	})
	return nil
}

// Delete removes the user, cascading grant rows and nulling task back
// references, in one transaction.
func (s *Service) Delete(actor, id string) error {
	user, err := s.repo.GetByID(id)
	if err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		return s.DeleteInTx(tx, id)
	})
	if err != nil {
		s.logger.Error("failed to delete user", "error", err, "user_id", id)
		return err
	}

	s.audit.Record(actor, "user.delete", id, map[string]interface{}{
		"email": user.Email,
		"name":  user.Name,
	})
	return nil
}

// DeleteInTx is the cascade path shared with offboarding completion, which
// must delete inside its own snapshot-then-mutate transaction.
func (s *Service) DeleteInTx(tx *gorm.DB, id string) error {
	if err := s.grantRepo.WithTx(tx).DeleteAllForUser(id); err != nil {
		return err
	}
	if err := s.taskRefs.ClearTargetUser(tx, id); err != nil {
		return err
	}
	return s.repo.WithTx(tx).Delete(id)
}

func normalizeDeptID(id *string) *string {
	if id == nil || *id == "" {
		return nil
	}
	return id
}

func equalDeptID(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
