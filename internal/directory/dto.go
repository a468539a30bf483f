package directory

import (
	"strings"
	"time"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/grants"
)

type CreateUserDTO struct {
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	DepartmentID *string    `json:"department_id,omitempty"`
	Position     *string    `json:"position,omitempty"`
	HireDate     *time.Time `json:"hire_date,omitempty"`
	// Grants is the administrator's explicit selection at creation time; it
	// wins over department defaults even on overlap.
	Grants *grants.DesiredGrantState `json:"grants,omitempty"`
}

func (dto CreateUserDTO) Validate() error {
	if strings.TrimSpace(dto.Name) == "" {
		return internal.NewValidationError("name is required", internal.ErrCodeMissingField)
	}
	if strings.TrimSpace(dto.Email) == "" {
		return internal.NewValidationError("email is required", internal.ErrCodeMissingField)
	}
	if !strings.Contains(dto.Email, "@") {
		return internal.NewValidationError("email is malformed", internal.ErrCodeValidationFailed)
	}
	return nil
}

// UpdateUserDTO carries only touched fields. DepartmentID semantics: nil
// leaves the department alone, empty string clears it, anything else points
// at a department. Grants nil means the explicit list was not edited.
type UpdateUserDTO struct {
	Name            *string                   `json:"name,omitempty"`
	DepartmentID    *string                   `json:"department_id,omitempty"`
	Position        *string                   `json:"position,omitempty"`
	HireDate        *time.Time                `json:"hire_date,omitempty"`
	ResignationDate *time.Time                `json:"resignation_date,omitempty"`
	IsActive        *bool                     `json:"is_active,omitempty"`
	Grants          *grants.DesiredGrantState `json:"grants,omitempty"`
}

func (dto UpdateUserDTO) Validate() error {
	if dto.Name != nil && strings.TrimSpace(*dto.Name) == "" {
		return internal.NewValidationError("name cannot be empty", internal.ErrCodeMissingField)
	}
	return nil
}

// UserWithGrants is the detail view: the user row plus their live grant set.
type UserWithGrants struct {
	User
	Grants []grants.Assignment `json:"grants"`
}
