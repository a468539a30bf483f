package catalog

import (
	"github.com/opslane/access-portal/internal"
)

type CreateServiceDTO struct {
	Name   string             `json:"name"`
	Vendor *string            `json:"vendor,omitempty"`
	URL    *string            `json:"url,omitempty"`
	Admins []AdminContact     `json:"admins,omitempty"`
}

func (dto CreateServiceDTO) Validate() error {
	if dto.Name == "" {
		return internal.NewValidationError("service name is required", internal.ErrCodeMissingField)
	}
	for _, admin := range dto.Admins {
		if admin.Email == "" {
			return internal.NewValidationError("service admin email is required", internal.ErrCodeMissingField)
		}
	}
	return nil
}

type UpdateServiceDTO struct {
	Name   *string         `json:"name,omitempty"`
	Vendor *string         `json:"vendor,omitempty"`
	URL    *string         `json:"url,omitempty"`
	Admins *[]AdminContact `json:"admins,omitempty"`
}

type CreateProductDTO struct {
	ServiceID   *string `json:"service_id,omitempty"`
	Name        string  `json:"name"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
	StatusID    int     `json:"status_id,omitempty"`
}

func (dto CreateProductDTO) Validate() error {
	if dto.Name == "" {
		return internal.NewValidationError("product name is required", internal.ErrCodeMissingField)
	}
	if dto.StatusID < 0 || dto.StatusID > StatusOverdue {
		return internal.NewValidationError("unknown product status", internal.ErrCodeValidationFailed)
	}
	return nil
}

type UpdateProductDTO struct {
	ServiceID   *string `json:"service_id,omitempty"`
	Name        *string `json:"name,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
	StatusID    *int    `json:"status_id,omitempty"`
}

func (dto UpdateProductDTO) Validate() error {
	if dto.Name != nil && *dto.Name == "" {
		return internal.NewValidationError("product name cannot be empty", internal.ErrCodeMissingField)
	}
	if dto.StatusID != nil && (*dto.StatusID < StatusActive || *dto.StatusID > StatusOverdue) {
		return internal.NewValidationError("unknown product status", internal.ErrCodeValidationFailed)
	}
	return nil
}
