package audit

import "log/slog"

// Repository defines the data access methods for the audit trail
type Repository interface {
	Create(entry *Entry) error
	List(filter ListFilter) ([]*Entry, int64, error)
}

// ListFilter narrows the trail view; zero values mean no constraint.
type ListFilter struct {
	ActorEmail string
	Action     string
	TargetID   string
	Limit      int
	Offset     int
}

type AuditService struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *AuditService {
	return &AuditService{repo: repo, logger: logger}
}

func (s *AuditService) List(filter ListFilter) ([]*Entry, int64, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	return s.repo.List(filter)
}
