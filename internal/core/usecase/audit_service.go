package usecase

import (
	"context"
	"errors"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
)

var ErrInvalidFilter = errors.New("invalid filter")

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
)

// AuditService pages through stored audit logs for read-only consumers.
type AuditService struct {
	repo ports.AuditLogRepository
}

func NewAuditService(repo ports.AuditLogRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	if len(filter.TypeNames) == 0 && filter.BaseTypeName == "" {
		return nil, ErrInvalidFilter
	}
	for _, name := range filter.TypeNames {
		if name == "" {
			return nil, ErrInvalidFilter
		}
	}
	if filter.AfterID < 0 {
		return nil, ErrInvalidFilter
	}
	filter.Limit = PageSize(filter.Limit)
	return s.repo.List(ctx, filter)
}

// PageSize is the number of logs List returns at most for a requested
// limit. A full page means more logs may follow.
func PageSize(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}
