package ports

import (
	"context"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

// AuditLogRepository stores and reads audit logs.
type AuditLogRepository interface {
	Append(ctx context.Context, logs []domain.AuditLog) error
	List(ctx context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error)
}

// AuditRecordBuilder turns one changed entity into an audit log. A nil log
// with a nil error means there is nothing to record.
type AuditRecordBuilder interface {
	CreateLogRecord(ctx context.Context, entry EntityEntry, eventType domain.EventType, actor string, meta domain.Metadata) (*domain.AuditLog, error)
}
