package ports

import (
	"context"
	"reflect"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
)

// EntityEntry is the host persistence layer's view of one tracked entity.
type EntityEntry interface {
	Entity() any
	EntityType() reflect.Type
	State() domain.EntityState
	PrimaryKey(ctx context.Context) (string, error)
	CurrentValues(ctx context.Context) (domain.PropertyValues, error)
	// OriginalValues returns the in-memory baseline captured when the entity
	// was attached.
	OriginalValues(ctx context.Context) (domain.PropertyValues, error)
	// DatabaseValues reloads the stored row.
	DatabaseValues(ctx context.Context) (domain.PropertyValues, error)
}

// TrackerContext is the host persistence context audited by the coordinator.
type TrackerContext interface {
	// Entries returns the tracked entities in state, in tracking order.
	Entries(state domain.EntityState) []EntityEntry
	// AddAuditLogs queues logs to be persisted with the pending changes.
	AddAuditLogs(logs ...domain.AuditLog)
	AuditLogs() AuditLogRepository
}
