package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/core/tracking"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
)

// LogAuditor is the default AuditRecordBuilder. It diffs the tracked
// properties of an entry and honours the tracking configuration.
type LogAuditor struct {
	cfg *tracking.Config
	now func() time.Time
}

func NewLogAuditor(cfg *tracking.Config) *LogAuditor {
	return &LogAuditor{cfg: cfg, now: time.Now}
}

var _ ports.AuditRecordBuilder = (*LogAuditor)(nil)

// CreateLogRecord builds the log for entry. It returns nil when the type is
// not tracked, or when a modification touched no tracked property.
func (a *LogAuditor) CreateLogRecord(ctx context.Context, entry ports.EntityEntry, eventType domain.EventType, actor string, meta domain.Metadata) (*domain.AuditLog, error) {
	d, err := entitymeta.Describe(entry.EntityType())
	if err != nil {
		return nil, err
	}
	a.cfg.RegisterType(d)
	if !a.cfg.IsTypeTracked(d) {
		return nil, nil
	}

	var details []domain.LogDetail
	switch eventType {
	case domain.EventAdded:
		details, err = a.additionDetails(ctx, d, entry)
	case domain.EventDeleted:
		details, err = a.deletionDetails(ctx, d, entry)
	case domain.EventModified, domain.EventSoftDeleted, domain.EventUnDeleted:
		details, err = a.modificationDetails(ctx, d, entry)
		if err == nil && len(details) == 0 {
			return nil, nil
		}
	default:
		return nil, fmt.Errorf("build %q log: unknown event type", eventType)
	}
	if err != nil {
		return nil, err
	}

	recordID, err := entry.PrimaryKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("read primary key of %s: %w", d.TypeName, err)
	}

	return &domain.AuditLog{
		EventID:      uuid.NewString(),
		TypeFullName: d.TypeName,
		BaseTypeName: d.BaseTypeName,
		RecordID:     recordID,
		EventType:    eventType,
		Actor:        actor,
		EventDate:    a.now().UTC(),
		Metadata:     meta,
		Details:      details,
	}, nil
}

func (a *LogAuditor) additionDetails(ctx context.Context, d *entitymeta.Descriptor, entry ports.EntityEntry) ([]domain.LogDetail, error) {
	current, err := entry.CurrentValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current values: %w", err)
	}
	trackEmpty := a.cfg.TrackEmptyProperties()
	details := make([]domain.LogDetail, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !a.cfg.IsPropertyTracked(d, f.Name) {
			continue
		}
		v := current[f.Name]
		if !trackEmpty && entitymeta.IsEmpty(v) {
			continue
		}
		details = append(details, domain.LogDetail{PropertyName: f.Name, NewValue: entitymeta.FormatValue(v)})
	}
	return details, nil
}

func (a *LogAuditor) deletionDetails(ctx context.Context, d *entitymeta.Descriptor, entry ports.EntityEntry) ([]domain.LogDetail, error) {
	original, err := a.originalValues(ctx, entry)
	if err != nil {
		return nil, err
	}
	trackEmpty := a.cfg.TrackEmptyProperties()
	details := make([]domain.LogDetail, 0, len(d.Fields))
	for _, f := range d.Fields {
		if !a.cfg.IsPropertyTracked(d, f.Name) {
			continue
		}
		v := original[f.Name]
		if !trackEmpty && entitymeta.IsEmpty(v) {
			continue
		}
		details = append(details, domain.LogDetail{PropertyName: f.Name, OriginalValue: entitymeta.FormatValue(v)})
	}
	return details, nil
}

func (a *LogAuditor) modificationDetails(ctx context.Context, d *entitymeta.Descriptor, entry ports.EntityEntry) ([]domain.LogDetail, error) {
	original, err := a.originalValues(ctx, entry)
	if err != nil {
		return nil, err
	}
	current, err := entry.CurrentValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load current values: %w", err)
	}
	var details []domain.LogDetail
	for _, f := range d.Fields {
		if !a.cfg.IsPropertyTracked(d, f.Name) {
			continue
		}
		before := entitymeta.FormatValue(original[f.Name])
		after := entitymeta.FormatValue(current[f.Name])
		if before == after {
			continue
		}
		details = append(details, domain.LogDetail{PropertyName: f.Name, OriginalValue: before, NewValue: after})
	}
	return details, nil
}

func (a *LogAuditor) originalValues(ctx context.Context, entry ports.EntityEntry) (domain.PropertyValues, error) {
	if a.cfg.DisconnectedContext() {
		values, err := entry.DatabaseValues(ctx)
		if err != nil {
			return nil, fmt.Errorf("load database values: %w", err)
		}
		return values, nil
	}
	values, err := entry.OriginalValues(ctx)
	if err != nil {
		return nil, fmt.Errorf("load original values: %w", err)
	}
	return values, nil
}
