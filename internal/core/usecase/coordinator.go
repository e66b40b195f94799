package usecase

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/core/tracking"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
	"github.com/atvirokodosprendimai/audittrail/internal/metrics"
)

// AuditLogGeneratedEvent is raised for every built log before it is queued.
// Setting Skip drops the log.
type AuditLogGeneratedEvent struct {
	Record   *domain.AuditLog
	Entity   any
	Metadata domain.Metadata
	Skip     bool
}

// AuditLogGeneratedFunc runs synchronously on the save path and must not
// block.
type AuditLogGeneratedFunc func(*AuditLogGeneratedEvent)

// Coordinator audits the pending changes of one tracker context.
type Coordinator struct {
	tc         ports.TrackerContext
	cfg        *tracking.Config
	builder    ports.AuditRecordBuilder
	classifier *EventClassifier
	log        *logrus.Logger
	metrics    *metrics.Metrics

	mu          sync.RWMutex
	subscribers []AuditLogGeneratedFunc
}

type CoordinatorOption func(*Coordinator)

func WithRecordBuilder(b ports.AuditRecordBuilder) CoordinatorOption {
	return func(c *Coordinator) { c.builder = b }
}

func WithLogger(log *logrus.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = log }
}

func WithMetrics(m *metrics.Metrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

func NewCoordinator(tc ports.TrackerContext, cfg *tracking.Config, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{tc: tc, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	if c.builder == nil {
		c.builder = NewLogAuditor(cfg)
	}
	if c.log == nil {
		c.log = logrus.New()
	}
	c.classifier = NewEventClassifier(cfg)
	return c
}

// OnAuditLogGenerated registers fn. Subscribers run in registration order and
// share one event, so the last writer of Skip decides.
func (c *Coordinator) OnAuditLogGenerated(fn AuditLogGeneratedFunc) {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, fn)
	c.mu.Unlock()
}

// AuditAdditions logs every entry in added as EventAdded. The entries are
// captured before the save, so their current state is not checked.
func (c *Coordinator) AuditAdditions(ctx context.Context, actor string, added []ports.EntityEntry, meta domain.Metadata) error {
	if !c.cfg.Enabled() {
		return nil
	}
	return c.run(ctx, "additions", actor, added, meta, func(context.Context, ports.EntityEntry) (domain.EventType, error) {
		return domain.EventAdded, nil
	})
}

// AuditModifications logs every modified entry, detecting soft deletes.
func (c *Coordinator) AuditModifications(ctx context.Context, actor string, meta domain.Metadata) error {
	if !c.cfg.Enabled() {
		return nil
	}
	entries := c.tc.Entries(domain.StateModified)
	return c.run(ctx, "modifications", actor, entries, meta, c.classifyAs(domain.StateModified))
}

func (c *Coordinator) AuditDeletions(ctx context.Context, actor string, meta domain.Metadata) error {
	if !c.cfg.Enabled() {
		return nil
	}
	entries := c.tc.Entries(domain.StateDeleted)
	return c.run(ctx, "deletions", actor, entries, meta, c.classifyAs(domain.StateDeleted))
}

// GetAdditions returns the entries pending insertion.
func (c *Coordinator) GetAdditions() []ports.EntityEntry {
	return c.tc.Entries(domain.StateAdded)
}

type classifyFunc func(context.Context, ports.EntityEntry) (domain.EventType, error)

func (c *Coordinator) classifyAs(want domain.EntityState) classifyFunc {
	return func(ctx context.Context, entry ports.EntityEntry) (domain.EventType, error) {
		if got := entry.State(); got != want {
			return "", fmt.Errorf("expected %s entry, got %s: %w", want, got, domain.ErrInvalidEntityState)
		}
		return c.classifier.Classify(ctx, entry)
	}
}

func (c *Coordinator) run(ctx context.Context, batch, actor string, entries []ports.EntityEntry, meta domain.Metadata, classify classifyFunc) error {
	records := make([]domain.AuditLog, 0, len(entries))
	for _, entry := range entries {
		eventType, err := classify(ctx, entry)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"batch":       batch,
				"entity_type": entitymeta.TypeName(entry.EntityType()),
				"state":       entry.State().String(),
			}).WithError(err).Error("audit entry rejected")
			c.metrics.IncBatchError(batch)
			return fmt.Errorf("audit %s: %w", batch, err)
		}

		record, err := c.builder.CreateLogRecord(ctx, entry, eventType, actor, meta)
		if err != nil {
			c.metrics.IncBatchError(batch)
			return fmt.Errorf("audit %s: %w", batch, err)
		}
		if record == nil {
			continue
		}

		if c.raise(record, entry.Entity(), meta) {
			c.log.WithFields(logrus.Fields{
				"entity_type": record.TypeFullName,
				"record_id":   record.RecordID,
				"event_type":  string(record.EventType),
			}).Debug("audit log skipped by subscriber")
			c.metrics.IncSkipped(string(record.EventType))
			continue
		}
		c.metrics.IncGenerated(string(record.EventType))
		records = append(records, *record)
	}

	if len(records) > 0 {
		c.tc.AddAuditLogs(records...)
	}
	return nil
}

func (c *Coordinator) raise(record *domain.AuditLog, entity any, meta domain.Metadata) bool {
	c.mu.RLock()
	subscribers := c.subscribers
	c.mu.RUnlock()

	event := &AuditLogGeneratedEvent{Record: record, Entity: entity, Metadata: meta}
	for _, fn := range subscribers {
		fn(event)
	}
	return event.Skip
}

// GetLogs returns the logs stored under exactly typeName.
func (c *Coordinator) GetLogs(ctx context.Context, typeName string) ([]domain.AuditLog, error) {
	return c.tc.AuditLogs().List(ctx, domain.AuditLogFilter{TypeNames: []string{typeName}})
}

// GetRecordLogs returns the logs of one record stored under exactly typeName.
func (c *Coordinator) GetRecordLogs(ctx context.Context, typeName string, primaryKey any) ([]domain.AuditLog, error) {
	key := entitymeta.FormatValue(primaryKey)
	return c.tc.AuditLogs().List(ctx, domain.AuditLogFilter{TypeNames: []string{typeName}, RecordID: &key})
}

// GetTypeLogs returns the logs of entityType and of every type sharing its
// declaring base type, including siblings this process has never seen.
func (c *Coordinator) GetTypeLogs(ctx context.Context, entityType reflect.Type) ([]domain.AuditLog, error) {
	d, err := entitymeta.Describe(entityType)
	if err != nil {
		return nil, err
	}
	return c.tc.AuditLogs().List(ctx, domain.AuditLogFilter{BaseTypeName: d.BaseTypeName})
}

func (c *Coordinator) GetTypeRecordLogs(ctx context.Context, entityType reflect.Type, primaryKey any) ([]domain.AuditLog, error) {
	d, err := entitymeta.Describe(entityType)
	if err != nil {
		return nil, err
	}
	key := entitymeta.FormatValue(primaryKey)
	return c.tc.AuditLogs().List(ctx, domain.AuditLogFilter{BaseTypeName: d.BaseTypeName, RecordID: &key})
}

// LogsOf returns the logs of T and its sibling types.
func LogsOf[T any](ctx context.Context, c *Coordinator) ([]domain.AuditLog, error) {
	return c.GetTypeLogs(ctx, reflect.TypeOf((*T)(nil)).Elem())
}

// RecordLogsOf returns the logs of one record of T or its sibling types.
func RecordLogsOf[T any](ctx context.Context, c *Coordinator, primaryKey any) ([]domain.AuditLog, error) {
	return c.GetTypeRecordLogs(ctx, reflect.TypeOf((*T)(nil)).Elem(), primaryKey)
}
