package sqlite

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/core/tracking"
	"github.com/atvirokodosprendimai/audittrail/internal/core/usecase"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
)

// TrackerContext is a GORM unit of work. It tracks entity state between
// Load/Add/Update/Delete calls and SaveChanges, and audits every change in
// the same write transaction that persists it.
//
// A TrackerContext is not safe for concurrent use.
type TrackerContext struct {
	db          *gormsqlite.DB
	cfg         *tracking.Config
	logs        *AuditLogRepository
	coordinator *usecase.Coordinator
	log         *logrus.Logger

	entries []*trackedEntry
	pending []domain.AuditLog
	tx      *gorm.DB
}

var _ ports.TrackerContext = (*TrackerContext)(nil)

func NewTrackerContext(db *gormsqlite.DB, cfg *tracking.Config, log *logrus.Logger, opts ...usecase.CoordinatorOption) *TrackerContext {
	if log == nil {
		log = logrus.StandardLogger()
	}
	tc := &TrackerContext{db: db, cfg: cfg, logs: NewAuditLogRepository(db), log: log}
	tc.coordinator = usecase.NewCoordinator(tc, cfg, append([]usecase.CoordinatorOption{usecase.WithLogger(log)}, opts...)...)
	return tc
}

func (tc *TrackerContext) Coordinator() *usecase.Coordinator {
	return tc.coordinator
}

// Add starts tracking entities as new rows.
func (tc *TrackerContext) Add(entities ...any) error {
	for _, entity := range entities {
		if _, err := tc.track(entity, domain.StateAdded, false); err != nil {
			return err
		}
	}
	return nil
}

// Attach starts tracking entities as stored rows and snapshots their
// current values as the originals.
func (tc *TrackerContext) Attach(entities ...any) error {
	for _, entity := range entities {
		if _, err := tc.track(entity, domain.StateUnchanged, true); err != nil {
			return err
		}
	}
	return nil
}

// Update marks entity as modified. An entity that was not attached gets its
// current values as originals, so only DatabaseValues can reveal what changed.
func (tc *TrackerContext) Update(entity any) error {
	if e := tc.find(entity); e != nil {
		if e.state == domain.StateUnchanged {
			e.state = domain.StateModified
		}
		return nil
	}
	_, err := tc.track(entity, domain.StateModified, true)
	return err
}

// Delete marks entity for deletion. Deleting an entity that was only added
// stops tracking it.
func (tc *TrackerContext) Delete(entity any) error {
	if e := tc.find(entity); e != nil {
		if e.state == domain.StateAdded {
			tc.detach(e)
			return nil
		}
		e.state = domain.StateDeleted
		return nil
	}
	_, err := tc.track(entity, domain.StateDeleted, true)
	return err
}

// Load reads the first row matching conds into dest and attaches it.
func (tc *TrackerContext) Load(ctx context.Context, dest any, conds ...any) error {
	if _, err := describePointer(dest); err != nil {
		return err
	}
	if err := tc.conn(ctx).First(dest, conds...).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		return fmt.Errorf("load %T: %w", dest, err)
	}
	return tc.Attach(dest)
}

func (tc *TrackerContext) Entries(state domain.EntityState) []ports.EntityEntry {
	tc.DetectChanges()
	var out []ports.EntityEntry
	for _, e := range tc.entries {
		if e.state == state {
			out = append(out, e)
		}
	}
	return out
}

// DetectChanges moves unchanged entries whose values differ from their
// snapshot to the modified state.
func (tc *TrackerContext) DetectChanges() {
	ctx := context.Background()
	for _, e := range tc.entries {
		if e.state != domain.StateUnchanged {
			continue
		}
		current, err := e.desc.Values(ctx, e.entity)
		if err != nil {
			continue
		}
		if !sameValues(e.original, current) {
			e.state = domain.StateModified
		}
	}
}

func (tc *TrackerContext) AddAuditLogs(logs ...domain.AuditLog) {
	tc.pending = append(tc.pending, logs...)
}

func (tc *TrackerContext) AuditLogs() ports.AuditLogRepository {
	return tc.logs
}

// SaveChanges persists every pending change together with its audit logs in
// one write transaction and returns the number of affected rows. Additions
// are audited after the insert so generated keys are recorded.
func (tc *TrackerContext) SaveChanges(ctx context.Context, actor string, meta domain.Metadata) (int, error) {
	added := tc.coordinator.GetAdditions()

	var affected int
	err := tc.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		tc.tx = tx.DB
		defer func() { tc.tx = nil }()

		if err := tc.coordinator.AuditModifications(ctx, actor, meta); err != nil {
			return err
		}
		if err := tc.coordinator.AuditDeletions(ctx, actor, meta); err != nil {
			return err
		}
		n, err := tc.persist(tx.DB)
		if err != nil {
			return err
		}
		affected = n
		if err := tc.coordinator.AuditAdditions(ctx, actor, added, meta); err != nil {
			return err
		}
		if len(tc.pending) > 0 {
			if err := appendLogs(tx.DB, tc.pending); err != nil {
				return err
			}
		}
		return nil
	})
	written := len(tc.pending)
	tc.pending = nil
	if err != nil {
		return 0, fmt.Errorf("save changes: %w", err)
	}

	tc.acceptChanges()
	tc.log.WithFields(logrus.Fields{
		"actor":      actor,
		"rows":       affected,
		"audit_logs": written,
	}).Debug("changes saved")
	return affected, nil
}

func (tc *TrackerContext) persist(tx *gorm.DB) (int, error) {
	var affected int64
	for _, e := range tc.entries {
		var res *gorm.DB
		switch e.state {
		case domain.StateAdded:
			res = tx.Create(e.entity)
		case domain.StateModified:
			res = tx.Save(e.entity)
		case domain.StateDeleted:
			res = tx.Delete(e.entity)
		default:
			continue
		}
		if res.Error != nil {
			return 0, fmt.Errorf("%s %s: %w", e.state, e.desc.TypeName, res.Error)
		}
		affected += res.RowsAffected
	}
	return int(affected), nil
}

func (tc *TrackerContext) acceptChanges() {
	kept := tc.entries[:0]
	for _, e := range tc.entries {
		switch e.state {
		case domain.StateDeleted:
			e.state = domain.StateDetached
			continue
		case domain.StateAdded, domain.StateModified:
			e.state = domain.StateUnchanged
			e.snapshot()
		}
		kept = append(kept, e)
	}
	tc.entries = kept
}

func (tc *TrackerContext) track(entity any, state domain.EntityState, snapshot bool) (*trackedEntry, error) {
	desc, err := describePointer(entity)
	if err != nil {
		return nil, err
	}
	if tc.find(entity) != nil {
		return nil, fmt.Errorf("%s is already tracked", desc.TypeName)
	}
	tc.cfg.RegisterType(desc)
	e := &trackedEntry{tc: tc, entity: entity, desc: desc, state: state}
	if snapshot {
		e.snapshot()
	}
	tc.entries = append(tc.entries, e)
	return e, nil
}

func (tc *TrackerContext) find(entity any) *trackedEntry {
	for _, e := range tc.entries {
		if e.entity == entity {
			return e
		}
	}
	return nil
}

func (tc *TrackerContext) detach(target *trackedEntry) {
	for i, e := range tc.entries {
		if e == target {
			tc.entries = append(tc.entries[:i], tc.entries[i+1:]...)
			target.state = domain.StateDetached
			return
		}
	}
}

// conn reads through the open write transaction during SaveChanges, and
// through the reader pool otherwise.
func (tc *TrackerContext) conn(ctx context.Context) *gorm.DB {
	if tc.tx != nil {
		return tc.tx.WithContext(ctx)
	}
	return tc.db.R.WithContext(ctx)
}

func describePointer(entity any) (*entitymeta.Descriptor, error) {
	rv := reflect.ValueOf(entity)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("track %T: expected a non-nil struct pointer: %w", entity, domain.ErrNotStruct)
	}
	return entitymeta.Of(entity)
}

type trackedEntry struct {
	tc       *TrackerContext
	entity   any
	desc     *entitymeta.Descriptor
	state    domain.EntityState
	original domain.PropertyValues
}

var _ ports.EntityEntry = (*trackedEntry)(nil)

func (e *trackedEntry) Entity() any               { return e.entity }
func (e *trackedEntry) EntityType() reflect.Type  { return reflect.TypeOf(e.entity) }
func (e *trackedEntry) State() domain.EntityState { return e.state }

func (e *trackedEntry) PrimaryKey(ctx context.Context) (string, error) {
	return e.desc.PrimaryKey(ctx, e.entity)
}

func (e *trackedEntry) CurrentValues(ctx context.Context) (domain.PropertyValues, error) {
	return e.desc.Values(ctx, e.entity)
}

func (e *trackedEntry) OriginalValues(ctx context.Context) (domain.PropertyValues, error) {
	if e.original == nil {
		return e.CurrentValues(ctx)
	}
	return e.original, nil
}

func (e *trackedEntry) DatabaseValues(ctx context.Context) (domain.PropertyValues, error) {
	conds, err := e.desc.PrimaryKeyConditions(ctx, e.entity)
	if err != nil {
		return nil, err
	}
	stored := e.desc.New()
	if err := e.tc.conn(ctx).Where(conds).Take(stored).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("reload %s: %w", e.desc.TypeName, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("reload %s: %w", e.desc.TypeName, err)
	}
	return e.desc.Values(ctx, stored)
}

func (e *trackedEntry) snapshot() {
	values, err := e.desc.Values(context.Background(), e.entity)
	if err != nil {
		return
	}
	for k, v := range values {
		if b, ok := v.([]byte); ok {
			values[k] = bytes.Clone(b)
		}
	}
	e.original = values
}

func sameValues(original, current domain.PropertyValues) bool {
	if original == nil {
		return true
	}
	for k, v := range current {
		if entitymeta.FormatValue(v) != entitymeta.FormatValue(original[k]) {
			return false
		}
	}
	return true
}
