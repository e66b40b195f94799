package usecase

import (
	"context"
	"reflect"
	"sort"
	"sync"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/core/ports"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
)

type Customer struct {
	ID        int64 `gorm:"primaryKey"`
	Name      string
	Email     string
	Secret    string `audit:"-"`
	IsDeleted bool
}

type Vehicle struct {
	ID    int64 `gorm:"primaryKey"`
	Plate string
}

type Car struct {
	Vehicle `audit:"base"`
	Doors   int
}

type Truck struct {
	Vehicle `audit:"base"`
	Axles   int
}

type Deletable interface {
	Deleted() bool
}

func (c Customer) Deleted() bool { return c.IsDeleted }

type stubEntry struct {
	entity   any
	state    domain.EntityState
	original domain.PropertyValues
	database domain.PropertyValues
	pkErr    error
	dbErr    error

	dbCalls int
}

func newStubEntry(entity any, state domain.EntityState, original domain.PropertyValues) *stubEntry {
	return &stubEntry{entity: entity, state: state, original: original}
}

func (e *stubEntry) Entity() any               { return e.entity }
func (e *stubEntry) EntityType() reflect.Type  { return reflect.TypeOf(e.entity) }
func (e *stubEntry) State() domain.EntityState { return e.state }

func (e *stubEntry) PrimaryKey(ctx context.Context) (string, error) {
	if e.pkErr != nil {
		return "", e.pkErr
	}
	d, err := entitymeta.Of(e.entity)
	if err != nil {
		return "", err
	}
	return d.PrimaryKey(ctx, e.entity)
}

func (e *stubEntry) CurrentValues(ctx context.Context) (domain.PropertyValues, error) {
	d, err := entitymeta.Of(e.entity)
	if err != nil {
		return nil, err
	}
	return d.Values(ctx, e.entity)
}

func (e *stubEntry) OriginalValues(ctx context.Context) (domain.PropertyValues, error) {
	if e.original == nil {
		return e.CurrentValues(ctx)
	}
	return e.original, nil
}

func (e *stubEntry) DatabaseValues(context.Context) (domain.PropertyValues, error) {
	e.dbCalls++
	if e.dbErr != nil {
		return nil, e.dbErr
	}
	return e.database, nil
}

type memoryAuditRepo struct {
	mu   sync.Mutex
	logs []domain.AuditLog
	next int64
}

func (r *memoryAuditRepo) Append(_ context.Context, logs []domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range logs {
		r.next++
		l.ID = r.next
		r.logs = append(r.logs, l)
	}
	return nil
}

func (r *memoryAuditRepo) List(_ context.Context, filter domain.AuditLogFilter) ([]domain.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := map[string]bool{}
	for _, n := range filter.TypeNames {
		names[n] = true
	}
	out := []domain.AuditLog{}
	for _, l := range r.logs {
		if filter.BaseTypeName != "" {
			if l.BaseTypeName != filter.BaseTypeName {
				continue
			}
		} else if !names[l.TypeFullName] {
			continue
		}
		if filter.RecordID != nil && l.RecordID != *filter.RecordID {
			continue
		}
		if l.ID <= filter.AfterID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

type stubTrackerContext struct {
	entries []ports.EntityEntry
	pending []domain.AuditLog
	repo    *memoryAuditRepo
}

func newStubTrackerContext(entries ...ports.EntityEntry) *stubTrackerContext {
	return &stubTrackerContext{entries: entries, repo: &memoryAuditRepo{}}
}

func (c *stubTrackerContext) Entries(state domain.EntityState) []ports.EntityEntry {
	var out []ports.EntityEntry
	for _, e := range c.entries {
		if e.State() == state {
			out = append(out, e)
		}
	}
	return out
}

func (c *stubTrackerContext) AddAuditLogs(logs ...domain.AuditLog) {
	c.pending = append(c.pending, logs...)
}

func (c *stubTrackerContext) AuditLogs() ports.AuditLogRepository {
	return c.repo
}

// flush moves pending logs into the repository, like a save would.
func (c *stubTrackerContext) flush(ctx context.Context) error {
	err := c.repo.Append(ctx, c.pending)
	c.pending = nil
	return err
}

// lyingEntry reports one state to Entries filtering and another afterwards.
type lyingEntry struct {
	*stubEntry
	calls int
}

func (e *lyingEntry) State() domain.EntityState {
	e.calls++
	if e.calls == 1 {
		return domain.StateModified
	}
	return domain.StateUnchanged
}
