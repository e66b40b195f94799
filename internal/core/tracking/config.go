package tracking

import (
	"reflect"
	"sync"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
)

// SoftDeletable names the marker type of soft deletable entities and the
// boolean property holding the deleted flag. Marker may be an interface the
// entity implements or a struct the entity is or embeds.
type SoftDeletable struct {
	Marker       reflect.Type
	PropertyName string
}

// Config is the process wide tracking configuration. Build it during
// startup, register overrides, then share it with every tracker context.
type Config struct {
	store *Store

	mu           sync.RWMutex
	enabled      bool
	disconnected bool
	trackEmpty   bool
	softDelete   *SoftDeletable
	registered   map[string]bool
}

func NewConfig() *Config {
	return &Config{
		store:      NewStore(),
		enabled:    true,
		registered: make(map[string]bool),
	}
}

func (c *Config) Store() *Store {
	return c.store
}

func (c *Config) Enabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// SetEnabled turns auditing on or off globally.
func (c *Config) SetEnabled(v bool) {
	c.mu.Lock()
	c.enabled = v
	c.mu.Unlock()
}

// DisconnectedContext reports whether original values must be reloaded from
// storage instead of the in-memory baseline.
func (c *Config) DisconnectedContext() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.disconnected
}

func (c *Config) SetDisconnectedContext(v bool) {
	c.mu.Lock()
	c.disconnected = v
	c.mu.Unlock()
}

// TrackEmptyProperties reports whether nil or zero values are kept in Added
// and Deleted logs.
func (c *Config) TrackEmptyProperties() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.trackEmpty
}

func (c *Config) SetTrackEmptyProperties(v bool) {
	c.mu.Lock()
	c.trackEmpty = v
	c.mu.Unlock()
}

func (c *Config) SetSoftDeletable(marker reflect.Type, propertyName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if marker == nil || propertyName == "" {
		c.softDelete = nil
		return
	}
	c.softDelete = &SoftDeletable{Marker: marker, PropertyName: propertyName}
}

// SoftDeletable returns the soft delete configuration when one is set.
func (c *Config) SoftDeletable() (SoftDeletable, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.softDelete == nil {
		return SoftDeletable{}, false
	}
	return *c.softDelete, true
}

// IsSoftDeletable reports whether t matches the configured marker type.
// Without a marker nothing is soft deletable.
func (c *Config) IsSoftDeletable(t reflect.Type) bool {
	sd, ok := c.SoftDeletable()
	if !ok {
		return false
	}
	return entitymeta.Implements(t, sd.Marker)
}

// IsTypeTracked reports whether entities of d produce audit logs at all.
// Unregistered types are tracked.
func (c *Config) IsTypeTracked(d *entitymeta.Descriptor) bool {
	v, ok := c.store.Lookup(domain.PropertyConfigurationKey{OwnerType: d.BaseTypeName})
	if !ok {
		return true
	}
	return v.Enabled
}

// IsPropertyTracked reports whether property of d is included in audit
// details. Properties with no registration fall back to their `audit` struct
// tag.
func (c *Config) IsPropertyTracked(d *entitymeta.Descriptor, property string) bool {
	key := domain.PropertyConfigurationKey{PropertyName: property, OwnerType: d.BaseTypeName}
	if v, ok := c.store.Lookup(key); ok {
		return v.Enabled
	}
	return tagDefault(d, property)
}

// RegisterType seeds the store once per type with the `audit` struct tag
// defaults of d at default priority. Existing registrations are kept.
func (c *Config) RegisterType(d *entitymeta.Descriptor) {
	c.mu.Lock()
	seen := c.registered[d.TypeName]
	c.registered[d.TypeName] = true
	c.mu.Unlock()
	if seen {
		return
	}
	for _, f := range d.Fields {
		key := domain.PropertyConfigurationKey{PropertyName: f.Name, OwnerType: d.BaseTypeName}
		c.store.Seed(key, domain.TrackingConfigurationValue{Enabled: !f.Skip, Priority: domain.PriorityDefault})
	}
}

func tagDefault(d *entitymeta.Descriptor, property string) bool {
	f, ok := d.Field(property)
	return !ok || !f.Skip
}
