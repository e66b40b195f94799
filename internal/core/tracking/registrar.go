package tracking

import (
	"errors"
	"fmt"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"github.com/atvirokodosprendimai/audittrail/internal/entitymeta"
)

// OverrideTrackingResponse changes tracking decisions for T. Every decision is
// registered with high priority so it beats struct tag defaults. Errors are
// collected and reported by Err; a failing call leaves the store untouched.
type OverrideTrackingResponse[T any] struct {
	cfg  *Config
	desc *entitymeta.Descriptor
	err  error
}

// OverrideTracking starts a fluent override for entity type T.
func OverrideTracking[T any](cfg *Config) *OverrideTrackingResponse[T] {
	r := &OverrideTrackingResponse[T]{cfg: cfg}
	d, err := entitymeta.For[T]()
	if err != nil {
		r.err = fmt.Errorf("override tracking: %w", err)
		return r
	}
	cfg.RegisterType(d)
	r.desc = d
	return r
}

// Enable turns on auditing for the whole type.
func (r *OverrideTrackingResponse[T]) Enable() *OverrideTrackingResponse[T] {
	r.set("", true)
	return r
}

// Disable turns off auditing for the whole type.
func (r *OverrideTrackingResponse[T]) Disable() *OverrideTrackingResponse[T] {
	r.set("", false)
	return r
}

func (r *OverrideTrackingResponse[T]) EnableProperty(names ...string) *OverrideTrackingResponse[T] {
	for _, name := range names {
		r.set(name, true)
	}
	return r
}

func (r *OverrideTrackingResponse[T]) DisableProperty(names ...string) *OverrideTrackingResponse[T] {
	for _, name := range names {
		r.set(name, false)
	}
	return r
}

func (r *OverrideTrackingResponse[T]) Err() error {
	return r.err
}

func (r *OverrideTrackingResponse[T]) set(property string, enabled bool) {
	if r.desc == nil {
		return
	}
	if property != "" {
		if _, ok := r.desc.Field(property); !ok {
			r.err = errors.Join(r.err, fmt.Errorf("%s.%s: %w", r.desc.TypeName, property, domain.ErrUnknownProperty))
			return
		}
	}
	r.cfg.store.Upsert(
		domain.PropertyConfigurationKey{PropertyName: property, OwnerType: r.desc.BaseTypeName},
		domain.TrackingConfigurationValue{Enabled: enabled, Priority: domain.PriorityHigh},
	)
}

// TrackAllResponse narrows a TrackAllProperties registration.
type TrackAllResponse[T any] struct {
	override *OverrideTrackingResponse[T]
}

// TrackAllProperties enables T and every one of its fields with high
// priority.
func TrackAllProperties[T any](cfg *Config) *TrackAllResponse[T] {
	o := OverrideTracking[T](cfg).Enable()
	if o.desc != nil {
		for _, f := range o.desc.Fields {
			o.set(f.Name, true)
		}
	}
	return &TrackAllResponse[T]{override: o}
}

// Except disables the named properties again.
func (r *TrackAllResponse[T]) Except(names ...string) *TrackAllResponse[T] {
	r.override.DisableProperty(names...)
	return r
}

func (r *TrackAllResponse[T]) Err() error {
	return r.override.Err()
}
