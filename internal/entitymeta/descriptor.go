// Package entitymeta enumerates the auditable fields of entity structs.
//
// Field discovery is delegated to GORM's schema parser so the audit layer sees
// the same columns, primary keys and embedded structs the persistence layer
// maps. Results are cached per struct type.
package entitymeta

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/atvirokodosprendimai/audittrail/internal/core/domain"
	"gorm.io/gorm/schema"
)

const tagName = "audit"

type Field struct {
	Name       string
	DBName     string
	PrimaryKey bool
	// Skip is set by the `audit:"-"` tag and only seeds the default decision.
	Skip bool

	field *schema.Field
}

// Descriptor describes one entity struct type.
type Descriptor struct {
	Type         reflect.Type
	TypeName     string
	BaseTypeName string
	Table        string
	Fields       []*Field
	PrimaryKeys  []*Field

	byName map[string]*Field
	schema *schema.Schema
}

var (
	cache       sync.Map // reflect.Type → *Descriptor
	schemaCache sync.Map
	namer       = schema.NamingStrategy{}
)

// Of describes the dynamic type of entity, which may be a struct or a
// pointer to one.
func Of(entity any) (*Descriptor, error) {
	if entity == nil {
		return nil, domain.ErrNotStruct
	}
	return Describe(reflect.TypeOf(entity))
}

// For describes T.
func For[T any]() (*Descriptor, error) {
	return Describe(reflect.TypeOf((*T)(nil)).Elem())
}

func Describe(t reflect.Type) (*Descriptor, error) {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Struct {
		return nil, domain.ErrNotStruct
	}
	if cached, ok := cache.Load(t); ok {
		return cached.(*Descriptor), nil
	}

	s, err := schema.Parse(reflect.New(t).Interface(), &schemaCache, namer)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", TypeName(t), err)
	}

	d := &Descriptor{
		Type:         t,
		TypeName:     TypeName(t),
		BaseTypeName: TypeName(BaseType(t)),
		Table:        s.Table,
		byName:       make(map[string]*Field, len(s.Fields)),
		schema:       s,
	}
	for _, sf := range s.Fields {
		if sf.DBName == "" {
			continue
		}
		f := &Field{
			Name:       sf.Name,
			DBName:     sf.DBName,
			PrimaryKey: sf.PrimaryKey,
			Skip:       strings.TrimSpace(sf.Tag.Get(tagName)) == "-",
			field:      sf,
		}
		d.Fields = append(d.Fields, f)
		d.byName[f.Name] = f
		if f.PrimaryKey {
			d.PrimaryKeys = append(d.PrimaryKeys, f)
		}
	}

	actual, _ := cache.LoadOrStore(t, d)
	return actual.(*Descriptor), nil
}

func (d *Descriptor) Field(name string) (*Field, bool) {
	f, ok := d.byName[name]
	return f, ok
}

// Values reads every described field from entity.
func (d *Descriptor) Values(ctx context.Context, entity any) (domain.PropertyValues, error) {
	rv, err := d.structValue(entity)
	if err != nil {
		return nil, err
	}
	values := make(domain.PropertyValues, len(d.Fields))
	for _, f := range d.Fields {
		v, _ := f.field.ValueOf(ctx, rv)
		values[f.Name] = v
	}
	return values, nil
}

// PrimaryKey returns the stringified primary key of entity. Composite keys
// are joined by JoinKey in field order.
func (d *Descriptor) PrimaryKey(ctx context.Context, entity any) (string, error) {
	if len(d.PrimaryKeys) == 0 {
		return "", fmt.Errorf("%s: %w", d.TypeName, domain.ErrNoPrimaryKey)
	}
	rv, err := d.structValue(entity)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(d.PrimaryKeys))
	for _, f := range d.PrimaryKeys {
		v, _ := f.field.ValueOf(ctx, rv)
		parts = append(parts, FormatValue(v))
	}
	return JoinKey(parts...), nil
}

// PrimaryKeyConditions returns column → value conditions selecting entity's
// stored row.
func (d *Descriptor) PrimaryKeyConditions(ctx context.Context, entity any) (map[string]any, error) {
	if len(d.PrimaryKeys) == 0 {
		return nil, fmt.Errorf("%s: %w", d.TypeName, domain.ErrNoPrimaryKey)
	}
	rv, err := d.structValue(entity)
	if err != nil {
		return nil, err
	}
	conds := make(map[string]any, len(d.PrimaryKeys))
	for _, f := range d.PrimaryKeys {
		v, _ := f.field.ValueOf(ctx, rv)
		conds[f.DBName] = v
	}
	return conds, nil
}

// New allocates a zero entity of the described type and returns a pointer.
func (d *Descriptor) New() any {
	return reflect.New(d.Type).Interface()
}

func (d *Descriptor) structValue(entity any) (reflect.Value, error) {
	rv := reflect.ValueOf(entity)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return reflect.Value{}, fmt.Errorf("nil %s", d.TypeName)
		}
		rv = rv.Elem()
	}
	if rv.Type() != d.Type {
		return reflect.Value{}, fmt.Errorf("entity is %s, descriptor is %s", TypeName(rv.Type()), d.TypeName)
	}
	return rv, nil
}
