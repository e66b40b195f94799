package entitymeta

import (
	"database/sql/driver"
	"encoding/hex"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// TypeName is the fully qualified name of t, e.g.
// "github.com/acme/shop/models.Order".
func TypeName(t reflect.Type) string {
	t = indirectType(t)
	if t == nil {
		return ""
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// BaseType returns the declaring base type of t: the type of its anonymous
// embedded struct field tagged `audit:"base"`, or t itself.
func BaseType(t reflect.Type) reflect.Type {
	t = indirectType(t)
	if t == nil || t.Kind() != reflect.Struct {
		return t
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if !sf.Anonymous {
			continue
		}
		if !hasTagOption(sf.Tag.Get(tagName), "base") {
			continue
		}
		if et := indirectType(sf.Type); et.Kind() == reflect.Struct {
			return et
		}
	}
	return t
}

// Implements reports whether values of t (or *t) are assignable to the
// interface iface, or whether t is iface or embeds it when iface is a struct.
func Implements(t, iface reflect.Type) bool {
	t = indirectType(t)
	if t == nil || iface == nil {
		return false
	}
	if iface.Kind() == reflect.Interface {
		return t.Implements(iface) || reflect.PointerTo(t).Implements(iface)
	}
	iface = indirectType(iface)
	if t == iface {
		return true
	}
	if t.Kind() != reflect.Struct {
		return false
	}
	for i := 0; i < t.NumField(); i++ {
		sf := t.Field(i)
		if sf.Anonymous && Implements(sf.Type, iface) {
			return true
		}
	}
	return false
}

var keyEscaper = strings.NewReplacer(`\`, `\\`, ",", `\,`)

// JoinKey joins the formatted parts of a composite key with commas. Inside
// each part a backslash becomes `\\` and a comma becomes `\,`, so distinct
// keys never collide. A single part is returned unchanged.
func JoinKey(parts ...string) string {
	if len(parts) == 1 {
		return parts[0]
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyEscaper.Replace(p)
	}
	return strings.Join(escaped, ",")
}

// FormatValue renders a raw property value the way audit details store it.
// nil and nil pointers render as "".
func FormatValue(v any) string {
	if v == nil {
		return ""
	}
	if valuer, ok := v.(driver.Valuer); ok {
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer && rv.IsNil() {
			return ""
		}
		dv, err := valuer.Value()
		if err != nil {
			return fmt.Sprint(v)
		}
		if dv == nil {
			return ""
		}
		v = dv
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return ""
		}
		rv = rv.Elem()
	}
	v = rv.Interface()

	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case []byte:
		return hex.EncodeToString(val)
	case string:
		return val
	}
	return fmt.Sprint(v)
}

// IsEmpty reports whether v is nil, a nil pointer or the zero value.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return rv.IsNil() || (rv.Kind() != reflect.Pointer && rv.Kind() != reflect.Interface && rv.Len() == 0)
	}
	return rv.IsZero()
}

func indirectType(t reflect.Type) reflect.Type {
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t
}

func hasTagOption(tag, option string) bool {
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}
