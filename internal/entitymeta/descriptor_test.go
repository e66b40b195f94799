package entitymeta

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type Party struct {
	ID      int64 `gorm:"primaryKey"`
	Name    string
	Deleted bool
}

type Person struct {
	Party    `audit:"base"`
	Birthday *time.Time
	Notes    string `audit:"-"`
}

type Company struct {
	Party `audit:"base"`
	VATNo string
}

type OrderLine struct {
	OrderID int64 `gorm:"primaryKey;autoIncrement:false"`
	LineNo  int   `gorm:"primaryKey;autoIncrement:false"`
	SKU     string
}

type Translation struct {
	Locale string `gorm:"primaryKey"`
	Key    string `gorm:"primaryKey"`
	Text   string
}

type deletable interface {
	IsDeleted() bool
}

func (p Party) IsDeleted() bool { return p.Deleted }

func TestDescribeEmbeddedBaseType(t *testing.T) {
	d, err := For[Person]()
	require.NoError(t, err)

	require.Equal(t, TypeName(reflect.TypeOf(Person{})), d.TypeName)
	require.Equal(t, TypeName(reflect.TypeOf(Party{})), d.BaseTypeName)

	names := make([]string, 0, len(d.Fields))
	for _, f := range d.Fields {
		names = append(names, f.Name)
	}
	require.ElementsMatch(t, []string{"ID", "Name", "Deleted", "Birthday", "Notes"}, names)

	notes, ok := d.Field("Notes")
	require.True(t, ok)
	require.True(t, notes.Skip)

	again, err := Of(&Person{})
	require.NoError(t, err)
	require.Same(t, d, again)
}

func TestDescribeRejectsNonStruct(t *testing.T) {
	_, err := Describe(reflect.TypeOf(42))
	require.Error(t, err)

	_, err = Of(nil)
	require.Error(t, err)
}

func TestPrimaryKeyComposite(t *testing.T) {
	ctx := context.Background()
	d, err := For[OrderLine]()
	require.NoError(t, err)

	pk, err := d.PrimaryKey(ctx, &OrderLine{OrderID: 7, LineNo: 3, SKU: "x"})
	require.NoError(t, err)
	require.Equal(t, "7,3", pk)

	conds, err := d.PrimaryKeyConditions(ctx, OrderLine{OrderID: 7, LineNo: 3})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"order_id": int64(7), "line_no": 3}, conds)
}

func TestPrimaryKeyCompositeEscapesSeparators(t *testing.T) {
	ctx := context.Background()
	d, err := For[Translation]()
	require.NoError(t, err)

	left, err := d.PrimaryKey(ctx, &Translation{Locale: "a,b", Key: "c"})
	require.NoError(t, err)
	right, err := d.PrimaryKey(ctx, &Translation{Locale: "a", Key: "b,c"})
	require.NoError(t, err)
	require.NotEqual(t, left, right)
	require.Equal(t, `a\,b,c`, left)
	require.Equal(t, `a,b\,c`, right)

	slash, err := d.PrimaryKey(ctx, &Translation{Locale: `a\`, Key: ",c"})
	require.NoError(t, err)
	require.Equal(t, `a\\,\,c`, slash)

	require.Equal(t, "a,b", JoinKey("a,b"), "single keys stay verbatim")
}

func TestValuesReadsEmbeddedFields(t *testing.T) {
	d, err := For[Company]()
	require.NoError(t, err)

	values, err := d.Values(context.Background(), &Company{Party: Party{ID: 1, Name: "Acme"}, VATNo: "LT1"})
	require.NoError(t, err)
	require.Equal(t, int64(1), values["ID"])
	require.Equal(t, "Acme", values["Name"])
	require.Equal(t, "LT1", values["VATNo"])

	_, err = d.Values(context.Background(), &Person{})
	require.Error(t, err)
}

func TestImplements(t *testing.T) {
	iface := reflect.TypeOf((*deletable)(nil)).Elem()
	require.True(t, Implements(reflect.TypeOf(&Person{}), iface))
	require.False(t, Implements(reflect.TypeOf(OrderLine{}), iface))

	require.True(t, Implements(reflect.TypeOf(Company{}), reflect.TypeOf(Party{})))
	require.False(t, Implements(reflect.TypeOf(OrderLine{}), reflect.TypeOf(Party{})))
	require.False(t, Implements(reflect.TypeOf(OrderLine{}), nil))
}

func TestFormatValue(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	var nilTime *time.Time

	require.Equal(t, "", FormatValue(nil))
	require.Equal(t, "", FormatValue(nilTime))
	require.Equal(t, "2024-05-01T10:00:00Z", FormatValue(&ts))
	require.Equal(t, "true", FormatValue(true))
	require.Equal(t, "0a0b", FormatValue([]byte{10, 11}))
	require.Equal(t, "42", FormatValue(int64(42)))
}

func TestIsEmpty(t *testing.T) {
	var nilTime *time.Time
	require.True(t, IsEmpty(nil))
	require.True(t, IsEmpty(""))
	require.True(t, IsEmpty(0))
	require.True(t, IsEmpty(nilTime))
	require.True(t, IsEmpty([]byte{}))
	require.False(t, IsEmpty("x"))
	require.False(t, IsEmpty(&time.Time{}))
}
