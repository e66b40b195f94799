package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/audittrail/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/audittrail/migrations"
)

type Account struct {
	ID       int64 `gorm:"primaryKey"`
	Owner    string
	Balance  int64
	Note     string `audit:"-"`
	Archived bool
}

type Archivable interface {
	IsArchived() bool
}

func (a Account) IsArchived() bool { return a.Archived }

type Asset struct {
	ID    int64 `gorm:"primaryKey;autoIncrement:false"`
	Label string
}

type Laptop struct {
	Asset `audit:"base"`
	Model string
}

type Phone struct {
	Asset  `audit:"base"`
	Number string
}

type Membership struct {
	GroupID int64 `gorm:"primaryKey"`
	UserID  int64 `gorm:"primaryKey"`
	Role    string
}

func openTestDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	ctx := context.Background()

	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "audit.sqlite"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	sqlDB, err := db.WriteSQLDB()
	require.NoError(t, err)
	require.NoError(t, migrations.Up(ctx, sqlDB))
	require.NoError(t, db.W.AutoMigrate(&Account{}, &Laptop{}, &Phone{}, &Membership{}))
	return db
}
