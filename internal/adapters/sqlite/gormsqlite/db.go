package gormsqlite

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"runtime"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	gormdriver "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	_ "modernc.org/sqlite"
)

type DB struct {
	R *gorm.DB
	W *gorm.DB
}

type Tx struct {
	*gorm.DB
}

type cbfn func(tx *Tx) error

func (db *DB) ReadTX(ctx context.Context, fn cbfn) error {
	return db.R.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	}, &sql.TxOptions{ReadOnly: true})
}

func (db *DB) WriteTX(ctx context.Context, fn cbfn) error {
	return db.W.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Tx{DB: tx})
	})
}

func (db *DB) WriteSQLDB() (*sql.DB, error) {
	return db.W.DB()
}

func (db *DB) Close() error {
	var firstErr error
	closeOne := func(g *gorm.DB) {
		if err := closeGORM(g); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	closeOne(db.R)
	closeOne(db.W)
	return firstErr
}

var _ io.Closer = (*DB)(nil)

// Open opens a reader pool and a single-connection writer on the same SQLite
// file. A nil log discards GORM output.
func Open(file string, log *logrus.Logger) (*DB, error) {
	gormLogger := NewLogger(log, time.Second)

	reader, err := gorm.Open(gormdriver.Dialector{DriverName: "sqlite", DSN: buildDSN(file, true)}, &gorm.Config{
		PrepareStmt: true,
		Logger:      gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("open read db: %w", err)
	}

	writer, err := gorm.Open(gormdriver.Dialector{DriverName: "sqlite", DSN: buildDSN(file, false)}, &gorm.Config{
		PrepareStmt: true,
		Logger:      gormLogger,
	})
	if err != nil {
		_ = closeGORM(reader)
		return nil, fmt.Errorf("open write db: %w", err)
	}

	rdb, err := reader.DB()
	if err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("reader sql db: %w", err)
	}
	wdb, err := writer.DB()
	if err != nil {
		_ = closeGORM(reader)
		_ = closeGORM(writer)
		return nil, fmt.Errorf("writer sql db: %w", err)
	}

	rdb.SetMaxOpenConns(runtime.NumCPU())
	rdb.SetMaxIdleConns(runtime.NumCPU())
	rdb.SetConnMaxLifetime(0)
	rdb.SetConnMaxIdleTime(0)

	wdb.SetMaxOpenConns(1)
	wdb.SetMaxIdleConns(1)
	wdb.SetConnMaxLifetime(0)
	wdb.SetConnMaxIdleTime(0)

	return &DB{R: reader, W: writer}, nil
}

// buildDSN encodes the pragmas as DSN parameters so every pooled connection
// gets them, not only the first one.
func buildDSN(file string, readOnly bool) string {
	pragmas := []string{
		"journal_mode(WAL)",
		"synchronous(NORMAL)",
		"temp_store(MEMORY)",
		"wal_autocheckpoint(1000)",
		"cache_size(-20000)",
		"foreign_keys(1)",
		"busy_timeout(5000)",
		"trusted_schema(OFF)",
	}
	if readOnly {
		pragmas = append(pragmas, "query_only(1)")
	} else {
		pragmas = append(pragmas, "query_only(0)")
	}

	params := make([]string, 0, len(pragmas)+1)
	for _, p := range pragmas {
		params = append(params, "_pragma="+p)
	}
	params = append(params, "_time_format=sqlite")

	sep := "?"
	if strings.Contains(file, "?") {
		sep = "&"
	}
	return file + sep + strings.Join(params, "&")
}

func closeGORM(g *gorm.DB) error {
	if g == nil {
		return nil
	}
	sqlDB, err := g.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
