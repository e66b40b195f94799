// Package migrations owns the audit schema: the audit_logs and
// audit_log_details tables and the outbox_events delivery queue.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

//go:embed files/*.sql
var migrationFS embed.FS

func Up(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "files"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Version reports the applied schema version.
func Version(ctx context.Context, db *sql.DB) (int64, error) {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return 0, fmt.Errorf("set goose dialect: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return v, nil
}
