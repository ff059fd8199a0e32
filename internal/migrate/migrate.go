// Package migrate brings the mirror schema up to date from the embedded
// SQL migrations before the daemon starts syncing.
package migrate

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/vecindapp/portalsync/migrations"
)

// Up applies all pending mirror-schema migrations. goose needs a
// database/sql handle, so the pgx stdlib driver is registered here.
func Up(ctx context.Context, dsn string) error {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}
