package accesslog

import (
	"context"
	"database/sql"
	"embed"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"

	"github.com/tempesta-tech/webshield/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migrate applies every pending migration under migrations/ using a
// short-lived database/sql connection; pgxpool is used for the hot
// query path, but goose needs a database/sql driver, so the
// migration step goes through lib/pq instead.
func Migrate(ctx context.Context, cfg Config) error {
	db, err := sql.Open("postgres", cfg.connString())
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypePreparation, "opening migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFatal, "setting goose dialect")
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, errors.ErrorTypePreparation, "applying access-log migrations")
	}

	return nil
}
