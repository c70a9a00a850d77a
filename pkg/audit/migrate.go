package audit

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
// short-lived database/sql connection distinct from the sqlx pool used
// for steady-state record/recent calls.
func Migrate(ctx context.Context, connString string) error {
	db, err := sql.Open("postgres", connString)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypePreparation, "opening audit migration connection")
	}
	defer db.Close()

	goose.SetBaseFS(migrationFiles)
	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFatal, "setting goose dialect")
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Wrap(err, errors.ErrorTypePreparation, "applying audit migrations")
	}

	return nil
}
