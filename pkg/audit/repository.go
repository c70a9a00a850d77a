// Package audit persists block/release decisions to a relational store
// for operator review. It is a write-behind trail, never consulted by
// the detection loop to make a blocking decision.
package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tempesta-tech/webshield/internal/errors"
)

// Action names recorded on an AuditRecord.
const (
	ActionBlock   = "block"
	ActionRelease = "release"
)

// Record describes one block or release decision.
type Record struct {
	ID         uuid.UUID `db:"id"`
	OccurredAt time.Time `db:"occurred_at"`
	Action     string    `db:"action"`
	Detector   string    `db:"detector"`
	Blocker    string    `db:"blocker"`
	UserHash   string    `db:"user_hash"`
	Reason     string    `db:"reason"`
	Error      *string   `db:"error"`
}

// Repository is a sqlx-backed audit trail.
type Repository struct {
	db *sqlx.DB
}

// Open connects to connString using the pgx stdlib driver, the idiom
// sqlx itself favors for struct-shaped, low-volume access.
func Open(connString string) (*Repository, error) {
	db, err := sqlx.Connect("pgx", connString)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransientStore, "connecting audit repository")
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// Record inserts one row. The caller should treat a failure as
// logging-only: audit is observability, not control flow, and must
// never block or fail the detection loop.
func (r *Repository) Record(ctx context.Context, rec Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = time.Now().UTC()
	}

	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO audit_records (id, occurred_at, action, detector, blocker, user_hash, reason, error)
		VALUES (:id, :occurred_at, :action, :detector, :blocker, :user_hash, :reason, :error)
	`, rec)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeTransientStore, "recording audit entry")
	}
	return nil
}

// Recent returns the most recent limit records, newest first. Exists
// for operational tooling; the detection loop never calls it.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Record, error) {
	var records []Record
	err := r.db.SelectContext(ctx, &records, `
		SELECT id, occurred_at, action, detector, blocker, user_hash, reason, error
		FROM audit_records
		ORDER BY occurred_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTransientStore, "reading recent audit entries")
	}
	return records, nil
}
