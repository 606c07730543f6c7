package store

import (
	"context"
	"database/sql"
	"embed"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore keeps documents in the documents table
type PostgresStore struct {
	db *sqlx.DB
}

type documentRow struct {
	ID        string    `db:"id"`
	Rev       string    `db:"rev"`
	Body      []byte    `db:"body"`
	UpdatedAt time.Time `db:"updated_at"`
}

// OpenPostgres connects to dsn. The schema must already be migrated.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connecting to postgres")
	}
	return NewPostgresStore(db), nil
}

// NewPostgresStore wraps an existing connection pool
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate applies the embedded schema migrations to the database at dsn.
// It returns the schema version after migrating.
func Migrate(dsn string) (uint, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return 0, errors.Wrap(err, "opening embedded migrations")
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return 0, errors.Wrap(err, "create migrator")
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, errors.Wrap(err, "apply migrations")
	}

	version, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return 0, errors.Wrap(err, "read version")
	}
	return version, nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (Document, error) {
	if id == "" {
		return Document{}, ErrInvalidID
	}

	var row documentRow
	err := p.db.GetContext(ctx, &row, `SELECT id, rev, body, updated_at FROM documents WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, errors.Wrapf(ErrNotFound, "get %s", id)
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "get %s", id)
	}
	return Document{ID: row.ID, Rev: row.Rev, Body: row.Body}, nil
}

func (p *PostgresStore) Put(ctx context.Context, doc Document) (string, error) {
	if doc.ID == "" {
		return "", ErrInvalidID
	}

	rev := NextRev(doc.Rev, doc.Body)

	var (
		res sql.Result
		err error
	)
	if doc.Rev == "" {
		res, err = p.db.ExecContext(ctx,
			`INSERT INTO documents (id, rev, body, updated_at) VALUES ($1, $2, $3::jsonb, NOW())
			 ON CONFLICT (id) DO NOTHING`,
			doc.ID, rev, string(doc.Body))
	} else {
		res, err = p.db.ExecContext(ctx,
			`UPDATE documents SET rev = $3, body = $4::jsonb, updated_at = NOW()
			 WHERE id = $1 AND rev = $2`,
			doc.ID, doc.Rev, rev, string(doc.Body))
	}
	if err != nil {
		return "", errors.Wrapf(err, "put %s", doc.ID)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return "", errors.Wrapf(err, "put %s", doc.ID)
	}
	if n == 0 {
		return "", errors.Wrapf(ErrConflict, "put %s at revision %q", doc.ID, doc.Rev)
	}
	return rev, nil
}

func (p *PostgresStore) Delete(ctx context.Context, id, rev string) error {
	if id == "" {
		return ErrInvalidID
	}

	res, err := p.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND rev = $2`, id, rev)
	if err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := p.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1)`, id); err != nil {
		return errors.Wrapf(err, "delete %s", id)
	}
	if !exists {
		return errors.Wrapf(ErrNotFound, "delete %s", id)
	}
	return errors.Wrapf(ErrConflict, "delete %s at revision %q", id, rev)
}

func (p *PostgresStore) Close() error {
	return p.db.Close()
}
