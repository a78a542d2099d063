package blacklist

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists blacklist entries in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed blacklist store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) List(ctx context.Context) ([]Entry, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, type, value, reason, source, severity, active, created_at
		FROM blacklist
		ORDER BY value ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Type, &e.Value, &e.Reason, &e.Source,
			&e.Severity, &e.Active, &e.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Get(ctx context.Context, value string) (*Entry, error) {
	row := p.db.QueryRowContext(ctx, `
		SELECT id, type, value, reason, source, severity, active, created_at
		FROM blacklist WHERE value = $1`, value)

	var e Entry
	err := row.Scan(&e.ID, &e.Type, &e.Value, &e.Reason, &e.Source,
		&e.Severity, &e.Active, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (p *PostgresStore) Add(ctx context.Context, e Entry) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO blacklist (id, type, value, reason, source, severity, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.Type, e.Value, e.Reason, e.Source, e.Severity, e.Active, e.CreatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Remove(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `DELETE FROM blacklist WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Migrate creates the blacklist table if it doesn't exist and seeds the
// built-in known-malicious set on first run.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS blacklist (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			value      TEXT NOT NULL UNIQUE,
			reason     TEXT NOT NULL,
			source     TEXT NOT NULL DEFAULT 'manual',
			severity   TEXT NOT NULL DEFAULT 'high',
			active     BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_blacklist_type ON blacklist(type);
	`)
	if err != nil {
		return err
	}

	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM blacklist`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, e := range SeedEntries() {
		if err := p.Add(ctx, e); err != nil && err != ErrExists {
			return err
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
