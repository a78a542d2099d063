package trust

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
)

// PostgresStore persists trusted domains in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed trusted domain store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) List(ctx context.Context) ([]Domain, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT domain, category, added_at
		FROM trusted_domains
		ORDER BY domain ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var result []Domain
	for rows.Next() {
		var d Domain
		if err := rows.Scan(&d.Domain, &d.Category, &d.AddedAt); err != nil {
			return nil, err
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (p *PostgresStore) Add(ctx context.Context, d Domain) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO trusted_domains (domain, category, added_at)
		VALUES ($1, $2, $3)`,
		NormalizeHost(d.Domain), d.Category, d.AddedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrExists
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Remove(ctx context.Context, domain string) error {
	result, err := p.db.ExecContext(ctx,
		`DELETE FROM trusted_domains WHERE domain = $1`, NormalizeHost(domain))
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

// Migrate creates the trusted_domains table if it doesn't exist and seeds the
// built-in allowlist on first run.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS trusted_domains (
			domain   TEXT PRIMARY KEY,
			category TEXT NOT NULL DEFAULT '',
			added_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	if err != nil {
		return err
	}

	var count int
	if err := p.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trusted_domains`).Scan(&count); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	for _, d := range DefaultDomains() {
		if err := p.Add(ctx, d); err != nil && err != ErrExists {
			return err
		}
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
