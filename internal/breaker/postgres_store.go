package breaker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kyvernlabs/shield/internal/chain"
)

// PostgresStore persists breaker records in Postgres. Anomaly event
// timestamps are stored as a JSONB array and pruned by the state machine,
// not by the store.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the breaker_states table if it does not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS breaker_states (
			agent_id          TEXT PRIMARY KEY,
			state             SMALLINT NOT NULL DEFAULT 0,
			anomaly_events    JSONB NOT NULL DEFAULT '[]',
			last_triggered_at TIMESTAMPTZ,
			cooldown_ends_at  TIMESTAMPTZ,
			probe_in_flight   BOOLEAN NOT NULL DEFAULT false,
			cooldown_seconds  BIGINT NOT NULL,
			total_analyzed    BIGINT NOT NULL DEFAULT 0,
			total_blocked     BIGINT NOT NULL DEFAULT 0,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("migrate breaker_states: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, agentID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT agent_id, state, anomaly_events, last_triggered_at, cooldown_ends_at,
		       probe_in_flight, cooldown_seconds, total_analyzed, total_blocked,
		       created_at, updated_at
		FROM breaker_states WHERE agent_id = $1`, agentID)
	return scanRecord(row)
}

func (s *PostgresStore) Put(ctx context.Context, rec *Record) error {
	events, err := json.Marshal(rec.AnomalyEvents)
	if err != nil {
		return fmt.Errorf("encode anomaly events: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO breaker_states (
			agent_id, state, anomaly_events, last_triggered_at, cooldown_ends_at,
			probe_in_flight, cooldown_seconds, total_analyzed, total_blocked,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (agent_id) DO UPDATE SET
			state = EXCLUDED.state,
			anomaly_events = EXCLUDED.anomaly_events,
			last_triggered_at = EXCLUDED.last_triggered_at,
			cooldown_ends_at = EXCLUDED.cooldown_ends_at,
			probe_in_flight = EXCLUDED.probe_in_flight,
			cooldown_seconds = EXCLUDED.cooldown_seconds,
			total_analyzed = EXCLUDED.total_analyzed,
			total_blocked = EXCLUDED.total_blocked,
			updated_at = EXCLUDED.updated_at`,
		rec.AgentID, int(rec.State), events,
		nullTime(rec.LastTriggeredAt), nullTime(rec.CooldownEndsAt),
		rec.ProbeInFlight, int64(rec.Cooldown/time.Second),
		int64(rec.TotalAnalyzed), int64(rec.TotalBlocked),
		rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert breaker state: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT agent_id, state, anomaly_events, last_triggered_at, cooldown_ends_at,
		       probe_in_flight, cooldown_seconds, total_analyzed, total_blocked,
		       created_at, updated_at
		FROM breaker_states ORDER BY agent_id`)
	if err != nil {
		return nil, fmt.Errorf("list breaker states: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec             Record
		state           int
		events          []byte
		lastTriggered   sql.NullTime
		cooldownEnds    sql.NullTime
		cooldownSeconds int64
		total, blocked  int64
	)
	err := row.Scan(&rec.AgentID, &state, &events, &lastTriggered, &cooldownEnds,
		&rec.ProbeInFlight, &cooldownSeconds, &total, &blocked,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan breaker state: %w", err)
	}
	rec.State = chain.State(state)
	if len(events) > 0 {
		if err := json.Unmarshal(events, &rec.AnomalyEvents); err != nil {
			return nil, fmt.Errorf("decode anomaly events: %w", err)
		}
	}
	if lastTriggered.Valid {
		rec.LastTriggeredAt = lastTriggered.Time
	}
	if cooldownEnds.Valid {
		rec.CooldownEndsAt = cooldownEnds.Time
	}
	rec.Cooldown = time.Duration(cooldownSeconds) * time.Second
	rec.TotalAnalyzed = uint64(total)
	rec.TotalBlocked = uint64(blocked)
	return &rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
