package analyzer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// DefaultAuditLimit caps how many records a listing returns.
const DefaultAuditLimit = 50

// AuditStore persists completed analysis results for later review.
type AuditStore interface {
	Insert(ctx context.Context, res *AnalysisResult) error
	ListByAgent(ctx context.Context, agentID string, limit int) ([]*AnalysisResult, error)
}

// MemoryAuditStore keeps results in memory, newest first per agent.
type MemoryAuditStore struct {
	mu      sync.RWMutex
	byAgent map[string][]*AnalysisResult
	maxPer  int
}

var _ AuditStore = (*MemoryAuditStore)(nil)

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{byAgent: make(map[string][]*AnalysisResult), maxPer: 1000}
}

func (s *MemoryAuditStore) Insert(ctx context.Context, res *AnalysisResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := append([]*AnalysisResult{res}, s.byAgent[res.AgentID]...)
	if len(records) > s.maxPer {
		records = records[:s.maxPer]
	}
	s.byAgent[res.AgentID] = records
	return nil
}

func (s *MemoryAuditStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*AnalysisResult, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.byAgent[agentID]
	if len(records) > limit {
		records = records[:limit]
	}
	out := make([]*AnalysisResult, len(records))
	copy(out, records)
	return out, nil
}

// PostgresAuditStore persists results as JSONB rows keyed by request ID,
// with the fields the listing queries need broken out into columns.
type PostgresAuditStore struct {
	db *sql.DB
}

var _ AuditStore = (*PostgresAuditStore)(nil)

func NewPostgresAuditStore(db *sql.DB) *PostgresAuditStore {
	return &PostgresAuditStore{db: db}
}

// Migrate creates the analyses table if it does not exist.
func (s *PostgresAuditStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS analyses (
			request_id  TEXT PRIMARY KEY,
			agent_id    TEXT NOT NULL,
			decision    TEXT NOT NULL,
			risk_score  INT NOT NULL,
			result      JSONB NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS idx_analyses_agent_created
			ON analyses (agent_id, created_at DESC)`)
	if err != nil {
		return fmt.Errorf("migrate analyses: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) Insert(ctx context.Context, res *AnalysisResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("encode analysis result: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO analyses (request_id, agent_id, decision, risk_score, result, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		res.RequestID, res.AgentID, string(res.Decision), res.RiskScore, payload, res.Timestamp)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

func (s *PostgresAuditStore) ListByAgent(ctx context.Context, agentID string, limit int) ([]*AnalysisResult, error) {
	if limit <= 0 {
		limit = DefaultAuditLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT result FROM analyses
		WHERE agent_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, agentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*AnalysisResult
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		var res AnalysisResult
		if err := json.Unmarshal(payload, &res); err != nil {
			return nil, fmt.Errorf("decode analysis result: %w", err)
		}
		out = append(out, &res)
	}
	return out, rows.Err()
}
