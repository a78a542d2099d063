package breaker

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kyvernlabs/shield/internal/chain"
)

func newTestRouter(t *testing.T) (*gin.Engine, *Breaker) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	b := New(NewMemoryStore(), Tunables{Threshold: 3, Window: time.Hour, Cooldown: time.Hour}, nil)
	cfg := chain.Config{
		MaxTransactionValue: chain.SOLToLamports(10),
		DailySpendLimit:     chain.SOLToLamports(100),
		ApprovalThreshold:   chain.SOLToLamports(5),
		AnomalyThreshold:    3,
		TimeWindowSeconds:   3600,
		CooldownSeconds:     3600,
	}
	r := gin.New()
	NewHandler(b, cfg).RegisterRoutes(r.Group("/v1"))
	return r, b
}

func TestHandler_StatusDefaultsClosed(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/breakers/agent-1", nil)
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "agent-1", resp.AgentID)
	assert.Equal(t, "closed", resp.State)
	assert.Zero(t, resp.TotalAnalyzed)
}

func TestHandler_TripThenStatusThenReset(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/breakers/agent-1/trip", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "open", resp.State)
	assert.NotNil(t, resp.CooldownEndsAt)

	// Second trip conflicts.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/breakers/agent-1/trip", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/breakers/agent-1/reset", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "closed", resp.State)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/breakers/agent-1/reset", nil))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHandler_AccountEncoding(t *testing.T) {
	r, b := newTestRouter(t)

	_, err := b.Record(context.Background(), "agent-1", nil, true)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/v1/breakers/agent-1/account?authority=aa000000000000000000000000000000000000000000000000000000000000aa", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AgentID string `json:"agent_id"`
		Length  int    `json:"length"`
		Data    string `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	raw, err := base64.StdEncoding.DecodeString(resp.Data)
	require.NoError(t, err)
	assert.Len(t, raw, resp.Length)

	acc, err := chain.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, chain.StateClosed, acc.State)
	assert.EqualValues(t, 1, acc.TotalTransactions)
	assert.EqualValues(t, 1, acc.BlockedTransactions)
	assert.Equal(t, byte(0xAA), acc.Authority[0])
	assert.Equal(t, byte(0xAA), acc.Authority[31])
}

func TestHandler_AccountRejectsBadPubkey(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/breakers/agent-1/account?authority=nothex", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}
