package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func handlerRouter(t *testing.T) (*gin.Engine, *pipelineFixture) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	fx := newFixture(t)
	r := gin.New()
	NewHandler(fx.pipeline).RegisterRoutes(r.Group("/v1"))
	return r, fx
}

func postAnalyze(t *testing.T, r *gin.Engine, body map[string]interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	return w
}

func validBody() map[string]interface{} {
	return map[string]interface{}{
		"agent_id":       "trader-bot-1",
		"target_address": testTarget,
		"amount":         0.5,
		"reasoning":      "Swapping 0.5 SOL for USDC to secure profits.",
	}
}

func TestAnalyzeEndpoint_Allow(t *testing.T) {
	r, _ := handlerRouter(t)

	w := postAnalyze(t, r, validBody())
	require.Equal(t, http.StatusOK, w.Code)

	var res AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, DecisionAllow, res.Decision)
	assert.NotEmpty(t, res.RequestID)
	assert.NotNil(t, res.Heuristic)
	assert.NotNil(t, res.Source)
	assert.NotNil(t, res.LLM)
}

func TestAnalyzeEndpoint_BlockOverLimit(t *testing.T) {
	r, _ := handlerRouter(t)

	body := validBody()
	body["amount"] = 1000.0
	w := postAnalyze(t, r, body)
	require.Equal(t, http.StatusOK, w.Code)

	var res AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, DecisionBlock, res.Decision)
	assert.Equal(t, 100, res.RiskScore)
}

func TestAnalyzeEndpoint_PerRequestConfig(t *testing.T) {
	r, _ := handlerRouter(t)

	body := validBody()
	body["amount"] = 3.0
	body["config"] = map[string]interface{}{"max_transaction_value": 2.0}
	w := postAnalyze(t, r, body)
	require.Equal(t, http.StatusOK, w.Code)

	var res AnalysisResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, DecisionBlock, res.Decision)
	assert.Contains(t, res.Flags, FlagAmountExceeded)
}

func TestAnalyzeEndpoint_ValidationFailures(t *testing.T) {
	r, fx := handlerRouter(t)

	cases := []struct {
		name   string
		mutate func(map[string]interface{})
	}{
		{"missing agent_id", func(b map[string]interface{}) { delete(b, "agent_id") }},
		{"bad agent_id", func(b map[string]interface{}) { b["agent_id"] = "spaces not allowed" }},
		{"missing target", func(b map[string]interface{}) { delete(b, "target_address") }},
		{"bad address", func(b map[string]interface{}) { b["target_address"] = "0xnotbase58!!" }},
		{"negative amount", func(b map[string]interface{}) { b["amount"] = -1.0 }},
		{"missing reasoning", func(b map[string]interface{}) { delete(b, "reasoning") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			body := validBody()
			tc.mutate(body)
			w := postAnalyze(t, r, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
		})
	}

	// Rejected requests never reach the pipeline.
	results, err := fx.pipeline.ListByAgent(context.Background(), "trader-bot-1", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestAnalyzeEndpoint_RejectsBadConfig(t *testing.T) {
	r, _ := handlerRouter(t)

	body := validBody()
	body["config"] = map[string]interface{}{"max_transaction_value": -1}
	w := postAnalyze(t, r, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "max_transaction_value")
}

func TestListAnalysesEndpoint(t *testing.T) {
	r, _ := handlerRouter(t)

	for i := 0; i < 2; i++ {
		w := postAnalyze(t, r, validBody())
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyses/trader-bot-1", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AgentID string            `json:"agent_id"`
		Count   int               `json:"count"`
		Results []*AnalysisResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Results, 2)

	// Unknown agents report an empty list, not an error.
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyses/ghost-agent", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
}

func TestListAnalysesEndpoint_BadLimit(t *testing.T) {
	r, _ := handlerRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/analyses/trader-bot-1?limit=9999", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
