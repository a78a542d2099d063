package trust

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

func setupRouter(t *testing.T) (*gin.Engine, *MemoryStore, *Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	reg := NewRegistry(store, 0, nil)
	require.NoError(t, reg.Load(context.Background()))

	r := gin.New()
	NewHandler(store, reg).RegisterRoutes(r.Group("/v1"))
	return r, store, reg
}

func TestHandler_AddListRemove(t *testing.T) {
	r, _, reg := setupRouter(t)

	body, _ := json.Marshal(gin.H{"domain": "Example.com", "category": "price-feed"})
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/trusted-domains", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code)

	// Mutations refresh the registry snapshot immediately.
	assert.True(t, reg.IsTrusted("example.com"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/v1/trusted-domains", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var listResp struct {
		Domains []Domain `json:"domains"`
		Count   int      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listResp))
	assert.Equal(t, 1, listResp.Count)
	assert.Equal(t, "example.com", listResp.Domains[0].Domain)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/trusted-domains/example.com", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, reg.IsTrusted("example.com"))
}

func TestHandler_AddErrors(t *testing.T) {
	r, _, _ := setupRouter(t)

	// Missing domain.
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/trusted-domains", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")

	// Malformed domain.
	body, _ := json.Marshal(gin.H{"domain": "not a domain"})
	w = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/v1/trusted-domains", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// Duplicate.
	body, _ = json.Marshal(gin.H{"domain": "dup.example.com"})
	for i, wantCode := range []int{http.StatusCreated, http.StatusConflict} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest("POST", "/v1/trusted-domains", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		r.ServeHTTP(w, req)
		assert.Equal(t, wantCode, w.Code, "attempt %d", i)
	}
}

func TestHandler_RemoveNotFound(t *testing.T) {
	r, _, _ := setupRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("DELETE", "/v1/trusted-domains/ghost.example.com", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "NOT_FOUND")
}
