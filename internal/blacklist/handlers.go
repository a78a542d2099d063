package blacklist

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kyvernlabs/shield/internal/api"
	"github.com/kyvernlabs/shield/internal/idgen"
	"github.com/kyvernlabs/shield/internal/validation"
)

// Handler provides HTTP endpoints for blacklist CRUD.
type Handler struct {
	store Store
	cache *Cache
}

// NewHandler creates a new blacklist handler. The cache is refreshed eagerly
// after every mutation so the heuristic layer sees changes immediately.
func NewHandler(store Store, cache *Cache) *Handler {
	return &Handler{store: store, cache: cache}
}

// RegisterRoutes sets up blacklist routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/blacklist", h.List)
	r.POST("/blacklist", h.Add)
	r.GET("/blacklist/:value", h.Lookup)
	r.DELETE("/blacklist/:id", h.Remove)
}

// List handles GET /v1/blacklist
func (h *Handler) List(c *gin.Context) {
	entries, err := h.store.List(c.Request.Context())
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to list blacklist")
		return
	}
	if entries == nil {
		entries = []Entry{}
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// Lookup handles GET /v1/blacklist/:value (point lookup by listed value)
func (h *Handler) Lookup(c *gin.Context) {
	value := c.Param("value")
	entry, err := h.store.Get(c.Request.Context(), value)
	if err != nil {
		if err == ErrNotFound {
			api.Error(c, http.StatusNotFound, api.CodeNotFound, "value is not blacklisted")
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "lookup failed")
		return
	}
	c.JSON(http.StatusOK, gin.H{"entry": entry})
}

// Add handles POST /v1/blacklist
func (h *Handler) Add(c *gin.Context) {
	var req struct {
		Type     EntryType `json:"type" binding:"required"`
		Value    string    `json:"value" binding:"required"`
		Reason   string    `json:"reason" binding:"required"`
		Source   string    `json:"source"`
		Severity string    `json:"severity"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "type, value, and reason are required")
		return
	}
	if !ValidType(req.Type) {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "type must be 'address' or 'program'")
		return
	}
	if !validation.IsValidAddress(req.Value) {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "value must be a base58 address (32-44 chars)")
		return
	}
	if req.Severity == "" {
		req.Severity = SeverityHigh
	}
	if !ValidSeverity(req.Severity) {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "severity must be low, medium, high, or critical")
		return
	}
	if req.Source == "" {
		req.Source = "manual"
	}

	e := Entry{
		ID:        idgen.WithPrefix("bl_"),
		Type:      req.Type,
		Value:     req.Value,
		Reason:    validation.SanitizeString(req.Reason, 500),
		Source:    validation.SanitizeString(req.Source, 100),
		Severity:  req.Severity,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Add(c.Request.Context(), e); err != nil {
		if err == ErrExists {
			api.Error(c, http.StatusConflict, api.CodeConflict, "value already blacklisted")
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to add entry")
		return
	}
	h.refresh(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{"entry": e})
}

// Remove handles DELETE /v1/blacklist/:id
func (h *Handler) Remove(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Remove(c.Request.Context(), id); err != nil {
		if err == ErrNotFound {
			api.Error(c, http.StatusNotFound, api.CodeNotFound, "entry not found")
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to remove entry")
		return
	}
	h.refresh(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"removed": id})
}

func (h *Handler) refresh(ctx context.Context) {
	if h.cache != nil {
		_ = h.cache.Load(ctx)
	}
}
