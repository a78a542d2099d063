package trust

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kyvernlabs/shield/internal/api"
	"github.com/kyvernlabs/shield/internal/validation"
)

// Handler provides HTTP endpoints for trusted domain management.
type Handler struct {
	store    Store
	registry *Registry
}

// NewHandler creates a new trusted domain handler. The registry is refreshed
// eagerly after every mutation so classification picks up changes without
// waiting for the next periodic refresh.
func NewHandler(store Store, registry *Registry) *Handler {
	return &Handler{store: store, registry: registry}
}

// RegisterRoutes sets up trusted domain routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/trusted-domains", h.List)
	r.POST("/trusted-domains", h.Add)
	r.DELETE("/trusted-domains/:domain", h.Remove)
}

// List handles GET /v1/trusted-domains
func (h *Handler) List(c *gin.Context) {
	domains, err := h.store.List(c.Request.Context())
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to list trusted domains")
		return
	}
	if domains == nil {
		domains = []Domain{}
	}
	c.JSON(http.StatusOK, gin.H{"domains": domains, "count": len(domains)})
}

// Add handles POST /v1/trusted-domains
func (h *Handler) Add(c *gin.Context) {
	var req struct {
		Domain   string `json:"domain" binding:"required"`
		Category string `json:"category"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "domain is required")
		return
	}
	if !ValidDomain(req.Domain) {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "domain must be a bare hostname like example.com")
		return
	}

	d := Domain{
		Domain:   NormalizeHost(req.Domain),
		Category: validation.SanitizeString(req.Category, 100),
		AddedAt:  time.Now().UTC(),
	}
	if err := h.store.Add(c.Request.Context(), d); err != nil {
		if err == ErrExists {
			api.Error(c, http.StatusConflict, api.CodeConflict, "domain already registered")
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to add trusted domain")
		return
	}
	h.refresh(c.Request.Context())

	c.JSON(http.StatusCreated, gin.H{"domain": d})
}

// Remove handles DELETE /v1/trusted-domains/:domain
func (h *Handler) Remove(c *gin.Context) {
	domain := c.Param("domain")
	if err := h.store.Remove(c.Request.Context(), domain); err != nil {
		if err == ErrNotFound {
			api.Error(c, http.StatusNotFound, api.CodeNotFound, "domain not registered")
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to remove trusted domain")
		return
	}
	h.refresh(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{"removed": NormalizeHost(domain)})
}

func (h *Handler) refresh(ctx context.Context) {
	if h.registry != nil {
		_ = h.registry.Load(ctx)
	}
}
