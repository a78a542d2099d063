package breaker

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kyvernlabs/shield/internal/api"
	"github.com/kyvernlabs/shield/internal/chain"
)

// Handler exposes breaker status and the manual operator controls.
type Handler struct {
	breaker *Breaker
	config  chain.Config
}

// NewHandler wires the breaker API. cfg supplies the limit block used when
// projecting state onto the on-chain account layout.
func NewHandler(b *Breaker, cfg chain.Config) *Handler {
	return &Handler{breaker: b, config: cfg}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/breakers/:agent_id", h.status)
	rg.GET("/breakers/:agent_id/account", h.account)
	rg.POST("/breakers/:agent_id/trip", h.trip)
	rg.POST("/breakers/:agent_id/reset", h.reset)
}

type statusResponse struct {
	AgentID         string     `json:"agent_id"`
	State           string     `json:"state"`
	AnomalyCount    int        `json:"anomaly_count"`
	LastTriggeredAt *time.Time `json:"last_triggered_at,omitempty"`
	CooldownEndsAt  *time.Time `json:"cooldown_ends_at,omitempty"`
	CooldownSeconds int64      `json:"cooldown_seconds"`
	TotalAnalyzed   uint64     `json:"total_analyzed"`
	TotalBlocked    uint64     `json:"total_blocked"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func toStatus(rec *Record) statusResponse {
	resp := statusResponse{
		AgentID:         rec.AgentID,
		State:           rec.State.String(),
		AnomalyCount:    len(rec.AnomalyEvents),
		CooldownSeconds: int64(rec.Cooldown / time.Second),
		TotalAnalyzed:   rec.TotalAnalyzed,
		TotalBlocked:    rec.TotalBlocked,
		UpdatedAt:       rec.UpdatedAt,
	}
	if !rec.LastTriggeredAt.IsZero() {
		t := rec.LastTriggeredAt
		resp.LastTriggeredAt = &t
	}
	if !rec.CooldownEndsAt.IsZero() {
		t := rec.CooldownEndsAt
		resp.CooldownEndsAt = &t
	}
	return resp
}

func (h *Handler) status(c *gin.Context) {
	rec, err := h.breaker.Status(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to load breaker state")
		return
	}
	c.JSON(http.StatusOK, toStatus(rec))
}

// account returns the agent's state encoded in the on-chain account layout.
// Authority and wallet pubkeys are optional hex query parameters; absent
// keys encode as zeros.
func (h *Handler) account(c *gin.Context) {
	rec, err := h.breaker.Status(c.Request.Context(), c.Param("agent_id"))
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to load breaker state")
		return
	}

	authority, ok := parsePubkey(c, c.Query("authority"))
	if !ok {
		return
	}
	wallet, ok := parsePubkey(c, c.Query("wallet"))
	if !ok {
		return
	}

	acc, err := rec.Account(authority, wallet, h.config, nil, nil)
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to build account")
		return
	}
	data, err := acc.Encode()
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to encode account")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": rec.AgentID,
		"length":   len(data),
		"data":     base64.StdEncoding.EncodeToString(data),
	})
}

func (h *Handler) trip(c *gin.Context) {
	rec, err := h.breaker.Trip(c.Request.Context(), c.Param("agent_id"), nil)
	if errors.Is(err, ErrStateConflict) {
		api.Error(c, http.StatusConflict, api.CodeConflict, "breaker is already open")
		return
	}
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to trip breaker")
		return
	}
	c.JSON(http.StatusOK, toStatus(rec))
}

func (h *Handler) reset(c *gin.Context) {
	rec, err := h.breaker.Reset(c.Request.Context(), c.Param("agent_id"), nil)
	if errors.Is(err, ErrStateConflict) {
		api.Error(c, http.StatusConflict, api.CodeConflict, "breaker is already closed")
		return
	}
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to reset breaker")
		return
	}
	c.JSON(http.StatusOK, toStatus(rec))
}

func parsePubkey(c *gin.Context, s string) ([chain.PubkeySize]byte, bool) {
	var key [chain.PubkeySize]byte
	if s == "" {
		return key, true
	}
	raw, err := hex.DecodeString(s)
	if err != nil || len(raw) != chain.PubkeySize {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "pubkey must be 32 bytes of hex")
		return key, false
	}
	copy(key[:], raw)
	return key, true
}
