package chain

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/kyvernlabs/shield/internal/api"
)

// Handler exposes the account codec to operators inspecting raw account
// data pulled from RPC.
type Handler struct{}

func NewHandler() *Handler { return &Handler{} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/chain/accounts/decode", h.decode)
}

type decodeRequest struct {
	Data string `json:"data" binding:"required"`
}

type accountView struct {
	Authority       string   `json:"authority"`
	AgentWallet     string   `json:"agent_wallet"`
	MaxValueSOL     float64  `json:"max_transaction_value_sol"`
	DailyLimitSOL   float64  `json:"daily_spend_limit_sol"`
	ApprovalSOL     float64  `json:"approval_threshold_sol"`
	AnomalyLimit    uint8    `json:"anomaly_threshold"`
	WindowSeconds   int64    `json:"time_window_seconds"`
	CooldownSeconds int64    `json:"cooldown_seconds"`
	AllowedPrograms []string `json:"allowed_programs"`
	BlockedPrograms []string `json:"blocked_programs"`
	State           string   `json:"state"`
	AnomalyCount    uint8    `json:"anomaly_count"`
	LastTriggeredAt int64    `json:"last_triggered_at"`
	CooldownEndsAt  int64    `json:"cooldown_ends_at"`
	CreatedAt       int64    `json:"created_at"`
	TotalTxns       uint64   `json:"total_transactions"`
	BlockedTxns     uint64   `json:"blocked_transactions"`
}

func (h *Handler) decode(c *gin.Context) {
	var req decodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "data field is required")
		return
	}
	raw, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "data must be base64")
		return
	}

	acc, err := Decode(raw)
	switch {
	case errors.Is(err, ErrBadDiscriminator):
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "not a shield account")
		return
	case err != nil:
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "malformed account data")
		return
	}

	view := accountView{
		Authority:       hex.EncodeToString(acc.Authority[:]),
		AgentWallet:     hex.EncodeToString(acc.AgentWallet[:]),
		MaxValueSOL:     LamportsToSOL(acc.Config.MaxTransactionValue),
		DailyLimitSOL:   LamportsToSOL(acc.Config.DailySpendLimit),
		ApprovalSOL:     LamportsToSOL(acc.Config.ApprovalThreshold),
		AnomalyLimit:    acc.Config.AnomalyThreshold,
		WindowSeconds:   acc.Config.TimeWindowSeconds,
		CooldownSeconds: acc.Config.CooldownSeconds,
		AllowedPrograms: hexKeys(acc.AllowedPrograms),
		BlockedPrograms: hexKeys(acc.BlockedPrograms),
		State:           acc.State.String(),
		AnomalyCount:    acc.AnomalyCount,
		LastTriggeredAt: acc.LastTriggeredAt,
		CooldownEndsAt:  acc.CooldownEndsAt,
		CreatedAt:       acc.CreatedAt,
		TotalTxns:       acc.TotalTransactions,
		BlockedTxns:     acc.BlockedTransactions,
	}
	c.JSON(http.StatusOK, view)
}

func hexKeys(keys [][PubkeySize]byte) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, hex.EncodeToString(k[:]))
	}
	return out
}
