package analyzer

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/kyvernlabs/shield/internal/api"
	"github.com/kyvernlabs/shield/internal/logging"
	"github.com/kyvernlabs/shield/internal/validation"
)

// Handler exposes the analysis pipeline over HTTP.
type Handler struct {
	pipeline *Pipeline
}

func NewHandler(p *Pipeline) *Handler {
	return &Handler{pipeline: p}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyze", h.analyze)
	rg.GET("/analyses/:agent_id", h.listAnalyses)
}

type analyzeRequest struct {
	AgentID       string            `json:"agent_id"`
	TargetAddress string            `json:"target_address"`
	Amount        float64           `json:"amount"`
	Reasoning     string            `json:"reasoning"`
	Context       map[string]string `json:"context"`
	Metadata      map[string]string `json:"metadata"`
	Config        *AgentConfig      `json:"config"`
}

func (r *analyzeRequest) validate() validation.ValidationErrors {
	return validation.Validate(
		validation.Required("agent_id", r.AgentID),
		validation.ValidAgentID("agent_id", r.AgentID),
		validation.Required("target_address", r.TargetAddress),
		validation.ValidAddress("target_address", r.TargetAddress),
		validation.NonNegativeAmount("amount", r.Amount),
		validation.Required("reasoning", r.Reasoning),
		validation.MaxLength("reasoning", r.Reasoning, validation.MaxReasoningLength),
	)
}

func (h *Handler) analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "request body must be valid JSON")
		return
	}
	if errs := req.validate(); len(errs) > 0 {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, errs.Error())
		return
	}
	if req.Config != nil {
		if err := req.Config.Validate(); err != nil {
			api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
			return
		}
	}

	// Tag the request scope so the access log carries the agent too.
	ctx := logging.WithAgentID(c.Request.Context(), req.AgentID)
	c.Request = c.Request.WithContext(ctx)

	intent := &TransactionIntent{
		AgentID:       req.AgentID,
		TargetAddress: req.TargetAddress,
		Amount:        req.Amount,
		Reasoning:     validation.SanitizeString(req.Reasoning, validation.MaxReasoningLength),
		Context:       req.Context,
		Metadata:      req.Metadata,
	}

	res, err := h.pipeline.Analyze(ctx, intent, req.Config)
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration) {
			api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, err.Error())
			return
		}
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "analysis failed")
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	agentID := c.Param("agent_id")
	if !validation.IsValidAgentID(agentID) {
		api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "invalid agent id")
		return
	}
	c.Request = c.Request.WithContext(logging.WithAgentID(c.Request.Context(), agentID))

	limit := DefaultAuditLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 500 {
			api.Error(c, http.StatusBadRequest, api.CodeInvalidRequest, "limit must be between 1 and 500")
			return
		}
		limit = n
	}

	results, err := h.pipeline.ListByAgent(c.Request.Context(), agentID, limit)
	if err != nil {
		api.Error(c, http.StatusInternalServerError, api.CodeInternal, "failed to list analyses")
		return
	}
	if results == nil {
		results = []*AnalysisResult{}
	}
	c.JSON(http.StatusOK, gin.H{
		"agent_id": agentID,
		"count":    len(results),
		"results":  results,
	})
}
