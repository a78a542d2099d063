// Package analyzer implements the transaction intent analysis pipeline:
// heuristic filtering, source-trust detection, semantic review, and the
// decision engine that folds the three layers into one verdict.
package analyzer

import (
	"fmt"
	"time"
)

// Decision is the final verdict on a transaction intent.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionBlock Decision = "block"
)

// Flags raised by the analysis layers.
const (
	FlagBlacklisted       = "BLACKLISTED"
	FlagAmountExceeded    = "AMOUNT_EXCEEDED"
	FlagProgramNotAllowed = "PROGRAM_NOT_ALLOWED"
	FlagSuspiciousPattern = "SUSPICIOUS_PATTERN"
	FlagUntrustedSource   = "UNTRUSTED_SOURCE"
	FlagInjectionPattern  = "INJECTION_PATTERN"
	FlagSandboxTrigger    = "SANDBOX_TRIGGER"
	FlagLLMUnavailable    = "LLM_UNAVAILABLE"
	FlagRequiresApproval  = "REQUIRES_APPROVAL"
	FlagCircuitOpen       = "CIRCUIT_OPEN"
)

// TransactionIntent is one proposed transaction plus the agent's stated
// justification. Immutable once received.
type TransactionIntent struct {
	AgentID       string            `json:"agent_id"`
	TargetAddress string            `json:"target_address"`
	Amount        float64           `json:"amount"` // native SOL units
	Reasoning     string            `json:"reasoning"`
	Context       map[string]string `json:"context,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// Validate rejects intents the pipeline cannot act on. Handler-level
// validation covers the HTTP surface; this guard covers callers that
// construct intents directly.
func (t *TransactionIntent) Validate() error {
	switch {
	case t.AgentID == "":
		return fmt.Errorf("%w: agent_id is required", ErrValidation)
	case t.TargetAddress == "":
		return fmt.Errorf("%w: target_address is required", ErrValidation)
	case t.Amount < 0:
		return fmt.Errorf("%w: amount must not be negative", ErrValidation)
	}
	return nil
}

// AgentConfig carries per-agent limits and breaker tunables. Read-only to
// the pipeline.
type AgentConfig struct {
	MaxTransactionValue float64  `json:"max_transaction_value"`
	DailySpendLimit     float64  `json:"daily_spend_limit"`
	ApprovalThreshold   float64  `json:"approval_threshold"`
	AllowedPrograms     []string `json:"allowed_programs,omitempty"`
	BlockedPrograms     []string `json:"blocked_programs,omitempty"`
	AnomalyThreshold    int      `json:"anomaly_threshold"`
	TimeWindowSeconds   int64    `json:"time_window_seconds"`
	CooldownSeconds     int64    `json:"cooldown_seconds"`
}

// Validate rejects per-agent overrides the breaker or decision engine
// cannot honor.
func (c *AgentConfig) Validate() error {
	switch {
	case c.MaxTransactionValue < 0:
		return fmt.Errorf("%w: max_transaction_value must not be negative", ErrConfiguration)
	case c.DailySpendLimit < 0:
		return fmt.Errorf("%w: daily_spend_limit must not be negative", ErrConfiguration)
	case c.ApprovalThreshold < 0:
		return fmt.Errorf("%w: approval_threshold must not be negative", ErrConfiguration)
	case c.AnomalyThreshold < 0:
		return fmt.Errorf("%w: anomaly_threshold must not be negative", ErrConfiguration)
	case c.TimeWindowSeconds < 0:
		return fmt.Errorf("%w: time_window_seconds must not be negative", ErrConfiguration)
	case c.CooldownSeconds < 0:
		return fmt.Errorf("%w: cooldown_seconds must not be negative", ErrConfiguration)
	}
	return nil
}

// RiskFactor is one weighted signal contributing to a layer's score.
type RiskFactor struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"` // 0-1
	Score       int     `json:"score"`  // 0-100
}

// LayerResult is the outcome of one analysis layer. A layer that fails
// returns a terminal unavailable result, never a partial one.
type LayerResult struct {
	Passed           bool     `json:"passed"`
	RiskContribution int      `json:"risk_contribution"` // 0-100
	Flags            []string `json:"flags,omitempty"`
	Details          []string `json:"details,omitempty"`
}

// SourceResult extends LayerResult with what the source-trust detector found.
type SourceResult struct {
	LayerResult
	URLsFound        []string `json:"urls_found,omitempty"`
	UntrustedDomains []string `json:"untrusted_domains,omitempty"`
	SandboxMode      bool     `json:"sandbox_mode"`
}

// LLMJudgment is the structured verdict from the semantic layer.
type LLMJudgment struct {
	Safe                 bool    `json:"safe"`
	ManipulationDetected bool    `json:"manipulation_detected"`
	Confidence           float64 `json:"confidence"` // 0-1
	Analysis             string  `json:"analysis"`
}

// LLMResult extends LayerResult with the raw judgment. Available is false
// when the semantic layer timed out or returned garbage; the decision engine
// treats that as maximal risk.
type LLMResult struct {
	LayerResult
	Available bool         `json:"available"`
	Judgment  *LLMJudgment `json:"judgment,omitempty"`
}

// AnalysisResult is the full, immutable outcome of one pipeline invocation.
type AnalysisResult struct {
	RequestID      string        `json:"request_id"`
	AgentID        string        `json:"agent_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Decision       Decision      `json:"decision"`
	RiskScore      int           `json:"risk_score"` // 0-100
	Explanation    string        `json:"explanation"`
	Flags          []string      `json:"flags,omitempty"`
	Heuristic      *LayerResult  `json:"heuristic_result,omitempty"`
	Source         *SourceResult `json:"source_detection_result,omitempty"`
	LLM            *LLMResult    `json:"llm_result,omitempty"`
	AnalysisTimeMS int64         `json:"analysis_time_ms"`
}

// Blocked reports whether the verdict was a block.
func (r *AnalysisResult) Blocked() bool {
	return r.Decision == DecisionBlock
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
