package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kyvernlabs/shield/internal/breaker"
	"github.com/kyvernlabs/shield/internal/idgen"
	"github.com/kyvernlabs/shield/internal/metrics"
	"github.com/kyvernlabs/shield/internal/traces"
)

// Semantic is the LLM-backed review layer. Stubbed in tests.
type Semantic interface {
	Analyze(ctx context.Context, intent *TransactionIntent, sandbox bool, riskDetails []string) *LLMResult
}

var _ Semantic = (*SemanticAnalyzer)(nil)

// Alerter receives noteworthy pipeline outcomes. The realtime hub satisfies
// it; a nil Alerter disables alerting.
type Alerter interface {
	BroadcastBlockVerdict(data map[string]interface{})
	BroadcastSandboxTrigger(data map[string]interface{})
}

// Pipeline wires the three analysis layers, the decision engine, and the
// circuit breaker into the single Analyze entry point.
type Pipeline struct {
	heuristic *HeuristicFilter
	source    *SourceTrustDetector
	semantic  Semantic
	engine    *DecisionEngine
	breaker   *breaker.Breaker
	audit     AuditStore
	alerter   Alerter
	logger    *slog.Logger
}

func NewPipeline(
	heuristic *HeuristicFilter,
	source *SourceTrustDetector,
	semantic Semantic,
	engine *DecisionEngine,
	brk *breaker.Breaker,
	audit AuditStore,
	alerter Alerter,
	logger *slog.Logger,
) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		heuristic: heuristic,
		source:    source,
		semantic:  semantic,
		engine:    engine,
		breaker:   brk,
		audit:     audit,
		alerter:   alerter,
		logger:    logger,
	}
}

// Analyze runs one intent through the full pipeline and records the outcome.
// The returned result is immutable; repeated calls with the same inputs and
// registry snapshots yield the same verdict.
func (p *Pipeline) Analyze(ctx context.Context, intent *TransactionIntent, cfg *AgentConfig) (*AnalysisResult, error) {
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	if cfg != nil {
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	ctx, span := traces.StartSpan(ctx, "pipeline.analyze",
		traces.AgentID(intent.AgentID),
		traces.TargetAddress(intent.TargetAddress),
		traces.Amount(intent.Amount))
	defer span.End()

	res := &AnalysisResult{
		RequestID: idgen.WithPrefix("req_"),
		AgentID:   intent.AgentID,
		Timestamp: start.UTC(),
	}

	pf, err := p.breaker.Preflight(ctx, intent.AgentID, tunables(cfg))
	if err != nil {
		return nil, fmt.Errorf("breaker preflight: %w", err)
	}
	if !pf.Allowed {
		res.Decision = DecisionBlock
		res.RiskScore = 100
		res.Flags = []string{FlagCircuitOpen}
		res.Explanation = "Transaction BLOCKED. Reason: Circuit breaker is open for this agent."
		span.SetAttributes(traces.Decision(string(res.Decision)), traces.RiskScore(res.RiskScore), traces.BreakerState(pf.State.String()))
		return p.finish(ctx, res, nil, start)
	}

	h := p.heuristic.Check(intent, cfg)
	res.Heuristic = &h.LayerResult

	var src *SourceResult
	var llm *LLMResult
	if h.HardMatch {
		// Definitive block. The remaining layers are skipped entirely.
		v := p.engine.Combine(h, nil, nil, cfg, intent.Amount)
		res.Decision = v.Decision
		res.RiskScore = v.RiskScore
		res.Flags = v.Flags
	} else {
		src = p.source.Detect(intent)
		res.Source = src

		riskDetails := append(append([]string{}, h.Details...), src.Details...)
		llm = p.semantic.Analyze(ctx, intent, src.SandboxMode, riskDetails)
		res.LLM = llm

		v := p.engine.Combine(h, src, llm, cfg, intent.Amount)
		res.Decision = v.Decision
		res.RiskScore = v.RiskScore
		res.Flags = v.Flags
	}
	res.Explanation = buildExplanation(res, h, src, llm)
	span.SetAttributes(traces.Decision(string(res.Decision)), traces.RiskScore(res.RiskScore))

	if _, err := p.breaker.Record(ctx, intent.AgentID, tunables(cfg), res.Blocked()); err != nil {
		return nil, fmt.Errorf("breaker record: %w", err)
	}
	return p.finish(ctx, res, src, start)
}

// ListByAgent returns the agent's most recent analysis results.
func (p *Pipeline) ListByAgent(ctx context.Context, agentID string, limit int) ([]*AnalysisResult, error) {
	return p.audit.ListByAgent(ctx, agentID, limit)
}

func (p *Pipeline) finish(ctx context.Context, res *AnalysisResult, src *SourceResult, start time.Time) (*AnalysisResult, error) {
	res.AnalysisTimeMS = time.Since(start).Milliseconds()

	metrics.AnalysesTotal.WithLabelValues(string(res.Decision)).Inc()
	metrics.AnalysisDuration.Observe(time.Since(start).Seconds())
	for _, flag := range res.Flags {
		metrics.LayerFlagsTotal.WithLabelValues(flag).Inc()
	}

	if err := p.audit.Insert(ctx, res); err != nil {
		return nil, fmt.Errorf("record analysis: %w", err)
	}

	p.logger.Info("analysis complete",
		"request_id", res.RequestID,
		"agent_id", res.AgentID,
		"decision", res.Decision,
		"risk_score", res.RiskScore,
		"flags", res.Flags,
		"duration_ms", res.AnalysisTimeMS)

	if p.alerter != nil {
		if res.Blocked() {
			p.alerter.BroadcastBlockVerdict(map[string]interface{}{
				"request_id": res.RequestID,
				"agent_id":   res.AgentID,
				"risk_score": float64(res.RiskScore),
				"flags":      res.Flags,
			})
		}
		if src != nil && src.SandboxMode {
			p.alerter.BroadcastSandboxTrigger(map[string]interface{}{
				"request_id":        res.RequestID,
				"agent_id":          res.AgentID,
				"untrusted_domains": src.UntrustedDomains,
			})
		}
	}
	return res, nil
}

func tunables(cfg *AgentConfig) *breaker.Tunables {
	if cfg == nil {
		return nil
	}
	return &breaker.Tunables{
		Threshold: cfg.AnomalyThreshold,
		Window:    time.Duration(cfg.TimeWindowSeconds) * time.Second,
		Cooldown:  time.Duration(cfg.CooldownSeconds) * time.Second,
	}
}

// buildExplanation renders the human-readable verdict summary from the
// layer outcomes.
func buildExplanation(res *AnalysisResult, h *HeuristicResult, src *SourceResult, llm *LLMResult) string {
	var b strings.Builder
	if src != nil && src.SandboxMode {
		b.WriteString("[SANDBOX MODE] ")
	}

	if res.Decision == DecisionAllow {
		b.WriteString("Transaction ALLOWED. ")
		if len(h.Details) == 0 && (src == nil || len(src.URLsFound) == 0) {
			b.WriteString("All security checks passed.")
		} else {
			b.WriteString(fmt.Sprintf("Risk score %d is within the auto-allow threshold.", res.RiskScore))
		}
		return b.String()
	}

	b.WriteString("Transaction BLOCKED. ")
	switch {
	case hasFlag(res.Flags, FlagBlacklisted):
		b.WriteString("Reason: Target address is on blacklist.")
	case hasFlag(res.Flags, FlagAmountExceeded):
		b.WriteString("Reason: Amount exceeds the maximum transaction value.")
	case hasFlag(res.Flags, FlagRequiresApproval):
		b.WriteString(fmt.Sprintf("Reason: Risk score %d requires manual approval.", res.RiskScore))
	case src != nil && src.SandboxMode:
		b.WriteString("Reason: Transaction references untrusted external data.")
	case llm != nil && !llm.Available:
		b.WriteString("Reason: Semantic analysis unavailable; failing closed.")
	default:
		b.WriteString(fmt.Sprintf("Reason: Risk score %d meets the auto-block threshold.", res.RiskScore))
	}

	var reasons []string
	if h != nil {
		reasons = append(reasons, h.Details...)
	}
	if src != nil {
		reasons = append(reasons, src.Details...)
	}
	if llm != nil && llm.Available {
		reasons = append(reasons, llm.Details...)
	}
	if len(reasons) > 0 {
		b.WriteString(" Findings: ")
		b.WriteString(strings.Join(reasons, "; "))
		b.WriteString(".")
	}
	return b.String()
}

func hasFlag(flags []string, flag string) bool {
	return contains(flags, flag)
}
