package analyzer

import "math"

// Layer weights for the combined risk score.
const (
	heuristicWeight = 0.4
	semanticWeight  = 0.6
)

// sandboxFloor is the minimum combined score once sandbox mode triggers.
// A reassuring semantic verdict never lowers it.
const sandboxFloor = 80

// DecisionEngine folds the layer results into the final verdict. Fail
// closed: anything the engine cannot clearly allow is blocked.
type DecisionEngine struct {
	autoBlockThreshold int
	autoAllowThreshold int
}

func NewDecisionEngine(autoBlock, autoAllow int) *DecisionEngine {
	return &DecisionEngine{autoBlockThreshold: autoBlock, autoAllowThreshold: autoAllow}
}

// Verdict is the engine's output before the pipeline attaches identifiers
// and timing.
type Verdict struct {
	Decision  Decision
	RiskScore int
	Flags     []string
}

// Combine produces the verdict for one intent. A heuristic hard match is an
// immediate block at risk 100 regardless of the other layers.
func (e *DecisionEngine) Combine(h *HeuristicResult, src *SourceResult, llm *LLMResult, cfg *AgentConfig, amount float64) Verdict {
	v := Verdict{}
	v.Flags = append(v.Flags, h.Flags...)
	if src != nil {
		v.Flags = appendUnique(v.Flags, src.Flags...)
	}
	if llm != nil {
		v.Flags = appendUnique(v.Flags, llm.Flags...)
	}

	if h.HardMatch {
		v.Decision = DecisionBlock
		v.RiskScore = 100
		return v
	}

	llmScore := 100 // unavailable or skipped counts as maximal risk
	if llm != nil {
		llmScore = llm.RiskContribution
	}
	score := heuristicWeight*float64(h.RiskContribution) + semanticWeight*float64(llmScore)
	v.RiskScore = clampScore(int(math.Round(score)))

	if src != nil && src.SandboxMode && v.RiskScore < sandboxFloor {
		v.RiskScore = sandboxFloor
	}

	switch {
	case v.RiskScore >= e.autoBlockThreshold:
		v.Decision = DecisionBlock
	case v.RiskScore <= e.autoAllowThreshold:
		v.Decision = DecisionAllow
	default:
		v.Decision = DecisionBlock
		if cfg != nil && cfg.ApprovalThreshold > 0 && amount <= cfg.ApprovalThreshold {
			v.Flags = appendUnique(v.Flags, FlagRequiresApproval)
		}
	}
	return v
}

func appendUnique(dst []string, src ...string) []string {
	for _, s := range src {
		if !contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}
