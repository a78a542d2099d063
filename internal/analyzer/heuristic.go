package analyzer

import (
	"fmt"

	"github.com/kyvernlabs/shield/internal/blacklist"
	"github.com/kyvernlabs/shield/internal/metrics"
	"github.com/kyvernlabs/shield/internal/patterns"
)

// HeuristicResult is the layer-1 outcome. HardMatch short-circuits the
// pipeline: the verdict is an immediate block and the semantic layer is
// skipped entirely.
type HeuristicResult struct {
	LayerResult
	HardMatch bool `json:"hard_match"`
}

// HeuristicFilter runs deterministic checks against the blacklist cache,
// per-agent limits, and the injection pattern library. It is pure with
// respect to its inputs and performs no I/O.
type HeuristicFilter struct {
	cache    *blacklist.Cache
	library  *patterns.Library
	maxValue float64
}

// NewHeuristicFilter builds the layer-1 filter. maxValue is the service-wide
// transaction ceiling, overridden per call by AgentConfig.
func NewHeuristicFilter(cache *blacklist.Cache, library *patterns.Library, maxValue float64) *HeuristicFilter {
	return &HeuristicFilter{cache: cache, library: library, maxValue: maxValue}
}

// Check evaluates one intent. A blacklisted target or blocked program is a
// hard match at risk 100; other findings raise the contribution without
// short-circuiting.
func (f *HeuristicFilter) Check(intent *TransactionIntent, cfg *AgentConfig) *HeuristicResult {
	res := &HeuristicResult{LayerResult: LayerResult{Passed: true, RiskContribution: 5}}
	snap := f.cache.Current()

	if snap.IsBlacklisted(intent.TargetAddress) || snap.IsProgramBlacklisted(intent.TargetAddress) {
		metrics.BlacklistHitsTotal.Inc()
		res.Passed = false
		res.HardMatch = true
		res.RiskContribution = 100
		res.Flags = append(res.Flags, FlagBlacklisted)
		res.Details = append(res.Details, "target address is on blacklist")
		return res
	}

	if cfg != nil {
		for _, p := range cfg.BlockedPrograms {
			if p == intent.TargetAddress {
				res.Passed = false
				res.HardMatch = true
				res.RiskContribution = 100
				res.Flags = append(res.Flags, FlagBlacklisted)
				res.Details = append(res.Details, "target program is blocked for this agent")
				return res
			}
		}
		if len(cfg.AllowedPrograms) > 0 && !contains(cfg.AllowedPrograms, intent.TargetAddress) {
			res.Passed = false
			res.RiskContribution = maxInt(res.RiskContribution, 75)
			res.Flags = append(res.Flags, FlagProgramNotAllowed)
			res.Details = append(res.Details, "target is not on the agent's allowed program list")
		}
	}

	maxValue := f.maxValue
	if cfg != nil && cfg.MaxTransactionValue > 0 {
		maxValue = cfg.MaxTransactionValue
	}
	if maxValue > 0 && intent.Amount > maxValue {
		// Hard limit violation. The verdict is a block at maximal risk no
		// matter what the other layers would say.
		res.Passed = false
		res.HardMatch = true
		res.RiskContribution = maxInt(res.RiskContribution, 75)
		res.Flags = append(res.Flags, FlagAmountExceeded)
		res.Details = append(res.Details, fmt.Sprintf("amount %.4f SOL exceeds maximum %.4f SOL", intent.Amount, maxValue))
		return res
	}

	if matches := f.library.Scan(intent.Reasoning); len(matches) > 0 {
		res.Passed = false
		res.RiskContribution = maxInt(res.RiskContribution, patterns.Score(matches))
		res.Flags = append(res.Flags, FlagSuspiciousPattern)
		for _, m := range matches {
			res.Details = append(res.Details, fmt.Sprintf("suspicious pattern %q (%s, %s)", m.Name, m.Category, m.Severity))
		}
	}

	res.RiskContribution = clampScore(res.RiskContribution)
	return res
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
