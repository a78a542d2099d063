package analyzer

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"

	"github.com/kyvernlabs/shield/internal/metrics"
	"github.com/kyvernlabs/shield/internal/patterns"
	"github.com/kyvernlabs/shield/internal/trust"
)

// urlRegex finds http(s) URLs embedded in free text. Deliberately strict:
// scheme required, no bare hostnames.
var urlRegex = regexp.MustCompile(`https?://[A-Za-z0-9\-._~%]+(?::\d{1,5})?(?:/[^\s<>"'\\]*)?`)

// sandboxContribution is the fixed layer-2 score whenever sandbox mode
// triggers. It does not stack across findings.
const sandboxContribution = 80

// SourceTrustDetector inspects the intent's reasoning and attached context
// for external data sources and prompt injection markers. Any untrusted
// domain or injection hit flips the request into sandbox mode.
type SourceTrustDetector struct {
	registry *trust.Registry
	library  *patterns.Library
}

func NewSourceTrustDetector(registry *trust.Registry, library *patterns.Library) *SourceTrustDetector {
	return &SourceTrustDetector{registry: registry, library: library}
}

// Detect classifies every URL found in the intent and scans attached context
// for injection patterns. With no external sources at all the layer
// contributes zero risk.
func (d *SourceTrustDetector) Detect(intent *TransactionIntent) *SourceResult {
	res := &SourceResult{LayerResult: LayerResult{Passed: true}}

	texts := []string{intent.Reasoning}
	contextKeys := sortedKeys(intent.Context)
	for _, k := range contextKeys {
		texts = append(texts, intent.Context[k])
	}

	seenURL := make(map[string]bool)
	seenHost := make(map[string]bool)
	for _, text := range texts {
		for _, raw := range urlRegex.FindAllString(text, -1) {
			if seenURL[raw] {
				continue
			}
			seenURL[raw] = true
			res.URLsFound = append(res.URLsFound, raw)

			// Two URLs on one host are a single untrusted domain.
			host := trust.NormalizeHost(hostOf(raw))
			if seenHost[host] {
				continue
			}
			seenHost[host] = true
			if host == "" || !d.registry.IsTrusted(host) {
				res.UntrustedDomains = append(res.UntrustedDomains, host)
			}
		}
	}

	if len(res.UntrustedDomains) > 0 {
		res.Passed = false
		res.SandboxMode = true
		res.Flags = append(res.Flags, FlagUntrustedSource)
		for _, dom := range res.UntrustedDomains {
			res.Details = append(res.Details, fmt.Sprintf("untrusted source domain %q", dom))
		}
	}

	injectionHit := false
	if matches := d.library.Scan(intent.Reasoning); len(matches) > 0 {
		injectionHit = true
		for _, m := range matches {
			res.Details = append(res.Details, fmt.Sprintf("injection pattern %q in reasoning", m.Name))
		}
	}
	for _, k := range contextKeys {
		if matches := d.library.Scan(intent.Context[k]); len(matches) > 0 {
			injectionHit = true
			for _, m := range matches {
				res.Details = append(res.Details, fmt.Sprintf("injection pattern %q in context %q", m.Name, k))
			}
		}
	}
	if injectionHit {
		res.Passed = false
		res.SandboxMode = true
		res.Flags = append(res.Flags, FlagInjectionPattern)
	}

	if res.SandboxMode {
		res.Flags = append(res.Flags, FlagSandboxTrigger)
		res.RiskContribution = sandboxContribution
		metrics.SandboxTriggersTotal.Inc()
	} else if len(res.URLsFound) == 0 {
		res.Details = append(res.Details, "no external sources referenced")
	}

	return res
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
