// Package patterns holds the compiled library of textual manipulation
// signatures used by the heuristic and source-trust layers.
package patterns

import (
	"regexp"
)

// Category groups signatures by the kind of manipulation they detect.
type Category string

const (
	CategoryInstructionOverride Category = "instruction_override"
	CategoryHiddenCommand       Category = "hidden_command"
	CategoryUrgency             Category = "urgency"
	CategoryAuthority           Category = "authority"
	CategoryEncoding            Category = "encoding"
	CategoryInvisible           Category = "invisible"
)

// Severity ranks how strongly a signature indicates manipulation.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// BaseScore returns the risk contribution a single match of this severity
// carries before stacking.
func (s Severity) BaseScore() int {
	switch s {
	case SeverityCritical:
		return 90
	case SeverityHigh:
		return 75
	case SeverityMedium:
		return 60
	default:
		return 45
	}
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "critical"
	case SeverityHigh:
		return "high"
	case SeverityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Pattern is one compiled manipulation signature.
type Pattern struct {
	Name     string
	Category Category
	Severity Severity
	re       *regexp.Regexp
}

// Match records a signature hit against a text.
type Match struct {
	Name     string
	Category Category
	Severity Severity
}

// Library is an ordered, immutable set of compiled patterns. Construct once
// at startup and share freely; Scan is safe for concurrent use.
type Library struct {
	patterns []Pattern
}

type spec struct {
	name     string
	category Category
	severity Severity
	expr     string
}

var defaultSpecs = []spec{
	{"ignore-instructions", CategoryInstructionOverride, SeverityCritical, `(?i)ignore\s+(previous|all|prior|above)\s+instructions?`},
	{"disregard-instructions", CategoryInstructionOverride, SeverityCritical, `(?i)disregard\s+(previous|all|prior|the)\s+(instructions?|rules?|guidelines?)`},
	{"forget-everything", CategoryInstructionOverride, SeverityHigh, `(?i)forget\s+(everything|all)\s`},
	{"new-instructions", CategoryInstructionOverride, SeverityHigh, `(?i)new\s+instructions?\s*:`},
	{"you-are-now", CategoryInstructionOverride, SeverityHigh, `(?i)you\s+are\s+now\s`},
	{"system-prompt", CategoryInstructionOverride, SeverityHigh, `(?i)system\s+prompt`},
	{"inline-system-role", CategoryHiddenCommand, SeverityHigh, `(?i)\bSYSTEM\s*:\s*(ignore|execute|transfer|override|you)`},
	{"chat-template-marker", CategoryHiddenCommand, SeverityHigh, `(?i)(\[INST\]|<\|im_start\|>|<\|system\|>)`},
	{"hidden-html-comment", CategoryHiddenCommand, SeverityHigh, `(?i)<!--.*?(instruction|execute|transfer|ignore|system).*?-->`},
	{"hidden-instruction-block", CategoryHiddenCommand, SeverityCritical, `(?i)begin\s+hidden\s+instructions?`},
	{"admin-override", CategoryAuthority, SeverityHigh, `(?i)admin\s+(mode|access|override|command)`},
	{"emergency-override", CategoryAuthority, SeverityHigh, `(?i)emergency\s+override`},
	{"developer-claim", CategoryAuthority, SeverityMedium, `(?i)(i\s+am|this\s+is)\s+(the|your)\s+(developer|administrator|creator|owner)`},
	{"important-directive", CategoryAuthority, SeverityMedium, `(?i)important\s*:\s*(ignore|do\s+not|you\s+must|override)`},
	{"urgency-pressure", CategoryUrgency, SeverityMedium, `(?i)(act\s+now|right\s+now|immediately\s+or|before\s+it'?s\s+too\s+late|last\s+chance|time.sensitive)`},
	{"drain-funds", CategoryUrgency, SeverityCritical, `(?i)drain\s+(the\s+)?(wallet|account|funds?)`},
	{"transfer-all", CategoryUrgency, SeverityHigh, `(?i)(transfer|send|move)\s+all\s+(your\s+)?(funds?|sol|tokens?|assets?|money)`},
	{"base64-blob", CategoryEncoding, SeverityMedium, `[A-Za-z0-9+/]{48,}={0,2}`},
}

// DefaultLibrary compiles the built-in signature set. Panics on a bad
// expression, which is a programming error caught at startup.
func DefaultLibrary() *Library {
	return NewLibrary(defaultSpecs)
}

// NewLibrary compiles a signature set.
func NewLibrary(specs []spec) *Library {
	lib := &Library{patterns: make([]Pattern, 0, len(specs))}
	for _, s := range specs {
		lib.patterns = append(lib.patterns, Pattern{
			Name:     s.name,
			Category: s.category,
			Severity: s.severity,
			re:       regexp.MustCompile(s.expr),
		})
	}
	return lib
}

// Scan returns all signature matches against the text, in library order.
// Invisible-character obfuscation is reported as a synthetic match so callers
// can treat it uniformly with regex signatures.
func (l *Library) Scan(text string) []Match {
	var matches []Match
	for _, p := range l.patterns {
		if p.re.MatchString(text) {
			matches = append(matches, Match{Name: p.Name, Category: p.Category, Severity: p.Severity})
		}
	}
	if hits := ScanInvisible(text); len(hits) > 0 {
		matches = append(matches, Match{
			Name:     "invisible-characters",
			Category: CategoryInvisible,
			Severity: SeverityHigh,
		})
	}
	return matches
}

// Score folds a set of matches into a single 0-100 contribution: the highest
// severity sets the base, each extra match stacks 15 more, capped at 100.
func Score(matches []Match) int {
	if len(matches) == 0 {
		return 0
	}
	base := 0
	for _, m := range matches {
		if b := m.Severity.BaseScore(); b > base {
			base = b
		}
	}
	score := base + 15*(len(matches)-1)
	if score > 100 {
		score = 100
	}
	return score
}

// Len reports the number of compiled patterns.
func (l *Library) Len() int {
	return len(l.patterns)
}
