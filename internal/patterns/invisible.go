package patterns

import "fmt"

// InvisibleHit describes one invisible or direction-override rune found in a
// text, with its rune offset.
type InvisibleHit struct {
	Rune   rune
	Offset int
	Kind   string
}

func (h InvisibleHit) String() string {
	return fmt.Sprintf("%s U+%04X at rune %d", h.Kind, h.Rune, h.Offset)
}

// ScanInvisible finds zero-width characters, bidirectional overrides, and
// Unicode tag characters. These carry no visible content and have no place in
// agent reasoning text; attackers use them to smuggle instructions past human
// review.
func ScanInvisible(text string) []InvisibleHit {
	var hits []InvisibleHit
	for i, r := range []rune(text) {
		if kind, bad := classifyRune(r); bad {
			hits = append(hits, InvisibleHit{Rune: r, Offset: i, Kind: kind})
		}
	}
	return hits
}

func classifyRune(r rune) (string, bool) {
	switch {
	case r == '\u200b' || r == '\u200c' || r == '\u200d' || r == '\u2060' || r == '\ufeff' || r == '\u180e':
		return "zero-width", true
	case r == '\u200e' || r == '\u200f':
		return "direction-mark", true
	case r >= '\u202a' && r <= '\u202e':
		return "bidi-override", true
	case r >= '\u2066' && r <= '\u2069':
		return "bidi-isolate", true
	case r >= 0xE0000 && r <= 0xE007F:
		return "tag-character", true
	}
	return "", false
}
