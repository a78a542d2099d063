// Package blacklist stores known-malicious addresses and programs and serves
// them to the heuristic layer as an immutable snapshot.
package blacklist

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an entry does not exist.
	ErrNotFound = errors.New("blacklist entry not found")
	// ErrExists is returned when adding a value that is already listed.
	ErrExists = errors.New("blacklist entry already exists")
)

// EntryType classifies what a blacklist value refers to.
type EntryType string

const (
	TypeAddress EntryType = "address"
	TypeProgram EntryType = "program"
)

// Severity levels for blacklist entries.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Entry is one blacklisted value with its provenance.
type Entry struct {
	ID        string    `json:"id"`
	Type      EntryType `json:"type"`
	Value     string    `json:"value"`
	Reason    string    `json:"reason"`
	Source    string    `json:"source"`   // "manual", "community", "automated", "security_audit"
	Severity  string    `json:"severity"` // low, medium, high, critical
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists blacklist entries.
type Store interface {
	List(ctx context.Context) ([]Entry, error)
	Get(ctx context.Context, value string) (*Entry, error)
	Add(ctx context.Context, e Entry) error
	Remove(ctx context.Context, id string) error
}

// ValidType reports whether t is a known entry type.
func ValidType(t EntryType) bool {
	return t == TypeAddress || t == TypeProgram
}

// ValidSeverity reports whether s is a known severity level.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// SeedEntries returns the built-in set of known-malicious values loaded on
// first run.
func SeedEntries() []Entry {
	now := time.Now().UTC()
	seed := []struct {
		typ              EntryType
		value, reason    string
		source, severity string
	}{
		{TypeAddress, "DrainWa11etXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX",
			"Known drainer wallet - multiple theft incidents", "community", SeverityCritical},
		{TypeAddress, "Scam4ddressXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX",
			"Reported scam address - phishing operation", "community", SeverityCritical},
		{TypeAddress, "Ma1ici0usXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX",
			"Malicious contract - rug pull associated", "automated", SeverityHigh},
		{TypeProgram, "EvilPr0gramXXXXXXXXXXXXXXXXXXXXXXXXXXXXXXX",
			"Malicious program - funds extraction", "security_audit", SeverityCritical},
	}
	out := make([]Entry, 0, len(seed))
	for i, s := range seed {
		out = append(out, Entry{
			ID:        "bl_seed_" + string(rune('a'+i)),
			Type:      s.typ,
			Value:     s.value,
			Reason:    s.reason,
			Source:    s.source,
			Severity:  s.severity,
			Active:    true,
			CreatedAt: now,
		})
	}
	return out
}
