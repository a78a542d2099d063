// Package trust maintains the registry of domains classified as trusted
// data sources for agent reasoning.
package trust

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a domain is not in the store.
	ErrNotFound = errors.New("trusted domain not found")
	// ErrExists is returned when adding a domain that is already registered.
	ErrExists = errors.New("trusted domain already exists")
	// ErrInvalidDomain is returned for malformed domain names.
	ErrInvalidDomain = errors.New("invalid domain name")
)

// Domain is one trusted data source.
type Domain struct {
	Domain   string    `json:"domain"`
	Category string    `json:"category,omitempty"` // e.g. "price-feed", "exchange", "chain-explorer"
	AddedAt  time.Time `json:"added_at"`
}

// Store persists trusted domains.
type Store interface {
	List(ctx context.Context) ([]Domain, error)
	Add(ctx context.Context, d Domain) error
	Remove(ctx context.Context, domain string) error
}

// NormalizeHost lower-cases a host and strips one leading "www." label.
// Classification is exact-match after normalization; subdomains are not
// wildcarded.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimSuffix(host, ".")
	host = strings.TrimPrefix(host, "www.")
	return host
}

// ValidDomain reports whether a string looks like a bare domain name.
func ValidDomain(domain string) bool {
	domain = NormalizeHost(domain)
	if domain == "" || len(domain) > 253 || !strings.Contains(domain, ".") {
		return false
	}
	for _, label := range strings.Split(domain, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		for _, r := range label {
			if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-') {
				return false
			}
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
	}
	return true
}

// DefaultDomains is the built-in allowlist of data sources an agent may cite
// without triggering sandbox mode.
func DefaultDomains() []Domain {
	now := time.Now().UTC()
	seed := []struct{ domain, category string }{
		{"coingecko.com", "price-feed"},
		{"coinmarketcap.com", "price-feed"},
		{"pyth.network", "oracle"},
		{"switchboard.xyz", "oracle"},
		{"birdeye.so", "price-feed"},
		{"jup.ag", "dex"},
		{"raydium.io", "dex"},
		{"orca.so", "dex"},
		{"binance.com", "exchange"},
		{"coinbase.com", "exchange"},
		{"kraken.com", "exchange"},
		{"solana.com", "chain-docs"},
		{"solscan.io", "chain-explorer"},
		{"explorer.solana.com", "chain-explorer"},
	}
	out := make([]Domain, 0, len(seed))
	for _, s := range seed {
		out = append(out, Domain{Domain: s.domain, Category: s.category, AddedAt: now})
	}
	return out
}
