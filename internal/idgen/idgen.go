// Package idgen generates the opaque identifiers handed out by the API:
// request IDs, blacklist entry IDs, and similar.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// WithPrefix returns prefix + 24 hex chars from 12 random bytes. The
// prefix ("req_", "bl_") makes an ID's origin obvious in logs.
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}

// Hex returns a random hex string covering numBytes bytes of entropy.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
