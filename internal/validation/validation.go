// Package validation provides input validation helpers and middleware for the API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxReasoningLength bounds the free-text reasoning attached to an intent.
const MaxReasoningLength = 2000

var (
	// base58AddressRegex validates Solana-style base58 public keys (32-44 chars,
	// Bitcoin base58 alphabet: no 0, O, I, l).
	base58AddressRegex = regexp.MustCompile(`^[1-9A-HJ-NP-Za-km-z]{32,44}$`)
	// agentIDRegex validates agent identifiers.
	agentIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]{1,128}$`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// IsValidAddress checks if a string is a valid base58 Solana address
func IsValidAddress(addr string) bool {
	return base58AddressRegex.MatchString(addr)
}

// IsValidAgentID checks if a string is a well-formed agent identifier
func IsValidAgentID(id string) bool {
	return agentIDRegex.MatchString(id)
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	s = strings.ReplaceAll(s, "\x00", "")
	return s
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate validates a request and returns errors
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errors ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errors = append(errors, *err)
		}
	}
	return errors
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidAddress checks if a field is a valid base58 address
func ValidAddress(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidAddress(value) {
			return &ValidationError{Field: field, Message: "must be a base58 address (32-44 chars)"}
		}
		return nil
	}
}

// ValidAgentID checks if a field is a well-formed agent identifier
func ValidAgentID(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil
		}
		if !IsValidAgentID(value) {
			return &ValidationError{Field: field, Message: "must be 1-128 chars of [a-zA-Z0-9_.-]"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// NonNegativeAmount checks that an amount is not negative
func NonNegativeAmount(field string, value float64) func() *ValidationError {
	return func() *ValidationError {
		if value < 0 {
			return &ValidationError{Field: field, Message: "must not be negative"}
		}
		return nil
	}
}

// AgentParamMiddleware validates the :agent_id URL parameter on routes that use it.
// Apply to route groups that include :agent_id params to reject malformed IDs early.
func AgentParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("agent_id")
		if id != "" && !IsValidAgentID(id) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error": gin.H{
					"code":    "INVALID_REQUEST",
					"message": "agent_id must be 1-128 chars of [a-zA-Z0-9_.-]",
				},
			})
			return
		}
		c.Next()
	}
}
