// Package validation provides input validation for wallet addresses,
// identity handles, and usage limits.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// Wallet address length bounds across supported chains.
const (
	MinAddressLen = 26
	MaxAddressLen = 90
)

// Usage limit bounds for admin-configured quotas.
const (
	MinLimit = 1
	MaxLimit = 10000
)

var (
	// Bitcoin address patterns
	btcLegacyRegex = regexp.MustCompile(`^[13][a-km-zA-HJ-NP-Z1-9]{25,34}$`)
	btcSegwitRegex = regexp.MustCompile(`^bc1[a-z0-9]{39,59}$`)
	// Ethereum address pattern
	ethRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	// Litecoin address patterns
	ltcRegex = regexp.MustCompile(`^[LM3][a-km-zA-HJ-NP-Z1-9]{26,33}$`)
	// Generic cryptocurrency address (alphanumeric fallback)
	genericRegex = regexp.MustCompile(`^[a-zA-Z0-9]{26,90}$`)

	// Identity handle: 5-32 characters, alphanumeric plus underscore
	handleRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// ValidateWalletAddress checks that an address looks like a supported
// cryptocurrency address. Returns an empty message on success.
func ValidateWalletAddress(address string) (bool, string) {
	if address == "" {
		return false, "Wallet address cannot be empty"
	}

	address = strings.TrimSpace(address)

	if len(address) < MinAddressLen || len(address) > MaxAddressLen {
		return false, "Invalid wallet address length"
	}

	if btcLegacyRegex.MatchString(address) ||
		btcSegwitRegex.MatchString(address) ||
		ethRegex.MatchString(address) ||
		ltcRegex.MatchString(address) ||
		genericRegex.MatchString(address) {
		return true, ""
	}

	return false, "Invalid wallet address format. Please provide a valid cryptocurrency address."
}

// ValidateHandle checks an identity handle. A leading @ is tolerated and
// stripped before validation; the normalized handle is returned.
func ValidateHandle(handle string) (string, bool, string) {
	if handle == "" {
		return "", false, "Handle cannot be empty"
	}

	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")

	if len(handle) < 5 || len(handle) > 32 {
		return handle, false, "Handle must be 5-32 characters long"
	}

	if !handleRegex.MatchString(handle) {
		return handle, false, "Handle can only contain letters, numbers, and underscores"
	}

	return handle, true, ""
}

// ValidateLimit checks a usage limit value against the allowed range.
func ValidateLimit(limit int) (bool, string) {
	if limit < MinLimit || limit > MaxLimit {
		return false, "Limit must be between 1 and 10000"
	}
	return true, ""
}

// SanitizeAddress trims whitespace and strips null bytes from an address
// before it is logged or sent upstream.
func SanitizeAddress(address string) string {
	address = strings.TrimSpace(address)
	return strings.ReplaceAll(address, "\x00", "")
}

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// HandleParamMiddleware validates the :handle URL parameter on routes that
// use it, rejecting malformed handles before any store lookup.
func HandleParamMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		handle := c.Param("handle")
		if handle != "" {
			if _, ok, msg := ValidateHandle(handle); !ok {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error":   "invalid_handle",
					"message": msg,
				})
				return
			}
		}
		c.Next()
	}
}
