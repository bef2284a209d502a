package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateWalletAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		valid   bool
	}{
		{"btc legacy", "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa", true},
		{"btc p2sh", "3J98t1WpEZ73CNmQviecrnyiWrnqRhWNLy", true},
		{"btc segwit", "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq", true},
		{"ethereum", "0x742d35Cc6634C0532925a3b844Bc454e4438f44e", true},
		{"litecoin", "LVg2kJoFNg45Nbpy53h7Fe1wKyeXVRhMH9", true},
		{"generic alphanumeric", "qrstuvwxyz0123456789abcdefghij", true},
		{"empty", "", false},
		{"too short", "1BoatSLRHt", false},
		{"too long", strings.Repeat("a", 91), false},
		{"invalid characters", "0x742d35Cc6634C0532925a3b844Bc454e4438f4!!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, msg := ValidateWalletAddress(tt.address)
			assert.Equal(t, tt.valid, ok)
			if !tt.valid {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestValidateWalletAddress_TrimsWhitespace(t *testing.T) {
	ok, _ := ValidateWalletAddress("  0x742d35Cc6634C0532925a3b844Bc454e4438f44e  ")
	assert.True(t, ok)
}

func TestValidateHandle(t *testing.T) {
	tests := []struct {
		name   string
		handle string
		want   string
		valid  bool
	}{
		{"plain", "alice_01", "alice_01", true},
		{"at prefix stripped", "@alice_01", "alice_01", true},
		{"numeric id", "123456789", "123456789", true},
		{"too short", "abcd", "abcd", false},
		{"too long", strings.Repeat("x", 33), strings.Repeat("x", 33), false},
		{"bad characters", "alice-01!", "alice-01!", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, msg := ValidateHandle(tt.handle)
			assert.Equal(t, tt.valid, ok)
			assert.Equal(t, tt.want, got)
			if !tt.valid {
				assert.NotEmpty(t, msg)
			}
		})
	}
}

func TestValidateLimit(t *testing.T) {
	for limit, want := range map[int]bool{
		0:     false,
		1:     true,
		500:   true,
		10000: true,
		10001: false,
		-5:    false,
	} {
		ok, _ := ValidateLimit(limit)
		assert.Equal(t, want, ok, "limit %d", limit)
	}
}

func TestSanitizeAddress(t *testing.T) {
	assert.Equal(t, "abc123", SanitizeAddress("  abc\x00123  "))
}
