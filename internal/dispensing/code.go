package dispensing

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

const (
	// CodeLength is the number of characters a buyer types on the machine keypad.
	CodeLength = 6
	// DefaultTTL is how long a code stays redeemable after payment.
	DefaultTTL = 15 * time.Minute
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Code is a dispensing code together with the instant it stops working.
type Code struct {
	Value     string
	ExpiresAt time.Time
}

// GenerateCode returns CodeLength characters drawn uniformly from [A-Z0-9].
func GenerateCode() (string, error) {
	var b strings.Builder
	b.Grow(CodeLength)
	max := big.NewInt(int64(len(alphabet)))
	for i := 0; i < CodeLength; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate dispensing code: %w", err)
		}
		b.WriteByte(alphabet[n.Int64()])
	}
	return b.String(), nil
}

// Issue generates a code valid for ttl from now. A non-positive ttl falls back to DefaultTTL.
func Issue(now time.Time, ttl time.Duration) (Code, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	value, err := GenerateCode()
	if err != nil {
		return Code{}, err
	}
	return Code{Value: value, ExpiresAt: now.UTC().Add(ttl)}, nil
}

// NormalizeCode upper-cases and trims what a buyer typed.
func NormalizeCode(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidCode reports whether value has the shape of a dispensing code.
func ValidCode(value string) bool {
	if len(value) != CodeLength {
		return false
	}
	for i := 0; i < len(value); i++ {
		if !strings.ContainsRune(alphabet, rune(value[i])) {
			return false
		}
	}
	return true
}
