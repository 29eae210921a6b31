package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims input, drops control characters and cuts it to maxLen bytes
// without splitting a rune.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen > 0 && len(cleaned) > maxLen {
		cleaned = cleaned[:maxLen]
		for len(cleaned) > 0 && !utf8.ValidString(cleaned) {
			cleaned = cleaned[:len(cleaned)-1]
		}
	}
	return strings.TrimSpace(cleaned)
}

// MachineCode normalizes a scanned or typed machine code.
func MachineCode(input string) string {
	return strings.ToUpper(SanitizeString(input, 32))
}
