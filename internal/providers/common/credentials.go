package common

import (
	"strings"
)

// Minimum credential lengths. Anything shorter is treated as a placeholder.
const (
	MinOpenAIKeyLength     = 21
	MinAnthropicKeyLength  = 21
	MinPerplexityKeyLength = 11
	MinGeminiKeyLength     = 11
)

// KeyUsable reports whether key, once trimmed, is at least minLen characters
func KeyUsable(key string, minLen int) bool {
	return len(strings.TrimSpace(key)) >= minLen
}

// MaskAPIKey keeps the first and last four characters for logging
func MaskAPIKey(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return "<empty>"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}
