// Package shared holds small cross-cutting helpers with no business logic
// of their own: secret redaction and request/trace id plumbing.
package shared

import (
	"regexp"
	"strings"
)

const redactedPlaceholder = "[REDACTED]"

// secretPatterns matches common secret-bearing patterns in log lines, audit
// entries, and runner stdout/stderr before they are persisted or rendered
// back into chat.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|apikey|secret[_-]?key|auth[_-]?token|bearer)\s*[:=]\s*"?([A-Za-z0-9_\-./+=]{16,})"?`),
	regexp.MustCompile(`(?i)(Bearer\s+)([A-Za-z0-9_\-./+=]{16,})`),
	// Provider API key prefixes (Anthropic, OpenAI, Google).
	regexp.MustCompile(`sk-ant-[A-Za-z0-9_\-]{20,}`),
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`AIza[A-Za-z0-9_\-]{30,}`),
	regexp.MustCompile(`(?i)(token|secret)\s*[:=]\s*"?([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})"?`),
}

// Redact replaces secret-bearing substrings in input with a fixed placeholder.
func Redact(input string) string {
	if input == "" {
		return input
	}
	result := input
	for _, pat := range secretPatterns {
		result = pat.ReplaceAllStringFunc(result, func(match string) string {
			submatch := pat.FindStringSubmatch(match)
			if len(submatch) >= 3 && submatch[1] != "" {
				return submatch[1] + redactedPlaceholder
			}
			return redactedPlaceholder
		})
	}
	return result
}

// RedactEnvValue returns value unless key looks like it names a secret, in
// which case it returns the placeholder.
func RedactEnvValue(key, value string) string {
	keyLower := strings.ToLower(key)
	sensitive := []string{"api_key", "apikey", "secret", "token", "password", "credential"}
	for _, s := range sensitive {
		if strings.Contains(keyLower, s) {
			return redactedPlaceholder
		}
	}
	return value
}
