package llm

import "strings"

// RedactSecret formats an API key for safe inclusion in logs and
// errors: the prefix before the first hyphen, a mask, and the last
// four characters. Keys too short to redact meaningfully come back
// fully masked.
func RedactSecret(key string) string {
	if key == "" {
		return ""
	}
	if len(key) < 8 {
		return "***"
	}
	prefix := key[:3]
	if i := strings.IndexByte(key, '-'); i > 0 && i <= 8 {
		prefix = key[:i]
	}
	return prefix + "-***-" + key[len(key)-4:]
}

// redactIn replaces every occurrence of the secret inside s with its
// redacted form. Applied to provider error bodies before they are
// wrapped or logged.
func redactIn(s, secret string) string {
	if secret == "" || len(secret) < 8 {
		return s
	}
	return strings.ReplaceAll(s, secret, RedactSecret(secret))
}
