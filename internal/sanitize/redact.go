package sanitize

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
)

// Redacted replaces every secret value.
const Redacted = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password", "passwd", "secret", "token", "api_key", "apikey",
	"access_key", "private_key", "credential", "authorization", "cookie",
	"session_id",
}

var (
	jwtPattern = regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)
	// Token-shaped runs of 32+ characters. Pure hex runs are commit SHAs and
	// are left alone; see isTokenLike.
	longTokenPattern = regexp.MustCompile(`[A-Za-z0-9_\-+=]{32,}`)
	hexPattern       = regexp.MustCompile(`^[0-9a-fA-F]+$`)
)

// IsSensitiveKey reports whether a map key or log attribute names a secret.
func IsSensitiveKey(key string) bool {
	k := strings.ToLower(strings.ReplaceAll(key, "-", "_"))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(k, part) {
			return true
		}
	}
	return false
}

// RedactString masks JWTs and long token-shaped substrings in free text.
func RedactString(s string) string {
	s = jwtPattern.ReplaceAllString(s, Redacted)
	return longTokenPattern.ReplaceAllStringFunc(s, func(m string) string {
		if isTokenLike(m) {
			return Redacted
		}
		return m
	})
}

func isTokenLike(s string) bool {
	if hexPattern.MatchString(s) {
		return false
	}
	var hasDigit, hasUpper, hasLower bool
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			hasDigit = true
		case r >= 'A' && r <= 'Z':
			hasUpper = true
		case r >= 'a' && r <= 'z':
			hasLower = true
		}
	}
	if !hasDigit || !(hasUpper || hasLower) {
		return false
	}
	if hasUpper && hasLower {
		return true
	}
	// Single-case runs: only flag them when they look random rather than
	// like a hyphenated slug.
	return shannonEntropy(s) >= minTokenEntropy
}

// minTokenEntropy is in bits per character.
const minTokenEntropy = 4.2

func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}
	counts := make(map[rune]int)
	for _, r := range s {
		counts[r]++
	}
	n := float64(len(s))
	var h float64
	for _, c := range counts {
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}

// Redact walks maps, slices and strings and returns a redacted copy.
// Values under sensitive keys become Redacted; free-text strings go through
// RedactString. Other values are returned unchanged.
func Redact(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = Redact(inner)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				out[k] = Redacted
				continue
			}
			out[k] = RedactString(inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = Redact(inner)
		}
		return out
	case []string:
		out := make([]string, len(val))
		for i, inner := range val {
			out[i] = RedactString(inner)
		}
		return out
	case string:
		return RedactString(val)
	default:
		return v
	}
}

// RedactAttr is a slog.HandlerOptions.ReplaceAttr hook.
func RedactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey || a.Key == slog.LevelKey || a.Key == slog.SourceKey {
		return a
	}
	if IsSensitiveKey(a.Key) {
		return slog.String(a.Key, Redacted)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactString(a.Value.String()))
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case map[string]any, map[string]string, []any, []string:
			return slog.Any(a.Key, Redact(v))
		case error:
			return slog.String(a.Key, RedactString(v.Error()))
		}
	}
	return a
}
