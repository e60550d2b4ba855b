package audit

import "strings"

// sensitiveKeySubstrings are matched case-insensitively against a
// details map's keys; any key containing one of these has its value
// redacted before the entry is logged or persisted.
var sensitiveKeySubstrings = []string{
	"password", "api_key", "api-key", "authorization", "token", "secret", "key_hash", "jwt",
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeySubstrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func redactValue(v any) any {
	if s, ok := v.(string); ok {
		if len(s) > 8 {
			return s[:4] + "...REDACTED"
		}
		return "REDACTED"
	}
	return "REDACTED"
}

// Sanitize recursively redacts values under sensitive keys in details,
// returning a new map. Nested maps are walked; other value types are
// copied as-is unless their key is sensitive.
func Sanitize(details map[string]any) map[string]any {
	if details == nil {
		return nil
	}
	out := make(map[string]any, len(details))
	for k, v := range details {
		switch {
		case isSensitiveKey(k):
			out[k] = redactValue(v)
		default:
			if nested, ok := v.(map[string]any); ok {
				out[k] = Sanitize(nested)
			} else {
				out[k] = v
			}
		}
	}
	return out
}
