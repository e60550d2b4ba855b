package audit

import "testing"

func TestSanitize_RedactsLongSecret(t *testing.T) {
	out := Sanitize(map[string]any{"api_key": "cp_abcdef1234567890"})
	if out["api_key"] != "cp_a...REDACTED" {
		t.Fatalf("unexpected redaction: %v", out["api_key"])
	}
}

func TestSanitize_RedactsShortSecret(t *testing.T) {
	out := Sanitize(map[string]any{"password": "abc"})
	if out["password"] != "REDACTED" {
		t.Fatalf("unexpected redaction: %v", out["password"])
	}
}

func TestSanitize_CaseInsensitiveKeyMatch(t *testing.T) {
	out := Sanitize(map[string]any{"Authorization": "Bearer abcdefghijk"})
	if out["Authorization"] != "Bear...REDACTED" {
		t.Fatalf("unexpected redaction: %v", out["Authorization"])
	}
}

func TestSanitize_RecursesNestedMaps(t *testing.T) {
	out := Sanitize(map[string]any{
		"meta": map[string]any{"jwt": "eyabcdefghijklmno"},
	})
	nested, ok := out["meta"].(map[string]any)
	if !ok {
		t.Fatalf("expected nested map, got %T", out["meta"])
	}
	if nested["jwt"] != "eyab...REDACTED" {
		t.Fatalf("unexpected nested redaction: %v", nested["jwt"])
	}
}

func TestSanitize_LeavesNonSensitiveValuesAlone(t *testing.T) {
	out := Sanitize(map[string]any{"decision": "MATCH", "count": 3})
	if out["decision"] != "MATCH" || out["count"] != 3 {
		t.Fatalf("unexpected mutation of non-sensitive values: %v", out)
	}
}
