package audit

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestClientIP_XForwardedFor(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18")

	if got, want := clientIP(r), "203.0.113.50"; got != want {
		t.Errorf("clientIP = %q, want %q", got, want)
	}
}

func TestClientIP_XRealIP(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")

	if got, want := clientIP(r), "198.51.100.23"; got != want {
		t.Errorf("clientIP = %q, want %q", got, want)
	}
}

func TestClientIP_RemoteAddr(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "192.0.2.1"; got != want {
		t.Errorf("clientIP = %q, want %q", got, want)
	}
}

func TestClientIP_Precedence(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.50")
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "203.0.113.50"; got != want {
		t.Errorf("clientIP = %q, want %q (X-Forwarded-For should take precedence)", got, want)
	}
}

func TestClientIP_XRealIPFallback(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Real-IP", "198.51.100.23")
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "198.51.100.23"; got != want {
		t.Errorf("clientIP = %q, want %q (X-Real-IP should take precedence over RemoteAddr)", got, want)
	}
}

func TestClientIP_InvalidXFF(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("X-Forwarded-For", "not-an-ip")
	r.RemoteAddr = "192.0.2.1:12345"

	if got, want := clientIP(r), "192.0.2.1"; got != want {
		t.Errorf("clientIP = %q, want %q (should fall back to RemoteAddr)", got, want)
	}
}

func TestLog_DropsWhenFull(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start the background goroutine — nothing drains the channel.

	// Fill the buffer.
	for i := 0; i < bufferSize; i++ {
		w.Log(Entry{Action: ActionTemplateCreated, ResourceType: "template"})
	}

	// The next log should be dropped (non-blocking).
	w.Log(Entry{Action: ActionTemplateCreated, ResourceType: "dropped"})

	// Verify buffer is full.
	if len(w.entries) != bufferSize {
		t.Errorf("buffer size = %d, want %d", len(w.entries), bufferSize)
	}
}

func TestLogFromRequest_ExtractsFields(t *testing.T) {
	logger := slog.Default()
	w := NewWriter(nil, logger)
	// Don't start — we'll read from the channel directly.

	r := httptest.NewRequest("POST", "/v1/templates", nil)
	r.Header.Set("User-Agent", "test-agent/1.0")
	r.Header.Set("X-Real-IP", "198.51.100.23")

	tenantID := uuid.New()
	apiKeyID := uuid.New()
	e := New(ActionTemplateCreated, &tenantID, &apiKeyID, "template", "invoice-v1", nil)
	w.LogFromRequest(r, e)

	// Read the entry from the channel.
	entry := <-w.entries

	if entry.Action != ActionTemplateCreated {
		t.Errorf("Action = %q, want %q", entry.Action, ActionTemplateCreated)
	}
	if entry.ResourceType != "template" {
		t.Errorf("ResourceType = %q, want %q", entry.ResourceType, "template")
	}
	if entry.IPAddress != "198.51.100.23" {
		t.Errorf("IPAddress = %q, want %q", entry.IPAddress, "198.51.100.23")
	}
}
