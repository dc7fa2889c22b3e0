package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestCooldown(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	cooldown := NewCooldown(30 * time.Second)
	cooldown.now = func() time.Time { return now }

	if !cooldown.Allow() {
		t.Fatal("first call should be allowed")
	}
	if cooldown.Allow() {
		t.Error("immediate second call should be suppressed")
	}

	now = now.Add(29 * time.Second)
	if cooldown.Allow() {
		t.Error("call inside the gap should be suppressed")
	}

	now = now.Add(2 * time.Second)
	if !cooldown.Allow() {
		t.Error("call after the gap should be allowed")
	}
}

func TestCooldownDisabled(t *testing.T) {
	var nilCooldown *Cooldown
	if !nilCooldown.Allow() {
		t.Error("nil cooldown should always allow")
	}
	zero := NewCooldown(0)
	if !zero.Allow() || !zero.Allow() {
		t.Error("zero-gap cooldown should always allow")
	}
}

func TestGenerateSummary(t *testing.T) {
	var gotKey string
	var gotBody string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-goog-api-key")
		raw, _ := io.ReadAll(r.Body)
		gotBody = string(raw)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"world"}]}}]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "secret", nil)
	resp, err := client.GenerateSummary(context.Background(), "test prompt")
	if err != nil {
		t.Fatalf("GenerateSummary failed: %v", err)
	}
	if gotKey != "secret" {
		t.Errorf("API key header missing, got %q", gotKey)
	}
	if !strings.Contains(gotBody, "test prompt") {
		t.Errorf("prompt not sent: %s", gotBody)
	}
	if got := ExtractText(resp); got != "hello world" {
		t.Errorf("ExtractText() = %q", got)
	}
}

func TestGenerateSummarySuppressedByCooldown(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", NewCooldown(time.Hour))
	if _, err := client.GenerateSummary(context.Background(), "one"); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	resp, err := client.GenerateSummary(context.Background(), "two")
	if err != nil {
		t.Fatalf("suppressed call returned error: %v", err)
	}
	if resp != nil {
		t.Error("suppressed call should return nil response")
	}
	if calls != 1 {
		t.Errorf("expected 1 upstream call, got %d", calls)
	}
}

func TestGenerateSummaryErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewClient(server.URL, "k", nil)
	if _, err := client.GenerateSummary(context.Background(), "p"); err == nil {
		t.Error("expected error for 429 response")
	}
}

func TestExtractText(t *testing.T) {
	if got := ExtractText(nil); got != "N/A (Gemini skipped)" {
		t.Errorf("nil response placeholder wrong: %q", got)
	}

	// a response without usable text falls back to raw JSON
	resp := &Response{Candidates: []ResponseCandidate{{}}}
	if got := ExtractText(resp); !strings.Contains(got, "candidates") {
		t.Errorf("expected raw JSON fallback, got %q", got)
	}
}
