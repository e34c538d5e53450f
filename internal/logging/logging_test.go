package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"
)

func TestWithContextAddsIdentifiers(t *testing.T) {
	var buf bytes.Buffer
	l := New("feed", "debug", "json")
	l.SetOutput(&buf)

	ctx := WithUserID(WithTraceID(context.Background(), "trace-1"), "user-1")
	l.WithContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v (%q)", err, buf.String())
	}
	if entry["service"] != "feed" || entry["trace_id"] != "trace-1" || entry["user_id"] != "user-1" {
		t.Fatalf("entry = %v", entry)
	}
}

func TestLogRequestLevels(t *testing.T) {
	var buf bytes.Buffer
	l := New("api", "info", "json")
	l.SetOutput(&buf)

	l.LogRequest(context.Background(), http.MethodGet, "/cafes", http.StatusServiceUnavailable, 20*time.Millisecond)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["level"] != "error" {
		t.Fatalf("level = %v, want error", entry["level"])
	}
	if entry["status"] != float64(503) {
		t.Fatalf("status = %v", entry["status"])
	}
}

func TestContextHelpersEmpty(t *testing.T) {
	ctx := context.Background()
	if GetTraceID(ctx) != "" || GetUserID(ctx) != "" || GetRole(ctx) != "" {
		t.Fatal("expected empty identifiers")
	}
	if WithTraceID(ctx, "") != ctx {
		t.Fatal("empty trace id should not wrap context")
	}
	if NewTraceID() == NewTraceID() {
		t.Fatal("trace ids should be unique")
	}
}
