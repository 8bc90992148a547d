package auditview_test

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	auditview "github.com/kafeiih/go-auditview"
)

func TestNormalizeLevel(t *testing.T) {
	tests := []struct {
		in   string
		want auditview.Level
	}{
		{"", auditview.LevelInfo},
		{"ERROR", auditview.LevelError},
		{" Warning ", auditview.LevelWarning},
		{"critical", auditview.LevelCritical},
		{"Debug", auditview.Level("debug")},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := auditview.NormalizeLevel(tt.in); got != tt.want {
				t.Errorf("NormalizeLevel(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestLevel_IsKnown(t *testing.T) {
	known := []auditview.Level{auditview.LevelInfo, auditview.LevelWarning, auditview.LevelError, auditview.LevelCritical}
	for _, l := range known {
		if !l.IsKnown() {
			t.Errorf("expected %s to be known", l)
		}
	}
	if auditview.Level("debug").IsKnown() {
		t.Error("expected debug to be unknown")
	}
}

func TestPayload_PrefersRawObject(t *testing.T) {
	e := auditview.LogEntry{
		ID:  "1",
		Raw: json.RawMessage(`{"id":"1","extra":{"nested":true}}`),
	}
	out, err := auditview.Payload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out), "\n  \"extra\": {") {
		t.Errorf("expected indented raw payload, got:\n%s", out)
	}
}

func TestPayload_FallsBackToEntry(t *testing.T) {
	e := auditview.LogEntry{ID: "1", Level: auditview.LevelError, Message: "Disk full"}
	out, err := auditview.Payload(e)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded["message"] != "Disk full" {
		t.Errorf("expected message in payload, got %v", decoded)
	}
	if _, ok := decoded["timestamp"]; ok {
		t.Error("expected zero timestamp to be omitted")
	}
}

func TestCorrelationIDPropagation(t *testing.T) {
	ctx := context.Background()
	if got := auditview.CorrelationIDFrom(ctx); got != "" {
		t.Errorf("expected empty id from bare context, got %q", got)
	}

	ctx = auditview.WithCorrelationID(ctx, "corr-1")
	if got := auditview.CorrelationIDFrom(ctx); got != "corr-1" {
		t.Errorf("expected corr-1, got %q", got)
	}
}
