package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

func TestNew_Levels(t *testing.T) {
	cases := []struct {
		level       string
		debugOn     bool
		infoEnabled bool
	}{
		{"debug", true, true},
		{"info", false, true},
		{"", false, true},
		{"bogus", false, true},
		{"error", false, false},
	}
	for _, tc := range cases {
		logger := New(tc.level, "text")
		if got := logger.Enabled(context.Background(), slog.LevelDebug); got != tc.debugOn {
			t.Errorf("level %q: debug enabled = %v, want %v", tc.level, got, tc.debugOn)
		}
		if got := logger.Enabled(context.Background(), slog.LevelInfo); got != tc.infoEnabled {
			t.Errorf("level %q: info enabled = %v, want %v", tc.level, got, tc.infoEnabled)
		}
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := RequestID(ctx); id != "" {
		t.Errorf("fresh context request id = %q, want empty", id)
	}

	ctx = WithRequestID(ctx, "req_abc")
	if id := RequestID(ctx); id != "req_abc" {
		t.Errorf("request id = %q, want req_abc", id)
	}

	ctx = WithRequestID(ctx, "req_def")
	if id := RequestID(ctx); id != "req_def" {
		t.Errorf("request id after overwrite = %q, want req_def", id)
	}
}

func TestAgentIDRoundTrip(t *testing.T) {
	ctx := context.Background()
	if id := AgentID(ctx); id != "" {
		t.Errorf("fresh context agent id = %q, want empty", id)
	}

	ctx = WithAgentID(ctx, "trader-7")
	if id := AgentID(ctx); id != "trader-7" {
		t.Errorf("agent id = %q, want trader-7", id)
	}
}

func TestFromContext(t *testing.T) {
	if FromContext(context.Background()) == nil {
		t.Fatal("expected the default logger for a bare context")
	}

	custom := New("debug", "json")
	ctx := WithLogger(context.Background(), custom)
	if FromContext(ctx) != custom {
		t.Error("expected the stored logger back")
	}
}

func TestL_AnnotatesRequestScope(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))

	ctx := WithLogger(context.Background(), base)
	ctx = WithRequestID(ctx, "req_123")
	ctx = WithAgentID(ctx, "trader-7")

	L(ctx).Info("analysis complete", "decision", "allow")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("parse log line: %v", err)
	}
	if line["request_id"] != "req_123" {
		t.Errorf("request_id = %v, want req_123", line["request_id"])
	}
	if line["agent_id"] != "trader-7" {
		t.Errorf("agent_id = %v, want trader-7", line["agent_id"])
	}
	if line["decision"] != "allow" {
		t.Errorf("decision = %v, want allow", line["decision"])
	}
}

func TestL_BareContextUsesDefault(t *testing.T) {
	if L(context.Background()) == nil {
		t.Fatal("expected a usable logger for a bare context")
	}
}
