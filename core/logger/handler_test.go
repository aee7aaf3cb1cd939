package logger

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"testing"

	"log/slog"
)

func TestStructuredHandlerKVOrder(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatKV,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})
	ctx := WithRID(Background(), "rid-123")
	ctx = WithUpdateMeta(ctx, 42, 7, 9)

	log := slog.New(handler).With("component", "access.gate")
	LogEvent(ctx, log, slog.LevelInfo, "gate.decision",
		slog.String("status", "ok"),
		slog.String("decision", "free_available"),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	line := strings.TrimSpace(buf.String())
	if line == "" {
		t.Fatal("expected log line")
	}
	tokens := strings.Split(line, " ")
	if len(tokens) < 6 {
		t.Fatalf("unexpected token count: %d (%s)", len(tokens), line)
	}
	expected := []string{"ts=", "level=INFO", "component=access.gate", "event=gate.decision", "status=ok", "rid=rid-123"}
	for i, prefix := range expected {
		if !strings.HasPrefix(tokens[i], prefix) {
			t.Fatalf("token %d = %s, expected prefix %s", i, tokens[i], prefix)
		}
	}
}

func TestStructuredHandlerJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	aw := newAsyncWriter([]io.Writer{buf}, 1024)
	handler := newStructuredHandler(handlerConfig{
		level:    slog.LevelInfo,
		writer:   aw,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
	})

	log := slog.New(handler)
	LogEvent(Background(), log, slog.LevelWarn, "store.save",
		slog.String("backend", "github"),
		slog.String("document", "user_stats.json"),
		slog.Duration("duration", 0),
	)
	if err := aw.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if err := aw.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &decoded); err != nil {
		t.Fatalf("invalid json line: %v (%s)", err, buf.String())
	}
	if decoded["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", decoded["level"])
	}
	if decoded["event"] != "store.save" {
		t.Errorf("event = %v, want store.save", decoded["event"])
	}
	if decoded["backend"] != "github" {
		t.Errorf("backend = %v, want github", decoded["backend"])
	}
	if decoded["component"] != "app" {
		t.Errorf("component = %v, want app default", decoded["component"])
	}
}

func TestCompactRID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"42:7:9", "16.7.9"},
		{"", ""},
		{"not-a-rid", "not-a-rid"},
		{"1:2", "1:2"},
	}
	for _, tt := range tests {
		if got := CompactRID(tt.in); got != tt.want {
			t.Errorf("CompactRID(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
