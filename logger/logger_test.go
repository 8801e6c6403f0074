package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newJSON(t *testing.T, level string) (*Logger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: level, Format: FormatJSON}, "wasmfetch", &buf)
	return l, &buf
}

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewDefault(t *testing.T) {
	l := NewDefault("test-svc")
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	if l.service != "test-svc" {
		t.Errorf("expected service 'test-svc', got %q", l.service)
	}
}

func TestLevelFiltering(t *testing.T) {
	l, buf := newJSON(t, "warn")
	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")
	l.Error("shown too")

	lines := decodeLines(t, buf)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %s", len(lines), buf.String())
	}
	if lines[0]["level"] != "warn" || lines[1]["level"] != "error" {
		t.Errorf("unexpected levels: %v", lines)
	}
	if l.Enabled(zerolog.DebugLevel) || !l.Enabled(zerolog.ErrorLevel) {
		t.Error("Enabled disagrees with the configured level")
	}
}

func TestInvalidLevelFallsBackToInfo(t *testing.T) {
	l, buf := newJSON(t, "loud")
	l.Debug("hidden")
	l.Info("shown")
	if n := len(decodeLines(t, buf)); n != 1 {
		t.Errorf("expected 1 line, got %d", n)
	}
}

func TestFieldsAndChildren(t *testing.T) {
	l, buf := newJSON(t, "debug")
	l.WithComponent("fetch").
		WithFields(Fields("session", "abc")).
		WithError(errors.New("boom")).
		Debug("fetch aborted", Fields(FieldStatus, 499))

	lines := decodeLines(t, buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	want := map[string]any{
		"component": "fetch",
		"session":   "abc",
		"error":     "boom",
		"status":    float64(499),
		"service":   "wasmfetch",
		"message":   "fetch aborted",
	}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("%s = %v, want %v", k, got[k], v)
		}
	}
}

func TestWithContext(t *testing.T) {
	l, buf := newJSON(t, "info")
	ctx := ContextWithRequestID(context.Background(), "req-1")
	ctx = ContextWithTraceID(ctx, "trace-1")
	l.WithContext(ctx).Info("handled")
	l.WithContext(context.Background()).Info("bare")

	lines := decodeLines(t, buf)
	if lines[0][FieldRequestID] != "req-1" || lines[0][FieldTraceID] != "trace-1" {
		t.Errorf("context ids missing: %v", lines[0])
	}
	if _, ok := lines[1][FieldRequestID]; ok {
		t.Errorf("unexpected request id: %v", lines[1])
	}
	if RequestIDFromContext(ctx) != "req-1" {
		t.Error("RequestIDFromContext mismatch")
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatConsole, NoColor: true}, "devserver", &buf)
	l.Info("listening", Fields("addr", ":8080"))

	out := buf.String()
	for _, want := range []string{"[DEV]", "[INF]", "listening", "addr:", ":8080"} {
		if !strings.Contains(out, want) {
			t.Errorf("console output %q missing %q", out, want)
		}
	}
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "json")

	l := NewFromEnv("env-svc")
	if !l.Enabled(zerolog.DebugLevel) {
		t.Error("LOG_LEVEL not applied")
	}
}

func TestGlobalLogger(t *testing.T) {
	prev := globalLogger
	defer func() { globalLogger = prev }()

	globalLogger = nil
	if GetGlobalLogger() == nil {
		t.Fatal("expected default global logger to be created")
	}

	l, buf := newJSON(t, "info")
	SetGlobalLogger(l)
	WithComponent("httpclient").Info("ready")
	Warn("careful")
	WithContext(ContextWithRequestID(context.Background(), "r")).Info("ctx")

	lines := decodeLines(t, buf)
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d", len(lines))
	}
	if lines[0]["component"] != "httpclient" {
		t.Errorf("component missing: %v", lines[0])
	}

	Init(&Config{Level: "info", Format: FormatConsole, Output: "stderr"})
	if globalLogger == l {
		t.Error("Init should replace the global logger")
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Level != "info" || cfg.Format != FormatConsole || cfg.Output != "stdout" || !cfg.Timestamp {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"level", Config{Level: "verbose", Format: "json", Output: "stdout"}},
		{"format", Config{Level: "info", Format: "xml", Output: "stdout"}},
		{"output", Config{Level: "info", Format: "json", Output: "file"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestFieldHelpers(t *testing.T) {
	f := Fields("a", 1, 2, "skipped", "odd")
	if len(f) != 1 || f["a"] != 1 {
		t.Errorf("Fields = %v", f)
	}

	ef := ErrorFields("send", errors.New("nope"))
	if ef[FieldOperation] != "send" || ef[FieldError] != "nope" {
		t.Errorf("ErrorFields = %v", ef)
	}

	df := DurationFields("read", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("DurationFields = %v", df)
	}
}

func TestOutputWriter(t *testing.T) {
	if outputWriter("STDERR") != os.Stderr || outputWriter("") != os.Stdout {
		t.Error("unexpected output writer")
	}
}
