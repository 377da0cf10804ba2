package logging

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	l := slog.New(h)
	return NewSlogLogger(l), &buf
}

func TestSlogLogger_Levels_WriteExpectedOutput(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	tests := []struct {
		write func(ctx context.Context, msg string, args ...any)
		level string
		msg   string
		key   string
		val   any
	}{
		{log.Debug, "DEBUG", "token issued", "user", "alice"},
		{log.Info, "INFO", "tokens expired", "count", 3},
		{log.Warn, "WARN", "rehash failed", "user", "bob"},
		{log.Error, "ERROR", "open failed", "db", "safe.db"},
	}

	for _, tc := range tests {
		buf.Reset()
		tc.write(ctx, tc.msg, tc.key, tc.val)
		line := buf.String()

		if !strings.Contains(line, "level="+tc.level) {
			t.Fatalf("expected level=%s in %q", tc.level, line)
		}
		if !strings.Contains(line, fmt.Sprintf("msg=%q", tc.msg)) {
			t.Fatalf("expected msg=%q in %q", tc.msg, line)
		}
		if !strings.Contains(line, fmt.Sprintf("%s=%v", tc.key, tc.val)) {
			t.Fatalf("expected %s=%v in %q", tc.key, tc.val, line)
		}
	}
}

func TestSlogLogger_With_AddsAttributes(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	sweep := log.With("run_id", "r-1")
	sweep.Info(ctx, "sweep", "removed", 2)
	sweep.With("max_age", "1h").Debug(ctx, "sweep")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	for _, s := range []string{"level=INFO", "run_id=r-1", "removed=2"} {
		if !strings.Contains(lines[0], s) {
			t.Fatalf("expected %q in %q", s, lines[0])
		}
	}
	for _, s := range []string{"run_id=r-1", "max_age=1h"} {
		if !strings.Contains(lines[1], s) {
			t.Fatalf("expected %q in %q", s, lines[1])
		}
	}
	if strings.Contains(lines[0], "max_age") {
		t.Fatalf("child attributes leaked into parent: %q", lines[0])
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tc := range tests {
		if got := ParseLevel(tc.in); got != tc.want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewJSONLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSONLogger(&buf, "warn")
	ctx := context.Background()

	log.Info(ctx, "hidden")
	log.Warn(ctx, "tokens expired", "count", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line must be filtered at warn level:\n%s", out)
	}
	if !strings.Contains(out, `"msg":"tokens expired"`) || !strings.Contains(out, `"count":3`) {
		t.Fatalf("expected JSON warn line, got:\n%s", out)
	}
}

func TestNopLogger(t *testing.T) {
	var log Logger = NopLogger{}
	ctx := context.Background()
	log.Debug(ctx, "x")
	log.Info(ctx, "x")
	log.Warn(ctx, "x")
	log.Error(ctx, "x")
	if _, ok := log.With("k", "v").(NopLogger); !ok {
		t.Fatal("With on NopLogger must return a NopLogger")
	}
}
