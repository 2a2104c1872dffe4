package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func newTestLogger(t *testing.T) (*SlogLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	h := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	return NewSlogLogger(slog.New(h)), &buf
}

func TestSlogLoggerLevels(t *testing.T) {
	log, buf := newTestLogger(t)
	ctx := context.Background()

	log.Debug(ctx, "debug line", "k", "v")
	log.Info(ctx, "info line")
	log.Warn(ctx, "warn line")
	log.Error(ctx, "error line")

	out := buf.String()
	for _, want := range []string{"debug line", "info line", "warn line", "error line", "k=v"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSlogLoggerWith(t *testing.T) {
	log, buf := newTestLogger(t)

	child := log.With("user", "boris")
	child.Info(context.Background(), "hello")

	if !strings.Contains(buf.String(), "user=boris") {
		t.Fatalf("child logger dropped bound attributes:\n%s", buf.String())
	}
}

func TestNopLoggerIsSafe(t *testing.T) {
	var log Logger = Nop{}
	log.With("k", "v").Info(context.Background(), "nothing happens")
}
