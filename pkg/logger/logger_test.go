package logger

import (
	"context"
	"log/slog"
	"testing"
)

func TestLevelReachesStdlibLogger(t *testing.T) {
	ctx := context.Background()
	l := New("warn", "json")

	h := l.Slog().Handler()
	if h.Enabled(ctx, slog.LevelInfo) {
		t.Fatal("info must be filtered at warn level")
	}
	if !h.Enabled(ctx, slog.LevelError) {
		t.Fatal("error must pass at warn level")
	}
	if slog.NewLogLogger(h, slog.LevelError) == nil {
		t.Fatal("expected a log.Logger bridge")
	}
}

func TestWithKeepsLevel(t *testing.T) {
	l := New("error", "").With("job", "x")
	if l.Slog().Enabled(context.Background(), slog.LevelWarn) {
		t.Fatal("child logger must keep the parent level")
	}
}
