package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warning ", slog.LevelWarn},
		{"CRITICAL", slog.LevelError},
		{"", slog.LevelInfo},
		{"nonsense", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestPrettyHandlerWritesAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := NewPrettyHandler(&buf, slog.LevelInfo, time.RFC3339)
	h.color = false

	log := slog.New(h).With("task", "abc")
	log.Info("download finished", "bytes", 42)
	log.Debug("hidden")

	out := buf.String()
	assert.Contains(t, out, "[AETHER]")
	assert.Contains(t, out, "download finished")
	assert.Contains(t, out, "task=abc")
	assert.Contains(t, out, "bytes=42")
	assert.NotContains(t, out, "hidden")
	assert.NotContains(t, out, Cyan)
}

func TestFanoutRespectsLevels(t *testing.T) {
	var info, errs bytes.Buffer
	a := NewPrettyHandler(&info, slog.LevelInfo, "")
	b := NewPrettyHandler(&errs, slog.LevelError, "")
	f := fanout{a, b}

	assert.True(t, f.Enabled(context.Background(), slog.LevelInfo))

	log := slog.New(f)
	log.Info("only info")
	log.Error("both")

	assert.Contains(t, info.String(), "only info")
	assert.Contains(t, info.String(), "both")
	assert.NotContains(t, errs.String(), "only info")
	assert.Contains(t, errs.String(), "both")
}
