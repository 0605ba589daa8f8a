package logger

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies mapping from strings to zapcore.Level and handling of unknown values.
func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]zapcore.Level{
		"debug":   zapcore.DebugLevel,
		"info":    zapcore.InfoLevel,
		"":        zapcore.InfoLevel,
		"WARN":    zapcore.WarnLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
		"fatal":   zapcore.FatalLevel,
	}
	for s, lvl := range cases {
		got, ok := ParseLogLevel(s)
		require.True(t, ok, s)
		require.Equal(t, lvl, got)
	}

	_, ok := ParseLogLevel("unknown")
	require.False(t, ok)
}

// TestContextHelpers ensures the context logger carries name and fields.
func TestContextHelpers(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	ctx := ToContext(context.Background(), NewWithWriter(&buf, zapcore.DebugLevel))
	ctx = WithName(ctx, "dispatch")
	ctx = WithKV(ctx, "device", "nvr-1")

	InfoKV(ctx, "Command sent", "attempt", 3)

	out := buf.String()
	require.Contains(t, out, "dispatch")
	require.Contains(t, out, "Command sent")
	require.Contains(t, out, "nvr-1")
	require.Contains(t, out, "attempt")
}

// TestFromContext_FallsBackToGlobal ensures a bare context yields the global logger.
func TestFromContext_FallsBackToGlobal(t *testing.T) {
	t.Parallel()

	require.Same(t, Logger(), FromContext(context.Background()))
}

// TestWithLevel_FiltersBelowThreshold verifies the level-wrapping option.
func TestWithLevel_FiltersBelowThreshold(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	l := NewWithWriter(&buf, zapcore.DebugLevel, WithLevel(zapcore.WarnLevel))
	l.Info("quiet")
	l.Warn("loud")

	require.NotContains(t, buf.String(), "quiet")
	require.Contains(t, buf.String(), "loud")
}
