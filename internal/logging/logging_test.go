package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		require.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewWithWriter(Config{Level: "info", Format: "json"}, &buf)
		logger.Debug("hidden")
		logger.Info("layout fetched", "fingerprint", "abc")

		require.NotContains(t, buf.String(), "hidden")
		require.Contains(t, buf.String(), `"fingerprint":"abc"`)
	})

	t.Run("text format", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(Config{Level: "debug"}, &buf).Debug("shown")
		require.Contains(t, buf.String(), "msg=shown")
	})
}

func TestContextCarrier(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{}, &buf)

	ctx := WithLogger(context.Background(), logger)
	require.Same(t, logger, FromContext(ctx))
	require.Same(t, slog.Default(), FromContext(context.Background()))
}
