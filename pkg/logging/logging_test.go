package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHandlerText(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, "warn", "text")
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Info("hidden")
	logger.Warn("pod address cleared", "namespace", "ns-user1")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "namespace=ns-user1")
}

func TestNewHandlerJSON(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, "debug", "json")
	require.NoError(t, err)

	slog.New(h).Debug("resolved backend", "tenantID", "my-app", "port", 8080)

	var line map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "resolved backend", line["msg"])
	assert.Equal(t, "my-app", line["tenantID"])
	assert.Equal(t, float64(8080), line["port"])
}

func TestNewHandlerJSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	h, err := NewHandler(&buf, "error", "json")
	require.NoError(t, err)

	logger := slog.New(h)
	logger.Warn("dropped")
	assert.Zero(t, buf.Len())

	logger.Error("kept")
	assert.True(t, strings.Contains(buf.String(), "kept"))
}

func TestNewHandlerInvalid(t *testing.T) {
	_, err := NewHandler(&bytes.Buffer{}, "verbose", "text")
	assert.ErrorContains(t, err, "invalid log level")

	_, err = NewHandler(&bytes.Buffer{}, "info", "xml")
	assert.ErrorContains(t, err, "invalid log format")
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"":        slog.LevelInfo,
		"info":    slog.LevelInfo,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"Error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
}
