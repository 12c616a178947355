package logger

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSONHandlerByDefault(t *testing.T) {
	l, cleanup, err := New(Config{Level: "INFO", Pretty: false})
	require.NoError(t, err)
	defer cleanup()

	assert.NotNil(t, l)
	assert.True(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, l.Enabled(context.Background(), slog.LevelDebug))
}

func TestNew_FileOutput(t *testing.T) {
	dir := t.TempDir()
	l, cleanup, err := New(Config{
		Level:      "DEBUG",
		FileOutput: true,
		LogDir:     dir,
		MaxSizeMB:  1,
		MaxBackups: 1,
		MaxAgeDays: 1,
	})
	require.NoError(t, err)
	defer cleanup()

	l.Info("hello from test")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelInfo, parseLevel("info"))
	assert.Equal(t, slog.LevelWarn, parseLevel("WARNING"))
	assert.Equal(t, slog.LevelError, parseLevel("ERROR"))
	assert.Equal(t, slog.LevelWarn, parseLevel("nonsense"))
}

func TestFanoutHandler_WritesToAll(t *testing.T) {
	var bufA, bufB bytes.Buffer
	ha := slog.NewJSONHandler(&bufA, nil)
	hb := slog.NewJSONHandler(&bufB, nil)
	f := &fanoutHandler{handlers: []slog.Handler{ha, hb}}

	l := slog.New(f)
	l.Info("both sinks")

	assert.Contains(t, bufA.String(), "both sinks")
	assert.Contains(t, bufB.String(), "both sinks")
}

func TestStyledLogger_WithRequestID(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewJSONHandler(&buf, nil))
	sl := NewStyled(base).WithRequestID("req-123")

	sl.ProxyPicked(context.Background(), "http://1.2.3.4:8080")

	assert.Contains(t, buf.String(), "req-123")
	assert.Contains(t, buf.String(), "proxy picked")
}
