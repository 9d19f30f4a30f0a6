package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.DebugLevel, parseLevel("debug"))
	assert.Equal(t, zapcore.WarnLevel, parseLevel("warn"))
	assert.Equal(t, zapcore.ErrorLevel, parseLevel("error"))
	assert.Equal(t, zapcore.InfoLevel, parseLevel("verbose"))
}

func TestBuildConfig(t *testing.T) {
	cfg := buildConfig(zapcore.WarnLevel, "json")
	assert.Equal(t, "timestamp", cfg.EncoderConfig.TimeKey)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.Equal(t, zapcore.WarnLevel, cfg.Level.Level())

	dev := buildConfig(zapcore.DebugLevel, "console")
	assert.True(t, dev.Development)
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger("debug", "console", "slideboard-measure")
	require.NoError(t, err)
	require.NotNil(t, l)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel))
	assert.Len(t, TaskFields("t", "k", "u"), 3)
}
