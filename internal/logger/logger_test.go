package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
)

func TestNew_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	l, flush := New(config.Log{Level: "debug", JSON: true, File: path, MaxSizeMB: 1})
	l.Info("registration admitted")
	flush()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), "registration admitted")
	require.Contains(t, string(data), `"level":"info"`)
}

func TestNew_BadLevelFallsBackToInfo(t *testing.T) {
	l, flush := New(config.Log{Level: "loud"})
	defer flush()
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
}
