package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"critical", LevelCritical, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseLevel(tt.name)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLogger_ConsoleLevel(t *testing.T) {
	var console bytes.Buffer
	logger := New(&console, slog.LevelInfo)

	logger.Debug("hidden detail")
	logger.Info("running test", "test", "constrained-bw-tcp1234")

	assert.NotContains(t, console.String(), "hidden detail")
	assert.Contains(t, console.String(), "running test")
	assert.Contains(t, console.String(), "constrained-bw-tcp1234")
}

func TestLogger_AttachFile(t *testing.T) {
	var console bytes.Buffer
	logger := New(&console, slog.LevelDebug)
	derived := logger.With("family", "static")

	logger.Info("before transcript")

	path := filepath.Join(t.TempDir(), "test_results.txt")
	require.NoError(t, logger.AttachFile(path))

	logger.Debug("debug is console only")
	derived.Info("validating bandwidth")
	Critical(logger.Logger, "ERROR and/or CRITICAL logs need attention")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	transcript := string(data)

	assert.NotContains(t, transcript, "before transcript")
	assert.NotContains(t, transcript, "debug is console only")
	assert.Contains(t, transcript, "validating bandwidth")
	assert.Contains(t, transcript, "family=static")
	assert.Contains(t, transcript, "level=CRITICAL")

	assert.Contains(t, console.String(), "debug is console only")
	assert.Contains(t, console.String(), "before transcript")
}

func TestLogger_AttachFileMissingDirectory(t *testing.T) {
	logger := New(&bytes.Buffer{}, slog.LevelInfo)
	err := logger.AttachFile(filepath.Join(t.TempDir(), "absent", "test_results.txt"))
	assert.Error(t, err)
}
