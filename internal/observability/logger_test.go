package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litreview/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{"panic", zerolog.PanicLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "litreview.log")

	logger, closer, err := NewLogger(config.LoggingConfig{
		Level:  "debug",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)

	logger.Debug().Str("paper_id", "p1").Msg("downloaded")
	logger.Trace().Msg("hidden")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)

	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "debug", entry["level"])
	assert.Equal(t, "p1", entry["paper_id"])
	assert.Equal(t, "downloaded", entry["message"])
	assert.Contains(t, entry, "time")
}

func TestNewLogger_Streams(t *testing.T) {
	for _, out := range []string{"stdout", "stderr", ""} {
		logger, closer, err := NewLogger(config.LoggingConfig{Level: "warn", Format: "console", Output: out})
		require.NoError(t, err)
		assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
		assert.NoError(t, closer.Close())
	}
}

func TestNewLogger_BadPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	_, _, err := NewLogger(config.LoggingConfig{Level: "info", Format: "json", Output: filepath.Join(blocker, "sub", "log.txt")})
	require.Error(t, err)
}

func TestContextHelpers(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	logger := WithPaperContext(WithRunContext(base, "run-1", "graph neural networks"), "p9", "A Paper")
	logger.Info().Msg("hello")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "graph neural networks", entry["topic"])
	assert.Equal(t, "p9", entry["paper_id"])
	assert.Equal(t, "A Paper", entry["title"])
}

func TestNewTracing(t *testing.T) {
	t.Run("disabled is a no-op", func(t *testing.T) {
		tr, err := NewTracing(config.TracingConfig{Enabled: false})
		require.NoError(t, err)
		assert.False(t, tr.Enabled())
		_, span := tr.Tracer().Start(context.Background(), "noop")
		span.End()
		assert.NoError(t, tr.Shutdown(context.Background()))
	})

	t.Run("exports spans to file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "traces.json")
		tr, err := NewTracing(config.TracingConfig{
			Enabled:     true,
			ServiceName: "litreview-test",
			Output:      path,
			SampleRatio: 1,
		})
		require.NoError(t, err)
		assert.True(t, tr.Enabled())

		_, span := tr.Tracer().Start(context.Background(), "planner")
		span.End()
		require.NoError(t, tr.Shutdown(context.Background()))

		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), "planner")
		assert.Contains(t, string(data), "litreview-test")
	})
}
