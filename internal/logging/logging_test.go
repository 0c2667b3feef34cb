package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHonoursLevelAndFormat(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := New(&buf, "warn", "json")
	logger.Info("dropped")
	logger.Warn("kept", "asset_id", "a-1")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "a-1", entry["asset_id"])

	buf.Reset()
	New(&buf, "", "TEXT").Info("plain")
	assert.Contains(t, buf.String(), "msg=plain")
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
	}
	for input, want := range cases {
		assert.Equal(t, want, ParseLevel(input), input)
	}
}

func TestContextLogger(t *testing.T) {
	t.Parallel()

	assert.Nil(t, FromContext(context.Background()))

	logger := slog.Default().With("request_id", "r-1")
	ctx := ContextWithLogger(context.Background(), logger)
	assert.Same(t, logger, FromContext(ctx))

	assert.Equal(t, context.Background(), ContextWithLogger(context.Background(), nil))
}

func TestCronLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := CronLogger(New(&buf, "info", "json"))
	logger.Info("wake", "now", "10:00")
	assert.Empty(t, buf.String(), "cron info goes to debug")

	logger.Error(errors.New("boom"), "panic", "job", "drain")
	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "panic", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "drain", entry["job"])
	assert.Equal(t, "cron", entry["component"])
}
