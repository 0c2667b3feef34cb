package application

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/logging"
)

func TestDefaultLogger(t *testing.T) {
	t.Parallel()

	custom := slog.New(slog.NewTextHandler(io.Discard, nil))
	assert.Same(t, custom, defaultLogger(custom))
	assert.Same(t, slog.Default(), defaultLogger(nil))
}

func TestServiceLoggerPrefersRequestLogger(t *testing.T) {
	t.Parallel()

	var base, request bytes.Buffer
	baseLogger := slog.New(slog.NewJSONHandler(&base, nil))
	requestLogger := slog.New(slog.NewJSONHandler(&request, nil)).With("request_id", "req-42")

	serviceLogger(context.Background(), baseLogger, "AssetService", "Assign", "asset_id", "a-1").Info("assigned")
	require.NotZero(t, base.Len())

	ctx := logging.ContextWithLogger(context.Background(), requestLogger)
	serviceLogger(ctx, baseLogger, "AssetService", "Return").Info("returned")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(request.Bytes(), &entry))
	assert.Equal(t, "req-42", entry["request_id"])
	assert.Equal(t, "AssetService", entry["service"])
	assert.Equal(t, "Return", entry["operation"])

	var first map[string]any
	require.NoError(t, json.Unmarshal(base.Bytes(), &first))
	assert.Equal(t, "a-1", first["asset_id"])
}
