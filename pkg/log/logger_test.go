package log

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextReturnsAttachedLogger(t *testing.T) {
	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, nil)).With("workflow_id", "wf-1")
	ctx := IntoContext(context.Background(), logger)

	FromContext(ctx).Info("pipeline step")

	require.NotEmpty(t, buf.String())
	assert.Contains(t, buf.String(), "pipeline step")
	assert.Contains(t, buf.String(), "workflow_id=wf-1")
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	logger := FromContext(context.Background())

	require.NotNil(t, logger)
	assert.Same(t, slog.Default(), logger)
}
