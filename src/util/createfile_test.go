package util

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutput(t *testing.T) {
	w, err := Output("-")
	require.NoError(t, err)
	assert.NoError(t, w.Close())

	name := filepath.Join(t.TempDir(), "out.tar")
	w, err = Output(name)
	require.NoError(t, err)
	_, err = w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)

	_, err = Output(name)
	assert.ErrorIs(t, err, os.ErrExist)
}

func TestLogger(t *testing.T) {
	ctx := context.Background()
	assert.True(t, Logger(true).Enabled(ctx, slog.LevelDebug))
	assert.False(t, Logger(false).Enabled(ctx, slog.LevelDebug))
}
