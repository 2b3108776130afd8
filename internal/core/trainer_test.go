package core_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ducphuonguit/federated-learning/internal/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeScript(t *testing.T, body string) string {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "train.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755))
	return path
}

func TestCommandTrainer(t *testing.T) {
	t.Run("PassesDataDir", func(t *testing.T) {
		out := filepath.Join(t.TempDir(), "out.txt")
		script := writeScript(t, `echo "$MNIST_RAW_DIR" > "$1"`)

		trainer, err := core.NewCommandTrainer(script+" "+out, "")
		require.NoError(t, err)
		require.NoError(t, trainer.Train(context.Background(), "/data/raw"))

		data, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, "/data/raw", strings.TrimSpace(string(data)))
	})

	t.Run("Failure", func(t *testing.T) {
		script := writeScript(t, "echo 'cannot reach server' >&2\nexit 3")

		trainer, err := core.NewCommandTrainer(script, "")
		require.NoError(t, err)

		err = trainer.Train(context.Background(), t.TempDir())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "cannot reach server")
	})

	t.Run("Canceled", func(t *testing.T) {
		script := writeScript(t, "exec sleep 10")

		trainer, err := core.NewCommandTrainer(script, "")
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		start := time.Now()
		assert.Error(t, trainer.Train(ctx, t.TempDir()))
		assert.Less(t, time.Since(start), 5*time.Second)
	})

	t.Run("EmptyCommand", func(t *testing.T) {
		_, err := core.NewCommandTrainer("   ", "")
		assert.Error(t, err)
	})
}
