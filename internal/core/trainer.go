package core

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DataDirEnv names the variable that tells the training command where the
// raw MNIST files are.
const DataDirEnv = "MNIST_RAW_DIR"

const (
	maxOutputTail = 2048
	killWaitDelay = time.Second
)

type Trainer interface {
	Train(ctx context.Context, dataDir string) error
}

// CommandTrainer runs an external program, typically a federated learning
// client, against the uploaded dataset.
type CommandTrainer struct {
	args []string
	dir  string
}

func NewCommandTrainer(command, workDir string) (*CommandTrainer, error) {
	args := strings.Fields(command)
	if len(args) == 0 {
		return nil, fmt.Errorf("training command is empty")
	}
	return &CommandTrainer{args: args, dir: workDir}, nil
}

func (t *CommandTrainer) Train(ctx context.Context, dataDir string) error {
	cmd := exec.CommandContext(ctx, t.args[0], t.args[1:]...)
	cmd.Dir = t.dir
	cmd.Env = append(os.Environ(), DataDirEnv+"="+dataDir)
	cmd.WaitDelay = killWaitDelay

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	slog.Info("starting training command", "command", t.args[0], "data_dir", dataDir)

	if err := cmd.Run(); err != nil {
		tail := output.String()
		if len(tail) > maxOutputTail {
			tail = tail[len(tail)-maxOutputTail:]
		}
		slog.Error("training command failed", "command", t.args[0], "error", err, "output", tail)
		return fmt.Errorf("training command failed: %w: %s", err, strings.TrimSpace(tail))
	}

	slog.Info("training command finished", "command", t.args[0])
	return nil
}
