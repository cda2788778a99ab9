// Package runner executes queued workflow runs: it drives each run's stages
// in order, records outcomes, and uploads publish artifacts.
package runner

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Default and max timeout for stage steps.
const (
	DefaultStepTimeout = 30 * time.Minute
	MaxStepTimeout     = 2 * time.Hour
)

// StepResult holds the output of running a single step command.
type StepResult struct {
	Output string
	Err    error
}

// StepExecutor runs one step command. Implementations other than
// ShellExecutor exist only for tests.
type StepExecutor interface {
	Execute(ctx context.Context, command string, timeoutSec int, env map[string]string) StepResult
}

// ShellExecutor runs step commands via "sh -c" in a working directory.
type ShellExecutor struct {
	// Dir is the working directory for every step. Empty means the
	// process working directory.
	Dir string
}

// Execute runs a shell command with the given timeout and environment.
func (e *ShellExecutor) Execute(ctx context.Context, command string, timeoutSec int, env map[string]string) StepResult {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = DefaultStepTimeout
	}
	if timeout > MaxStepTimeout {
		timeout = MaxStepTimeout
	}

	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(stepCtx, "sh", "-c", command) //nolint:gosec // step commands come from operator-provided workflow files
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if e.Dir != "" {
		if info, err := os.Stat(e.Dir); err == nil && info.IsDir() {
			cmd.Dir = e.Dir
		}
	}

	// Inherit process environment and overlay run-specific vars.
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	err := cmd.Run()
	output := strings.TrimSpace(stdout.String())
	if output == "" {
		output = strings.TrimSpace(stderr.String())
	}

	return StepResult{Output: output, Err: err}
}
