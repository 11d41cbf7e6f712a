// Package runcmd runs shell command lines synchronously, capturing both
// output streams for diagnostics.
package runcmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Result holds everything captured from one command invocation.
type Result struct {
	// Command is the full shell command line that was run.
	Command string
	// ExitCode is the command's exit status. 0 means success.
	ExitCode int
	Stdout   string
	Stderr   string
}

// Succeeded reports whether the command exited with status 0.
func (r *Result) Succeeded() bool {
	return r.ExitCode == 0
}

// Shell runs command through `sh -c` in the current working directory,
// blocking until it exits and consuming both output streams. A non-zero
// exit is not an error here; callers inspect Result.ExitCode and decide.
// An error is returned only when the command could not be run at all.
func Shell(ctx context.Context, command string) (*Result, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("empty command")
	}

	//nolint:gosec // command lines are task-configured, not untrusted input
	cmd := exec.CommandContext(ctx, "sh", "-c", command)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := &Result{
		Command: command,
		Stdout:  stdout.String(),
		Stderr:  stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		// Non-exit error (e.g. sh not found, context canceled before start)
		return nil, fmt.Errorf("running %q: %w", command, err)
	}

	return res, nil
}
