// Package workdir scopes process-wide working-directory changes to an
// acquire/release pair so a changed directory never leaks past a task.
package workdir

import (
	"fmt"
	"os"
)

// Enter creates dir if needed and makes it the process working directory.
// The returned restore func changes back to the previous directory and
// must be called on every exit path, normal or error.
func Enter(dir string) (restore func() error, err error) {
	prev, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("getting working directory: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating directory %s: %w", dir, err)
	}

	if err := os.Chdir(dir); err != nil {
		return nil, fmt.Errorf("entering directory %s: %w", dir, err)
	}

	return func() error {
		if err := os.Chdir(prev); err != nil {
			return fmt.Errorf("restoring working directory %s: %w", prev, err)
		}
		return nil
	}, nil
}
