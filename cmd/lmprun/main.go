package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/potflow/lmprun/internal/operr"
)

// Exit codes for different failure modes
const (
	ExitSuccess   = 0 // Run completed and outputs were collected
	ExitRetryable = 1 // Engine failed in a way the scheduler may retry
	ExitError     = 2 // Configuration or runtime error
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)

		// Check error kind to determine exit code
		var transientErr *operr.TransientError
		if errors.As(err, &transientErr) {
			os.Exit(ExitRetryable)
		}

		// All other errors are configuration/runtime errors
		os.Exit(ExitError)
	}
}
