// cmd/derivtutor/main.go - derivative checker CLI and HTTP server
//
// Usage:
//
//	derivtutor serve --config derivtutor.yaml
//	derivtutor check --f 'x**2*sin(x)' --g '2*x*sin(x) + x**2*cos(x)'
//	derivtutor check-images --f-image f.png --g-image g.png
//
// Exit codes for check and check-images: 0 correct, 1 incorrect, 2 error.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	exitCorrect   = 0
	exitIncorrect = 1
	exitError     = 2
)

// exitCodeError carries a process exit code out of a command.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitCodeError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitCorrect
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		return ec.code
	}
	return exitError
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "derivtutor",
		Short:         "Check a student's derivative against a function",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newCheckCmd(), newCheckImagesCmd())
	return root
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		var ec *exitCodeError
		if !errors.As(err, &ec) || ec.err != nil {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
	}
	os.Exit(exitCode(err))
}
