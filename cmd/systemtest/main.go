// Command systemtest runs the nmeta full regression suite against a lab
// environment prepared with Ansible.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/viper"

	harnesserrors "github.com/thc1006/nmeta-systemtest/pkg/errors"
)

// Version information (set by build)
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}

// execute runs the command tree and maps the outcome to an exit status
func execute(args []string, stdout, stderr io.Writer) int {
	root := newRootCommand(viper.New())
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.Execute()
	if err != nil {
		var logged *loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
	}
	return harnesserrors.ExitCode(err)
}

// loggedError marks an error that already reached the run log
type loggedError struct {
	err error
}

func (e *loggedError) Error() string { return e.err.Error() }

func (e *loggedError) Unwrap() error { return e.err }
