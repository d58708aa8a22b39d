// Package command runs external tools (gh, git, snyk, socket, npm) on behalf
// of the CLI-backed providers.
//
// Providers depend on the [Runner] interface so tests can script tool output
// with [Fake] instead of spawning processes.
package command

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Exit codes reported for failures that never produced a process exit status.
const (
	ExitTimeout  = 124
	ExitNotFound = 127
)

// Cmd describes one invocation.
type Cmd struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string      // extra KEY=VALUE pairs appended to the current environment
	Timeout time.Duration // zero means no timeout beyond ctx
}

// String renders the command line, for logs.
func (c Cmd) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the captured output of a finished command.
type Result struct {
	Stdout   string
	Stderr   string
	Duration time.Duration
	ExitCode int
}

// Runner executes commands and locates binaries.
type Runner interface {
	Run(ctx context.Context, cmd Cmd) (Result, error)
	LookPath(name string) (string, error)
}

// Exec is the Runner backed by os/exec.
type Exec struct{}

// NewExec returns the os/exec Runner.
func NewExec() Runner { return Exec{} }

// LookPath reports where name is installed.
func (Exec) LookPath(name string) (string, error) { return exec.LookPath(name) }

// Run executes cmd, capturing stdout and stderr. A nonzero exit returns both
// the captured Result and the error, since several tools report findings
// through their exit status. Timeouts report ExitTimeout and missing binaries
// ExitNotFound.
func (Exec) Run(ctx context.Context, c Cmd) (Result, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.ExitCode = ExitTimeout
	case errors.Is(err, exec.ErrNotFound):
		res.ExitCode = ExitNotFound
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = 1
	}
	return res, err
}
