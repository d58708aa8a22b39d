package command

import (
	"context"
	"fmt"
	"os/exec"
	"sync"
)

// Response is a scripted outcome for [Fake].
type Response struct {
	Result Result
	Err    error
	// Installs names a binary that LookPath finds once this command ran.
	Installs string
}

// Fake is a scripted Runner for tests. Commands are matched on their full
// command line (Cmd.String); unmatched commands fail with exit code 127.
type Fake struct {
	// Responses maps a command line to its outcome.
	Responses map[string]Response
	// Installed lists the binaries LookPath finds.
	Installed map[string]bool

	mu    sync.Mutex
	calls []Cmd
}

// LookPath succeeds for binaries in Installed.
func (f *Fake) LookPath(name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Installed[name] {
		return "/usr/local/bin/" + name, nil
	}
	return "", fmt.Errorf("%s: %w", name, exec.ErrNotFound)
}

// Run records c and returns its scripted response.
func (f *Fake) Run(_ context.Context, c Cmd) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	resp, ok := f.Responses[c.String()]
	if !ok {
		return Result{ExitCode: ExitNotFound}, fmt.Errorf("%s: %w", c.Name, exec.ErrNotFound)
	}
	if resp.Installs != "" && resp.Err == nil {
		if f.Installed == nil {
			f.Installed = make(map[string]bool)
		}
		f.Installed[resp.Installs] = true
	}
	return resp.Result, resp.Err
}

// Calls returns the commands run so far.
func (f *Fake) Calls() []Cmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Cmd(nil), f.calls...)
}
