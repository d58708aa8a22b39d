package cli

import "fmt"

// Exit codes beyond the generic failure (1).
const (
	// ExitVulnerable is returned by `check --quiet` when alerts were found.
	ExitVulnerable = 1

	// ExitInterrupted follows the shell convention for SIGINT.
	ExitInterrupted = 130
)

// ExitError asks main to exit with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error { return e.Err }
