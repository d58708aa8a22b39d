package cli

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestExitError(t *testing.T) {
	quiet := &ExitError{Code: ExitVulnerable}
	if quiet.Error() != "exit status 1" {
		t.Errorf("Error() = %q", quiet.Error())
	}

	cause := errors.New("boom")
	wrapped := &ExitError{Code: 2, Err: cause}
	if wrapped.Error() != "boom" || !errors.Is(wrapped, cause) {
		t.Errorf("wrapped ExitError = %v", wrapped)
	}
}

func TestRootCommandRegistersSubcommands(t *testing.T) {
	c := New(&bytes.Buffer{}, log.InfoLevel)
	root := c.RootCommand()

	want := []string{"check", "rollback", "backups", "providers", "cache", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if !strings.HasPrefix(root.Use, "pastoralist") {
		t.Errorf("Use = %q", root.Use)
	}
}
