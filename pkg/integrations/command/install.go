package command

import (
	"context"
	"fmt"
	"time"
)

// InstallTimeout bounds a global npm install.
const InstallTimeout = 5 * time.Minute

// EnsureInstalled returns the path of bin, installing npmPackage globally
// with npm when bin is not on PATH.
func EnsureInstalled(ctx context.Context, r Runner, bin, npmPackage string) (string, error) {
	if path, err := r.LookPath(bin); err == nil {
		return path, nil
	}
	if _, err := r.LookPath("npm"); err != nil {
		return "", fmt.Errorf("%s not installed and npm not found: %w", bin, err)
	}
	install := Cmd{Name: "npm", Args: []string{"install", "-g", npmPackage}, Timeout: InstallTimeout}
	if res, err := r.Run(ctx, install); err != nil {
		return "", fmt.Errorf("%s: exit %d: %w", install, res.ExitCode, err)
	}
	path, err := r.LookPath(bin)
	if err != nil {
		return "", fmt.Errorf("%s still missing after install: %w", bin, err)
	}
	return path, nil
}
