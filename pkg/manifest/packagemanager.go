package manifest

import (
	"os"
	"path/filepath"
	"strings"
)

// Package managers with distinct override fields.
const (
	NPM  = "npm"
	Yarn = "yarn"
	PNPM = "pnpm"
	Bun  = "bun"
)

var lockfiles = []struct{ file, manager string }{
	{"pnpm-lock.yaml", PNPM},
	{"yarn.lock", Yarn},
	{"bun.lockb", Bun},
	{"bun.lock", Bun},
	{"package-lock.json", NPM},
}

// DetectPackageManager picks the package manager for the project in dir.
// The packageManager field of m wins, then lockfiles; npm is the default.
func DetectPackageManager(dir string, m *Manifest) string {
	if m != nil && m.PackageManager != "" {
		name, _, _ := strings.Cut(m.PackageManager, "@")
		switch name {
		case NPM, Yarn, PNPM, Bun:
			return name
		}
	}
	for _, lf := range lockfiles {
		if _, err := os.Stat(filepath.Join(dir, lf.file)); err == nil {
			return lf.manager
		}
	}
	return NPM
}

// OverrideField returns the path of the override map for a package manager:
// ["resolutions"] for yarn, ["pnpm", "overrides"] for pnpm, ["overrides"]
// otherwise.
func OverrideField(manager string) []string {
	switch manager {
	case Yarn:
		return []string{"resolutions"}
	case PNPM:
		return []string{"pnpm", "overrides"}
	default:
		return []string{"overrides"}
	}
}
