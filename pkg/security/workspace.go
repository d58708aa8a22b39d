package security

import (
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/manifest"
)

const manifestName = "package.json"

// FindWorkspaceManifests resolves glob patterns relative to root into
// package.json paths. A pattern may name manifests directly
// ("packages/*/package.json") or the directories holding them
// ("packages/*"). Anything under node_modules is ignored.
func FindWorkspaceManifests(root string, patterns []string) ([]string, error) {
	fsys := os.DirFS(root)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range patterns {
		if err := pserrors.ValidateGlob(pattern); err != nil {
			return nil, err
		}
		if path.Base(pattern) != manifestName {
			pattern = path.Join(pattern, manifestName)
		}
		matches, err := doublestar.Glob(fsys, pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, pserrors.Wrap(pserrors.ErrCodeInvalidInput, err, "glob %q", pattern)
		}
		for _, m := range matches {
			if inNodeModules(m) || seen[m] {
				continue
			}
			seen[m] = true
			out = append(out, filepath.Join(root, filepath.FromSlash(m)))
		}
	}
	slices.Sort(out)
	return out, nil
}

func inNodeModules(p string) bool {
	return slices.Contains(strings.Split(p, "/"), "node_modules")
}

// scanWorkspaces matches alerts against every workspace manifest. Manifests
// that cannot be read or parsed are logged at debug level and skipped.
// Results are deduplicated by alert key, so a package with several advisories
// keeps one alert per advisory.
func scanWorkspaces(root string, patterns []string, alerts []Alert, logger *log.Logger) ([]Alert, error) {
	paths, err := FindWorkspaceManifests(root, patterns)
	if err != nil {
		return nil, err
	}
	var found []Alert
	for _, p := range paths {
		m, err := manifest.Read(p)
		if err != nil {
			logger.Debug("skipping workspace manifest", "path", p, "err", err)
			continue
		}
		found = append(found, MatchAlerts(alerts, m.DeclaredDependencies())...)
	}
	found = Deduplicate(found)
	logger.Debug("scanned workspaces", "manifests", len(paths), "vulnerable", len(found))
	return found, nil
}
