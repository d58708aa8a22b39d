package security

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/pastoralist/pkg/manifest"
	"github.com/matzehuels/pastoralist/pkg/version"
)

// ExtractPackages lists the declared dependencies of m, sorted by name.
func ExtractPackages(m *manifest.Manifest) []Package {
	declared := m.DeclaredDependencies()
	pkgs := make([]Package, 0, len(declared))
	for name, rng := range declared {
		pkgs = append(pkgs, Package{Name: name, Version: version.Clean(rng)})
	}
	slices.SortFunc(pkgs, func(a, b Package) int { return strings.Compare(a.Name, b.Name) })
	return pkgs
}

// Deduplicate collapses alerts with the same Key, keeping the most severe
// member of each group at the position its group first appeared.
func Deduplicate(alerts []Alert) []Alert {
	index := make(map[string]int, len(alerts))
	out := make([]Alert, 0, len(alerts))
	for _, a := range alerts {
		k := a.Key()
		if i, ok := index[k]; ok {
			if a.Severity.Rank() > out[i].Severity.Rank() {
				out[i] = a
			}
			continue
		}
		index[k] = len(out)
		out = append(out, a)
	}
	return out
}

// MatchAlerts returns the alerts whose vulnerable range covers the declared
// version of their package, with CurrentVersion set to that version.
// Alerts for undeclared packages, or with ranges that cannot be evaluated,
// do not match.
func MatchAlerts(alerts []Alert, declared map[string]string) []Alert {
	var out []Alert
	for _, a := range alerts {
		rng, ok := declared[a.PackageName]
		if !ok || !version.IsVulnerable(rng, a.VulnerableVersions) {
			continue
		}
		a.CurrentVersion = version.Clean(rng)
		out = append(out, a)
	}
	return out
}

// GenerateOverrides emits one override per alert that has a fix.
func GenerateOverrides(alerts []Alert) []Override {
	var out []Override
	for _, a := range alerts {
		if !a.FixAvailable || a.PatchedVersion == "" {
			continue
		}
		out = append(out, Override{
			PackageName: a.PackageName,
			FromVersion: a.CurrentVersion,
			ToVersion:   a.PatchedVersion,
			Reason:      fmt.Sprintf("Security fix: %s (%s)", a.Title, a.Severity),
			Severity:    a.Severity,
			Provider:    a.Provider,
		})
	}
	return out
}

// consolidate reduces overrides to one per package, pinning the highest
// target version. Order follows first appearance.
func consolidate(overrides []Override) []Override {
	index := make(map[string]int, len(overrides))
	var out []Override
	for _, o := range overrides {
		if i, ok := index[o.PackageName]; ok {
			if version.IsNewer(o.ToVersion, out[i].ToVersion) {
				out[i] = o
			}
			continue
		}
		index[o.PackageName] = len(out)
		out = append(out, o)
	}
	return out
}
