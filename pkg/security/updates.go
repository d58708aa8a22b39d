package security

import (
	"fmt"
	"slices"
	"strings"

	"github.com/matzehuels/pastoralist/pkg/manifest"
	"github.com/matzehuels/pastoralist/pkg/version"
)

// FindOverrideUpdates checks the existing overrides of m that the appendix
// ledger marks as security fixes. For each, it reports the newest patched
// version among alerts that is strictly newer than the pinned one.
func FindOverrideUpdates(m *manifest.Manifest, alerts []Alert) []OverrideUpdate {
	appendix := m.Appendix()
	existing := m.ExistingOverrides()

	names := make([]string, 0, len(existing))
	for name := range existing {
		names = append(names, name)
	}
	slices.Sort(names)

	var out []OverrideUpdate
	for _, name := range names {
		pinned := existing[name]
		entry, ok := appendix[manifest.AppendixKey(name, pinned)]
		if !ok || !isSecurityEntry(entry) {
			continue
		}

		var best *Alert
		for i := range alerts {
			a := &alerts[i]
			if a.PackageName != name || a.PatchedVersion == "" {
				continue
			}
			if !version.IsNewer(a.PatchedVersion, pinned) {
				continue
			}
			if best == nil || version.IsNewer(a.PatchedVersion, best.PatchedVersion) {
				best = a
			}
		}
		if best == nil {
			continue
		}
		out = append(out, OverrideUpdate{
			PackageName:     name,
			CurrentOverride: pinned,
			NewerVersion:    best.PatchedVersion,
			Reason:          fmt.Sprintf("Newer security fix: %s (%s)", best.Title, best.Severity),
			AddedDate:       entry.Ledger.AddedDate,
		})
	}
	return out
}

func isSecurityEntry(e manifest.AppendixEntry) bool {
	if e.Ledger == nil {
		return false
	}
	return e.Ledger.SecurityChecked || strings.HasPrefix(e.Ledger.Reason, "Security fix")
}
