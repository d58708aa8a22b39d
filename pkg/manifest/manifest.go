// Package manifest reads and rewrites package.json files.
//
// Reading decodes the fields the security check needs (dependency maps,
// override maps and the pastoralist appendix ledger). Writing goes through
// [ApplyOverrides], which locks the file, takes a verified backup, and
// rewrites only the override field and the appendix while keeping every
// other key, and the top-level key order, as it was.
package manifest

import (
	"encoding/json"
	"os"
	"path/filepath"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
)

// Manifest is the subset of package.json pastoralist works with.
type Manifest struct {
	Name             string            `json:"name,omitempty"`
	Version          string            `json:"version,omitempty"`
	PackageManager   string            `json:"packageManager,omitempty"`
	Dependencies     map[string]string `json:"dependencies,omitempty"`
	DevDependencies  map[string]string `json:"devDependencies,omitempty"`
	PeerDependencies map[string]string `json:"peerDependencies,omitempty"`
	Overrides        StringMap         `json:"overrides,omitempty"`
	Resolutions      StringMap         `json:"resolutions,omitempty"`
	Pnpm             *Pnpm             `json:"pnpm,omitempty"`
	Pastoralist      *Pastoralist      `json:"pastoralist,omitempty"`

	// Path is the file the manifest was read from, if any.
	Path string `json:"-"`
}

// Pnpm holds the pnpm-specific section of package.json.
type Pnpm struct {
	Overrides StringMap `json:"overrides,omitempty"`
}

// Pastoralist holds pastoralist's own bookkeeping section.
type Pastoralist struct {
	Appendix map[string]AppendixEntry `json:"appendix,omitempty"`
}

// AppendixEntry records why an override exists. It is keyed by
// "name@version" of the pinned package.
type AppendixEntry struct {
	// Dependents maps a dependent package to the "name@range" it requested.
	Dependents map[string]string `json:"dependents,omitempty"`
	Ledger     *Ledger           `json:"ledger,omitempty"`
}

// Ledger is the audit metadata of an override.
type Ledger struct {
	AddedDate        string `json:"addedDate,omitempty"`
	Reason           string `json:"reason,omitempty"`
	SecurityChecked  bool   `json:"securityChecked,omitempty"`
	SecurityProvider string `json:"securityProvider,omitempty"`
}

// StringMap is a name to version map. Nested override objects, which npm
// allows, are skipped when decoding; they survive rewrites untouched because
// writes merge into the raw document.
type StringMap map[string]string

// UnmarshalJSON keeps only string-valued entries.
func (m *StringMap) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(StringMap, len(raw))
	for k, v := range raw {
		var s string
		if json.Unmarshal(v, &s) == nil {
			out[k] = s
		}
	}
	*m = out
	return nil
}

// Read parses the package.json at path.
func Read(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pserrors.Wrap(pserrors.ErrCodeFileNotFound, err, "manifest %s", path)
		}
		return nil, pserrors.Wrap(pserrors.ErrCodeInvalidManifest, err, "read %s", path)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeInvalidManifest, err, "parse %s", path)
	}
	m.Path = path
	return m, nil
}

// Parse decodes package.json content.
func Parse(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// Dir returns the directory holding the manifest, or "." if it was not read
// from disk.
func (m *Manifest) Dir() string {
	if m.Path == "" {
		return "."
	}
	return filepath.Dir(m.Path)
}

// DeclaredDependencies merges dependencies, devDependencies and
// peerDependencies. Earlier sections win on duplicate names.
func (m *Manifest) DeclaredDependencies() map[string]string {
	out := make(map[string]string, len(m.Dependencies)+len(m.DevDependencies)+len(m.PeerDependencies))
	for _, section := range []map[string]string{m.PeerDependencies, m.DevDependencies, m.Dependencies} {
		for name, v := range section {
			out[name] = v
		}
	}
	return out
}

// ExistingOverrides merges overrides, resolutions and pnpm.overrides.
func (m *Manifest) ExistingOverrides() map[string]string {
	out := make(map[string]string)
	var pnpm StringMap
	if m.Pnpm != nil {
		pnpm = m.Pnpm.Overrides
	}
	for _, section := range []StringMap{pnpm, m.Resolutions, m.Overrides} {
		for name, v := range section {
			out[name] = v
		}
	}
	return out
}

// Appendix returns the appendix ledger, never nil.
func (m *Manifest) Appendix() map[string]AppendixEntry {
	if m.Pastoralist == nil || m.Pastoralist.Appendix == nil {
		return map[string]AppendixEntry{}
	}
	return m.Pastoralist.Appendix
}

// AppendixKey returns the ledger key for a pinned package.
func AppendixKey(name, version string) string {
	return name + "@" + version
}

// MergeAppendix returns existing with additions merged in. Keys are never
// dropped. For keys present in both, dependents are unioned and a non-nil
// addition ledger replaces the old one.
func MergeAppendix(existing, additions map[string]AppendixEntry) map[string]AppendixEntry {
	out := make(map[string]AppendixEntry, len(existing)+len(additions))
	for k, v := range existing {
		out[k] = v
	}
	for k, add := range additions {
		cur, ok := out[k]
		if !ok {
			out[k] = add
			continue
		}
		if len(add.Dependents) > 0 {
			merged := make(map[string]string, len(cur.Dependents)+len(add.Dependents))
			for d, r := range cur.Dependents {
				merged[d] = r
			}
			for d, r := range add.Dependents {
				merged[d] = r
			}
			cur.Dependents = merged
		}
		if add.Ledger != nil {
			cur.Ledger = add.Ledger
		}
		out[k] = cur
	}
	return out
}
