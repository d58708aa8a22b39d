package security

import (
	"context"
	"strings"
)

// Severity is a normalized vulnerability severity.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities: low < medium < high < critical. Unknown values
// rank as medium.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 2
	}
}

// NormalizeSeverity maps a provider's severity label onto the four levels.
// Matching is case-insensitive; "moderate" is medium and "info" is low.
// Anything unrecognized is medium, never low.
func NormalizeSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low", "info":
		return SeverityLow
	case "high":
		return SeverityHigh
	case "critical":
		return SeverityCritical
	default:
		return SeverityMedium
	}
}

// Package is a dependency as declared in a manifest, with the range prefix
// stripped from its version.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Alert is a vulnerability report normalized across providers.
type Alert struct {
	PackageName        string   `json:"packageName"`
	CurrentVersion     string   `json:"currentVersion,omitempty"`
	VulnerableVersions string   `json:"vulnerableVersions"`
	PatchedVersion     string   `json:"patchedVersion,omitempty"`
	Severity           Severity `json:"severity"`
	Title              string   `json:"title"`
	Description        string   `json:"description,omitempty"`
	CVE                string   `json:"cve,omitempty"`
	URL                string   `json:"url,omitempty"`
	FixAvailable       bool     `json:"fixAvailable"`
	Provider           string   `json:"provider,omitempty"`
}

// Key identifies an alert for deduplication: name@version:cve-or-title.
func (a Alert) Key() string {
	id := a.CVE
	if id == "" {
		id = a.Title
	}
	return a.PackageName + "@" + a.CurrentVersion + ":" + id
}

// Override is a proposed version pin for a vulnerable package.
type Override struct {
	PackageName string   `json:"packageName"`
	FromVersion string   `json:"fromVersion"`
	ToVersion   string   `json:"toVersion"`
	Reason      string   `json:"reason"`
	Severity    Severity `json:"severity"`
	Provider    string   `json:"provider,omitempty"`
}

// OverrideUpdate reports an existing security override for which a newer
// patched version is available.
type OverrideUpdate struct {
	PackageName     string `json:"packageName"`
	CurrentOverride string `json:"currentOverride"`
	NewerVersion    string `json:"newerVersion"`
	Reason          string `json:"reason"`
	AddedDate       string `json:"addedDate,omitempty"`
}

// Provider is a source of vulnerability alerts.
//
// FetchAlerts should degrade to an empty list when the provider is not
// installed or not authenticated. Errors are for transport failures.
type Provider interface {
	Name() string
	FetchAlerts(ctx context.Context, packages []Package) ([]Alert, error)
}

// StrictProvider is implemented by providers that can be asked to fail
// closed. When Strict reports true, the Checker returns the provider's error
// instead of logging it.
type StrictProvider interface {
	Strict() bool
}

// Prompter lets a user choose which overrides to apply. It may drop
// overrides or change their target version.
type Prompter interface {
	SelectOverrides(ctx context.Context, overrides []Override, alerts []Alert) ([]Override, error)
}

// VersionVerifier confirms that a package version is published.
type VersionVerifier interface {
	VersionExists(ctx context.Context, name, version string) (bool, error)
}
