package osv

// Vulnerability is an OSV advisory document.
type Vulnerability struct {
	ID               string           `json:"id"`
	Summary          string           `json:"summary,omitempty"`
	Details          string           `json:"details,omitempty"`
	Aliases          []string         `json:"aliases,omitempty"`
	Modified         string           `json:"modified,omitempty"`
	Affected         []Affected       `json:"affected,omitempty"`
	References       []Reference      `json:"references,omitempty"`
	DatabaseSpecific DatabaseSpecific `json:"database_specific,omitempty"`
}

// Affected lists the affected ranges of one package.
type Affected struct {
	Package          Package          `json:"package"`
	Ranges           []Range          `json:"ranges,omitempty"`
	Versions         []string         `json:"versions,omitempty"`
	DatabaseSpecific DatabaseSpecific `json:"database_specific,omitempty"`
}

// Package identifies a package within an ecosystem.
type Package struct {
	Name      string `json:"name"`
	Ecosystem string `json:"ecosystem"`
}

// Range is a sequence of introduced/fixed events.
type Range struct {
	Type   string  `json:"type"`
	Events []Event `json:"events"`
}

// Event is one boundary of an affected range.
type Event struct {
	Introduced   string `json:"introduced,omitempty"`
	Fixed        string `json:"fixed,omitempty"`
	LastAffected string `json:"last_affected,omitempty"`
}

// Reference is a link about the advisory.
type Reference struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// DatabaseSpecific carries source-database fields. Only severity is used.
type DatabaseSpecific struct {
	Severity string `json:"severity,omitempty"`
}

type batchRequest struct {
	Queries []query `json:"queries"`
}

type query struct {
	Package Package `json:"package"`
	Version string  `json:"version"`
}

type batchResponse struct {
	Results []batchResult `json:"results"`
}

type batchResult struct {
	Vulns []vulnRef `json:"vulns"`
}

type vulnRef struct {
	ID       string `json:"id"`
	Modified string `json:"modified,omitempty"`
}
