package github

// dependabotAlert is one entry of the repository Dependabot alerts API.
type dependabotAlert struct {
	Number                int                   `json:"number"`
	State                 string                `json:"state"`
	HTMLURL               string                `json:"html_url"`
	Dependency            dependency            `json:"dependency"`
	SecurityAdvisory      securityAdvisory      `json:"security_advisory"`
	SecurityVulnerability securityVulnerability `json:"security_vulnerability"`
}

type dependency struct {
	Package      advisoryPackage `json:"package"`
	ManifestPath string          `json:"manifest_path"`
}

type advisoryPackage struct {
	Ecosystem string `json:"ecosystem"`
	Name      string `json:"name"`
}

type securityAdvisory struct {
	GHSAID      string `json:"ghsa_id"`
	CVEID       string `json:"cve_id"`
	Summary     string `json:"summary"`
	Description string `json:"description"`
	Severity    string `json:"severity"`
	References  []struct {
		URL string `json:"url"`
	} `json:"references"`
}

type securityVulnerability struct {
	Package                advisoryPackage `json:"package"`
	Severity               string          `json:"severity"`
	VulnerableVersionRange string          `json:"vulnerable_version_range"`
	FirstPatchedVersion    *struct {
		Identifier string `json:"identifier"`
	} `json:"first_patched_version"`
}
