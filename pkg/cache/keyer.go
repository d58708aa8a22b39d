package cache

// Keyer builds cache keys for the different kinds of cached data.
type Keyer interface {
	// HTTPKey keys a raw HTTP response body, e.g. HTTPKey("npm:", "lodash").
	HTTPKey(namespace, key string) string

	// AdvisoryKey keys a single advisory document from a provider,
	// e.g. AdvisoryKey("osv", "GHSA-35jh-r3h4-6jhm").
	AdvisoryKey(provider, id string) string

	// QueryKey keys a provider query over a set of packages. The packages are
	// hashed, so the key length does not grow with the dependency list.
	QueryKey(provider string, packages any) string
}

// DefaultKeyer is the key scheme used by the CLI.
type DefaultKeyer struct{}

// NewDefaultKeyer returns the default key scheme.
func NewDefaultKeyer() Keyer { return DefaultKeyer{} }

// HTTPKey returns "http:<namespace>:<key>".
func (DefaultKeyer) HTTPKey(namespace, key string) string {
	return "http:" + namespace + ":" + key
}

// AdvisoryKey returns "advisory:<provider>:<id>".
func (DefaultKeyer) AdvisoryKey(provider, id string) string {
	return "advisory:" + provider + ":" + id
}

// QueryKey returns "query:<provider>:<sha256 of packages>".
func (DefaultKeyer) QueryKey(provider string, packages any) string {
	return hashKey("query:"+provider, packages)
}
