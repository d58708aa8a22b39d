package integrations

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
)

const httpTimeout = 30 * time.Second

var (
	// ErrNotFound is returned when a package or resource doesn't exist.
	ErrNotFound = errors.New("resource not found")

	// ErrNetwork is returned for HTTP failures (timeouts, connection errors, 5xx responses).
	ErrNetwork = errors.New("network error")

	// ErrUnauthorized is returned for 401 and 403 responses.
	ErrUnauthorized = errors.New("not authorized")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited")
)

// NewHTTPClient creates a pooled HTTP client with a standard request timeout.
// Each call returns a client with its own transport, so tests and mocks never
// share state through http.DefaultTransport.
func NewHTTPClient() *http.Client {
	c := cleanhttp.DefaultPooledClient()
	c.Timeout = httpTimeout
	return c
}

// NormalizePkgName converts an npm package name to its canonical form:
// trimmed and lowercase.
func NormalizePkgName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

var repoURLReplacer = strings.NewReplacer(
	"git@github.com:", "https://github.com/",
	"ssh://git@github.com/", "https://github.com/",
	"git://github.com/", "https://github.com/",
)

// NormalizeRepoURL converts various repository URL formats to canonical HTTPS form.
// Handles git@, ssh://, git:// and git+ prefixes, and removes .git suffixes.
// Returns empty string if raw is empty.
func NormalizeRepoURL(raw string) string {
	if raw == "" {
		return ""
	}
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "git+")
	s = repoURLReplacer.Replace(s)
	return strings.TrimSuffix(s, ".git")
}

// ParseGitHubRepo extracts owner and repo from a GitHub remote URL in any
// form NormalizeRepoURL understands.
func ParseGitHubRepo(remote string) (owner, repo string, ok bool) {
	s := NormalizeRepoURL(remote)
	rest, found := strings.CutPrefix(s, "https://github.com/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}

// EscapePackagePath encodes an npm package name for use as a registry URL
// path segment. Scoped names keep their leading "@" and encode the slash.
func EscapePackagePath(name string) string {
	if scope, pkg, ok := strings.Cut(name, "/"); ok && strings.HasPrefix(scope, "@") {
		return "@" + url.PathEscape(scope[1:]) + "%2F" + url.PathEscape(pkg)
	}
	return url.PathEscape(name)
}

// NextLink returns the rel="next" target of an RFC 8288 Link header,
// or "" if there is none.
func NextLink(header string) string {
	for _, part := range strings.Split(header, ",") {
		target, params, ok := strings.Cut(strings.TrimSpace(part), ";")
		if !ok {
			continue
		}
		for _, p := range strings.Split(params, ";") {
			p = strings.TrimSpace(p)
			if p == `rel="next"` || p == "rel=next" {
				return strings.Trim(strings.TrimSpace(target), "<>")
			}
		}
	}
	return ""
}
