// Package integrations provides HTTP and subprocess clients for the external
// services pastoralist talks to.
//
// # Overview
//
// Each service has its own subpackage:
//
//   - [osv]: OSV.dev batch query and advisory API
//   - [github]: Dependabot alerts via the gh CLI or the REST API
//   - [snyk]: the snyk CLI
//   - [socket]: the socket CLI
//   - [npm]: npm registry version lookups
//   - [command]: the subprocess runner the CLI-backed providers share
//
// # Shared Infrastructure
//
// The [Client] type provides shared HTTP functionality used by all HTTP
// clients: JSON GET/POST, Link-header pagination, status classification
// ([ErrNotFound], [ErrUnauthorized], [ErrRateLimited], [ErrNetwork]) and
// response caching via [cache.Cache] with retry of transient failures.
//
//	client := integrations.NewClient(c, "osv:", 24*time.Hour, nil)
//	err := client.Cached(ctx, id, false, &vuln, func() error {
//	    return client.Get(ctx, baseURL+"/v1/vulns/"+id, &vuln)
//	})
//
// [osv]: github.com/matzehuels/pastoralist/pkg/integrations/osv
// [github]: github.com/matzehuels/pastoralist/pkg/integrations/github
// [snyk]: github.com/matzehuels/pastoralist/pkg/integrations/snyk
// [socket]: github.com/matzehuels/pastoralist/pkg/integrations/socket
// [npm]: github.com/matzehuels/pastoralist/pkg/integrations/npm
// [command]: github.com/matzehuels/pastoralist/pkg/integrations/command
// [cache.Cache]: github.com/matzehuels/pastoralist/pkg/cache.Cache
package integrations
