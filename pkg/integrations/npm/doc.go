// Package npm reads published versions from the npm registry.
//
// The security checker uses [Client.VersionExists] to confirm that an
// override target is actually published before writing it:
//
//	client, err := npm.NewClient(npm.Options{Cache: fileCache})
//	if err != nil {
//	    return err
//	}
//	ok, err := client.VersionExists(ctx, "lodash", "4.17.21")
//
// Requests use the abbreviated "install-v1" document, which lists versions
// and dist-tags without per-version manifests. Lookups run through a shared
// [concurrency.Limiter] and are memoized in an in-process LRU on top of the
// persistent response cache.
//
// [Resolve] picks the highest published version satisfying an npm range
// using Masterminds/semver constraints.
//
// [concurrency.Limiter]: github.com/matzehuels/pastoralist/pkg/concurrency.Limiter
package npm
