// Package github reads Dependabot alerts for a GitHub repository.
//
// # Repository
//
// The repository comes from [Config] or, when unset, from the origin remote
// of the working tree (`git remote get-url origin`). SSH, HTTPS and git://
// remote forms are accepted.
//
// # Transport
//
// When the gh CLI is installed and logged in, the provider runs
//
//	gh api repos/{owner}/{repo}/dependabot/alerts --paginate
//
// and reuses the user's gh credentials. Otherwise it calls the REST API with
// the configured token and follows Link pagination. Without gh or a token
// the provider logs a hint and returns no alerts.
//
// Only alerts in the "open" state for the npm ecosystem are returned.
//
// # Mock mode
//
// [Config].Mock returns a fixed pair of alerts (lodash and minimist) without
// running commands or opening connections. It exists for demos and tests.
package github
