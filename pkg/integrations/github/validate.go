package github

import (
	"regexp"
	"strings"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/integrations"
)

var (
	// GitHub usernames/orgs: 1-39 alphanumeric or hyphen, not starting with hyphen
	validOwner = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	// GitHub repo names: 1-100 alphanumeric, hyphen, underscore, or dot
	validRepo = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)
)

// ValidateRepoRef validates an owner and repository name pair.
func ValidateRepoRef(owner, repo string) error {
	if !validOwner.MatchString(owner) {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "invalid github owner %q", owner)
	}
	if !validRepo.MatchString(repo) {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "invalid github repo %q", repo)
	}
	return nil
}

// ParseRepoRef parses "owner/repo" or any remote URL form that
// [integrations.ParseGitHubRepo] understands.
func ParseRepoRef(ref string) (owner, repo string, err error) {
	ref = strings.TrimSpace(ref)
	if o, r, ok := integrations.ParseGitHubRepo(ref); ok {
		owner, repo = o, r
	} else if o, r, ok := strings.Cut(ref, "/"); ok {
		owner, repo = o, r
	} else {
		return "", "", pserrors.New(pserrors.ErrCodeInvalidInput, "invalid repo %q: use owner/repo", ref)
	}
	if err := ValidateRepoRef(owner, repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}
