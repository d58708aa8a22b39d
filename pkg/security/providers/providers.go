// Package providers builds security providers by name.
//
// It is the only place that knows every provider package, which keeps
// pkg/security free of transport dependencies.
package providers

import (
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pastoralist/pkg/cache"
	"github.com/matzehuels/pastoralist/pkg/integrations/command"
	"github.com/matzehuels/pastoralist/pkg/integrations/github"
	"github.com/matzehuels/pastoralist/pkg/integrations/osv"
	"github.com/matzehuels/pastoralist/pkg/integrations/snyk"
	"github.com/matzehuels/pastoralist/pkg/integrations/socket"
	"github.com/matzehuels/pastoralist/pkg/security"
)

// Default is used when no provider is named.
const Default = osv.Name

// Names lists the known providers in display order.
var Names = []string{osv.Name, github.Name, snyk.Name, socket.Name}

// Config carries resolved provider settings. Values come from flags,
// environment and .pastoralist.toml, already merged by the caller.
type Config struct {
	Strict bool

	// Dir is the project root, used by CLI scanners and git.
	Dir string

	GitHubToken string
	GitHubOwner string
	GitHubRepo  string

	// GitHubBaseURL overrides the REST API root, e.g. for GitHub Enterprise.
	GitHubBaseURL string
	Mock          bool

	SnykToken   string
	SocketToken string

	OSVBaseURL     string
	OSVConcurrency int
}

// Deps carries shared infrastructure.
type Deps struct {
	Cache    cache.Cache
	CacheTTL time.Duration
	Runner   command.Runner
	Logger   *log.Logger
}

// Known reports whether name is a registered provider.
func Known(name string) bool {
	return slices.Contains(Names, normalize(name))
}

// New builds the named provider. Unknown names fall back to OSV.
func New(name string, cfg Config, deps Deps) (security.Provider, error) {
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	logger := deps.Logger.With("provider", normalize(name))

	switch normalize(name) {
	case github.Name:
		p, err := github.New(github.Config{
			Owner:   cfg.GitHubOwner,
			Repo:    cfg.GitHubRepo,
			Dir:     cfg.Dir,
			Token:   cfg.GitHubToken,
			Mock:    cfg.Mock,
			Strict:  cfg.Strict,
			BaseURL: cfg.GitHubBaseURL,
			Runner:  deps.Runner,
			Logger:  logger,
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	case snyk.Name:
		return snyk.New(snyk.Config{
			Token:  cfg.SnykToken,
			Dir:    cfg.Dir,
			Strict: cfg.Strict,
			Runner: deps.Runner,
			Logger: logger,
		}), nil
	case socket.Name:
		return socket.New(socket.Config{
			Token:  cfg.SocketToken,
			Dir:    cfg.Dir,
			Strict: cfg.Strict,
			Runner: deps.Runner,
			Logger: logger,
		}), nil
	default:
		if !Known(name) {
			deps.Logger.Warn("unknown security provider, using osv", "name", name)
		}
		p, err := osv.New(osv.Config{
			BaseURL:     cfg.OSVBaseURL,
			Strict:      cfg.Strict,
			Concurrency: cfg.OSVConcurrency,
			Cache:       deps.Cache,
			CacheTTL:    deps.CacheTTL,
			Logger:      deps.Logger.With("provider", osv.Name),
		})
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// NewAll builds one provider per distinct name, in order. Names that map to
// the same provider (including unknown names falling back to OSV) are built
// once. No names yields the default provider.
func NewAll(names []string, cfg Config, deps Deps) ([]security.Provider, error) {
	if len(names) == 0 {
		names = []string{Default}
	}
	var out []security.Provider
	seen := make(map[string]bool)
	for _, name := range names {
		key := normalize(name)
		if !Known(key) {
			key = Default
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		p, err := New(name, cfg, deps)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
