package cli

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/matzehuels/pastoralist/pkg/config"
	"github.com/matzehuels/pastoralist/pkg/integrations/github"
	"github.com/matzehuels/pastoralist/pkg/security/providers"
)

// checkSettings is the fully resolved configuration of one check run.
type checkSettings struct {
	Providers      []string
	Interactive    bool
	AutoFix        bool
	VerifyRegistry bool
	Workspaces     []string
	PackageManager string
	NoCache        bool
	JSON           bool
	Quiet          bool

	Provider providers.Config
	Cache    config.Cache
}

// newViper layers environment and flags over the project file. Flags win,
// then PASTORALIST_* variables, then the well-known token variables, then
// .pastoralist.toml.
func newViper(cmd *cobra.Command, file config.Config) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("pastoralist")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	v.SetDefault("provider", file.Providers)
	v.SetDefault("strict", file.Strict)
	v.SetDefault("interactive", file.Interactive)
	v.SetDefault("fix", file.AutoFix)
	v.SetDefault("verify-registry", file.VerifyRegistry)
	v.SetDefault("workspaces", file.Workspaces)
	v.SetDefault("package-manager", file.PackageManager)
	v.SetDefault("github.owner", file.GitHub.Owner)
	v.SetDefault("github.repo", file.GitHub.Repo)
	v.SetDefault("github.token", file.GitHub.Token)
	v.SetDefault("mock", file.GitHub.Mock)
	v.SetDefault("github.base_url", file.GitHub.BaseURL)
	v.SetDefault("snyk.token", file.Snyk.Token)
	v.SetDefault("socket.token", file.Socket.Token)
	v.SetDefault("osv.base_url", file.OSV.BaseURL)
	v.SetDefault("osv.concurrency", file.OSV.Concurrency)

	binds := map[string][]string{
		"github.token": {"PASTORALIST_GITHUB_TOKEN", "GITHUB_TOKEN"},
		"snyk.token":   {"PASTORALIST_SNYK_TOKEN", "SNYK_TOKEN"},
		"socket.token": {"PASTORALIST_SOCKET_TOKEN", "SOCKET_SECURITY_API_KEY"},
		"mock":         {"PASTORALIST_MOCK_SECURITY"},
	}
	for key, envs := range binds {
		if err := v.BindEnv(append([]string{key}, envs...)...); err != nil {
			return nil, err
		}
	}
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	return v, nil
}

// resolveCheckSettings merges flags, environment and the project file.
func resolveCheckSettings(cmd *cobra.Command, dir string, file config.Config) (checkSettings, error) {
	v, err := newViper(cmd, file)
	if err != nil {
		return checkSettings{}, err
	}

	s := checkSettings{
		Providers:      splitList(v.GetStringSlice("provider")),
		Interactive:    v.GetBool("interactive"),
		AutoFix:        v.GetBool("fix"),
		VerifyRegistry: v.GetBool("verify-registry"),
		Workspaces:     splitList(v.GetStringSlice("workspaces")),
		PackageManager: v.GetString("package-manager"),
		NoCache:        v.GetBool("no-cache"),
		JSON:           v.GetBool("json"),
		Quiet:          v.GetBool("quiet"),
		Provider: providers.Config{
			Strict:         v.GetBool("strict"),
			Dir:            dir,
			GitHubToken:    v.GetString("github.token"),
			GitHubOwner:    v.GetString("github.owner"),
			GitHubRepo:     v.GetString("github.repo"),
			GitHubBaseURL:  v.GetString("github.base_url"),
			Mock:           v.GetBool("mock"),
			SnykToken:      v.GetString("snyk.token"),
			SocketToken:    v.GetString("socket.token"),
			OSVBaseURL:     v.GetString("osv.base_url"),
			OSVConcurrency: v.GetInt("osv.concurrency"),
		},
		Cache: file.Cache,
	}
	if ref := v.GetString("github-repo"); ref != "" {
		owner, repo, err := github.ParseRepoRef(ref)
		if err != nil {
			return checkSettings{}, err
		}
		s.Provider.GitHubOwner, s.Provider.GitHubRepo = owner, repo
	}
	return s, nil
}

// splitList flattens comma-separated entries, so "osv,github" from an
// environment variable and repeated flags behave the same.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
