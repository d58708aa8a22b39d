package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/integrations"
	"github.com/matzehuels/pastoralist/pkg/integrations/command"
	"github.com/matzehuels/pastoralist/pkg/security"
)

const (
	// Name identifies the provider.
	Name = "github"

	// DefaultBaseURL is the public GitHub REST API.
	DefaultBaseURL = "https://api.github.com"

	authTimeout = 30 * time.Second
	scanTimeout = 120 * time.Second
)

// Config configures the GitHub provider.
type Config struct {
	// Owner and Repo select the repository. When either is empty the
	// provider reads `git remote get-url origin` in Dir.
	Owner string
	Repo  string
	Dir   string

	// Token authenticates REST calls when the gh CLI is not logged in.
	Token string

	// Mock returns fixed alerts without touching the network.
	Mock bool

	Strict     bool
	BaseURL    string
	// HTTPClient replaces the pooled default client for REST calls.
	HTTPClient *http.Client
	Runner     command.Runner
	Logger     *log.Logger
}

// Provider reads open Dependabot alerts for a repository.
type Provider struct {
	*integrations.Client
	cfg     Config
	baseURL string
	runner  command.Runner
	logger  *log.Logger
}

// New creates a GitHub provider. It fails only on a malformed BaseURL.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if err := pserrors.ValidateURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Runner == nil {
		cfg.Runner = command.NewExec()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	headers := map[string]string{
		"Accept":               "application/vnd.github+json",
		"X-GitHub-Api-Version": "2022-11-28",
	}
	if cfg.Token != "" {
		headers["Authorization"] = "Bearer " + cfg.Token
	}
	client := integrations.NewClient(nil, "", 0, headers)
	if cfg.HTTPClient != nil {
		client.SetHTTPClient(cfg.HTTPClient)
	}
	return &Provider{
		Client:  client,
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		runner:  cfg.Runner,
		logger:  cfg.Logger,
	}, nil
}

// Name returns "github".
func (p *Provider) Name() string { return Name }

// Strict reports whether transport failures are returned as errors.
func (p *Provider) Strict() bool { return p.cfg.Strict }

// FetchAlerts returns the repository's open npm Dependabot alerts. The
// package list is not sent anywhere; alerts are matched against it later.
func (p *Provider) FetchAlerts(ctx context.Context, _ []security.Package) ([]security.Alert, error) {
	if p.cfg.Mock {
		return mockAlerts(), nil
	}

	owner, repo, err := p.repository(ctx)
	if err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeProviderUnavailable, err, "github repository unknown")
	}

	raw, err := p.viaGH(ctx, owner, repo)
	if errors.Is(err, errGHUnavailable) {
		if p.cfg.Token == "" {
			return nil, pserrors.New(pserrors.ErrCodeProviderUnavailable, "github not authenticated: run `gh auth login` or set GITHUB_TOKEN")
		}
		raw, err = p.viaREST(ctx, owner, repo)
	}
	if err != nil {
		if p.cfg.Strict {
			return nil, pserrors.Wrap(pserrors.ErrCodeTransport, err, "github dependabot alerts for %s/%s", owner, repo)
		}
		p.logger.Warn("github unavailable", "repo", owner+"/"+repo, "err", err)
		return nil, nil
	}

	var alerts []security.Alert
	for _, a := range raw {
		if a.State != "open" || !strings.EqualFold(a.Dependency.Package.Ecosystem, "npm") {
			continue
		}
		alerts = append(alerts, toAlert(a))
	}
	p.logger.Debug("github alerts", "repo", owner+"/"+repo, "fetched", len(raw), "open", len(alerts))
	return alerts, nil
}

func (p *Provider) repository(ctx context.Context) (string, string, error) {
	if p.cfg.Owner != "" && p.cfg.Repo != "" {
		return p.cfg.Owner, p.cfg.Repo, ValidateRepoRef(p.cfg.Owner, p.cfg.Repo)
	}
	res, err := p.runner.Run(ctx, command.Cmd{
		Name:    "git",
		Args:    []string{"remote", "get-url", "origin"},
		Dir:     p.cfg.Dir,
		Timeout: authTimeout,
	})
	if err != nil {
		return "", "", fmt.Errorf("git remote get-url origin: %w", err)
	}
	remote := strings.TrimSpace(res.Stdout)
	owner, repo, ok := integrations.ParseGitHubRepo(remote)
	if !ok {
		return "", "", pserrors.New(pserrors.ErrCodeInvalidInput, "origin %q is not a github remote", remote)
	}
	return owner, repo, ValidateRepoRef(owner, repo)
}

var errGHUnavailable = errors.New("gh cli unavailable or not authenticated")

// viaGH lists alerts with the gh CLI. It returns errGHUnavailable when gh is
// missing or not logged in.
func (p *Provider) viaGH(ctx context.Context, owner, repo string) ([]dependabotAlert, error) {
	if _, err := p.runner.LookPath("gh"); err != nil {
		return nil, errGHUnavailable
	}
	if _, err := p.runner.Run(ctx, command.Cmd{Name: "gh", Args: []string{"auth", "status"}, Timeout: authTimeout}); err != nil {
		return nil, errGHUnavailable
	}
	res, err := p.runner.Run(ctx, command.Cmd{
		Name:    "gh",
		Args:    []string{"api", fmt.Sprintf("repos/%s/%s/dependabot/alerts", owner, repo), "--paginate"},
		Timeout: scanTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("gh api: %w", err)
	}
	return decodePages(res.Stdout)
}

// decodePages decodes the output of `gh api --paginate`, which writes one
// JSON array per page back to back.
func decodePages(data string) ([]dependabotAlert, error) {
	var out []dependabotAlert
	dec := json.NewDecoder(strings.NewReader(data))
	for {
		var page []dependabotAlert
		err := dec.Decode(&page)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode gh output: %w", err)
		}
		out = append(out, page...)
	}
}

func (p *Provider) viaREST(ctx context.Context, owner, repo string) ([]dependabotAlert, error) {
	var out []dependabotAlert
	url := fmt.Sprintf("%s/repos/%s/%s/dependabot/alerts?state=open&ecosystem=npm&per_page=100", p.baseURL, owner, repo)
	for url != "" {
		var page []dependabotAlert
		next, err := p.GetPage(ctx, url, nil, &page)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		url = next
	}
	return out, nil
}

func toAlert(a dependabotAlert) security.Alert {
	adv, vuln := a.SecurityAdvisory, a.SecurityVulnerability
	name := vuln.Package.Name
	if name == "" {
		name = a.Dependency.Package.Name
	}
	severity := vuln.Severity
	if severity == "" {
		severity = adv.Severity
	}
	var patched string
	if vuln.FirstPatchedVersion != nil {
		patched = vuln.FirstPatchedVersion.Identifier
	}
	url := a.HTMLURL
	if url == "" && len(adv.References) > 0 {
		url = adv.References[0].URL
	}
	return security.Alert{
		PackageName:        name,
		VulnerableVersions: vuln.VulnerableVersionRange,
		PatchedVersion:     patched,
		Severity:           security.NormalizeSeverity(severity),
		Title:              adv.Summary,
		Description:        adv.Description,
		CVE:                adv.CVEID,
		URL:                url,
		FixAvailable:       patched != "",
		Provider:           Name,
	}
}

func mockAlerts() []security.Alert {
	return []security.Alert{
		{
			PackageName:        "lodash",
			VulnerableVersions: ">= 4.0.0, < 4.17.21",
			PatchedVersion:     "4.17.21",
			Severity:           security.SeverityHigh,
			Title:              "Command Injection in lodash",
			CVE:                "CVE-2021-23337",
			URL:                "https://github.com/advisories/GHSA-35jh-r3h4-6jhm",
			FixAvailable:       true,
			Provider:           Name,
		},
		{
			PackageName:        "minimist",
			VulnerableVersions: "< 1.2.6",
			PatchedVersion:     "1.2.6",
			Severity:           security.SeverityCritical,
			Title:              "Prototype Pollution in minimist",
			CVE:                "CVE-2021-44906",
			URL:                "https://github.com/advisories/GHSA-xvch-5gv4-984h",
			FixAvailable:       true,
			Provider:           Name,
		},
	}
}
