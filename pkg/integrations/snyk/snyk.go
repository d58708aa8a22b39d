// Package snyk runs the Snyk CLI and converts its JSON report into alerts.
//
// The CLI is installed with npm on first use. A token from configuration is
// passed as SNYK_TOKEN; without one the provider relies on `snyk auth` state
// and reports itself unavailable when none is stored.
package snyk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/integrations/command"
	"github.com/matzehuels/pastoralist/pkg/security"
)

// Name identifies the provider.
const Name = "snyk"

const scanTimeout = 120 * time.Second

// Config configures the Snyk provider.
type Config struct {
	Token  string
	Dir    string
	Strict bool
	Runner command.Runner
	Logger *log.Logger
}

// Provider scans the project with `snyk test --json`.
type Provider struct {
	cfg    Config
	runner command.Runner
	logger *log.Logger
}

// New creates a Snyk provider.
func New(cfg Config) *Provider {
	if cfg.Runner == nil {
		cfg.Runner = command.NewExec()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Provider{cfg: cfg, runner: cfg.Runner, logger: cfg.Logger}
}

// Name returns "snyk".
func (p *Provider) Name() string { return Name }

// Strict reports whether scan failures are returned as errors.
func (p *Provider) Strict() bool { return p.cfg.Strict }

// FetchAlerts scans the project directory. Packages are not used; Snyk
// resolves the dependency tree itself.
func (p *Provider) FetchAlerts(ctx context.Context, _ []security.Package) ([]security.Alert, error) {
	if _, err := command.EnsureInstalled(ctx, p.runner, "snyk", "snyk"); err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeProviderUnavailable, err, "snyk CLI unavailable")
	}

	var env []string
	if p.cfg.Token != "" {
		env = append(env, "SNYK_TOKEN="+p.cfg.Token)
	} else if !p.authenticated(ctx) {
		return nil, pserrors.New(pserrors.ErrCodeProviderUnavailable, "snyk not authenticated: run `snyk auth` or set SNYK_TOKEN")
	}

	res, runErr := p.runner.Run(ctx, command.Cmd{
		Name:    "snyk",
		Args:    []string{"test", "--json"},
		Dir:     p.cfg.Dir,
		Env:     env,
		Timeout: scanTimeout,
	})
	// snyk exits 1 when it finds vulnerabilities; the report is still on stdout.
	if strings.TrimSpace(res.Stdout) == "" {
		if runErr == nil {
			return nil, nil
		}
		if p.cfg.Strict {
			return nil, pserrors.Wrap(pserrors.ErrCodeTransport, runErr, "snyk test: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		p.logger.Warn("snyk test failed", "exit", res.ExitCode, "err", runErr)
		return nil, nil
	}

	results, err := parse([]byte(res.Stdout))
	if err != nil {
		p.logger.Warn("snyk: unexpected report format, ignoring", "err", err)
		return nil, nil
	}
	var alerts []security.Alert
	for _, r := range results {
		if r.Error != "" {
			p.logger.Warn("snyk reported an error", "target", r.DisplayTargetFile, "err", r.Error)
		}
		for _, v := range r.Vulnerabilities {
			alerts = append(alerts, v.alert())
		}
	}
	return alerts, nil
}

func (p *Provider) authenticated(ctx context.Context) bool {
	res, err := p.runner.Run(ctx, command.Cmd{
		Name:    "snyk",
		Args:    []string{"config", "get", "api"},
		Timeout: 30 * time.Second,
	})
	return err == nil && strings.TrimSpace(res.Stdout) != ""
}

type scanResult struct {
	OK                bool        `json:"ok"`
	Error             string      `json:"error,omitempty"`
	PackageManager    string      `json:"packageManager"`
	DisplayTargetFile string      `json:"displayTargetFile"`
	Vulnerabilities   []vulnIssue `json:"vulnerabilities"`
}

type vulnIssue struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    string   `json:"severity"`
	Description string   `json:"description"`
	PackageName string   `json:"packageName"`
	Version     string   `json:"version"`
	From        []string `json:"from"`
	FixedIn     []string `json:"fixedIn"`
	Semver      struct {
		Vulnerable []string `json:"vulnerable"`
	} `json:"semver"`
	Identifiers struct {
		CVE []string `json:"CVE"`
	} `json:"identifiers"`
	References []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"references"`
}

// parse accepts a single project report or, for multi-project scans, an
// array of them.
func parse(data []byte) ([]scanResult, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var many []scanResult
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, fmt.Errorf("decode snyk report: %w", err)
		}
		return many, nil
	}
	var one scanResult
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("decode snyk report: %w", err)
	}
	return []scanResult{one}, nil
}

func (v vulnIssue) alert() security.Alert {
	a := security.Alert{
		PackageName:    v.PackageName,
		CurrentVersion: v.Version,
		Severity:       security.NormalizeSeverity(v.Severity),
		Title:          v.Title,
		Description:    v.Description,
		URL:            "https://security.snyk.io/vuln/" + v.ID,
		Provider:       Name,
	}
	if len(v.Semver.Vulnerable) > 0 {
		a.VulnerableVersions = v.Semver.Vulnerable[0]
	}
	if len(v.FixedIn) > 0 {
		a.PatchedVersion = v.FixedIn[0]
		a.FixAvailable = true
	}
	if len(v.Identifiers.CVE) > 0 {
		a.CVE = v.Identifiers.CVE[0]
	}
	if a.Title == "" {
		a.Title = v.ID
	}
	return a
}
