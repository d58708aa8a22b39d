// Package socket runs the Socket CLI and converts its report into alerts.
//
// Only vulnerability issues (CVE types) become alerts. Supply-chain findings
// such as install scripts or typosquats have no version to pin and are
// ignored.
package socket

import (
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

const (
	// Name identifies the provider.
	Name = "socket"

	npmPackage  = "@socketsecurity/cli"
	scanTimeout = 120 * time.Second
)

// Config configures the Socket provider.
type Config struct {
	Token  string
	Dir    string
	Strict bool
	Runner command.Runner
	Logger *log.Logger
}

// Provider scans the project with `socket report create --format json`.
type Provider struct {
	cfg    Config
	runner command.Runner
	logger *log.Logger
}

// New creates a Socket provider.
func New(cfg Config) *Provider {
	if cfg.Runner == nil {
		cfg.Runner = command.NewExec()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	return &Provider{cfg: cfg, runner: cfg.Runner, logger: cfg.Logger}
}

// Name returns "socket".
func (p *Provider) Name() string { return Name }

// Strict reports whether scan failures are returned as errors.
func (p *Provider) Strict() bool { return p.cfg.Strict }

// FetchAlerts creates a Socket report for the project directory.
func (p *Provider) FetchAlerts(ctx context.Context, _ []security.Package) ([]security.Alert, error) {
	if p.cfg.Token == "" {
		return nil, pserrors.New(pserrors.ErrCodeProviderUnavailable, "socket not authenticated: set SOCKET_SECURITY_API_KEY")
	}
	if _, err := command.EnsureInstalled(ctx, p.runner, "socket", npmPackage); err != nil {
		return nil, pserrors.Wrap(pserrors.ErrCodeProviderUnavailable, err, "socket CLI unavailable")
	}

	res, runErr := p.runner.Run(ctx, command.Cmd{
		Name:    "socket",
		Args:    []string{"report", "create", "--format", "json"},
		Dir:     p.cfg.Dir,
		Env:     []string{"SOCKET_SECURITY_API_KEY=" + p.cfg.Token},
		Timeout: scanTimeout,
	})
	if strings.TrimSpace(res.Stdout) == "" {
		if runErr == nil {
			return nil, nil
		}
		if p.cfg.Strict {
			return nil, pserrors.Wrap(pserrors.ErrCodeTransport, runErr, "socket report: exit %d: %s", res.ExitCode, strings.TrimSpace(res.Stderr))
		}
		p.logger.Warn("socket report failed", "exit", res.ExitCode, "err", runErr)
		return nil, nil
	}

	var r report
	if err := json.Unmarshal([]byte(res.Stdout), &r); err != nil {
		p.logger.Warn("socket: unexpected report format, ignoring", "err", fmt.Errorf("decode socket report: %w", err))
		return nil, nil
	}
	var alerts []security.Alert
	for _, is := range r.Issues {
		if !isCVE(is.Type) {
			continue
		}
		alerts = append(alerts, is.alert())
	}
	return alerts, nil
}

type report struct {
	ID     string  `json:"id"`
	URL    string  `json:"url"`
	Issues []issue `json:"issues"`
}

type issue struct {
	Type       string `json:"type"`
	PkgName    string `json:"pkgName"`
	PkgVersion string `json:"pkgVersion"`
	Value      struct {
		Severity    string `json:"severity"`
		Description string `json:"description"`
		Props       struct {
			Title                         string `json:"title"`
			CVEID                         string `json:"cveId"`
			GHSAID                        string `json:"ghsaId"`
			URL                           string `json:"url"`
			VulnerableVersionRange        string `json:"vulnerableVersionRange"`
			FirstPatchedVersionIdentifier string `json:"firstPatchedVersionIdentifier"`
		} `json:"props"`
	} `json:"value"`
}

func isCVE(t string) bool {
	switch t {
	case "cve", "mediumCVE", "mildCVE", "criticalCVE":
		return true
	}
	return false
}

func (is issue) alert() security.Alert {
	props := is.Value.Props
	title := props.Title
	if title == "" {
		title = props.GHSAID
	}
	return security.Alert{
		PackageName:        is.PkgName,
		CurrentVersion:     is.PkgVersion,
		VulnerableVersions: props.VulnerableVersionRange,
		PatchedVersion:     props.FirstPatchedVersionIdentifier,
		Severity:           security.NormalizeSeverity(is.Value.Severity),
		Title:              title,
		Description:        is.Value.Description,
		CVE:                props.CVEID,
		URL:                props.URL,
		FixAvailable:       props.FirstPatchedVersionIdentifier != "",
		Provider:           Name,
	}
}
