// Package security detects vulnerable dependencies and reconciles package
// overrides.
//
// A [Checker] fans a manifest's dependencies out to every configured
// [Provider], deduplicates and matches the alerts they return, proposes
// overrides for the ones with a fix, and can write those overrides back into
// package.json:
//
//	checker, err := security.NewChecker(security.Options{
//	    Providers: []security.Provider{osvProvider, githubProvider},
//	    Logger:    logger,
//	})
//	result, err := checker.Check(ctx, m, security.CheckOptions{AutoFix: true})
//
// Provider failures degrade the result instead of aborting it, unless the
// provider is strict.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/manifest"
	"github.com/matzehuels/pastoralist/pkg/observability"
)

// Options configures a Checker.
type Options struct {
	Providers []Provider

	// Prompter is required for interactive checks.
	Prompter Prompter

	// Verifier, when set, drops overrides whose target version is confirmed
	// to be unpublished.
	Verifier VersionVerifier

	Logger *log.Logger
}

// CheckOptions configures one Check run.
type CheckOptions struct {
	Interactive bool
	AutoFix     bool

	// DepPaths are glob patterns for workspace manifests, relative to Root.
	DepPaths []string
	Root     string

	// ManifestPath is the file auto-fix writes to. Defaults to the path the
	// manifest was read from.
	ManifestPath string

	// PackageManager overrides lockfile detection for the auto-fix field.
	PackageManager string
}

// ProviderRun summarizes one provider's part in a check.
type ProviderRun struct {
	Name     string        `json:"name"`
	Alerts   int           `json:"alerts"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// Result is the outcome of a check.
type Result struct {
	RunID string `json:"runId"`

	// Alerts are the deduplicated alerts that apply to declared dependencies.
	Alerts    []Alert          `json:"alerts"`
	Overrides []Override       `json:"overrides"`
	Updates   []OverrideUpdate `json:"updates"`

	// Applied and BackupPath are set when auto-fix wrote the manifest.
	Applied    []Override `json:"applied,omitempty"`
	BackupPath string     `json:"backupPath,omitempty"`

	// Reported counts the deduplicated alerts before matching.
	Reported  int           `json:"reported"`
	Providers []ProviderRun `json:"providers"`
}

// Vulnerable reports whether any declared dependency has an alert.
func (r *Result) Vulnerable() bool { return len(r.Alerts) > 0 }

// Checker runs security checks. It is safe for concurrent use.
type Checker struct {
	providers []Provider
	prompter  Prompter
	verifier  VersionVerifier
	logger    *log.Logger
}

// NewChecker validates opts and returns a Checker.
func NewChecker(opts Options) (*Checker, error) {
	if len(opts.Providers) == 0 {
		return nil, pserrors.New(pserrors.ErrCodeInvalidInput, "at least one provider is required")
	}
	for i, p := range opts.Providers {
		if p == nil {
			return nil, pserrors.New(pserrors.ErrCodeInvalidInput, "provider %d is nil", i)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Checker{
		providers: opts.Providers,
		prompter:  opts.Prompter,
		verifier:  opts.Verifier,
		logger:    logger,
	}, nil
}

// Check scans m and returns alerts, override proposals and available
// updates for existing overrides.
//
// Errors from strict providers are collected and returned together with the
// partial result after every provider has finished. Auto-fix I/O failures
// are returned as MANIFEST_WRITE or BACKUP_FAILED errors.
func (c *Checker) Check(ctx context.Context, m *manifest.Manifest, opts CheckOptions) (*Result, error) {
	if m == nil {
		return nil, pserrors.New(pserrors.ErrCodeInvalidInput, "manifest is required")
	}
	if opts.Interactive && c.prompter == nil {
		return nil, pserrors.New(pserrors.ErrCodeInvalidInput, "interactive check requires a prompter")
	}
	result := &Result{RunID: uuid.NewString()}
	logger := c.logger.With("run", result.RunID[:8])

	pkgs := ExtractPackages(m)
	if len(pkgs) == 0 {
		logger.Debug("no dependencies declared")
		return result, nil
	}

	all, runs, providerErr := c.fetchAll(ctx, pkgs, logger)
	result.Providers = runs
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	all = Deduplicate(all)
	result.Reported = len(all)

	matched := MatchAlerts(all, m.DeclaredDependencies())
	if len(opts.DepPaths) > 0 {
		root := opts.Root
		if root == "" {
			root = m.Dir()
		}
		found, err := scanWorkspaces(root, opts.DepPaths, all, logger)
		if err != nil {
			return nil, err
		}
		matched = append(matched, found...)
	}
	// Providers disagree on whether they fill CurrentVersion, so alerts for
	// the same vulnerability only share a key once matching has set it.
	matched = Deduplicate(matched)
	result.Alerts = matched

	overrides := GenerateOverrides(matched)
	if c.verifier != nil {
		overrides = c.verify(ctx, overrides, logger)
	}
	result.Overrides = overrides
	result.Updates = FindOverrideUpdates(m, all)

	if opts.Interactive && len(matched) > 0 {
		selected, err := c.prompter.SelectOverrides(ctx, overrides, matched)
		if err != nil {
			return nil, fmt.Errorf("select overrides: %w", err)
		}
		overrides = selected
	}

	if opts.AutoFix && len(overrides) > 0 {
		if err := c.apply(ctx, m, overrides, opts, result); err != nil {
			return result, err
		}
	}

	return result, providerErr
}

// fetchAll queries every provider concurrently and waits for all of them.
// Results are flattened in provider order. Only strict providers contribute
// to the returned error, and never for being unavailable.
func (c *Checker) fetchAll(ctx context.Context, pkgs []Package, logger *log.Logger) ([]Alert, []ProviderRun, error) {
	hooks := observability.Security()
	perProvider := make([][]Alert, len(c.providers))
	runs := make([]ProviderRun, len(c.providers))

	var (
		mu   sync.Mutex
		errs *multierror.Error
		g    errgroup.Group
	)
	for i, p := range c.providers {
		g.Go(func() error {
			name := p.Name()
			hooks.OnProviderStart(ctx, name, len(pkgs))
			start := time.Now()

			alerts, err := p.FetchAlerts(ctx, pkgs)
			elapsed := time.Since(start)
			hooks.OnProviderComplete(ctx, name, len(alerts), elapsed, err)

			runs[i] = ProviderRun{Name: name, Duration: elapsed}
			if err != nil {
				runs[i].Error = pserrors.UserMessage(err)
				sp, strict := p.(StrictProvider)
				switch {
				case !pserrors.IsFatal(err):
					logger.Warn("provider unavailable, skipping", "provider", name, "reason", runs[i].Error)
				case strict && sp.Strict():
					mu.Lock()
					errs = multierror.Append(errs, fmt.Errorf("%s: %w", name, err))
					mu.Unlock()
				default:
					logger.Warn("provider failed, continuing without its alerts", "provider", name, "err", err)
				}
				return nil
			}
			for j := range alerts {
				if alerts[j].Provider == "" {
					alerts[j].Provider = name
				}
			}
			perProvider[i] = alerts
			runs[i].Alerts = len(alerts)
			logger.Debug("provider finished", "provider", name, "alerts", len(alerts), "duration", elapsed.Round(time.Millisecond))
			return nil
		})
	}
	_ = g.Wait()

	var all []Alert
	for _, alerts := range perProvider {
		all = append(all, alerts...)
	}
	return all, runs, errs.ErrorOrNil()
}

// verify drops overrides whose target the registry confirms is missing.
// Lookup errors keep the override.
func (c *Checker) verify(ctx context.Context, overrides []Override, logger *log.Logger) []Override {
	var out []Override
	for _, o := range overrides {
		ok, err := c.verifier.VersionExists(ctx, o.PackageName, o.ToVersion)
		if err != nil {
			logger.Debug("could not verify override target", "package", o.PackageName, "version", o.ToVersion, "err", err)
			out = append(out, o)
			continue
		}
		if !ok {
			logger.Warn("dropping override to unpublished version", "package", o.PackageName, "version", o.ToVersion)
			continue
		}
		out = append(out, o)
	}
	return out
}

func (c *Checker) apply(ctx context.Context, m *manifest.Manifest, overrides []Override, opts CheckOptions, result *Result) error {
	path := opts.ManifestPath
	if path == "" {
		path = m.Path
	}
	if path == "" {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "auto-fix needs a manifest path")
	}

	pinned := consolidate(overrides)
	changes := make([]manifest.Change, len(pinned))
	for i, o := range pinned {
		changes[i] = manifest.Change{
			Name:        o.PackageName,
			FromVersion: o.FromVersion,
			ToVersion:   o.ToVersion,
			Reason:      o.Reason,
			Provider:    o.Provider,
		}
	}

	backup, err := manifest.ApplyOverrides(ctx, path, changes, manifest.ApplyOptions{
		PackageManager: opts.PackageManager,
		Dependent:      m.Name,
	})
	if err != nil {
		return err
	}
	result.Applied = pinned
	result.BackupPath = backup
	observability.Security().OnOverridesApplied(ctx, path, len(pinned))
	c.logger.Info("applied overrides", "count", len(pinned), "manifest", path, "backup", backup)
	return nil
}
