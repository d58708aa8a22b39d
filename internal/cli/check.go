package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/pastoralist/pkg/config"
	"github.com/matzehuels/pastoralist/pkg/integrations/npm"
	"github.com/matzehuels/pastoralist/pkg/manifest"
	"github.com/matzehuels/pastoralist/pkg/security"
	"github.com/matzehuels/pastoralist/pkg/security/providers"
)

// checkCommand creates the check command.
func (c *CLI) checkCommand() *cobra.Command {
	var dir, manifestFile string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Check dependencies for known vulnerabilities",
		Long: `Check queries the configured security providers for the dependencies
declared in package.json and proposes overrides that pin patched versions.

With --fix the overrides are written to package.json (the npm "overrides",
yarn "resolutions" or pnpm "pnpm.overrides" field) after a backup is made.`,
		Example: `  pastoralist check
  pastoralist check --provider osv,github --fix
  pastoralist check -i --workspaces 'packages/*'
  pastoralist check --quiet || echo "vulnerable"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runCheck(cmd, dir, manifestFile)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&dir, "dir", "C", ".", "project root")
	flags.StringVar(&manifestFile, "manifest", "package.json", "manifest path, relative to --dir")
	flags.StringSlice("provider", nil, "security providers: "+strings.Join(providers.Names, ", ")+" (default osv)")
	flags.Bool("strict", false, "fail when a provider cannot be reached")
	flags.BoolP("interactive", "i", false, "choose which overrides to apply")
	flags.Bool("fix", false, "write overrides to the manifest")
	flags.Bool("verify-registry", false, "drop overrides whose target is not published on npm")
	flags.StringSlice("workspaces", nil, "glob patterns for workspace manifests")
	flags.String("package-manager", "", "npm, yarn, pnpm or bun (default: detect from lockfile)")
	flags.String("github-repo", "", "GitHub repository as owner/repo (default: origin remote)")
	flags.Bool("no-cache", false, "disable the response cache")
	flags.Bool("json", false, "print the result as JSON")
	flags.BoolP("quiet", "q", false, "print nothing; exit 1 when vulnerabilities are found")

	return cmd
}

func (c *CLI) runCheck(cmd *cobra.Command, dir, manifestFile string) error {
	ctx := cmd.Context()
	logger := loggerFromContext(ctx)
	if logger.GetLevel() <= log.DebugLevel {
		registerLoggingHooks(logger)
	}

	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	file, err := config.Load(root)
	if err != nil {
		return err
	}
	for _, w := range file.Warnings {
		logger.Warn(w, "file", file.Path)
	}
	s, err := resolveCheckSettings(cmd, root, file)
	if err != nil {
		return err
	}

	path := manifestFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	m, err := manifest.Read(path)
	if err != nil {
		return err
	}

	store, err := newCache(ctx, s.Cache, s.NoCache)
	if err != nil {
		return err
	}
	defer store.Close()

	deps := providers.Deps{Cache: store, CacheTTL: s.Cache.TTL, Runner: c.Runner, Logger: logger}
	provs, err := providers.NewAll(s.Providers, s.Provider, deps)
	if err != nil {
		return err
	}

	opts := security.Options{Providers: provs, Logger: logger}
	if s.VerifyRegistry {
		client, err := npm.NewClient(npm.Options{Cache: store, CacheTTL: s.Cache.TTL})
		if err != nil {
			return err
		}
		opts.Verifier = client
	}
	if s.Interactive {
		opts.Prompter = newTeaPrompter(cmd.InOrStdin(), os.Stderr)
	}
	checker, err := security.NewChecker(opts)
	if err != nil {
		return err
	}

	names := make([]string, len(provs))
	for i, p := range provs {
		names[i] = p.Name()
	}
	quiet := s.JSON || s.Quiet
	prog := newProgress(logger)

	var spin *Spinner
	if !quiet && !s.Interactive {
		spin = newSpinner(ctx, os.Stderr, fmt.Sprintf("Checking %d dependencies with %s", len(m.DeclaredDependencies()), strings.Join(names, ", ")))
		spin.Start()
	}
	result, checkErr := checker.Check(ctx, m, security.CheckOptions{
		Interactive:    s.Interactive,
		AutoFix:        s.AutoFix,
		DepPaths:       s.Workspaces,
		Root:           root,
		ManifestPath:   path,
		PackageManager: s.PackageManager,
	})
	if spin != nil {
		spin.Stop()
	}
	if result == nil {
		return checkErr
	}

	switch {
	case s.JSON:
		if err := writeJSON(cmd.OutOrStdout(), result); err != nil {
			return err
		}
	case s.Quiet:
	default:
		printCheckResult(result, s.AutoFix)
		prog.done(fmt.Sprintf("Checked %d dependencies", len(m.DeclaredDependencies())))
	}

	if checkErr != nil {
		return checkErr
	}
	if s.Quiet && result.Vulnerable() {
		return &ExitError{Code: ExitVulnerable}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printCheckResult(r *security.Result, autoFix bool) {
	for _, p := range r.Providers {
		if p.Error != "" {
			printWarning("%s: %s", p.Name, p.Error)
		}
	}

	if !r.Vulnerable() {
		printSuccess("No known vulnerabilities")
	} else {
		printError("%s vulnerable %s", StyleNumber.Render(fmt.Sprint(len(r.Alerts))), plural(len(r.Alerts), "dependency", "dependencies"))
		fmt.Println(renderAlertTable(r.Alerts))
	}

	if len(r.Updates) > 0 {
		printNewline()
		printInfo("Newer security fixes for existing overrides:")
		for _, u := range r.Updates {
			printDetail("%s %s %s %s", u.PackageName, u.CurrentOverride, iconArrow, u.NewerVersion)
		}
	}

	switch {
	case len(r.Applied) > 0:
		printNewline()
		printSuccess("Applied %d %s", len(r.Applied), plural(len(r.Applied), "override", "overrides"))
		fmt.Println(renderOverrideTable(r.Applied))
		printDetail("Backup: %s", r.BackupPath)
		printNextStep("Undo with", "pastoralist rollback")
	case len(r.Overrides) > 0 && !autoFix:
		printNewline()
		printInfo("Proposed overrides:")
		fmt.Println(renderOverrideTable(r.Overrides))
		printNextStep("Apply with", "pastoralist check --fix")
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
