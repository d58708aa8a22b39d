package security

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/charmbracelet/log"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/manifest"
)

type fakeProvider struct {
	name   string
	alerts []Alert
	err    error
	strict bool
	calls  atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }
func (p *fakeProvider) Strict() bool { return p.strict }

func (p *fakeProvider) FetchAlerts(ctx context.Context, pkgs []Package) ([]Alert, error) {
	p.calls.Add(1)
	return append([]Alert(nil), p.alerts...), p.err
}

type fakePrompter struct {
	called bool
	pick   func([]Override) []Override
}

func (p *fakePrompter) SelectOverrides(_ context.Context, overrides []Override, _ []Alert) ([]Override, error) {
	p.called = true
	return p.pick(overrides), nil
}

type fakeVerifier map[string]bool

func (v fakeVerifier) VersionExists(_ context.Context, name, version string) (bool, error) {
	exists, ok := v[name+"@"+version]
	if !ok {
		return false, errors.New("registry unavailable")
	}
	return exists, nil
}

func quietLogger() *log.Logger { return log.New(io.Discard) }

var lodashAlert = Alert{
	PackageName:        "lodash",
	VulnerableVersions: "< 4.17.21",
	PatchedVersion:     "4.17.21",
	Severity:           SeverityHigh,
	Title:              "Prototype Pollution",
	CVE:                "CVE-2020-8203",
	FixAvailable:       true,
}

func newTestChecker(t *testing.T, opts Options) *Checker {
	t.Helper()
	opts.Logger = quietLogger()
	c, err := NewChecker(opts)
	if err != nil {
		t.Fatalf("NewChecker() error: %v", err)
	}
	return c
}

func TestNewCheckerValidation(t *testing.T) {
	if _, err := NewChecker(Options{}); !pserrors.Is(err, pserrors.ErrCodeInvalidInput) {
		t.Errorf("no providers: error = %v, want INVALID_INPUT", err)
	}
	if _, err := NewChecker(Options{Providers: []Provider{nil}}); !pserrors.Is(err, pserrors.ErrCodeInvalidInput) {
		t.Errorf("nil provider: error = %v, want INVALID_INPUT", err)
	}
}

func TestCheckLodashEndToEnd(t *testing.T) {
	osv := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}
	c := newTestChecker(t, Options{Providers: []Provider{osv}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "^4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	if res.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(res.Overrides) != 1 {
		t.Fatalf("Overrides = %+v, want one", res.Overrides)
	}
	o := res.Overrides[0]
	if o.PackageName != "lodash" || o.FromVersion != "4.17.20" || o.ToVersion != "4.17.21" {
		t.Errorf("override = %+v", o)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Provider != "osv" {
		t.Errorf("Alerts = %+v", res.Alerts)
	}
	if !res.Vulnerable() {
		t.Error("Vulnerable() should be true")
	}
	if len(res.Providers) != 1 || res.Providers[0].Alerts != 1 {
		t.Errorf("Providers = %+v", res.Providers)
	}
}

func TestCheckEmptyManifestSkipsProviders(t *testing.T) {
	p := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}
	c := newTestChecker(t, Options{Providers: []Provider{p}})

	res, err := c.Check(context.Background(), &manifest.Manifest{}, CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if p.calls.Load() != 0 {
		t.Errorf("provider called %d times for an empty manifest", p.calls.Load())
	}
	if len(res.Alerts) != 0 || len(res.Overrides) != 0 || len(res.Updates) != 0 {
		t.Errorf("empty manifest should produce an empty result, got %+v", res)
	}
}

func TestCheckProviderFailureIsNotFatal(t *testing.T) {
	broken := &fakeProvider{name: "snyk", err: errors.New("snyk exited 2")}
	osv := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}
	c := newTestChecker(t, Options{Providers: []Provider{broken, osv}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatalf("non-strict provider failure should not fail the check: %v", err)
	}
	if len(res.Overrides) != 1 {
		t.Errorf("healthy provider alerts should survive, got %+v", res.Overrides)
	}
	if res.Providers[0].Error == "" {
		t.Error("failed provider run should record its error")
	}
}

func TestCheckStrictProviderErrorsAreCollected(t *testing.T) {
	a := &fakeProvider{name: "github", err: errors.New("401"), strict: true}
	b := &fakeProvider{name: "socket", err: errors.New("timeout"), strict: true}
	osv := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}
	c := newTestChecker(t, Options{Providers: []Provider{a, osv, b}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err == nil {
		t.Fatal("strict provider failures should be returned")
	}
	if osv.calls.Load() != 1 || a.calls.Load() != 1 || b.calls.Load() != 1 {
		t.Error("every provider should run before errors are returned")
	}
	for _, name := range []string{"github", "socket"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q should mention %s", err, name)
		}
	}
	if res == nil || len(res.Overrides) != 1 {
		t.Errorf("partial result should still be returned, got %+v", res)
	}
}

func TestCheckStrictSkipsUnavailableProvider(t *testing.T) {
	missing := &fakeProvider{
		name:   "snyk",
		err:    pserrors.Wrap(pserrors.ErrCodeProviderUnavailable, errors.New("executable file not found"), "snyk CLI unavailable"),
		strict: true,
	}
	osv := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}, strict: true}
	c := newTestChecker(t, Options{Providers: []Provider{missing, osv}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatalf("unavailable provider should not fail a strict check: %v", err)
	}
	if got := res.Providers[0].Error; got != "snyk CLI unavailable: executable file not found" {
		t.Errorf("run error = %q, want message without code prefix", got)
	}
	if len(res.Overrides) != 1 {
		t.Errorf("healthy provider alerts should survive, got %+v", res.Overrides)
	}
}

func TestCheckDeduplicatesAcrossProviders(t *testing.T) {
	low := lodashAlert
	low.Severity = SeverityLow
	crit := lodashAlert
	crit.Severity = SeverityCritical

	c := newTestChecker(t, Options{Providers: []Provider{
		&fakeProvider{name: "osv", alerts: []Alert{low}},
		&fakeProvider{name: "github", alerts: []Alert{crit}},
	}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Severity != SeverityCritical {
		t.Errorf("Alerts = %+v, want a single critical alert", res.Alerts)
	}
	if res.Overrides[0].Reason != "Security fix: Prototype Pollution (critical)" {
		t.Errorf("Reason = %q", res.Overrides[0].Reason)
	}
}

func TestCheckDeduplicatesWhenOnlyOneProviderSetsVersion(t *testing.T) {
	fromOSV := lodashAlert
	fromOSV.CurrentVersion = "4.17.20"
	fromGitHub := lodashAlert
	fromGitHub.Severity = SeverityCritical

	c := newTestChecker(t, Options{Providers: []Provider{
		&fakeProvider{name: "osv", alerts: []Alert{fromOSV}},
		&fakeProvider{name: "github", alerts: []Alert{fromGitHub}},
	}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "^4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Severity != SeverityCritical {
		t.Fatalf("Alerts = %+v, want a single critical alert", res.Alerts)
	}
	if len(res.Overrides) != 1 || res.Overrides[0].Provider != "github" {
		t.Errorf("Overrides = %+v, want one override from github", res.Overrides)
	}
}

func TestCheckWorkspaceKeepsEveryAdvisory(t *testing.T) {
	root := t.TempDir()
	p := filepath.Join(root, "packages/web/package.json")
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(`{"dependencies": {"minimist": "1.2.0"}}`), 0o644); err != nil {
		t.Fatal(err)
	}

	older := Alert{PackageName: "minimist", VulnerableVersions: "< 1.2.3", PatchedVersion: "1.2.3", FixAvailable: true, Title: "Prototype Pollution", CVE: "CVE-2020-7598"}
	newer := Alert{PackageName: "minimist", VulnerableVersions: "< 1.2.6", PatchedVersion: "1.2.6", FixAvailable: true, Title: "Prototype Pollution", CVE: "CVE-2021-44906"}
	c := newTestChecker(t, Options{Providers: []Provider{
		&fakeProvider{name: "osv", alerts: []Alert{older, newer}},
	}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.21"}}
	res, err := c.Check(context.Background(), m, CheckOptions{DepPaths: []string{"packages/*"}, Root: root})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 2 {
		t.Fatalf("Alerts = %+v, want both minimist advisories", res.Alerts)
	}
	if got := consolidate(res.Overrides); len(got) != 1 || got[0].ToVersion != "1.2.6" {
		t.Errorf("consolidated overrides = %+v, want minimist pinned to 1.2.6", got)
	}
}

func TestCheckInteractive(t *testing.T) {
	p := &fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}
	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}

	c := newTestChecker(t, Options{Providers: []Provider{p}})
	if _, err := c.Check(context.Background(), m, CheckOptions{Interactive: true}); !pserrors.Is(err, pserrors.ErrCodeInvalidInput) {
		t.Errorf("interactive without prompter: error = %v, want INVALID_INPUT", err)
	}
	if p.calls.Load() != 0 {
		t.Error("validation should happen before any provider call")
	}

	prompter := &fakePrompter{pick: func([]Override) []Override { return nil }}
	c = newTestChecker(t, Options{Providers: []Provider{p}, Prompter: prompter})
	res, err := c.Check(context.Background(), m, CheckOptions{Interactive: true})
	if err != nil {
		t.Fatal(err)
	}
	if !prompter.called {
		t.Error("prompter should be consulted")
	}
	if len(res.Overrides) != 1 {
		t.Error("Result.Overrides lists proposals regardless of selection")
	}
}

func TestCheckVerifierDropsUnpublishedTargets(t *testing.T) {
	qs := Alert{PackageName: "qs", VulnerableVersions: "< 6.5.3", PatchedVersion: "6.5.3", FixAvailable: true, Title: "x"}
	minimist := Alert{PackageName: "minimist", VulnerableVersions: "< 1.2.6", PatchedVersion: "1.2.6", FixAvailable: true, Title: "y"}
	c := newTestChecker(t, Options{
		Providers: []Provider{&fakeProvider{name: "osv", alerts: []Alert{lodashAlert, qs, minimist}}},
		Verifier:  fakeVerifier{"lodash@4.17.21": true, "qs@6.5.3": false},
	})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20", "qs": "6.5.0", "minimist": "1.2.0"}}
	res, err := c.Check(context.Background(), m, CheckOptions{})
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, o := range res.Overrides {
		names = append(names, o.PackageName)
	}
	// qs is confirmed missing, minimist lookup failed and is kept
	if len(names) != 2 || names[0] != "lodash" || names[1] != "minimist" {
		t.Errorf("overrides after verification = %v", names)
	}
}

func TestCheckWorkspaces(t *testing.T) {
	root := t.TempDir()
	write := func(rel, content string) {
		p := filepath.Join(root, rel)
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("packages/api/package.json", `{"dependencies": {"minimist": "^1.2.0"}}`)
	write("packages/web/package.json", `{"dependencies": {"lodash": "4.17.20"}}`)
	write("packages/broken/package.json", `{not json`)
	write("packages/web/node_modules/qs/package.json", `{"dependencies": {"qs": "6.5.0"}}`)

	minimist := Alert{PackageName: "minimist", VulnerableVersions: "< 1.2.6", PatchedVersion: "1.2.6", FixAvailable: true, Title: "Prototype Pollution"}
	qs := Alert{PackageName: "qs", VulnerableVersions: "< 6.5.3", PatchedVersion: "6.5.3", FixAvailable: true, Title: "DoS"}
	c := newTestChecker(t, Options{Providers: []Provider{
		&fakeProvider{name: "osv", alerts: []Alert{lodashAlert, minimist, qs}},
	}})

	m := &manifest.Manifest{Dependencies: map[string]string{"lodash": "4.17.20"}}
	res, err := c.Check(context.Background(), m, CheckOptions{DepPaths: []string{"packages/**"}, Root: root})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}

	got := map[string]string{}
	for _, a := range res.Alerts {
		if _, dup := got[a.PackageName]; dup {
			t.Errorf("duplicate (package, version) for %s", a.PackageName)
		}
		got[a.PackageName] = a.CurrentVersion
	}
	if len(got) != 2 || got["lodash"] != "4.17.20" || got["minimist"] != "1.2.0" {
		t.Errorf("Alerts = %v, want lodash and minimist (qs lives in node_modules)", got)
	}
}

func TestFindWorkspaceManifests(t *testing.T) {
	root := t.TempDir()
	for _, rel := range []string{"packages/a/package.json", "packages/b/package.json", "apps/c/package.json"} {
		p := filepath.Join(root, rel)
		_ = os.MkdirAll(filepath.Dir(p), 0o755)
		_ = os.WriteFile(p, []byte("{}"), 0o644)
	}

	paths, err := FindWorkspaceManifests(root, []string{"packages/*", "apps/*/package.json", "packages/a"})
	if err != nil {
		t.Fatal(err)
	}
	if len(paths) != 3 {
		t.Errorf("FindWorkspaceManifests() = %v, want 3 unique paths", paths)
	}

	if _, err := FindWorkspaceManifests(root, []string{"../outside/*"}); !pserrors.Is(err, pserrors.ErrCodeInvalidPath) {
		t.Errorf("escaping pattern error = %v, want INVALID_PATH", err)
	}
}

func TestCheckAutoFix(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "package.json")
	if err := os.WriteFile(path, []byte(`{"name":"web","dependencies":{"lodash":"^4.17.20"}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := manifest.Read(path)
	if err != nil {
		t.Fatal(err)
	}

	c := newTestChecker(t, Options{Providers: []Provider{&fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}}})
	res, err := c.Check(context.Background(), m, CheckOptions{AutoFix: true})
	if err != nil {
		t.Fatalf("Check() error: %v", err)
	}
	if res.BackupPath == "" || len(res.Applied) != 1 {
		t.Fatalf("auto-fix result = %+v", res)
	}
	if _, err := os.Stat(res.BackupPath); err != nil {
		t.Errorf("backup missing: %v", err)
	}

	updated, err := manifest.Read(path)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Overrides["lodash"] != "4.17.21" {
		t.Errorf("overrides = %v", updated.Overrides)
	}
	entry, ok := updated.Appendix()["lodash@4.17.21"]
	if !ok || entry.Ledger == nil || entry.Ledger.SecurityProvider != "osv" {
		t.Errorf("appendix entry = %+v", entry)
	}
}

func TestCheckAutoFixWriteFailure(t *testing.T) {
	c := newTestChecker(t, Options{Providers: []Provider{&fakeProvider{name: "osv", alerts: []Alert{lodashAlert}}}})
	m := &manifest.Manifest{
		Dependencies: map[string]string{"lodash": "4.17.20"},
		Path:         filepath.Join(t.TempDir(), "gone", "package.json"),
	}
	_, err := c.Check(context.Background(), m, CheckOptions{AutoFix: true})
	if !pserrors.Is(err, pserrors.ErrCodeManifestWrite) {
		t.Errorf("error = %v, want MANIFEST_WRITE", err)
	}
}
