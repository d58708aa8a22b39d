// Package osv queries the OSV.dev vulnerability database.
//
// The provider sends every dependency in one batch query, then fetches the
// full advisory for each vulnerability id. Advisory fetches run through a
// [concurrency.Limiter] and are memoized in an in-process LRU and the shared
// response cache.
//
// [concurrency.Limiter]: github.com/matzehuels/pastoralist/pkg/concurrency.Limiter
package osv

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/pastoralist/pkg/cache"
	"github.com/matzehuels/pastoralist/pkg/concurrency"
	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/httputil"
	"github.com/matzehuels/pastoralist/pkg/integrations"
	"github.com/matzehuels/pastoralist/pkg/security"
	"github.com/matzehuels/pastoralist/pkg/version"
)

const (
	// Name identifies the provider.
	Name = "osv"

	// DefaultBaseURL is the public OSV API.
	DefaultBaseURL = "https://api.osv.dev"

	ecosystem          = "npm"
	maxBatch           = 1000
	defaultConcurrency = 10
	defaultCacheTTL    = 24 * time.Hour
)

// Config configures the OSV provider.
type Config struct {
	BaseURL     string
	Strict      bool
	Concurrency int
	Cache       cache.Cache
	CacheTTL    time.Duration
	Logger      *log.Logger
}

// Provider fetches alerts from OSV.
type Provider struct {
	client  *integrations.Client
	baseURL string
	strict  bool
	limiter *concurrency.Limiter
	vulns   *cache.LRU[string, *Vulnerability]
	keyer   cache.Keyer
	logger  *log.Logger
}

// New creates an OSV provider.
func New(cfg Config) (*Provider, error) {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if err := pserrors.ValidateURL(cfg.BaseURL); err != nil {
		return nil, err
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	lim, err := concurrency.NewLimiter(cfg.Concurrency)
	if err != nil {
		return nil, err
	}
	return &Provider{
		client:  integrations.NewClient(cfg.Cache, "", cfg.CacheTTL, nil),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		strict:  cfg.Strict,
		limiter: lim,
		vulns:   cache.NewLRU[string, *Vulnerability](cache.LRUOptions{TTL: time.Hour}),
		keyer:   cache.NewDefaultKeyer(),
		logger:  cfg.Logger,
	}, nil
}

// Name returns "osv".
func (p *Provider) Name() string { return Name }

// Strict reports whether transport failures are returned as errors.
func (p *Provider) Strict() bool { return p.strict }

// FetchAlerts queries OSV for every package and returns one alert per
// (package, advisory) pair.
func (p *Provider) FetchAlerts(ctx context.Context, pkgs []security.Package) ([]security.Alert, error) {
	pkgs = p.queryable(pkgs)
	if len(pkgs) == 0 {
		return nil, nil
	}

	type hit struct {
		pkg security.Package
		id  string
	}
	var hits []hit
	for start := 0; start < len(pkgs); start += maxBatch {
		chunk := pkgs[start:min(start+maxBatch, len(pkgs))]
		results, err := p.queryBatch(ctx, chunk)
		if err != nil {
			return p.fail(err, "query batch")
		}
		for i, r := range results {
			if i >= len(chunk) {
				break
			}
			for _, v := range r.Vulns {
				hits = append(hits, hit{pkg: chunk[i], id: v.ID})
			}
		}
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(hits))
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if !seen[h.id] {
			seen[h.id] = true
			ids = append(ids, h.id)
		}
	}

	vulns, err := p.hydrate(ctx, ids)
	if err != nil {
		return p.fail(err, "fetch advisories")
	}

	alerts := make([]security.Alert, 0, len(hits))
	for _, h := range hits {
		v, ok := vulns[h.id]
		if !ok {
			continue
		}
		alerts = append(alerts, toAlert(h.pkg, v))
	}
	return alerts, nil
}

func (p *Provider) fail(err error, what string) ([]security.Alert, error) {
	if p.strict {
		return nil, pserrors.Wrap(pserrors.ErrCodeTransport, err, "osv %s", what)
	}
	p.logger.Warn("osv unavailable", "step", what, "err", err)
	return nil, nil
}

// queryable drops packages whose names npm itself would reject. Legacy
// mixed-case names are checked case-insensitively and sent unchanged.
func (p *Provider) queryable(pkgs []security.Package) []security.Package {
	out := pkgs[:0:0]
	for _, pkg := range pkgs {
		if err := pserrors.ValidateNpmPackageName(strings.ToLower(pkg.Name)); err != nil {
			p.logger.Warn("skipping package with invalid name", "name", pkg.Name, "err", pserrors.UserMessage(err))
			continue
		}
		out = append(out, pkg)
	}
	return out
}

func (p *Provider) queryBatch(ctx context.Context, pkgs []security.Package) ([]batchResult, error) {
	req := batchRequest{Queries: make([]query, len(pkgs))}
	for i, pkg := range pkgs {
		req.Queries[i] = query{Package: Package{Name: pkg.Name, Ecosystem: ecosystem}, Version: pkg.Version}
	}
	resp, err := httputil.Retry(ctx, func(ctx context.Context) (batchResponse, error) {
		var out batchResponse
		err := p.client.PostJSON(ctx, p.baseURL+"/v1/querybatch", req, &out)
		return out, err
	}, httputil.RetryOptions{
		Retries:     2,
		MinTimeout:  time.Second,
		MaxTimeout:  5 * time.Second,
		ShouldRetry: httputil.IsRetryable,
		OnRetry: func(ae *httputil.AttemptError, d time.Duration) {
			p.logger.Debug("retrying osv batch query", "attempt", ae.AttemptNumber, "delay", d, "err", ae.Err)
		},
	})
	if err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// hydrate fetches full advisories. Individual failures are logged and the
// advisory skipped; only a strict provider fails the whole call.
func (p *Provider) hydrate(ctx context.Context, ids []string) (map[string]*Vulnerability, error) {
	var (
		mu  sync.Mutex
		out = make(map[string]*Vulnerability, len(ids))
		g   errgroup.Group
	)
	for _, id := range ids {
		g.Go(func() error {
			v, err := concurrency.Run(ctx, p.limiter, func(ctx context.Context) (*Vulnerability, error) {
				return p.vulnerability(ctx, id)
			})
			if err != nil {
				if p.strict {
					return err
				}
				p.logger.Debug("skipping advisory", "id", id, "err", err)
				return nil
			}
			mu.Lock()
			out[id] = v
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *Provider) vulnerability(ctx context.Context, id string) (*Vulnerability, error) {
	if v, ok := p.vulns.Get(id); ok {
		return v, nil
	}
	var v Vulnerability
	err := p.client.Cached(ctx, p.keyer.AdvisoryKey(Name, id), false, &v, func() error {
		return p.client.Get(ctx, p.baseURL+"/v1/vulns/"+id, &v)
	})
	if err != nil {
		return nil, err
	}
	p.vulns.Set(id, &v)
	return &v, nil
}

func toAlert(pkg security.Package, v *Vulnerability) security.Alert {
	rng, fixed := affectedRange(pkg, v)
	severity := v.DatabaseSpecific.Severity
	if severity == "" {
		for _, a := range v.Affected {
			if a.DatabaseSpecific.Severity != "" {
				severity = a.DatabaseSpecific.Severity
				break
			}
		}
	}
	title := v.Summary
	if title == "" {
		title = v.ID
	}
	return security.Alert{
		PackageName:        pkg.Name,
		CurrentVersion:     pkg.Version,
		VulnerableVersions: rng,
		PatchedVersion:     fixed,
		Severity:           security.NormalizeSeverity(severity),
		Title:              title,
		Description:        v.Details,
		CVE:                cveOf(v),
		URL:                urlOf(v),
		FixAvailable:       fixed != "",
		Provider:           Name,
	}
}

// affectedRange returns the range string and fixed version of the interval
// that contains pkg.Version, or of the first interval if none does.
func affectedRange(pkg security.Package, v *Vulnerability) (string, string) {
	type interval struct{ rng, fixed string }
	var intervals []interval
	for _, a := range v.Affected {
		if !strings.EqualFold(a.Package.Name, pkg.Name) {
			continue
		}
		for _, r := range a.Ranges {
			if r.Type != "SEMVER" && r.Type != "ECOSYSTEM" {
				continue
			}
			introduced := "0"
			for _, e := range r.Events {
				switch {
				case e.Introduced != "":
					introduced = e.Introduced
				case e.Fixed != "":
					intervals = append(intervals, interval{version.Range(introduced, e.Fixed), e.Fixed})
				case e.LastAffected != "":
					intervals = append(intervals, interval{lastAffectedRange(introduced, e.LastAffected), ""})
				}
			}
		}
	}
	if len(intervals) == 0 {
		return "", ""
	}
	for _, iv := range intervals {
		if version.IsVulnerable(pkg.Version, iv.rng) {
			return iv.rng, iv.fixed
		}
	}
	return intervals[0].rng, intervals[0].fixed
}

func lastAffectedRange(introduced, last string) string {
	if introduced == "" || introduced == "0" {
		return "<= " + last
	}
	return ">= " + introduced + " <= " + last
}

func cveOf(v *Vulnerability) string {
	if strings.HasPrefix(v.ID, "CVE-") {
		return v.ID
	}
	for _, a := range v.Aliases {
		if strings.HasPrefix(a, "CVE-") {
			return a
		}
	}
	return ""
}

func urlOf(v *Vulnerability) string {
	for _, r := range v.References {
		if r.URL != "" {
			return r.URL
		}
	}
	return "https://osv.dev/vulnerability/" + v.ID
}
