package npm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/matzehuels/pastoralist/pkg/cache"
	"github.com/matzehuels/pastoralist/pkg/concurrency"
	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
	"github.com/matzehuels/pastoralist/pkg/integrations"
)

// DefaultBaseURL is the public npm registry.
const DefaultBaseURL = "https://registry.npmjs.org"

const defaultConcurrency = 8

// PackageInfo is the published version list of a package.
type PackageInfo struct {
	Name     string   `json:"name"`
	Latest   string   `json:"latest"`
	Versions []string `json:"versions"` // ascending semver order
}

// Has reports whether version is published.
func (p *PackageInfo) Has(version string) bool {
	_, ok := slices.BinarySearchFunc(p.Versions, version, compareVersions)
	if ok {
		return true
	}
	return slices.Contains(p.Versions, version)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	Cache       cache.Cache
	CacheTTL    time.Duration
	Concurrency int
}

// Client reads package metadata from the npm registry. Lookups share a
// concurrency limit and are memoized per package.
type Client struct {
	*integrations.Client
	baseURL  string
	limiter  *concurrency.Limiter
	packages *cache.LRU[string, *PackageInfo]
}

// NewClient creates a registry client.
func NewClient(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if err := pserrors.ValidateURL(opts.BaseURL); err != nil {
		return nil, err
	}
	if opts.Concurrency == 0 {
		opts.Concurrency = defaultConcurrency
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = time.Hour
	}
	lim, err := concurrency.NewLimiter(opts.Concurrency)
	if err != nil {
		return nil, err
	}
	headers := map[string]string{"Accept": "application/vnd.npm.install-v1+json"}
	return &Client{
		Client:   integrations.NewClient(opts.Cache, "npm:", opts.CacheTTL, headers),
		baseURL:  opts.BaseURL,
		limiter:  lim,
		packages: cache.NewLRU[string, *PackageInfo](cache.LRUOptions{TTL: opts.CacheTTL}),
	}, nil
}

// FetchPackage returns the published versions of pkg. If refresh is true,
// cached data is bypassed.
func (c *Client) FetchPackage(ctx context.Context, pkg string, refresh bool) (*PackageInfo, error) {
	pkg = integrations.NormalizePkgName(pkg)
	if err := pserrors.ValidateNpmPackageName(pkg); err != nil {
		return nil, err
	}
	if !refresh {
		if info, ok := c.packages.Get(pkg); ok {
			return info, nil
		}
	}
	info, err := concurrency.Run(ctx, c.limiter, func(ctx context.Context) (*PackageInfo, error) {
		var info PackageInfo
		err := c.Cached(ctx, pkg, refresh, &info, func() error {
			return c.fetch(ctx, pkg, &info)
		})
		return &info, err
	})
	if err != nil {
		return nil, err
	}
	c.packages.Set(pkg, info)
	return info, nil
}

func (c *Client) fetch(ctx context.Context, pkg string, info *PackageInfo) error {
	var data registryResponse
	if err := c.Get(ctx, c.baseURL+"/"+integrations.EscapePackagePath(pkg), &data); err != nil {
		if errors.Is(err, integrations.ErrNotFound) {
			return fmt.Errorf("%w: npm package %s", err, pkg)
		}
		return err
	}
	versions := slices.Collect(maps.Keys(data.Versions))
	slices.SortFunc(versions, compareVersions)
	*info = PackageInfo{
		Name:     data.Name,
		Latest:   data.DistTags.Latest,
		Versions: versions,
	}
	return nil
}

// VersionExists reports whether name has a published version matching
// version. An exact version must be published as-is; a range such as
// "^4.17.21" must be satisfied by at least one published version. An
// unknown package reports false without error.
func (c *Client) VersionExists(ctx context.Context, name, version string) (bool, error) {
	info, err := c.FetchPackage(ctx, name, false)
	if errors.Is(err, integrations.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if info.Has(version) {
		return true, nil
	}
	if _, err := semver.StrictNewVersion(version); err == nil {
		return false, nil
	}
	_, ok, err := Resolve(info, version)
	return ok, err
}

// Resolve returns the highest published stable version satisfying
// constraint. Prereleases are only considered when the constraint names one.
func Resolve(info *PackageInfo, constraint string) (string, bool, error) {
	if constraint == "latest" && info.Latest != "" {
		return info.Latest, true, nil
	}
	cons, err := semver.NewConstraint(constraint)
	if err != nil {
		return "", false, fmt.Errorf("npm: invalid version range %q: %w", constraint, err)
	}
	for i := len(info.Versions) - 1; i >= 0; i-- {
		v, err := semver.NewVersion(info.Versions[i])
		if err != nil {
			continue
		}
		if cons.Check(v) {
			return info.Versions[i], true, nil
		}
	}
	return "", false, nil
}

// compareVersions orders semver strings, placing unparsable ones first in
// lexical order.
func compareVersions(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	switch {
	case errA != nil && errB != nil:
		if a < b {
			return -1
		} else if a > b {
			return 1
		}
		return 0
	case errA != nil:
		return -1
	case errB != nil:
		return 1
	}
	return va.Compare(vb)
}

type registryResponse struct {
	Name     string              `json:"name"`
	DistTags distTags            `json:"dist-tags"`
	Versions map[string]struct{} `json:"versions"`
}

type distTags struct {
	Latest string `json:"latest"`
}
