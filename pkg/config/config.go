// Package config loads project settings from .pastoralist.toml.
//
// The file is optional. Command-line flags and environment variables are
// layered on top by the CLI; this package only knows the file format.
//
//	providers = ["osv", "github"]
//	strict = true
//	workspaces = ["packages/*"]
//
//	[github]
//	owner = "acme"
//	repo = "web"
//
//	[cache]
//	backend = "redis"
//	redis_url = "redis://localhost:6379/0"
//	ttl = "12h"
package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	pserrors "github.com/matzehuels/pastoralist/pkg/errors"
)

// FileName is the project config file looked up in the project root.
const FileName = ".pastoralist.toml"

// Cache backends.
const (
	CacheFile   = "file"
	CacheRedis  = "redis"
	CacheMemory = "memory"
	CacheNone   = "none"
)

// Config is the decoded .pastoralist.toml.
type Config struct {
	Providers      []string `toml:"providers"`
	Strict         bool     `toml:"strict"`
	Interactive    bool     `toml:"interactive"`
	AutoFix        bool     `toml:"auto_fix"`
	VerifyRegistry bool     `toml:"verify_registry"`
	Workspaces     []string `toml:"workspaces"`
	PackageManager string   `toml:"package_manager"`

	GitHub GitHub `toml:"github"`
	Snyk   Token  `toml:"snyk"`
	Socket Token  `toml:"socket"`
	OSV    OSV    `toml:"osv"`
	Cache  Cache  `toml:"cache"`

	// Path is the file the config was read from, empty for defaults.
	Path string `toml:"-"`
	// Warnings lists keys present in the file that no field consumed.
	Warnings []string `toml:"-"`
}

// GitHub selects the repository for Dependabot alerts. BaseURL points the
// REST fallback at a GitHub Enterprise API.
type GitHub struct {
	Owner   string `toml:"owner"`
	Repo    string `toml:"repo"`
	Token   string `toml:"token"`
	Mock    bool   `toml:"mock"`
	BaseURL string `toml:"base_url"`
}

// Token holds a provider credential.
type Token struct {
	Token string `toml:"token"`
}

// OSV tunes the OSV client.
type OSV struct {
	BaseURL     string `toml:"base_url"`
	Concurrency int    `toml:"concurrency"`
}

// Cache selects the persistent response cache.
type Cache struct {
	Backend  string        `toml:"backend"`
	RedisURL string        `toml:"redis_url"`
	TTL      time.Duration `toml:"ttl"`
}

// Default returns the settings used when no file exists.
func Default() Config {
	return Config{
		Providers: []string{"osv"},
		Cache:     Cache{Backend: CacheFile, TTL: 24 * time.Hour},
	}
}

// Load reads FileName from dir. A missing file yields Default.
func Load(dir string) (Config, error) {
	cfg, err := LoadFile(filepath.Join(dir, FileName))
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// LoadFile reads a config file. Values absent from the file keep their
// defaults.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, pserrors.Wrap(pserrors.ErrCodeInvalidInput, err, "parse %s", path)
	}
	for _, key := range md.Undecoded() {
		cfg.Warnings = append(cfg.Warnings, "unknown key "+key.String())
	}
	cfg.Path = path
	return cfg, cfg.Validate()
}

// Validate checks enumerated values.
func (c Config) Validate() error {
	switch strings.ToLower(c.Cache.Backend) {
	case "", CacheFile, CacheRedis, CacheMemory, CacheNone:
	default:
		return pserrors.New(pserrors.ErrCodeInvalidInput, "cache.backend must be file, redis, memory or none, got %q", c.Cache.Backend)
	}
	if strings.EqualFold(c.Cache.Backend, CacheRedis) && c.Cache.RedisURL == "" {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "cache.redis_url is required for the redis backend")
	}
	if c.OSV.Concurrency < 0 {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "osv.concurrency must be positive, got %d", c.OSV.Concurrency)
	}
	if c.Cache.TTL < 0 {
		return pserrors.New(pserrors.ErrCodeInvalidInput, "cache.ttl must not be negative")
	}
	for key, u := range map[string]string{"osv.base_url": c.OSV.BaseURL, "github.base_url": c.GitHub.BaseURL} {
		if u == "" {
			continue
		}
		if err := pserrors.ValidateURL(u); err != nil {
			return pserrors.Wrap(pserrors.ErrCodeInvalidInput, err, "%s", key)
		}
	}
	return nil
}
