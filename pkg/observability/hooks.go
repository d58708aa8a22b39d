// Package observability provides hooks for metrics, tracing, and logging.
//
// Library packages emit events through the registered hooks without knowing
// which backend (if any) consumes them. The defaults are no-ops; the CLI
// registers logging hooks under --verbose.
//
// Register hooks at application startup:
//
//	observability.SetSecurityHooks(&myHooks{})
//
// Libraries call hooks to emit events:
//
//	observability.Security().OnProviderStart(ctx, "osv", len(pkgs))
//	// ... fetch alerts ...
//	observability.Security().OnProviderComplete(ctx, "osv", len(alerts), time.Since(start), err)
package observability

import (
	"context"
	"sync"
	"time"
)

// =============================================================================
// Security Hooks
// =============================================================================

// SecurityHooks receives events from a security check.
type SecurityHooks interface {
	// OnProviderStart records a provider being queried for a set of packages.
	OnProviderStart(ctx context.Context, provider string, packages int)

	// OnProviderComplete records a provider finishing. err is non-nil when the
	// provider degraded to an empty result.
	OnProviderComplete(ctx context.Context, provider string, alerts int, duration time.Duration, err error)

	// OnOverridesApplied records an auto-fix write.
	OnOverridesApplied(ctx context.Context, manifestPath string, count int)
}

// =============================================================================
// Cache Hooks
// =============================================================================

// CacheHooks receives events from cache operations.
type CacheHooks interface {
	// OnCacheHit records a cache hit.
	OnCacheHit(ctx context.Context, keyType string)

	// OnCacheMiss records a cache miss.
	OnCacheMiss(ctx context.Context, keyType string)

	// OnCacheSet records a cache write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// =============================================================================
// HTTP Hooks
// =============================================================================

// HTTPHooks receives events from HTTP client operations.
type HTTPHooks interface {
	// OnRequest records an outgoing HTTP request.
	OnRequest(ctx context.Context, method, host, path string)

	// OnResponse records an HTTP response.
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)

	// OnError records an HTTP error (network failure, timeout).
	OnError(ctx context.Context, method, host, path string, err error)
}

// =============================================================================
// No-op Implementations
// =============================================================================

// NoopSecurityHooks is a no-op implementation of SecurityHooks.
type NoopSecurityHooks struct{}

func (NoopSecurityHooks) OnProviderStart(context.Context, string, int) {}
func (NoopSecurityHooks) OnProviderComplete(context.Context, string, int, time.Duration, error) {
}
func (NoopSecurityHooks) OnOverridesApplied(context.Context, string, int) {}

// NoopCacheHooks is a no-op implementation of CacheHooks.
type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

// NoopHTTPHooks is a no-op implementation of HTTPHooks.
type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}

// =============================================================================
// Global Hook Registry
// =============================================================================

var (
	securityHooks SecurityHooks = NoopSecurityHooks{}
	cacheHooks    CacheHooks    = NoopCacheHooks{}
	httpHooks     HTTPHooks     = NoopHTTPHooks{}
	hooksMu       sync.RWMutex
)

// SetSecurityHooks registers custom security hooks.
// This should be called once at application startup before any check runs.
func SetSecurityHooks(h SecurityHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		securityHooks = h
	}
}

// SetCacheHooks registers custom cache hooks.
// This should be called once at application startup before any cache operations.
func SetCacheHooks(h CacheHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		cacheHooks = h
	}
}

// SetHTTPHooks registers custom HTTP hooks.
// This should be called once at application startup before any HTTP operations.
func SetHTTPHooks(h HTTPHooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		httpHooks = h
	}
}

// Security returns the registered security hooks.
func Security() SecurityHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return securityHooks
}

// Cache returns the registered cache hooks.
func Cache() CacheHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return cacheHooks
}

// HTTP returns the registered HTTP hooks.
func HTTP() HTTPHooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return httpHooks
}

// Reset restores all hooks to their no-op defaults.
// This is primarily useful for testing.
func Reset() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	securityHooks = NoopSecurityHooks{}
	cacheHooks = NoopCacheHooks{}
	httpHooks = NoopHTTPHooks{}
}
