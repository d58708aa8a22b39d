// Package cli implements the pastoralist command-line interface.
//
// # Commands
//
//   - check: query security providers and propose or apply overrides
//   - rollback, backups: restore package.json from an auto-fix backup
//   - providers: show which providers are ready to use
//   - cache: manage the HTTP response cache
//
// # Configuration
//
// Settings come from .pastoralist.toml in the project root, overridden by
// PASTORALIST_* environment variables, overridden by flags. Provider tokens
// are also read from GITHUB_TOKEN, SNYK_TOKEN and SOCKET_SECURITY_API_KEY.
//
// # Logging
//
// All commands support --verbose (-v) for debug-level logging, which also
// logs provider, cache and HTTP events. Loggers are passed through
// context.Context.
package cli

import (
	"context"
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/pastoralist/pkg/observability"
)

// newLogger creates a new logger with timestamp formatting.
// The logger writes to w and filters messages at the specified level.
// Timestamps are formatted as "HH:MM:SS.ms" (e.g., "14:32:01.45").
func newLogger(w io.Writer, level log.Level) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      "15:04:05.00",
		Level:           level,
	})
}

// progress tracks the start time of an operation and logs completion with elapsed duration.
// It is safe for sequential use by a single goroutine; concurrent calls to done will race.
type progress struct {
	logger *log.Logger
	start  time.Time
}

// newProgress creates a progress tracker that captures the current time as start.
// The returned progress should call done when the operation completes.
func newProgress(l *log.Logger) *progress {
	return &progress{logger: l, start: time.Now()}
}

// done logs msg along with the elapsed time since progress was created.
// The duration is rounded to the nearest millisecond.
// Example output: "Checked 42 dependencies (1.234s)"
func (p *progress) done(msg string) {
	p.logger.Infof("%s (%s)", msg, time.Since(p.start).Round(time.Millisecond))
}

// ctxKey is the type for context keys used in this package.
// Using a distinct type prevents collisions with other packages.
type ctxKey int

// loggerKey is the context key for storing a logger.
const loggerKey ctxKey = 0

// withLogger returns a new context with the given logger attached.
// The logger can be retrieved later with loggerFromContext.
func withLogger(ctx context.Context, l *log.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// loggerFromContext retrieves the logger from ctx.
// If no logger is attached, it returns log.Default().
// This ensures commands always have a valid logger even if context setup fails.
func loggerFromContext(ctx context.Context) *log.Logger {
	if l, ok := ctx.Value(loggerKey).(*log.Logger); ok {
		return l
	}
	return log.Default()
}

// loggingHooks forwards observability events to the debug log.
type loggingHooks struct {
	logger *log.Logger
}

// registerLoggingHooks routes security, cache and HTTP events to l. The CLI
// calls it under --verbose.
func registerLoggingHooks(l *log.Logger) {
	h := loggingHooks{logger: l}
	observability.SetSecurityHooks(h)
	observability.SetCacheHooks(h)
	observability.SetHTTPHooks(h)
}

func (h loggingHooks) OnProviderStart(_ context.Context, provider string, packages int) {
	h.logger.Debug("provider start", "provider", provider, "packages", packages)
}

func (h loggingHooks) OnProviderComplete(_ context.Context, provider string, alerts int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("provider failed", "provider", provider, "duration", d.Round(time.Millisecond), "err", err)
		return
	}
	h.logger.Debug("provider done", "provider", provider, "alerts", alerts, "duration", d.Round(time.Millisecond))
}

func (h loggingHooks) OnOverridesApplied(_ context.Context, path string, count int) {
	h.logger.Debug("overrides applied", "path", path, "count", count)
}

func (h loggingHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "type", keyType)
}

func (h loggingHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "type", keyType)
}

func (h loggingHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "type", keyType, "bytes", size)
}

func (h loggingHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("http request", "method", method, "host", host, "path", path)
}

func (h loggingHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("http response", "method", method, "host", host, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h loggingHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("http error", "method", method, "host", host, "path", path, "err", err)
}
