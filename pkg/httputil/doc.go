// Package httputil provides the retry primitive used by vulnerability
// providers and registry clients.
//
// # Retry
//
// [Retry] wraps a fallible operation with bounded exponential backoff:
//
//	alerts, err := httputil.Retry(ctx, fetch, httputil.RetryOptions{
//	    Retries:    3,
//	    Factor:     2,
//	    MinTimeout: time.Second,
//	    MaxTimeout: 10 * time.Second,
//	})
//
// The delay before retry n is min(MinTimeout * Factor^(n-1), MaxTimeout).
// OnFailedAttempt runs after every failure, OnRetry after it when another
// attempt follows. When retries run out the last error comes back wrapped in
// an [AttemptError] carrying AttemptNumber and RetriesLeft (always 0 there).
//
// # Transient errors
//
// HTTP clients wrap transient failures (network errors, 5xx, 429) with
// [RetryableError]. [RetryWithBackoff] retries only those, 3 attempts with a
// 1 second initial delay that doubles each time.
package httputil
