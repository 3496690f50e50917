package facade

import "errors"

// Error taxonomy for the completion surface. Callers receive either a
// usable response or exactly one of these, never both.
var (
	// ErrBackendUnavailable means every eligible backend failed for the
	// request, including the single cross-tier retry.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBudgetExceeded is soft: it is logged and reported, never used to
	// block a call.
	ErrBudgetExceeded = errors.New("daily budget exceeded")

	// ErrCacheUnavailable marks the cache degraded to always-miss.
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrConfigPersistence means a config mutation applied in memory but
	// could not be persisted; persistence is retried on the next update.
	ErrConfigPersistence = errors.New("config persistence failed")

	// ErrCancelled is a caller-initiated cancellation or timeout.
	ErrCancelled = errors.New("request cancelled")
)
