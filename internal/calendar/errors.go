package calendar

import "errors"

// All calendar errors are non-fatal to booking: callers catch them at the
// orchestrator boundary and degrade to a warning, never a rollback.
var (
	// ErrNotConfigured: the tenant never entered provider credentials.
	// Distinct from ErrAuthRequired, which means credentials exist but the
	// consent flow must be (re)run.
	ErrNotConfigured = errors.New("calendar provider not configured")

	// ErrAuthRequired: no usable token; the tenant must complete the
	// interactive consent flow. Never resolved automatically.
	ErrAuthRequired = errors.New("calendar authorization required")

	// ErrSessionExpired: the provider rejected the token mid-session. The
	// stored token has been cleared; re-auth is required.
	ErrSessionExpired = errors.New("calendar session expired")

	// ErrProviderUnavailable: network failure, timeout, or 5xx.
	ErrProviderUnavailable = errors.New("calendar provider unavailable")

	// ErrProviderError: the provider rejected the request for any other
	// reason.
	ErrProviderError = errors.New("calendar provider error")

	// ErrEventNotFound: the referenced external event no longer exists.
	ErrEventNotFound = errors.New("calendar event not found")
)

// IsNotConnected distinguishes "tenant has no usable calendar session" from
// an actual provider failure. The former is a normal state, not a problem.
func IsNotConnected(err error) bool {
	return errors.Is(err, ErrNotConfigured) || errors.Is(err, ErrAuthRequired) || errors.Is(err, ErrSessionExpired)
}
