package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	// ErrInvalidInput reports a caller bug (empty handle, zero id, ...).
	ErrInvalidInput = errors.New("invalid_input")

	// ErrDuplicatePrincipal reports that the handle or contact is already taken.
	ErrDuplicatePrincipal = errors.New("duplicate_principal")

	// ErrNoSuchPendingActivation covers both "already activated" and "never registered".
	ErrNoSuchPendingActivation = errors.New("no_such_pending_activation")

	// ErrInvalidCredentials covers both "unknown handle" and "wrong password".
	ErrInvalidCredentials = errors.New("invalid_credentials")

	// ErrMalformedHash reports a corrupt stored password hash. Not retryable.
	ErrMalformedHash = errors.New("malformed_hash")

	// ErrStoreUnavailable reports a persistence I/O failure. Retryable by the caller.
	ErrStoreUnavailable = errors.New("store_unavailable")

	// ErrCanceled reports that the caller's context ended before the operation completed.
	// Compound mutations are never half-applied when this is returned.
	ErrCanceled = errors.New("canceled")

	// ErrHasherInit reports a hasher/pepper configuration fault. Fatal at startup.
	ErrHasherInit = errors.New("hasher_init")

	// ErrNotFound is returned by Store lookups. The Manager never surfaces it from
	// Login or Activate; it maps it to the opaque credential kinds.
	ErrNotFound = errors.New("not_found")
)

// kinds is ordered most specific first; Classify returns the first match.
var kinds = []error{
	ErrHasherInit,
	ErrMalformedHash,
	ErrDuplicatePrincipal,
	ErrNoSuchPendingActivation,
	ErrInvalidCredentials,
	ErrInvalidInput,
	ErrNotFound,
	ErrCanceled,
	ErrStoreUnavailable,
}
