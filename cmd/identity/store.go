package identity

import (
	"context"
	"time"
)

// Store is the account persistence boundary.
//
// Error contract:
//   - I/O failures are OpError{Kind: ErrStoreUnavailable} (or ErrCanceled when the
//     context ended); compound mutations are never partially applied.
//   - Lookups that miss return OpError{Kind: ErrNotFound}.
type Store interface {
	// InsertPending atomically inserts p (Activated=false) and its activation record.
	// A taken handle or contact yields ConflictError.
	InsertPending(ctx context.Context, p Principal) error

	// ActivationExists reports whether an activation record exists for id.
	ActivationExists(ctx context.Context, id PrincipalID) (bool, error)

	// CommitActivation atomically deletes the activation record and sets the
	// activation flag. If the record is already gone (a concurrent activation won)
	// it returns ErrNoSuchPendingActivation and changes nothing.
	CommitActivation(ctx context.Context, id PrincipalID, now time.Time) error

	// Credentials looks up the login view by normalized handle.
	Credentials(ctx context.Context, handleNorm string) (Credentials, error)

	// PendingByContact returns the id of a still-pending principal by normalized contact.
	PendingByContact(ctx context.Context, contactNorm string) (PrincipalID, error)

	// PrincipalByID returns the principal row.
	PrincipalByID(ctx context.Context, id PrincipalID) (Principal, error)
}
