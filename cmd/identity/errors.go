package identity

import (
	"context"
	"errors"
	"fmt"
)

// OpError is a typed operation error with a stable Op + Kind contract for callers/tests.
// Kind is one of the sentinel kinds. Err is the optional underlying cause; it is
// reachable through errors.Is/As but never carries secrets.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// conflictFieldID marks a primary-key collision between stores and the
// manager. It never leaves the package as a ConflictError.
const conflictFieldID = "id"

var errIDCollision = errors.New("principal id collision")

// ConflictError reports a uniqueness conflict for a specific logical field.
// Field is a stable logical name: "handle" or "contact".
type ConflictError struct {
	Op    string
	Field string
}

func (e ConflictError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", e.Op, ErrDuplicatePrincipal)
	}
	return fmt.Sprintf("%s: %v: %s", e.Op, ErrDuplicatePrincipal, e.Field)
}

func (e ConflictError) Unwrap() error { return ErrDuplicatePrincipal }

// Classify returns the sentinel kind carried by err, or nil if err is nil or unclassified.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// ConflictField returns the conflicting field of a duplicate registration, if known.
func ConflictField(err error) (string, bool) {
	var ce ConflictError
	if !errors.As(err, &ce) {
		return "", false
	}
	return ce.Field, true
}

// unavailable wraps an I/O failure. Context errors become ErrCanceled so callers
// can tell client aborts from database outages.
func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OpError{Op: op, Kind: ErrCanceled, Err: err}
	}
	return OpError{Op: op, Kind: ErrStoreUnavailable, Err: err}
}

func invalid(op, msg string) error {
	return OpError{Op: op, Kind: ErrInvalidInput, Err: errors.New(msg)}
}

// IsDuplicate reports whether err represents ErrDuplicatePrincipal (including ConflictError).
func IsDuplicate(err error) bool { return errors.Is(err, ErrDuplicatePrincipal) }

// IsNoSuchPendingActivation reports whether err represents ErrNoSuchPendingActivation.
func IsNoSuchPendingActivation(err error) bool { return errors.Is(err, ErrNoSuchPendingActivation) }

// IsInvalidCredentials reports whether err represents ErrInvalidCredentials.
func IsInvalidCredentials(err error) bool { return errors.Is(err, ErrInvalidCredentials) }

// IsMalformedHash reports whether err represents ErrMalformedHash.
func IsMalformedHash(err error) bool { return errors.Is(err, ErrMalformedHash) }

// IsStoreUnavailable reports whether err represents ErrStoreUnavailable.
func IsStoreUnavailable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }

// IsNotFound reports whether err represents ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsInvalidInput reports whether err represents ErrInvalidInput.
func IsInvalidInput(err error) bool { return errors.Is(err, ErrInvalidInput) }
