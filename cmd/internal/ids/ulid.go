// Package ids generates ULIDs for request and delivery job identifiers.
//
// Principal identities are random UUIDs (see identity.PrincipalID); ULIDs are
// used only where time-sortable ids help correlate logs.
package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// NewULID returns a new ULID string (26 chars).
func NewULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}

	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// MustULID is NewULID for call sites without an error path (log correlation only).
// It falls back to the zero ULID if the random source fails.
func MustULID() string {
	id, err := NewULID(time.Time{})
	if err != nil {
		return ulid.ULID{}.String()
	}
	return id
}

// IsULID reports whether s is a well-formed ULID.
func IsULID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
