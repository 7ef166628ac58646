package identity

import (
	"time"

	"github.com/google/uuid"
)

// PrincipalID is an opaque, random (UUIDv4, 122 random bits) principal identity.
// The zero value is not a valid identity.
type PrincipalID uuid.UUID

// NewPrincipalID draws a fresh random identity.
func NewPrincipalID() (PrincipalID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return PrincipalID{}, err
	}
	return PrincipalID(u), nil
}

// ParsePrincipalID parses the canonical textual form. Anything else, including
// the nil UUID, fails with ErrInvalidInput.
func ParsePrincipalID(s string) (PrincipalID, error) {
	u, err := uuid.Parse(s)
	if err != nil || u == uuid.Nil {
		return PrincipalID{}, invalid("identity.ParsePrincipalID", "malformed principal id")
	}
	return PrincipalID(u), nil
}

func (id PrincipalID) String() string { return uuid.UUID(id).String() }

// IsZero reports whether id is the zero value.
func (id PrincipalID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

func (id PrincipalID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *PrincipalID) UnmarshalText(b []byte) error {
	parsed, err := ParsePrincipalID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Principal is an account capable of authenticating.
// PasswordHash is an encoded Argon2id string, never a cleartext-adjacent value.
type Principal struct {
	ID          PrincipalID
	Handle      string
	HandleNorm  string
	Contact     string
	ContactNorm string

	PasswordHash string
	Activated    bool

	CreatedAt   time.Time
	ActivatedAt *time.Time
}

// Credentials is the login view of a principal.
type Credentials struct {
	PrincipalID  PrincipalID
	PasswordHash string
	Activated    bool
}

// RegisterInput describes a registration request.
// Password is wiped by Register before it returns.
type RegisterInput struct {
	Handle   string
	Contact  string
	Password []byte
}

// LoginResult reports who authenticated. Whether an unactivated principal may
// proceed is the caller's policy.
type LoginResult struct {
	PrincipalID PrincipalID
	Activated   bool
}
