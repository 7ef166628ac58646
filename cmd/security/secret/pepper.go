package secret

import (
	"crypto/hmac"
	"crypto/sha256"
	"log/slog"
	"os"
	"strings"
)

const (
	// PepperEnvKey is the env var name for the password pepper.
	// #nosec G101 -- not a credential; it's an environment variable name.
	PepperEnvKey = "PASTR_PEPPER"

	// MinPepperBytes is the default lower bound enforced by FromEnv callers.
	MinPepperBytes = 16

	redacted = "[REDACTED]"
)

// Pepper is a secret byte string mixed into password hashing as a key.
type Pepper []byte

// Parse trims raw and enforces a minimum byte length.
// Blank input -> ErrPepperMissing. Too short -> ErrPepperTooShort.
func Parse(raw string, minBytes int) (Pepper, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrPepperMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrPepperTooShort
	}
	return Pepper(b), nil
}

// FromEnv reads PASTR_PEPPER and validates it with Parse.
func FromEnv(minBytes int) (Pepper, error) {
	return Parse(os.Getenv(PepperEnvKey), minBytes)
}

// Empty reports whether no pepper bytes are present.
func (p Pepper) Empty() bool { return len(p) == 0 }

// Key derives the keyed input for a password: HMAC-SHA256(key=pepper, msg=password).
// The caller owns the returned slice and should clear it after use.
func (p Pepper) Key(password []byte) []byte {
	m := hmac.New(sha256.New, p)
	_, _ = m.Write(password)
	return m.Sum(nil)
}

func (p Pepper) String() string   { return redacted }
func (p Pepper) GoString() string { return redacted }

// LogValue keeps the pepper out of structured logs.
func (p Pepper) LogValue() slog.Value { return slog.StringValue(redacted) }

func (p Pepper) MarshalText() ([]byte, error) { return []byte(redacted), nil }

func (p Pepper) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }
