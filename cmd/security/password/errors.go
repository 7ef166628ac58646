package password

import "errors"

// Public, stable errors for callers.
var (
	// ErrHasherInit reports a configuration fault (bad parameters or empty pepper).
	// It is fatal at startup and never a per-request condition.
	ErrHasherInit = errors.New("password hasher init")

	// ErrMalformedHash reports an encoded hash that cannot be parsed or is outside
	// verification bounds. It signals corrupt storage, not a wrong password.
	ErrMalformedHash = errors.New("malformed password hash")

	// ErrInvalidCredentials reports a digest mismatch (wrong password or wrong pepper).
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
)
