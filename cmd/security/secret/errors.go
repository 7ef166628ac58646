package secret

import "errors"

// Public, stable errors for callers.
var (
	ErrPepperMissing  = errors.New("pepper missing")
	ErrPepperTooShort = errors.New("pepper too short")
)
