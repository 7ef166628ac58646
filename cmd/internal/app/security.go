package app

import (
	"errors"

	"pastr/cmd/security/secret"
)

// prodMinPepperBytes is the pepper floor outside development.
const prodMinPepperBytes = 32

// LoadPepper reads PASTR_PEPPER and enforces the length floor for the environment.
//
// Startup fails instead of running with a weak or missing pepper: every stored
// hash depends on it.
func LoadPepper(cfg Config) (secret.Pepper, error) {
	minBytes := secret.MinPepperBytes
	if cfg.Env == EnvProd {
		minBytes = prodMinPepperBytes
	}

	p, err := secret.FromEnv(minBytes)
	if err != nil {
		switch {
		case errors.Is(err, secret.ErrPepperMissing):
			return nil, errors.New("security policy: PASTR_PEPPER is missing")
		case errors.Is(err, secret.ErrPepperTooShort):
			if cfg.Env == EnvProd {
				return nil, errors.New("security policy: PASTR_PEPPER is too short (min 32 bytes in prod)")
			}
			return nil, errors.New("security policy: PASTR_PEPPER is too short (min 16 bytes)")
		default:
			return nil, err
		}
	}
	return p, nil
}
