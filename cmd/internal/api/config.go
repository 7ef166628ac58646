package api

import (
	"time"

	"pastr/cmd/security/password"
)

// Config controls account API behavior.
type Config struct {
	// BaseURL is the public origin used for activation links and redirects.
	BaseURL string

	MaxBodyBytes int64

	// OpTimeout bounds each account operation, including time spent waiting
	// for a hash worker.
	OpTimeout time.Duration

	// RequireActivation rejects logins of principals that are still pending.
	RequireActivation bool

	// Policy is applied to passwords chosen at registration.
	Policy password.Policy
}

func (c Config) withDefaults() Config {
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = 1 << 20 // 1 MiB
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = 5 * time.Second
	}
	if c.Policy.MinLength <= 0 && c.Policy.MaxLength <= 0 {
		c.Policy = password.DefaultConfig().Policy
	}
	return c
}
