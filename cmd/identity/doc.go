// Package identity implements the account lifecycle: registration of pending
// principals, one-time activation and password login.
//
// Principals are created Pending together with exactly one activation record
// and move to Activated exactly once, which removes the record. Both compound
// mutations are atomic in every Store implementation.
//
// Credential failures are opaque: an unknown handle and a wrong password
// produce the same error and roughly the same latency, and "already activated"
// is indistinguishable from "never registered".
package identity
