// Package secret holds the process-wide password pepper.
//
// The pepper is loaded once at startup and handed to the components that
// need it by value. It is never persisted, and every formatting path
// (fmt verbs, slog, JSON, text encoding) renders it as "[REDACTED]".
//
// Environment:
// - PASTR_PEPPER: pepper bytes (taken as-is after trimming surrounding whitespace).
package secret
