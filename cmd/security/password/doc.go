// Package password provides peppered password hashing and verification.
//
// It implements Argon2id hashing using a PHC encoded string format and includes:
// - Configurable Argon2id parameters (via environment variables)
// - A pepper applied as an HMAC-SHA256 key over the password before Argon2id
// - Password policy validation for callers that accept new passwords
// - Strict hash decoding and verification with anti-DoS bounds
//
// Security notes:
//   - The pepper never appears in the encoded string; a leaked hash string alone
//     cannot be verified offline.
//   - Hash strings are treated as untrusted input during Verify and are validated accordingly.
//   - Hash and Verify are CPU-bound and memory-hard; callers schedule them on a
//     bounded worker pool instead of the request goroutine.
package password
