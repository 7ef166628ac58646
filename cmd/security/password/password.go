package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"

	"pastr/cmd/security/secret"
)

const (
	argon2Version = 19 // argon2.Version is 0x13 (19)
)

// Hasher hashes and verifies passwords with fixed Argon2id parameters.
// It holds no mutable state and is safe for concurrent use.
//
// The pepper is applied as HMAC-SHA256(pepper, password) before Argon2id,
// not through Argon2's secret (K) input, which x/crypto/argon2 does not
// expose. Hashes produced here therefore do not interoperate with
// libargon2 hashes keyed by a secret, and vice versa.
type Hasher struct {
	params Argon2idParams
}

// New validates params and returns a Hasher.
// Invalid parameter combinations fail with ErrHasherInit.
func New(params Argon2idParams) (*Hasher, error) {
	if err := params.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHasherInit, err)
	}
	return &Hasher{params: params}, nil
}

// Params returns the parameters used for new hashes.
func (h *Hasher) Params() Argon2idParams { return h.params }

// Hash hashes a password under pepper and returns an encoded hash string.
// A fresh random salt is drawn for every call.
// Format:
// $argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
func (h *Hasher) Hash(password []byte, pepper secret.Pepper) (string, error) {
	if pepper.Empty() {
		return "", fmt.Errorf("%w: empty pepper", ErrHasherInit)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("salt: %w", err)
	}

	key := derive(password, pepper, salt, h.params, h.params.KeyLength)

	b64 := base64.RawStdEncoding
	enc := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2Version,
		h.params.MemoryKiB,
		h.params.Iterations,
		h.params.Parallelism,
		b64.EncodeToString(salt),
		b64.EncodeToString(key),
	)
	clear(key)

	return enc, nil
}

// Verify checks password against encoded under pepper.
// Returns nil for a match, ErrInvalidCredentials for a mismatch (including a
// wrong pepper) and ErrMalformedHash for malformed or unsupported hashes.
func (h *Hasher) Verify(password []byte, encoded string, pepper secret.Pepper) error {
	if pepper.Empty() {
		return fmt.Errorf("%w: empty pepper", ErrHasherInit)
	}

	params, salt, expected, err := decode(encoded)
	if err != nil {
		return err
	}

	// Anti-DoS boundary: refuse to verify if params exceed our configured maximums
	// by a large margin.
	if !withinReasonableBounds(params, h.params) {
		return ErrMalformedHash
	}

	key := derive(password, pepper, salt, params, uint32(len(expected))) // #nosec G115 -- bounded by withinReasonableBounds.
	defer clear(key)

	if subtle.ConstantTimeCompare(key, expected) == 1 {
		return nil
	}
	return ErrInvalidCredentials
}

// NeedsRehash reports whether encoded was produced with weaker parameters
// than the hasher's current ones.
func (h *Hasher) NeedsRehash(encoded string) (bool, error) {
	params, _, _, err := decode(encoded)
	if err != nil {
		return false, err
	}
	return params.MemoryKiB < h.params.MemoryKiB ||
		params.Iterations < h.params.Iterations ||
		params.Parallelism < h.params.Parallelism ||
		params.SaltLength < h.params.SaltLength ||
		params.KeyLength < h.params.KeyLength, nil
}

// derive runs Argon2id over the pepper-keyed password.
func derive(password []byte, pepper secret.Pepper, salt []byte, p Argon2idParams, keyLen uint32) []byte {
	keyed := pepper.Key(password)
	defer clear(keyed)

	return argon2.IDKey(keyed, salt, p.Iterations, p.MemoryKiB, p.Parallelism, keyLen)
}

func withinReasonableBounds(got Argon2idParams, limits Argon2idParams) bool {
	// Allow verifying hashes generated with older/smaller settings,
	// but reject wildly larger settings.
	if uint64(got.MemoryKiB) > uint64(limits.MemoryKiB)*2 {
		return false
	}
	if uint64(got.Iterations) > uint64(limits.Iterations)*2 {
		return false
	}
	if uint16(got.Parallelism) > uint16(limits.Parallelism)*2 {
		return false
	}
	if got.SaltLength < 8 || got.SaltLength > 64 {
		return false
	}
	if got.KeyLength < 16 || got.KeyLength > 128 {
		return false
	}
	return true
}

// decode parses the encoded hash and returns params, salt and expected key.
func decode(encoded string) (Argon2idParams, []byte, []byte, error) {
	// Expected:
	// $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}

	if parts[2] != "v=19" {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}

	mem, it, par, ok := parseParams(parts[3])
	if !ok {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}
	if mem == 0 || it == 0 || par == 0 || par > 255 || mem < 8*par {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}

	b64 := base64.RawStdEncoding
	salt, err := b64.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}
	hash, err := b64.DecodeString(parts[5])
	if err != nil || len(hash) == 0 {
		return Argon2idParams{}, nil, nil, ErrMalformedHash
	}

	params := Argon2idParams{
		MemoryKiB:   mem,
		Iterations:  it,
		Parallelism: uint8(par),        // #nosec G115 -- par <= 255 checked above.
		SaltLength:  uint32(len(salt)), // #nosec G115 -- bounded by the encoded string length.
		KeyLength:   uint32(len(hash)), // #nosec G115 -- bounded by the encoded string length.
	}

	return params, salt, hash, nil
}

// parseParams reads "m=<n>,t=<n>,p=<n>" exactly: no spaces, signs, leading
// zeros or trailing bytes.
func parseParams(seg string) (mem, it, par uint32, ok bool) {
	fields := strings.Split(seg, ",")
	if len(fields) != 3 {
		return 0, 0, 0, false
	}
	var vals [3]uint32
	for i, key := range [3]string{"m", "t", "p"} {
		k, v, found := strings.Cut(fields[i], "=")
		if !found || k != key {
			return 0, 0, 0, false
		}
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil || strconv.FormatUint(n, 10) != v {
			return 0, 0, 0, false
		}
		vals[i] = uint32(n)
	}
	return vals[0], vals[1], vals[2], true
}
