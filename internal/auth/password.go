package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters — OWASP 2025 recommendation. Stored hashes carry
// their own parameters, so these can be raised without invalidating
// existing credentials.
const (
	hashIterations  = 3
	hashMemoryKiB   = 64 * 1024
	hashParallelism = 1
	hashDigestLen   = 32
	hashSaltLen     = 16
)

// phc is a decoded $argon2id$... hash string.
type phc struct {
	version     int
	memoryKiB   uint32
	iterations  uint32
	parallelism uint8
	salt        []byte
	digest      []byte
}

// HashPassword hashes a plaintext password with Argon2id and encodes the
// result in PHC string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<digest>
func HashPassword(password string) (string, error) {
	salt := make([]byte, hashSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	digest := argon2.IDKey([]byte(password), salt, hashIterations, hashMemoryKiB, hashParallelism, hashDigestLen)

	encoded := fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		hashMemoryKiB, hashIterations, hashParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(digest),
	)
	return encoded, nil
}

// VerifyPassword checks a plaintext password against a stored PHC hash.
// The stored hash's own parameters are used for the comparison.
func VerifyPassword(password, encodedHash string) (bool, error) {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), p.salt, p.iterations, p.memoryKiB, p.parallelism, uint32(len(p.digest))) //nolint:gosec // G115: digest length always fits uint32

	return subtle.ConstantTimeCompare(p.digest, candidate) == 1, nil
}

// NeedsRehash reports whether a stored hash was produced with weaker
// parameters than the current ones and should be regenerated on the
// next successful login.
func NeedsRehash(encodedHash string) bool {
	p, err := parsePHC(encodedHash)
	if err != nil {
		return true
	}
	return p.iterations != hashIterations ||
		p.memoryKiB != hashMemoryKiB ||
		p.parallelism != hashParallelism ||
		len(p.digest) != hashDigestLen
}

// parsePHC decodes an $argon2id$ PHC string.
func parsePHC(encoded string) (*phc, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 { //nolint:mnd // PHC format has exactly 6 $-delimited parts
		return nil, fmt.Errorf("invalid PHC hash format")
	}
	if parts[1] != "argon2id" {
		return nil, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	p := &phc{}
	if _, err := fmt.Sscanf(parts[2], "v=%d", &p.version); err != nil {
		return nil, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memoryKiB, &p.iterations, &p.parallelism); err != nil {
		return nil, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, fmt.Errorf("decoding salt: %w", err)
	}
	if p.digest, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, fmt.Errorf("decoding digest: %w", err)
	}
	return p, nil
}
