package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters — OWASP 2025 recommendation.
const (
	hashIterations  = 3
	hashMemoryKiB   = 64 * 1024
	hashParallelism = 1
	hashLen         = 32
	saltLen         = 16
)

// phc is a decoded $argon2id$... hash string.
type phc struct {
	iterations  uint32
	memoryKiB   uint32
	parallelism uint8
	salt        []byte
	hash        []byte
}

// HashPassword derives an Argon2id hash of password and encodes it in PHC
// string form ($argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>).
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}
	sum := argon2.IDKey([]byte(password), salt,
		hashIterations, hashMemoryKiB, hashParallelism, hashLen)

	b64 := base64.RawStdEncoding
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, hashMemoryKiB, hashIterations, hashParallelism,
		b64.EncodeToString(salt), b64.EncodeToString(sum),
	), nil
}

// VerifyPassword reports whether password matches the stored PHC hash.
// The comparison is constant time.
func VerifyPassword(password, stored string) (bool, error) {
	p, err := parsePHC(stored)
	if err != nil {
		return false, err
	}
	candidate := argon2.IDKey([]byte(password), p.salt,
		p.iterations, p.memoryKiB, p.parallelism,
		uint32(len(p.hash))) //nolint:gosec // G115: hash length fits uint32
	return subtle.ConstantTimeCompare(p.hash, candidate) == 1, nil
}

// parsePHC splits and decodes an Argon2id PHC string. Hashes produced by
// other algorithms or malformed strings are rejected.
func parsePHC(stored string) (phc, error) {
	var p phc

	fields := strings.Split(stored, "$")
	if len(fields) != 6 { //nolint:mnd // "", algo, version, params, salt, hash
		return p, fmt.Errorf("invalid PHC hash format")
	}
	if fields[1] != "argon2id" {
		return p, fmt.Errorf("unsupported algorithm: %s", fields[1])
	}

	var version int
	if _, err := fmt.Sscanf(fields[2], "v=%d", &version); err != nil { //nolint:govet // shadowed err
		return p, fmt.Errorf("parsing version: %w", err)
	}
	if _, err := fmt.Sscanf(fields[3], "m=%d,t=%d,p=%d",
		&p.memoryKiB, &p.iterations, &p.parallelism); err != nil { //nolint:govet // shadowed err
		return p, fmt.Errorf("parsing parameters: %w", err)
	}

	var err error
	if p.salt, err = base64.RawStdEncoding.DecodeString(fields[4]); err != nil {
		return p, fmt.Errorf("decoding salt: %w", err)
	}
	if p.hash, err = base64.RawStdEncoding.DecodeString(fields[5]); err != nil {
		return p, fmt.Errorf("decoding hash: %w", err)
	}
	return p, nil
}
