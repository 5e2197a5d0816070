package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

// Argon2id parameters (OWASP recommendation).
const (
	argonTime    = 3         // iterations
	argonMemory  = 64 * 1024 // 64 MiB
	argonThreads = 1         // parallelism
	argonKeyLen  = 32        // output hash length
	argonSaltLen = 16        // salt length

	phcParts = 6

	// Ceilings on parameters read back from a stored hash. Anything above
	// them is treated as corrupt rather than handed to the KDF.
	maxArgonMemory  = 1024 * 1024 // 1 GiB
	maxArgonTime    = 16
	maxArgonThreads = 16
	maxArgonKeyLen  = 128
	maxArgonSaltLen = 64
)

// bcrypt hashes written by the previous generation of the service.
var bcryptPrefixes = []string{"$2a$", "$2b$", "$2y$"}

var errMalformedHash = errors.New("malformed password hash")

// HashPassword hashes a plaintext password using Argon2id and returns it
// in PHC string format: $argon2id$v=19$m=65536,t=3,p=1$<salt>$<hash>
//
// A fresh random salt is drawn on every call, so hashing the same password
// twice yields different strings.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory, argonTime, argonThreads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword reports whether password matches the stored hash.
// Argon2id PHC strings and legacy bcrypt hashes are accepted. Any malformed
// or unknown hash simply does not match.
func VerifyPassword(password, encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return bcrypt.CompareHashAndPassword([]byte(encodedHash), []byte(password)) == nil
	}

	salt, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, params.time, params.memory, params.threads, uint32(len(key))) //nolint:gosec // G115: key length always fits uint32
	return subtle.ConstantTimeCompare(key, candidate) == 1
}

// dummyHash is verified against when a login names no known user, so the
// response takes as long as a real password check.
var dummyHash = sync.OnceValue(func() string {
	hash, err := HashPassword("smartpot-unknown-user")
	if err != nil {
		panic(fmt.Sprintf("auth: hashing dummy password: %v", err))
	}
	return hash
})

// DummyHash returns an Argon2id hash of a fixed password that is never
// stored for a user. The first call pays for one HashPassword.
func DummyHash() string {
	return dummyHash()
}

// NeedsRehash reports whether a stored hash should be replaced with a fresh
// HashPassword result after the next successful login.
func NeedsRehash(encodedHash string) bool {
	if isBcrypt(encodedHash) {
		return true
	}
	_, key, params, err := decodePHC(encodedHash)
	if err != nil {
		return true
	}
	return params.time < argonTime ||
		params.memory < argonMemory ||
		len(key) < argonKeyLen
}

func isBcrypt(hash string) bool {
	for _, p := range bcryptPrefixes {
		if strings.HasPrefix(hash, p) {
			return true
		}
	}
	return false
}

type argonParams struct {
	time    uint32
	memory  uint32
	threads uint8
}

// decodePHC parses an Argon2id PHC string into its components.
func decodePHC(encoded string) (salt, key []byte, params argonParams, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != phcParts || parts[0] != "" {
		return nil, nil, params, errMalformedHash
	}
	if parts[1] != "argon2id" {
		return nil, nil, params, fmt.Errorf("%w: unsupported algorithm %q", errMalformedHash, parts[1])
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, params, fmt.Errorf("%w: version: %w", errMalformedHash, err)
	}
	if version != argon2.Version {
		return nil, nil, params, fmt.Errorf("%w: version %d", errMalformedHash, version)
	}

	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, params, fmt.Errorf("%w: parameters: %w", errMalformedHash, err)
	}
	if params.time == 0 || params.threads == 0 {
		return nil, nil, params, fmt.Errorf("%w: zero cost parameter", errMalformedHash)
	}
	if params.memory > maxArgonMemory || params.time > maxArgonTime || params.threads > maxArgonThreads {
		return nil, nil, params, fmt.Errorf("%w: cost parameters out of range", errMalformedHash)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, params, fmt.Errorf("%w: salt: %w", errMalformedHash, err)
	}
	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, params, fmt.Errorf("%w: key: %w", errMalformedHash, err)
	}
	if len(key) == 0 || len(key) > maxArgonKeyLen || len(salt) > maxArgonSaltLen {
		return nil, nil, params, fmt.Errorf("%w: key or salt length", errMalformedHash)
	}

	return salt, key, params, nil
}
