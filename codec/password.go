// codec/password.go
package codec

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
)

// Password hashing defaults. Stored hashes look like
// "pbkdf2_sha256$80000$<salt>$<base64 digest>".
const (
	DefaultPasswordAlgorithm  = "pbkdf2_sha256"
	DefaultPasswordIterations = 80000
	DefaultPasswordKeyLength  = 32
	DefaultPasswordSaltBytes  = 6
)

// PasswordHasher derives and verifies salted password hashes with a
// versioned algorithm tag.
type PasswordHasher struct {
	Algorithm  string
	Iterations int
	KeyLength  int
	SaltBytes  int
}

// NewPasswordHasher returns a hasher with the default scheme.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{
		Algorithm:  DefaultPasswordAlgorithm,
		Iterations: DefaultPasswordIterations,
		KeyLength:  DefaultPasswordKeyLength,
		SaltBytes:  DefaultPasswordSaltBytes,
	}
}

// Hash derives a salted hash with a fresh random salt.
func (h *PasswordHasher) Hash(password string) string {
	salt := make([]byte, h.SaltBytes)
	_, _ = rand.Read(salt)
	return h.hashWith(password, h.Iterations, hex.EncodeToString(salt))
}

func (h *PasswordHasher) hashWith(password string, iterations int, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), iterations, h.KeyLength, sha256.New)
	digest := base64.StdEncoding.EncodeToString(key)
	return h.Algorithm + "$" + strconv.Itoa(iterations) + "$" + salt + "$" + digest
}

// Verify recomputes the candidate against the stored hash's algorithm,
// iterations and salt and compares in constant time. A stored value that
// does not split into exactly four segments, or whose algorithm tag does
// not match, fails with ErrInvalidAuth.
func (h *PasswordHasher) Verify(stored, candidate string) (bool, error) {
	parts := strings.SplitN(stored, "$", 4)
	if len(parts) != 4 {
		return false, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "malformed password hash")
	}
	algorithm, rawIterations, salt := parts[0], parts[1], parts[2]
	if algorithm != h.Algorithm {
		return false, gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "unexpected password algorithm: %s", algorithm)
	}
	iterations, err := strconv.Atoi(rawIterations)
	if err != nil || iterations < 1 {
		return false, gk_errors.Wrap(gk_errors.ErrInvalidAuth, "malformed password hash")
	}
	computed := h.hashWith(candidate, iterations, salt)
	return subtle.ConstantTimeCompare([]byte(stored), []byte(computed)) == 1, nil
}
