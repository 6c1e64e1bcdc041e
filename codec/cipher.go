// codec/cipher.go
package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	gk_errors "github.com/atlas-iam/gatekeeper/errors"
)

// Cipher encodes and decodes symmetric-cipher tokens: a JSON payload
// sealed with AES-GCM and wrapped in URL-safe base64. The secret is
// normalized to a 32-byte key, so any configured string works.
type Cipher struct {
	key []byte
}

// NewCipher derives the AES key from the configured secret.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, gk_errors.Wrap(gk_errors.ErrConfig, "cipher secret is empty")
	}
	key := sha256.Sum256([]byte(secret))
	return &Cipher{key: key[:]}, nil
}

// Encode seals v as JSON into an opaque token.
func (c *Cipher) Encode(v any) (string, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return "", err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens a token into out. Any failure (bad key, corrupted
// ciphertext, malformed JSON) is reported as ErrInvalidAuth.
func (c *Cipher) Decode(token string, out any) error {
	sealed, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid token encoding: %v", err)
	}
	block, err := aes.NewCipher(c.key)
	if err != nil {
		return gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid cipher key: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "invalid cipher mode: %v", err)
	}
	nonceSize := gcm.NonceSize()
	if len(sealed) < nonceSize {
		return gk_errors.Wrap(gk_errors.ErrInvalidAuth, "ciphertext too short")
	}
	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "cannot decrypt token: %v", err)
	}
	if err := json.Unmarshal(plaintext, out); err != nil {
		return gk_errors.Wrapf(gk_errors.ErrInvalidAuth, "malformed token payload: %v", err)
	}
	return nil
}
