// Package fieldcrypt encrypts individual column values at rest.
//
// Sealed values use XChaCha20-Poly1305 with a random nonce, so the same
// plaintext never produces the same ciphertext twice. Columns that need
// equality lookups or a unique index store a keyed HMAC blind index next to
// the ciphertext instead of relying on deterministic encryption.
package fieldcrypt

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted master secret
const MinSecretLength = 32

const (
	encryptionInfo = "jobboard/fieldcrypt/encryption"
	indexInfo      = "jobboard/fieldcrypt/blind-index"
)

var (
	ErrSecretTooShort = fmt.Errorf("fieldcrypt: secret must be at least %d characters", MinSecretLength)
	ErrMalformed      = errors.New("fieldcrypt: malformed sealed value")
)

// Cipher seals and opens field values and derives blind indexes
type Cipher struct {
	aead     cipher.AEAD
	indexKey []byte
}

// New derives the encryption and index keys from secret with HKDF-SHA256
func New(secret string) (*Cipher, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}

	encKey, err := deriveKey(secret, encryptionInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}

	indexKey, err := deriveKey(secret, indexInfo, sha256.Size)
	if err != nil {
		return nil, err
	}

	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init aead: %w", err)
	}

	return &Cipher{
		aead:     aead,
		indexKey: indexKey,
	}, nil
}

// MustNew is like New but panics on error
func MustNew(secret string) *Cipher {
	c, err := New(secret)
	if err != nil {
		panic(err)
	}
	return c
}

// Seal encrypts plaintext and returns base64(nonce || ciphertext)
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce: %w", err)
	}

	out := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.RawStdEncoding.EncodeToString(out), nil
}

// Open reverses Seal
func (c *Cipher) Open(sealed string) (string, error) {
	raw, err := base64.RawStdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrMalformed
	}

	ns := c.aead.NonceSize()
	if len(raw) < ns+c.aead.Overhead() {
		return "", ErrMalformed
	}

	plain, err := c.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", fmt.Errorf("fieldcrypt: open: %w", err)
	}
	return string(plain), nil
}

// Index returns the hex HMAC-SHA256 of value. Callers normalize value
// first, the index is exact-match only.
func (c *Cipher) Index(value string) string {
	mac := hmac.New(sha256.New, c.indexKey)
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(info))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("fieldcrypt: derive key: %w", err)
	}
	return key, nil
}
