// Package encryption provides the authenticated cipher used to protect
// values written to the shared cache.
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/hkdf"
)

// Prefix marks a string produced by Encrypt. The version component lets the
// key or algorithm change without guessing at old payloads.
const Prefix = "enc:v1:"

const nonceSize = 16

var (
	ErrEmptySecret = errors.New("encryption: empty secret")
	ErrMalformed   = errors.New("encryption: malformed ciphertext")
	ErrAuth        = errors.New("encryption: authentication failed")
)

// Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives a 256-bit AES key from secret with HKDF-SHA256.
func New(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte("card-tracking cache v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("encryption: derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce. Two calls with the same
// input never return the same string.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize, nonceSize+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("encryption: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Any tampering with the payload, nonce or tag is
// reported as ErrAuth.
func (c *Cipher) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, Prefix) {
		return "", ErrMalformed
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(Prefix):])
	if err != nil {
		return "", ErrMalformed
	}
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrMalformed
	}
	nonce, sealed := raw[:nonceSize], raw[nonceSize:]
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrAuth
	}
	return string(plain), nil
}

func (c *Cipher) EncryptFloat(v float64) (string, error) {
	return c.Encrypt(strconv.FormatFloat(v, 'g', -1, 64))
}

func (c *Cipher) DecryptFloat(value string) (float64, error) {
	s, err := c.Decrypt(value)
	if err != nil {
		return 0, err
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrMalformed
	}
	return f, nil
}

// IsEncrypted reports whether s carries the ciphertext prefix.
func IsEncrypted(s string) bool { return strings.HasPrefix(s, Prefix) }
