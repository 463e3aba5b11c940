package accounts

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize   = 16
	keySize    = 32
	iterations = 100000
)

// ErrMalformedCiphertext is returned when an encrypted credential cannot be
// decoded back into salt, nonce and payload
var ErrMalformedCiphertext = errors.New("malformed encrypted credential")

// Cipher encrypts credentials at rest with AES-GCM. The key is derived from
// the process-wide master secret per credential, with a fresh random salt, so
// two encryptions of the same password never collide.
type Cipher struct {
	masterSecret []byte
}

// NewCipher creates a credential cipher keyed by the master secret
func NewCipher(masterSecret string) (*Cipher, error) {
	if masterSecret == "" {
		return nil, errors.New("master secret must not be empty")
	}
	return &Cipher{masterSecret: []byte(masterSecret)}, nil
}

// Encrypt seals a plaintext credential into a base64 string
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	buf := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	buf = append(buf, salt...)
	buf = append(buf, nonce...)
	buf = append(buf, sealed...)

	return base64.URLEncoding.EncodeToString(buf), nil
}

// Decrypt opens an encrypted credential. Callers must only do this
// transiently at the point of use and never persist or log the result.
func (c *Cipher) Decrypt(encrypted string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encrypted)
	if err != nil {
		return "", ErrMalformedCiphertext
	}
	if len(raw) < saltSize {
		return "", ErrMalformedCiphertext
	}

	salt := raw[:saltSize]
	gcm, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	rest := raw[saltSize:]
	if len(rest) < gcm.NonceSize() {
		return "", ErrMalformedCiphertext
	}
	nonce, sealed := rest[:gcm.NonceSize()], rest[gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.masterSecret, salt, iterations, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}
