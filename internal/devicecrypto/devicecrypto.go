// Package devicecrypto encrypts and decrypts stored device API keys with a
// single process-wide AES-GCM key, per §6's "encrypted at rest with a
// process-wide symmetric key" requirement. The AES-GCM shape is grounded on
// the pack's telemetry EncryptPayload helper (nonce-prefixed ciphertext,
// crypto/rand nonce, no key material ever logged).
package devicecrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
)

// KeySize is the required length, in bytes, of the symmetric key file.
// AES-256 needs exactly 32 key bytes.
const KeySize = 32

// Cipher encrypts/decrypts device API keys with one fixed key for the
// lifetime of the process.
type Cipher struct {
	gcm cipher.AEAD
}

// LoadFromFile reads the key file at path, requiring §6's 600-permission
// contract, and builds a Cipher.
func LoadFromFile(path string) (*Cipher, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("devicecrypto: stat key file: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		return nil, fmt.Errorf("devicecrypto: key file %s has overly permissive mode %o, want 600", path, perm)
	}

	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("devicecrypto: reading key file: %w", err)
	}
	return New(key)
}

// New builds a Cipher from a raw key, typically read from a key file or
// environment variable in tests.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("devicecrypto: key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("devicecrypto: building cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("devicecrypto: building GCM: %w", err)
	}
	return &Cipher{gcm: gcm}, nil
}

// GenerateKey returns a fresh random 32-byte key, for key-file provisioning
// tooling.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("devicecrypto: generating key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext, returning nonce-prefixed ciphertext suitable for
// storage in Device.EncryptedAPIKey.
func (c *Cipher) Encrypt(plaintext string) ([]byte, error) {
	nonce := make([]byte, c.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("devicecrypto: generating nonce: %w", err)
	}
	return c.gcm.Seal(nonce, nonce, []byte(plaintext), nil), nil
}

// Decrypt opens ciphertext previously produced by Encrypt.
func (c *Cipher) Decrypt(ciphertext []byte) (string, error) {
	nonceSize := c.gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return "", fmt.Errorf("devicecrypto: ciphertext too short")
	}
	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := c.gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("devicecrypto: decrypting: %w", err)
	}
	return string(plaintext), nil
}
