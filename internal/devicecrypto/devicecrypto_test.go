package devicecrypto

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	c, err := New(key)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ciphertext, err := c.Encrypt("super-secret-api-key")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plaintext != "super-secret-api-key" {
		t.Errorf("round trip mismatch: got %q", plaintext)
	}
}

func TestEncrypt_ProducesDistinctCiphertexts(t *testing.T) {
	key, _ := GenerateKey()
	c, _ := New(key)

	a, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	b, err := c.Encrypt("same-plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("expected distinct ciphertexts for identical plaintext due to random nonce")
	}
}

func TestGenerateKey_Size(t *testing.T) {
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != KeySize {
		t.Errorf("GenerateKey() len = %d, want %d", len(key), KeySize)
	}
}

func TestNew_RejectsWrongKeySize(t *testing.T) {
	_, err := New(make([]byte, 16))
	if err == nil {
		t.Fatal("expected an error for a 16-byte key")
	}
}

func TestDecrypt_RejectsShortCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	c, _ := New(key)
	_, err := c.Decrypt([]byte("short"))
	if err == nil {
		t.Fatal("expected an error for a too-short ciphertext")
	}
}

func TestDecrypt_RejectsTamperedCiphertext(t *testing.T) {
	key, _ := GenerateKey()
	c, _ := New(key)
	ciphertext, _ := c.Encrypt("message")
	tampered := make([]byte, len(ciphertext))
	copy(tampered, ciphertext)
	tampered[len(tampered)-1] ^= 0xFF

	_, err := c.Decrypt(tampered)
	if err == nil {
		t.Fatal("expected tampered ciphertext to fail authentication")
	}
}

func TestLoadFromFile_RejectsGroupReadablePermissions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	key, _ := GenerateKey()
	if err := os.WriteFile(path, key, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected an error for a group-readable key file")
	}
}

func TestLoadFromFile_Succeeds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "key")
	key, _ := GenerateKey()
	if err := os.WriteFile(path, key, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	c, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if _, err := c.Encrypt("probe"); err != nil {
		t.Fatalf("Encrypt after LoadFromFile: %v", err)
	}
}
