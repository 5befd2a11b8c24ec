package storage

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// EncryptionMagicHeader prefixes every encrypted backup.
	EncryptionMagicHeader = "PKDXENC1"

	defaultArgon2Time    = 1
	defaultArgon2Memory  = 64 * 1024 // KB
	defaultArgon2Threads = 4
	argon2KeyLen         = 32 // AES-256

	saltLength   = 32
	gcmNonceSize = 12
	gcmTagSize   = 16
)

// EncryptionConfig holds the passphrase and Argon2id cost parameters.
type EncryptionConfig struct {
	Password string

	// Argon2Time is the number of passes. Default: 1
	Argon2Time uint32

	// Argon2Memory is the memory cost in KB. Default: 64 MB
	Argon2Memory uint32

	// Argon2Threads is the parallelism. Default: 4
	Argon2Threads uint8
}

// DefaultEncryptionConfig returns encryption config with the RFC 9106
// second recommended parameter set.
func DefaultEncryptionConfig(password string) *EncryptionConfig {
	return &EncryptionConfig{
		Password:      password,
		Argon2Time:    defaultArgon2Time,
		Argon2Memory:  defaultArgon2Memory,
		Argon2Threads: defaultArgon2Threads,
	}
}

func (c *EncryptionConfig) gcm(salt []byte) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(c.Password), salt, c.Argon2Time, c.Argon2Memory, c.Argon2Threads, argon2KeyLen)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// EncryptData encrypts plaintext with AES-256-GCM under a key derived from the
// passphrase. Output layout: header || salt || nonce || ciphertext+tag.
func EncryptData(plaintext []byte, config *EncryptionConfig) ([]byte, error) {
	if config == nil || config.Password == "" {
		return nil, fmt.Errorf("encryption config with password required")
	}

	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	aead, err := config.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	out := make([]byte, 0, len(EncryptionMagicHeader)+len(salt)+len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, EncryptionMagicHeader...)
	out = append(out, salt...)
	out = append(out, nonce...)
	return aead.Seal(out, nonce, plaintext, nil), nil
}

// DecryptData reverses EncryptData.
func DecryptData(sealed []byte, config *EncryptionConfig) ([]byte, error) {
	if config == nil || config.Password == "" {
		return nil, fmt.Errorf("encryption config with password required")
	}
	if !IsEncrypted(sealed) {
		return nil, fmt.Errorf("data is not an encrypted backup")
	}

	body := sealed[len(EncryptionMagicHeader):]
	if len(body) < saltLength+gcmNonceSize+gcmTagSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	salt := body[:saltLength]
	aead, err := config.gcm(salt)
	if err != nil {
		return nil, err
	}
	nonce := body[saltLength : saltLength+aead.NonceSize()]
	ciphertext := body[saltLength+aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted data): %w", err)
	}
	return plaintext, nil
}

// IsEncrypted reports whether data starts with the backup encryption header.
func IsEncrypted(data []byte) bool {
	return bytes.HasPrefix(data, []byte(EncryptionMagicHeader))
}
