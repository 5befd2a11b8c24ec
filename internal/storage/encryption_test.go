package storage

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptData(t *testing.T) {
	tests := []struct {
		name      string
		plaintext string
		password  string
	}{
		{name: "simple text", plaintext: "Hello, World!", password: "test-password"},
		{name: "empty string", plaintext: "", password: "test-password"},
		{name: "long text", plaintext: string(make([]byte, 10000)), password: "secure-password-123"},
		{name: "special characters", plaintext: "Test with 中文 and émojis", password: "pássword-with-spëcial"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := fastEncryption(tt.password)

			sealed, err := EncryptData([]byte(tt.plaintext), config)
			if err != nil {
				t.Fatalf("EncryptData failed: %v", err)
			}
			if !IsEncrypted(sealed) {
				t.Error("Expected sealed data to carry the header")
			}
			if len(tt.plaintext) > 0 && bytes.Contains(sealed, []byte(tt.plaintext)) {
				t.Error("Sealed data contains the plaintext")
			}

			plain, err := DecryptData(sealed, config)
			if err != nil {
				t.Fatalf("DecryptData failed: %v", err)
			}
			if string(plain) != tt.plaintext {
				t.Errorf("Round trip mismatch: got %d bytes, want %d", len(plain), len(tt.plaintext))
			}
		})
	}
}

func TestEncryptData_SaltsDiffer(t *testing.T) {
	config := fastEncryption("pw")
	a, err := EncryptData([]byte("same"), config)
	if err != nil {
		t.Fatal(err)
	}
	b, err := EncryptData([]byte("same"), config)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(a, b) {
		t.Error("Expected two encryptions of the same input to differ")
	}
}

func TestDecryptData_Errors(t *testing.T) {
	config := fastEncryption("right")
	sealed, err := EncryptData([]byte("secret"), config)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := DecryptData(sealed, fastEncryption("wrong")); err == nil {
		t.Error("Expected wrong password to fail")
	}
	if _, err := DecryptData([]byte("plain sqlite bytes"), config); err == nil {
		t.Error("Expected unencrypted input to fail")
	}
	if _, err := DecryptData([]byte(EncryptionMagicHeader+"short"), config); err == nil {
		t.Error("Expected truncated data to fail")
	}
	if _, err := DecryptData(sealed, nil); err == nil {
		t.Error("Expected nil config to fail")
	}
	if _, err := EncryptData([]byte("x"), &EncryptionConfig{}); err == nil {
		t.Error("Expected error without password")
	}
}

func TestDefaultEncryptionConfig(t *testing.T) {
	c := DefaultEncryptionConfig("pw")
	if c.Argon2Time != defaultArgon2Time || c.Argon2Memory != defaultArgon2Memory || c.Argon2Threads != defaultArgon2Threads {
		t.Errorf("Unexpected defaults: %+v", c)
	}
}
