package crypto

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = seed + byte(i)
	}
	return key
}

func TestNewEncryptorRejectsBadKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 31, 33, 64} {
		if _, err := NewEncryptor(make([]byte, n)); err != ErrInvalidKey {
			t.Errorf("key length %d: error = %v, want ErrInvalidKey", n, err)
		}
	}
	if _, err := NewEncryptor(testKey(1)); err != nil {
		t.Errorf("32-byte key rejected: %v", err)
	}
}

func TestEncryptDecryptRoundtrip(t *testing.T) {
	enc, err := NewEncryptor(testKey(1))
	if err != nil {
		t.Fatalf("NewEncryptor failed: %v", err)
	}

	tests := []struct {
		name      string
		plaintext string
	}{
		{"openai key", "sk-proj-abc123def456ghi789"},
		{"gemini key", "AIzaSyD-fake-key-for-tests"},
		{"empty", ""},
		{"unicode", "clé-secrète-🔐"},
		{"long", strings.Repeat("a", 10000)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ciphertext, err := enc.Encrypt(tt.plaintext)
			if err != nil {
				t.Fatalf("Encrypt failed: %v", err)
			}
			if tt.plaintext == "" {
				if ciphertext != "" {
					t.Errorf("empty plaintext encrypted to %q", ciphertext)
				}
				return
			}
			if ciphertext == tt.plaintext {
				t.Error("ciphertext equals plaintext")
			}

			decrypted, err := enc.Decrypt(ciphertext)
			if err != nil {
				t.Fatalf("Decrypt failed: %v", err)
			}
			if decrypted != tt.plaintext {
				t.Errorf("roundtrip = %q, want %q", decrypted, tt.plaintext)
			}
		})
	}
}

func TestEncryptUsesFreshNonces(t *testing.T) {
	enc, _ := NewEncryptor(testKey(1))

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		ct, err := enc.Encrypt("same provider key")
		if err != nil {
			t.Fatalf("Encrypt failed: %v", err)
		}
		if seen[ct] {
			t.Fatal("duplicate ciphertext, nonce reuse")
		}
		seen[ct] = true
	}
}

func TestDecryptWithWrongKey(t *testing.T) {
	enc1, _ := NewEncryptor(testKey(1))
	enc2, _ := NewEncryptor(testKey(100))

	ciphertext, _ := enc1.Encrypt("sk-secret")
	if _, err := enc2.Decrypt(ciphertext); err == nil {
		t.Error("decrypt with a different key succeeded")
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	enc, _ := NewEncryptor(testKey(1))
	ciphertext, _ := enc.Encrypt("sk-secret")
	data, _ := base64.StdEncoding.DecodeString(ciphertext)

	tests := []struct {
		name   string
		tamper func([]byte) []byte
	}{
		{"flipped nonce bit", func(d []byte) []byte { d[0] ^= 1; return d }},
		{"flipped payload bit", func(d []byte) []byte { d[len(d)/2] ^= 1; return d }},
		{"flipped tag bit", func(d []byte) []byte { d[len(d)-1] ^= 1; return d }},
		{"truncated", func(d []byte) []byte { return d[:len(d)-5] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tampered := tt.tamper(bytes.Clone(data))
			if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString(tampered)); err == nil {
				t.Error("tampered ciphertext accepted")
			}
		})
	}
}

func TestDecryptInvalidInput(t *testing.T) {
	enc, _ := NewEncryptor(testKey(1))

	if got, err := enc.Decrypt(""); err != nil || got != "" {
		t.Errorf("Decrypt(\"\") = %q, %v; want empty, nil", got, err)
	}
	if _, err := enc.Decrypt("not-base64!!!"); err == nil {
		t.Error("invalid base64 accepted")
	}
	if _, err := enc.Decrypt(base64.StdEncoding.EncodeToString(make([]byte, 12))); err == nil {
		t.Error("nonce-only input accepted")
	}
}
