package auth

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashPassword(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	parts := strings.Split(hash, "$")
	if len(parts) != 2 {
		t.Fatalf("Hash should have 2 parts, got %d: %s", len(parts), hash)
	}
	if len(parts[0]) != 2*saltLen {
		t.Errorf("Salt should be %d hex chars, got %d", 2*saltLen, len(parts[0]))
	}
	key, err := hex.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("Key is not hex: %v", err)
	}
	if len(key) != scryptKeyLen {
		t.Errorf("Key should be %d bytes, got %d", scryptKeyLen, len(key))
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	password := "testpassword123"

	hash1, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	hash2, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	// Same password should produce different hashes (different salts)
	if hash1 == hash2 {
		t.Error("Same password should produce different hashes due to random salt")
	}
}

func TestVerifyPassword(t *testing.T) {
	password := "testpassword123"

	hash, err := HashPassword(password)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	valid, err := VerifyPassword(password, hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !valid {
		t.Error("Correct password should verify")
	}

	valid, err = VerifyPassword("wrongpassword", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if valid {
		t.Error("Wrong password should not verify")
	}
}

func TestVerifyPasswordDeterministicSalt(t *testing.T) {
	a, err := hashWithSalt("pw", "00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("hashWithSalt failed: %v", err)
	}
	b, err := hashWithSalt("pw", "00112233445566778899aabbccddeeff")
	if err != nil {
		t.Fatalf("hashWithSalt failed: %v", err)
	}
	if a != b {
		t.Error("Same salt and password should hash identically")
	}
	if !strings.HasPrefix(a, "00112233445566778899aabbccddeeff$") {
		t.Errorf("Hash should start with the salt, got %s", a)
	}
}

func TestVerifyPasswordInvalidHash(t *testing.T) {
	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"no separator", "not-a-valid-hash"},
		{"empty salt", "$abcd"},
		{"empty key", "salt$"},
		{"non-hex key", "salt$zzzz"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := VerifyPassword("password", tt.hash)
			if err == nil {
				t.Error("Expected error for invalid hash")
			}
		})
	}
}

func TestEmptyPassword(t *testing.T) {
	hash, err := HashPassword("")
	if err != nil {
		t.Fatalf("HashPassword failed for empty password: %v", err)
	}

	valid, err := VerifyPassword("", hash)
	if err != nil {
		t.Fatalf("VerifyPassword failed: %v", err)
	}
	if !valid {
		t.Error("Empty password should verify against its own hash")
	}

	valid, _ = VerifyPassword("notempty", hash)
	if valid {
		t.Error("Non-empty password should not verify against empty password hash")
	}
}
