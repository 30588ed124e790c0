package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// scrypt parameters
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltLen      = 16
)

// ErrInvalidHash is returned when a stored hash is not "salt$hexkey".
var ErrInvalidHash = errors.New("invalid password hash format")

// HashPassword hashes a password as "<hex salt>$<hex scrypt key>".
// The hex salt string itself is the scrypt salt.
func HashPassword(password string) (string, error) {
	raw := make([]byte, saltLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	return hashWithSalt(password, hex.EncodeToString(raw))
}

func hashWithSalt(password, salt string) (string, error) {
	key, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return salt + "$" + hex.EncodeToString(key), nil
}

// VerifyPassword re-hashes password with the stored salt and compares in
// constant time.
func VerifyPassword(password, encoded string) (bool, error) {
	salt, want, ok := strings.Cut(encoded, "$")
	if !ok || salt == "" || want == "" {
		return false, ErrInvalidHash
	}
	if _, err := hex.DecodeString(want); err != nil {
		return false, ErrInvalidHash
	}

	rehashed, err := hashWithSalt(password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(rehashed), []byte(encoded)) == 1, nil
}
