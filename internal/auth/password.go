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

// scrypt cost parameters; keyLen matches the 64 byte hashes already stored.
const (
	scryptN      = 16384
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 64
	saltBytes    = 16
)

var ErrMalformedHash = errors.New("malformed password hash")

// HashPassword derives a salted scrypt hash and returns it as "hexhash.salt".
func HashPassword(password string) (string, error) {
	raw := make([]byte, saltBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}
	salt := hex.EncodeToString(raw)

	key, err := scrypt.Key([]byte(password), []byte(salt), scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("failed to derive password hash: %w", err)
	}
	return hex.EncodeToString(key) + "." + salt, nil
}

// ComparePassword recomputes the hash of supplied with the stored salt and
// compares it in constant time.
func ComparePassword(supplied, stored string) (bool, error) {
	hashed, salt, ok := strings.Cut(stored, ".")
	if !ok || hashed == "" || salt == "" {
		return false, ErrMalformedHash
	}
	expected, err := hex.DecodeString(hashed)
	if err != nil {
		return false, ErrMalformedHash
	}

	key, err := scrypt.Key([]byte(supplied), []byte(salt), scryptN, scryptR, scryptP, len(expected))
	if err != nil {
		return false, fmt.Errorf("failed to derive password hash: %w", err)
	}
	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}
