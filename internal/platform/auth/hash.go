package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// Hasher derives PBKDF2-SHA512 password hashes. Changing any parameter
// invalidates existing stored hashes.
type Hasher struct {
	Iterations int
	KeyLen     int
	SaltSize   int
}

// DefaultHasher is used for stored account passwords.
var DefaultHasher = Hasher{Iterations: 120000, KeyLen: 64, SaltSize: 32}

// Hash creates a "salt:hash" value, both base64 encoded.
func (h Hasher) Hash(source string) (string, error) {
	if source == "" {
		return "", errors.New("empty string provided to hash function")
	}

	salt := make([]byte, h.SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := pbkdf2.Key([]byte(source), salt, h.Iterations, h.KeyLen, sha512.New)
	return fmt.Sprintf("%s:%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(key)), nil
}

// IsHashOf reports whether stored was produced by Hash(source).
func (h Hasher) IsHashOf(stored, source string) bool {
	// a hash of an empty string is never a match
	if source == "" {
		return false
	}

	saltPart, hashPart, ok := strings.Cut(stored, ":")
	if !ok {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(saltPart)
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(hashPart)
	if err != nil {
		return false
	}

	got := pbkdf2.Key([]byte(source), salt, h.Iterations, len(want), sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
