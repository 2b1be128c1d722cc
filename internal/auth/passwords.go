// Package auth - passwords.go wraps bcrypt hashing for stored credentials.
// Only the hash is ever persisted; plaintext passwords never leave the request
// handler that received them.
package auth

import "golang.org/x/crypto/bcrypt"

// bcryptCost matches the work factor used when the password corpus was seeded.
const bcryptCost = 12

// HashPassword derives a bcrypt hash from a plaintext password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext password matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
