package service

import (
	"strings"

	"github.com/lixenwraith/auth"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes new passwords and verifies stored ones.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, hash string) error
}

// Argon2Hasher writes Argon2id PHC hashes. It also accepts bcrypt hashes
// written by earlier deployments.
type Argon2Hasher struct{}

func NewHasher() *Argon2Hasher {
	return &Argon2Hasher{}
}

func (Argon2Hasher) Hash(password string) (string, error) {
	return auth.HashPassword(password)
}

func (Argon2Hasher) Verify(password, hash string) error {
	if isBcrypt(hash) {
		return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	}
	return auth.VerifyPassword(password, hash)
}

func isBcrypt(hash string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			return true
		}
	}
	return false
}
