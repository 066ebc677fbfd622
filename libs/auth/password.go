package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadCredentials = errors.New("bad credentials")

func HashPassword(raw string, cost int) (string, error) {
	if cost == 0 {
		cost = 12
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Credentials is the single configured admin account. Exactly one of
// PasswordHash (bcrypt) or Password (plaintext) is expected.
type Credentials struct {
	Username     string
	PasswordHash string
	Password     string
}

func (c Credentials) Check(username, password string) error {
	if !safeEqual(strings.TrimSpace(username), c.Username) {
		return ErrBadCredentials
	}
	if c.PasswordHash != "" {
		if err := bcrypt.CompareHashAndPassword([]byte(c.PasswordHash), []byte(password)); err != nil {
			return ErrBadCredentials
		}
		return nil
	}
	if c.Password == "" || !safeEqual(password, c.Password) {
		return ErrBadCredentials
	}
	return nil
}

// safeEqual compares digests so the comparison time does not depend on
// where the inputs differ or on their lengths.
func safeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
