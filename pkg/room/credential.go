package room

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost is the cost parameter for bcrypt hashing.
// Cost 10 provides a good balance between security and performance.
const DefaultBcryptCost = 10

// MaxPasswordLength is the maximum allowed password length.
// bcrypt rejects inputs longer than 72 bytes, so we enforce this limit
// up front with a clearer error.
const MaxPasswordLength = 72

// ErrPasswordTooLong is returned when a password exceeds the bcrypt limit.
var ErrPasswordTooLong = errors.New("password must be at most 72 characters")

// HashPassword creates a bcrypt hash of the given room password.
//
// Room passwords are shared secrets, not user credentials, so no minimum
// length is imposed; only the bcrypt upper bound is checked.
func HashPassword(password string) (string, error) {
	if len(password) > MaxPasswordLength {
		return "", ErrPasswordTooLong
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), DefaultBcryptCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}

// VerifyPassword checks if a password matches a bcrypt hash.
// The comparison is constant-time.
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// NeedsRehash checks if a hash needs to be regenerated, which happens when
// the cost parameter has been increased since the hash was created.
func NeedsRehash(hash string) bool {
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		return true
	}
	return cost < DefaultBcryptCost
}
