package users

import (
	"strings"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

const (
	passwordMinLength = 8
	passwordMaxLength = 128
	bcryptCost        = bcrypt.DefaultCost
)

// commonPasswords are rejected outright regardless of other rules.
var commonPasswords = map[string]bool{
	"password":    true,
	"password123": true,
	"123456":      true,
	"qwerty":      true,
	"admin":       true,
}

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// VerifyPassword reports whether password matches the stored hash.
func VerifyPassword(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// ValidatePasswordStrength checks length and character-class requirements.
// Returns a list of human-readable violations; empty means acceptable.
func ValidatePasswordStrength(password string) []string {
	var errs []string
	if len(password) < passwordMinLength {
		errs = append(errs, "Password must be at least 8 characters")
	}
	if len(password) > passwordMaxLength {
		errs = append(errs, "Password must be at most 128 characters")
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper {
		errs = append(errs, "Password must contain at least one uppercase letter")
	}
	if !hasLower {
		errs = append(errs, "Password must contain at least one lowercase letter")
	}
	if !hasDigit {
		errs = append(errs, "Password must contain at least one digit")
	}
	if commonPasswords[strings.ToLower(password)] {
		errs = append(errs, "Password is too common")
	}
	return errs
}
