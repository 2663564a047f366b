package domain

import (
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// User is the core user entity. Email is stored normalized (trimmed, lower-cased).
// CurrentOrgID is a cached default for org resolution and is never authoritative.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	CurrentOrgID string
	Status       UserStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserStatus string

const (
	UserStatusActive   UserStatus = "active"
	UserStatusDisabled UserStatus = "disabled"
)

// NormalizeEmail returns the canonical form used for storage and comparison.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Validate validates the user for persistence. Returns an error describing the first validation failure.
func (u *User) Validate() error {
	if u.Email == "" {
		return errors.New("email is required")
	}
	if u.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if u.Status == "" {
		u.Status = UserStatusActive
	}
	return nil
}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail checks the shape of an already normalized address.
func ValidateEmail(email string) error {
	if email == "" {
		return errors.New("email is required")
	}
	if len(email) > 254 || !emailPattern.MatchString(email) {
		return errors.New("invalid email format")
	}
	return nil
}

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 8

// ValidatePassword enforces the password policy: at least MinPasswordLength characters
// including a letter and a digit, and at most 72 bytes (the bcrypt input limit).
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least 8 characters")
	}
	if len(password) > 72 {
		return errors.New("password must be at most 72 bytes")
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter {
		return errors.New("password must contain at least one letter")
	}
	if !hasDigit {
		return errors.New("password must contain at least one number")
	}
	return nil
}
