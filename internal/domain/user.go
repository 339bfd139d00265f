package domain

import (
	"strings"
	"time"
)

// User is an account. PasswordHash and RefreshTokenHash never leave the service.
type User struct {
	ID          string     `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	CountryName string     `json:"country_name,omitempty"`
	PhoneNumber string     `json:"phone_number,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	Role        Role       `json:"role"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	PasswordHash     string  `json:"-"`
	RefreshTokenHash *string `json:"-"`
}

// NormalizeUsername lower-cases and trims a username. Usernames are unique
// case-insensitively, so every lookup and insert goes through this.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail trims surrounding space and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
