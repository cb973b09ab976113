package domain

import (
	"errors"
	"strings"
	"time"
)

// Role distinguishes regular users from administrators.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

var (
	ErrEmptyEmail  = errors.New("user email must not be empty")
	ErrUnknownRole = errors.New("unknown role")
)

// User is a board member's profile record. Deleting it does not revoke the
// identity provider credential behind it.
type User struct {
	ID        string    `json:"id"`
	Nickname  string    `json:"nickname"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	Color     string    `json:"color,omitempty"`
	Order     *int64    `json:"order,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return ErrEmptyEmail
	}
	switch u.Role {
	case RoleUser, RoleAdmin:
		return nil
	default:
		return ErrUnknownRole
	}
}

// DefaultNickname falls back to the local part of the email address.
func DefaultNickname(nickname, email string) string {
	if nickname != "" {
		return nickname
	}
	if at := strings.IndexByte(email, '@'); at > 0 {
		return email[:at]
	}
	return email
}
