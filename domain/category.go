package domain

import (
	"errors"
	"strings"
	"time"
)

var ErrEmptyCategoryName = errors.New("category name must not be empty")

// Category is a user-owned label for grouping tasks. Categories are never
// shared between users.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	OwnerID   string    `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategoryName
	}
	return nil
}
