package domain

import (
	"errors"
	"strings"
	"time"
)

// ExpirationPolicy selects what happens to a task once its expiry passes.
type ExpirationPolicy string

const (
	// PolicyNotify keeps expired tasks visible, flagged as expired.
	PolicyNotify ExpirationPolicy = "notify"
	// PolicyAutoDelete makes expired tasks eligible for the background sweep.
	PolicyAutoDelete ExpirationPolicy = "auto-delete"
)

var (
	ErrEmptyTitle          = errors.New("task title must not be empty")
	ErrPolicyWithoutExpiry = errors.New("expiration policy requires an expiry time")
	ErrUnknownPolicy       = errors.New("unknown expiration policy")
	ErrInvalidDueDate      = errors.New("due date must be YYYY-MM-DD")
	ErrInvalidDueTime      = errors.New("due time must be HH:MM")
)

// DueDateLayout is the calendar-date form dueDate is stored in.
const DueDateLayout = "2006-01-02"

const dueTimeLayout = "15:04"

// Task represents a single to-do item.
type Task struct {
	ID            string           `json:"id"`
	Title         string           `json:"title"`
	OwnerID       string           `json:"ownerId"`
	OwnerEmail    string           `json:"ownerEmail,omitempty"`
	OwnerNickname string           `json:"ownerNickname,omitempty"`
	OwnerColor    string           `json:"ownerColor,omitempty"`
	DueDate       string           `json:"dueDate,omitempty"`
	DueTime       string           `json:"dueTime,omitempty"`
	CategoryID    string           `json:"categoryId,omitempty"`
	Completed     bool             `json:"completed"`
	ExpiresAt     *time.Time       `json:"expiresAt,omitempty"`
	Policy        ExpirationPolicy `json:"expirationPolicy,omitempty"`
	Order         *int64           `json:"order,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// Validate checks the construction invariants: a non-empty title, well-formed
// due date/time, and an expiration policy only alongside an expiry instant.
func (t Task) Validate() error {
	if strings.TrimSpace(t.Title) == "" {
		return ErrEmptyTitle
	}
	if t.DueDate != "" {
		if _, err := time.Parse(DueDateLayout, t.DueDate); err != nil {
			return ErrInvalidDueDate
		}
	}
	if t.DueTime != "" {
		if _, err := time.Parse(dueTimeLayout, t.DueTime); err != nil {
			return ErrInvalidDueTime
		}
	}
	if t.ExpiresAt == nil {
		if t.Policy != "" {
			return ErrPolicyWithoutExpiry
		}
		return nil
	}
	switch t.Policy {
	case PolicyNotify, PolicyAutoDelete:
		return nil
	default:
		return ErrUnknownPolicy
	}
}

// Due returns the task's due instant in the given location, using midnight
// when no due time is set. ok is false for tasks without a due date.
func (t Task) Due(loc *time.Location) (due time.Time, ok bool) {
	if t.DueDate == "" {
		return time.Time{}, false
	}
	d, err := time.ParseInLocation(DueDateLayout, t.DueDate, loc)
	if err != nil {
		return time.Time{}, false
	}
	if t.DueTime != "" {
		if tm, err := time.ParseInLocation(dueTimeLayout, t.DueTime, loc); err == nil {
			d = d.Add(time.Duration(tm.Hour())*time.Hour + time.Duration(tm.Minute())*time.Minute)
		}
	}
	return d, true
}
