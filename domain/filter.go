package domain

import (
	"errors"
	"strings"
	"time"
)

// StatusFilter narrows tasks by completion state.
type StatusFilter string

const (
	StatusAll       StatusFilter = "all"
	StatusCompleted StatusFilter = "completed"
	StatusPending   StatusFilter = "pending"
)

var ErrUnknownStatus = errors.New("unknown status filter")

func ParseStatusFilter(s string) (StatusFilter, error) {
	switch StatusFilter(s) {
	case "", StatusAll:
		return StatusAll, nil
	case StatusCompleted, StatusPending:
		return StatusFilter(s), nil
	default:
		return "", ErrUnknownStatus
	}
}

// CategoryNone is the category-allowlist sentinel matching tasks that have no
// category at all.
const CategoryNone = "none"

// TaskFilter is the full filter state applied to a task collection. Zero
// values mean "no restriction" throughout.
type TaskFilter struct {
	Owners     []string
	Period     Period
	Anchor     time.Time
	Search     string
	Status     StatusFilter
	Categories []string
}

// FilterTasks applies the owner, period-window, search, status and category
// predicates in order, ANDed. It preserves the relative order of its input
// and never mutates it, so it is safe to re-run on every state change.
func FilterTasks(tasks []Task, f TaskFilter) []Task {
	window, restricted := RangeForPeriod(f.Period, f.Anchor)
	search := strings.ToLower(strings.TrimSpace(f.Search))
	loc := f.Anchor.Location()
	if loc == nil {
		loc = time.Local
	}

	out := make([]Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchOwner(t, f.Owners) {
			continue
		}
		if restricted {
			due, ok := t.Due(loc)
			if !ok || !window.Contains(due) {
				continue
			}
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Title), search) {
			continue
		}
		if !matchStatus(t, f.Status) {
			continue
		}
		if !matchCategory(t, f.Categories) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func matchOwner(t Task, owners []string) bool {
	if len(owners) == 0 {
		return true
	}
	for _, id := range owners {
		if t.OwnerID == id {
			return true
		}
	}
	return false
}

func matchStatus(t Task, s StatusFilter) bool {
	switch s {
	case StatusCompleted:
		return t.Completed
	case StatusPending:
		return !t.Completed
	default:
		return true
	}
}

func matchCategory(t Task, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == CategoryNone && t.CategoryID == "" {
			return true
		}
		if c != "" && t.CategoryID == c {
			return true
		}
	}
	return false
}

// FilterUsers narrows a user collection by a case-insensitive substring match
// on nickname or email, preserving input order.
func FilterUsers(users []User, search string) []User {
	search = strings.ToLower(strings.TrimSpace(search))
	if search == "" {
		return users
	}
	out := make([]User, 0, len(users))
	for _, u := range users {
		if strings.Contains(strings.ToLower(u.Nickname), search) ||
			strings.Contains(strings.ToLower(u.Email), search) {
			out = append(out, u)
		}
	}
	return out
}
