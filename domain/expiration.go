package domain

import "time"

// ExpirationState is derived fresh from (expiry, now) on every evaluation and
// is never persisted.
type ExpirationState string

const (
	ExpirationNone      ExpirationState = "none"
	ExpirationActive    ExpirationState = "active"
	ExpirationCountdown ExpirationState = "countdown"
	ExpirationExpired   ExpirationState = "expired"
)

// CountdownThreshold is how close to expiry a task switches to the
// countdown state.
const CountdownThreshold = time.Hour

// ExpirationStatus classifies the task's expiry relative to now.
func ExpirationStatus(t Task, now time.Time) ExpirationState {
	if t.ExpiresAt == nil {
		return ExpirationNone
	}
	remaining := t.ExpiresAt.Sub(now)
	switch {
	case remaining <= 0:
		return ExpirationExpired
	case remaining <= CountdownThreshold:
		return ExpirationCountdown
	default:
		return ExpirationActive
	}
}

// SweepEligible reports whether the background sweep should delete the task:
// auto-delete policy and expiry at or before now. Completion state is
// irrelevant.
func SweepEligible(t Task, now time.Time) bool {
	if t.Policy != PolicyAutoDelete || t.ExpiresAt == nil {
		return false
	}
	return !t.ExpiresAt.After(now)
}

// Editable reports whether the task still accepts edits. Once expired a task
// is frozen; it can only be deleted.
func Editable(t Task, now time.Time) bool {
	return ExpirationStatus(t, now) != ExpirationExpired
}
