package domain

import (
	"errors"
	"sort"
	"time"
)

var (
	ErrMoveOutOfRange = errors.New("move index out of range")
	ErrMoveWrongItem  = errors.New("move index does not hold the given item")
)

// OrderUpdate is one record's new order key after a renumber. Reordering
// touches nothing but the order field.
type OrderUpdate struct {
	ID      string `json:"id"`
	OwnerID string `json:"ownerId,omitempty"`
	Order   int64  `json:"order"`
}

// ordersBefore is the display comparator: records with an order key sort
// ascending by it and come before records without one; among the rest,
// newest-created first.
func ordersBefore(ao *int64, act time.Time, bo *int64, bct time.Time) bool {
	switch {
	case ao != nil && bo != nil:
		if *ao != *bo {
			return *ao < *bo
		}
		return act.After(bct)
	case ao != nil:
		return true
	case bo != nil:
		return false
	default:
		return act.After(bct)
	}
}

// SortTasks returns a new slice in display order. The input is not modified.
func SortTasks(tasks []Task) []Task {
	out := make([]Task, len(tasks))
	copy(out, tasks)
	sort.SliceStable(out, func(i, j int) bool {
		return ordersBefore(out[i].Order, out[i].CreatedAt, out[j].Order, out[j].CreatedAt)
	})
	return out
}

// SortUsers returns a new slice in display order, same semantics as SortTasks.
func SortUsers(users []User) []User {
	out := make([]User, len(users))
	copy(out, users)
	sort.SliceStable(out, func(i, j int) bool {
		return ordersBefore(out[i].Order, out[i].CreatedAt, out[j].Order, out[j].CreatedAt)
	})
	return out
}

// MoveTask moves the identified item from index from to index to within the
// visible (possibly filtered) snapshot, then renumbers the entire backing
// collection: visible items are permuted among the positions they already
// occupy in full, and every record's order becomes its resulting index.
// The returned updates therefore always cover the whole collection.
func MoveTask(full, visible []Task, itemID string, from, to int) ([]Task, []OrderUpdate, error) {
	if from < 0 || from >= len(visible) || to < 0 || to >= len(visible) {
		return nil, nil, ErrMoveOutOfRange
	}
	if visible[from].ID != itemID {
		return nil, nil, ErrMoveWrongItem
	}

	reordered := make([]Task, len(visible))
	copy(reordered, visible)
	moved := reordered[from]
	reordered = append(reordered[:from], reordered[from+1:]...)
	reordered = append(reordered[:to], append([]Task{moved}, reordered[to:]...)...)

	visibleIDs := make(map[string]bool, len(visible))
	for _, t := range visible {
		visibleIDs[t.ID] = true
	}

	newFull := make([]Task, len(full))
	copy(newFull, full)
	k := 0
	for i := range newFull {
		if visibleIDs[newFull[i].ID] {
			newFull[i] = reordered[k]
			k++
		}
	}

	updates := make([]OrderUpdate, len(newFull))
	for i := range newFull {
		ord := int64(i)
		newFull[i].Order = &ord
		updates[i] = OrderUpdate{ID: newFull[i].ID, OwnerID: newFull[i].OwnerID, Order: ord}
	}
	return newFull, updates, nil
}

// MoveUser reorders the user collection the same way MoveTask does; the user
// list is never filtered when reordered, so the visible snapshot is the full
// collection.
func MoveUser(users []User, itemID string, from, to int) ([]User, []OrderUpdate, error) {
	if from < 0 || from >= len(users) || to < 0 || to >= len(users) {
		return nil, nil, ErrMoveOutOfRange
	}
	if users[from].ID != itemID {
		return nil, nil, ErrMoveWrongItem
	}

	out := make([]User, len(users))
	copy(out, users)
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	out = append(out[:to], append([]User{moved}, out[to:]...)...)

	updates := make([]OrderUpdate, len(out))
	for i := range out {
		ord := int64(i)
		out[i].Order = &ord
		updates[i] = OrderUpdate{ID: out[i].ID, Order: ord}
	}
	return out, updates, nil
}
