package api

import "planboard-api/domain"

const requestBodyMaxSize = 64 * 1024 // 64 KiB

type taskView struct {
	domain.Task
	ExpirationStatus domain.ExpirationState `json:"expirationStatus"`
}

// taskStats summarizes the visible list so clients can render a completion
// rate without recounting.
type taskStats struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

type tasksResponse struct {
	Tasks []taskView `json:"tasks"`
	Stats taskStats  `json:"stats"`
}

type createTaskRequest struct {
	Title      string `json:"title"`
	OwnerID    string `json:"ownerId,omitempty"`
	DueDate    string `json:"dueDate,omitempty"`
	DueTime    string `json:"dueTime,omitempty"`
	CategoryID string `json:"categoryId,omitempty"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
	Policy     string `json:"policy,omitempty"`
}

type updateTaskRequest struct {
	Title      *string `json:"title,omitempty"`
	DueDate    *string `json:"dueDate,omitempty"`
	DueTime    *string `json:"dueTime,omitempty"`
	CategoryID *string `json:"categoryId,omitempty"`
	Completed  *bool   `json:"completed,omitempty"`
}

// reorderRequest describes a drag-and-drop move observed against a possibly
// filtered view. The filter fields reconstruct the view server-side so the
// whole collection can be renumbered around it.
type reorderRequest struct {
	ItemID     string   `json:"itemId"`
	From       int      `json:"from"`
	To         int      `json:"to"`
	Owners     []string `json:"owners,omitempty"`
	Period     string   `json:"period,omitempty"`
	Anchor     string   `json:"anchor,omitempty"`
	Search     string   `json:"q,omitempty"`
	Status     string   `json:"status,omitempty"`
	Categories []string `json:"categories,omitempty"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

type updateCategoryRequest struct {
	Name  *string `json:"name,omitempty"`
	Color *string `json:"color,omitempty"`
}

type upsertUserRequest struct {
	Nickname string `json:"nickname,omitempty"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty"`
	Color    string `json:"color,omitempty"`
}

type updateUserRequest struct {
	Nickname *string `json:"nickname,omitempty"`
	Email    *string `json:"email,omitempty"`
	Role     *string `json:"role,omitempty"`
	Color    *string `json:"color,omitempty"`
}

type reorderUsersRequest struct {
	ItemID string `json:"itemId"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

type errorResponse struct {
	Error string `json:"error"`
}
