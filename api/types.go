package api

import (
	"context"

	"planboard-api/domain"
	"planboard-api/storage"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, upd storage.TaskUpdate) error
	DeleteTask(ctx context.Context, ownerID, id string) error
	ApplyTaskOrders(ctx context.Context, updates []domain.OrderUpdate) error

	ListUsers(ctx context.Context) ([]domain.User, error)
	GetUser(ctx context.Context, id string) (*domain.User, error)
	UpsertUser(ctx context.Context, u domain.User) error
	DeleteUser(ctx context.Context, id string) error
	ApplyUserOrders(ctx context.Context, updates []domain.OrderUpdate) error

	ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error)
	InsertCategory(ctx context.Context, c domain.Category) error
	UpdateCategory(ctx context.Context, ownerID, id string, name, color *string) error
	DeleteCategory(ctx context.Context, ownerID, id string) error
}

// Identity is the verified caller extracted from a bearer token.
type Identity struct {
	UserID string
	Email  string
}

// Authenticator is implemented by types able to extract identities from headers.
type Authenticator interface {
	IdentityFromAuthHeader(string) (Identity, error)
}
