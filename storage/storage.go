package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azqueue"

	"planboard-api/domain"
)

// userPartition keys the single-partition users table.
const userPartition = "users"

// Storage provides access to the task, user and category tables and the
// deletion queue used by the expiry sweep.
type Storage struct {
	taskTable     *aztables.Client
	userTable     *aztables.Client
	categoryTable *aztables.Client
	deleteQueue   *azqueue.QueueClient
}

// New creates a Storage instance from the given connection string.
func New(connStr, tasksTable, usersTable, categoriesTable, deleteQueue string) (*Storage, error) {
	tablesClientOptions := aztables.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    3,
				TryTimeout:    time.Minute * 3,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 15,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	svc, err := aztables.NewServiceClientFromConnectionString(connStr, &tablesClientOptions)
	if err != nil {
		return nil, err
	}
	queueClientOptions := azqueue.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{
				MaxRetries:    5,
				TryTimeout:    time.Minute * 5,
				RetryDelay:    time.Second * 1,
				MaxRetryDelay: time.Second * 60,
				StatusCodes:   []int{408, 429, 500, 502, 503, 504},
			},
		},
	}
	dq, err := azqueue.NewQueueClientFromConnectionString(connStr, deleteQueue, &queueClientOptions)
	if err != nil {
		return nil, err
	}
	return &Storage{
		taskTable:     svc.NewClient(tasksTable),
		userTable:     svc.NewClient(usersTable),
		categoryTable: svc.NewClient(categoriesTable),
		deleteQueue:   dq,
	}, nil
}

type taskEntity struct {
	aztables.Entity
	Title         string `json:"Title"`
	OwnerEmail    string `json:"OwnerEmail,omitempty"`
	OwnerNickname string `json:"OwnerNickname,omitempty"`
	OwnerColor    string `json:"OwnerColor,omitempty"`
	DueDate       string `json:"DueDate,omitempty"`
	DueTime       string `json:"DueTime,omitempty"`
	Category      string `json:"Category,omitempty"`
	Completed     bool   `json:"Completed"`
	ExpiresAt     string `json:"ExpiresAt,omitempty"`
	Policy        string `json:"Policy,omitempty"`
	Order         string `json:"Order,omitempty"`
	OrderType     string `json:"Order@odata.type,omitempty"`
	CreatedAt     string `json:"CreatedAt"`
	UpdatedAt     string `json:"UpdatedAt"`
}

const edmInt64 = "Edm.Int64"

func taskToEntity(t domain.Task) taskEntity {
	ent := taskEntity{
		Entity:        aztables.Entity{PartitionKey: t.OwnerID, RowKey: t.ID},
		Title:         t.Title,
		OwnerEmail:    t.OwnerEmail,
		OwnerNickname: t.OwnerNickname,
		OwnerColor:    t.OwnerColor,
		DueDate:       t.DueDate,
		DueTime:       t.DueTime,
		Category:      t.CategoryID,
		Completed:     t.Completed,
		Policy:        string(t.Policy),
		CreatedAt:     t.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:     t.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	if t.ExpiresAt != nil {
		ent.ExpiresAt = t.ExpiresAt.UTC().Format(time.RFC3339Nano)
	}
	if t.Order != nil {
		ent.Order = strconv.FormatInt(*t.Order, 10)
		ent.OrderType = edmInt64
	}
	return ent
}

func entityToTask(ent taskEntity) domain.Task {
	t := domain.Task{
		ID:            ent.RowKey,
		Title:         ent.Title,
		OwnerID:       ent.PartitionKey,
		OwnerEmail:    ent.OwnerEmail,
		OwnerNickname: ent.OwnerNickname,
		OwnerColor:    ent.OwnerColor,
		DueDate:       ent.DueDate,
		DueTime:       ent.DueTime,
		CategoryID:    ent.Category,
		Completed:     ent.Completed,
		Policy:        domain.ExpirationPolicy(ent.Policy),
	}
	if ent.ExpiresAt != "" {
		if at, err := time.Parse(time.RFC3339Nano, ent.ExpiresAt); err == nil {
			t.ExpiresAt = &at
		}
	}
	if ent.Order != "" {
		if ord, err := strconv.ParseInt(ent.Order, 10, 64); err == nil {
			t.Order = &ord
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, ent.CreatedAt); err == nil {
		t.CreatedAt = at
	}
	if at, err := time.Parse(time.RFC3339Nano, ent.UpdatedAt); err == nil {
		t.UpdatedAt = at
	}
	return t
}

// ListTasks retrieves every task for the given owner; an empty owner lists
// the whole collection (admin scope).
func (s *Storage) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	var opts *aztables.ListEntitiesOptions
	if ownerID != "" {
		filter := "PartitionKey eq '" + ownerID + "'"
		opts = &aztables.ListEntitiesOptions{Filter: &filter}
	}
	pager := s.taskTable.NewListEntitiesPager(opts)
	tasks := []domain.Task{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent taskEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			tasks = append(tasks, entityToTask(ent))
		}
	}
	return tasks, nil
}

// GetTask retrieves a single task, returning nil when it does not exist.
func (s *Storage) GetTask(ctx context.Context, ownerID, id string) (*domain.Task, error) {
	resp, err := s.taskTable.GetEntity(ctx, ownerID, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent taskEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	t := entityToTask(ent)
	return &t, nil
}

// InsertTask stores a new task record.
func (s *Storage) InsertTask(ctx context.Context, t domain.Task) error {
	payload, err := json.Marshal(taskToEntity(t))
	if err == nil {
		_, err = s.taskTable.AddEntity(ctx, payload, nil)
	}
	return err
}

// TaskUpdate carries a partial task update; nil fields are left untouched.
type TaskUpdate struct {
	OwnerID   string
	ID        string
	Title     *string
	DueDate   *string
	DueTime   *string
	Category  *string
	Completed *bool
	UpdatedAt time.Time
}

type taskUpdateEntity struct {
	aztables.Entity
	Title     *string `json:"Title,omitempty"`
	DueDate   *string `json:"DueDate,omitempty"`
	DueTime   *string `json:"DueTime,omitempty"`
	Category  *string `json:"Category,omitempty"`
	Completed *bool   `json:"Completed,omitempty"`
	UpdatedAt string  `json:"UpdatedAt"`
}

// UpdateTask merges the non-nil fields into an existing task entity.
func (s *Storage) UpdateTask(ctx context.Context, upd TaskUpdate) error {
	ent := taskUpdateEntity{
		Entity:    aztables.Entity{PartitionKey: upd.OwnerID, RowKey: upd.ID},
		Title:     upd.Title,
		DueDate:   upd.DueDate,
		DueTime:   upd.DueTime,
		Category:  upd.Category,
		Completed: upd.Completed,
		UpdatedAt: upd.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
	payload, err := json.Marshal(ent)
	if err == nil {
		et := azcore.ETagAny
		_, err = s.taskTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteTask removes a task record. Deleting a missing task is not an error.
func (s *Storage) DeleteTask(ctx context.Context, ownerID, id string) error {
	_, err := s.taskTable.DeleteEntity(ctx, ownerID, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

type orderUpdateEntity struct {
	aztables.Entity
	Order     string `json:"Order"`
	OrderType string `json:"Order@odata.type"`
}

// ApplyTaskOrders persists a renumber batch, transaction-per-partition since
// table batches cannot span partitions.
func (s *Storage) ApplyTaskOrders(ctx context.Context, updates []domain.OrderUpdate) error {
	byPartition := make(map[string][]aztables.TransactionAction)
	for _, u := range updates {
		payload, err := json.Marshal(orderUpdateEntity{
			Entity:    aztables.Entity{PartitionKey: u.OwnerID, RowKey: u.ID},
			Order:     strconv.FormatInt(u.Order, 10),
			OrderType: edmInt64,
		})
		if err != nil {
			return err
		}
		byPartition[u.OwnerID] = append(byPartition[u.OwnerID], aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
		})
	}
	for _, actions := range byPartition {
		if _, err := s.taskTable.SubmitTransaction(ctx, actions, nil); err != nil {
			return err
		}
	}
	return nil
}

type userEntity struct {
	aztables.Entity
	Nickname  string `json:"Nickname,omitempty"`
	Email     string `json:"Email"`
	Role      string `json:"Role"`
	Color     string `json:"Color,omitempty"`
	Order     string `json:"Order,omitempty"`
	OrderType string `json:"Order@odata.type,omitempty"`
	CreatedAt string `json:"CreatedAt"`
}

func userToEntity(u domain.User) userEntity {
	ent := userEntity{
		Entity:    aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
		Nickname:  u.Nickname,
		Email:     u.Email,
		Role:      string(u.Role),
		Color:     u.Color,
		CreatedAt: u.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if u.Order != nil {
		ent.Order = strconv.FormatInt(*u.Order, 10)
		ent.OrderType = edmInt64
	}
	return ent
}

func entityToUser(ent userEntity) domain.User {
	u := domain.User{
		ID:       ent.RowKey,
		Nickname: ent.Nickname,
		Email:    ent.Email,
		Role:     domain.Role(ent.Role),
		Color:    ent.Color,
	}
	if ent.Order != "" {
		if ord, err := strconv.ParseInt(ent.Order, 10, 64); err == nil {
			u.Order = &ord
		}
	}
	if at, err := time.Parse(time.RFC3339Nano, ent.CreatedAt); err == nil {
		u.CreatedAt = at
	}
	return u
}

// ListUsers retrieves the whole user collection.
func (s *Storage) ListUsers(ctx context.Context) ([]domain.User, error) {
	pager := s.userTable.NewListEntitiesPager(nil)
	users := []domain.User{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent userEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			users = append(users, entityToUser(ent))
		}
	}
	return users, nil
}

// GetUser retrieves a user profile, returning nil when it does not exist.
func (s *Storage) GetUser(ctx context.Context, id string) (*domain.User, error) {
	resp, err := s.userTable.GetEntity(ctx, userPartition, id, nil)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	var ent userEntity
	if err := json.Unmarshal(resp.Value, &ent); err != nil {
		return nil, err
	}
	u := entityToUser(ent)
	return &u, nil
}

// UpsertUser creates or replaces a user profile.
func (s *Storage) UpsertUser(ctx context.Context, u domain.User) error {
	payload, err := json.Marshal(userToEntity(u))
	if err == nil {
		_, err = s.userTable.UpsertEntity(ctx, payload, nil)
	}
	return err
}

// DeleteUser removes the profile record only; it never touches the identity
// provider credential.
func (s *Storage) DeleteUser(ctx context.Context, id string) error {
	_, err := s.userTable.DeleteEntity(ctx, userPartition, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

// ApplyUserOrders persists a user renumber batch in a single transaction;
// the users table has one partition.
func (s *Storage) ApplyUserOrders(ctx context.Context, updates []domain.OrderUpdate) error {
	actions := make([]aztables.TransactionAction, 0, len(updates))
	for _, u := range updates {
		payload, err := json.Marshal(orderUpdateEntity{
			Entity:    aztables.Entity{PartitionKey: userPartition, RowKey: u.ID},
			Order:     strconv.FormatInt(u.Order, 10),
			OrderType: edmInt64,
		})
		if err != nil {
			return err
		}
		actions = append(actions, aztables.TransactionAction{
			ActionType: aztables.TransactionTypeUpdateMerge,
			Entity:     payload,
		})
	}
	if len(actions) == 0 {
		return nil
	}
	_, err := s.userTable.SubmitTransaction(ctx, actions, nil)
	return err
}

type categoryEntity struct {
	aztables.Entity
	Name      string `json:"Name"`
	Color     string `json:"Color,omitempty"`
	CreatedAt string `json:"CreatedAt"`
}

// ListCategories retrieves all categories owned by the given user; an empty
// owner lists the whole collection (admin scope).
func (s *Storage) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	var opts *aztables.ListEntitiesOptions
	if ownerID != "" {
		filter := "PartitionKey eq '" + ownerID + "'"
		opts = &aztables.ListEntitiesOptions{Filter: &filter}
	}
	pager := s.categoryTable.NewListEntitiesPager(opts)
	categories := []domain.Category{}
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range resp.Entities {
			var ent categoryEntity
			if err := json.Unmarshal(e, &ent); err != nil {
				return nil, err
			}
			c := domain.Category{ID: ent.RowKey, Name: ent.Name, Color: ent.Color, OwnerID: ent.PartitionKey}
			if at, err := time.Parse(time.RFC3339Nano, ent.CreatedAt); err == nil {
				c.CreatedAt = at
			}
			categories = append(categories, c)
		}
	}
	return categories, nil
}

// InsertCategory stores a new category record.
func (s *Storage) InsertCategory(ctx context.Context, c domain.Category) error {
	payload, err := json.Marshal(categoryEntity{
		Entity:    aztables.Entity{PartitionKey: c.OwnerID, RowKey: c.ID},
		Name:      c.Name,
		Color:     c.Color,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339Nano),
	})
	if err == nil {
		_, err = s.categoryTable.AddEntity(ctx, payload, nil)
	}
	return err
}

type categoryUpdateEntity struct {
	aztables.Entity
	Name  *string `json:"Name,omitempty"`
	Color *string `json:"Color,omitempty"`
}

// UpdateCategory merges name/color changes into an existing category.
func (s *Storage) UpdateCategory(ctx context.Context, ownerID, id string, name, color *string) error {
	payload, err := json.Marshal(categoryUpdateEntity{
		Entity: aztables.Entity{PartitionKey: ownerID, RowKey: id},
		Name:   name,
		Color:  color,
	})
	if err == nil {
		et := azcore.ETagAny
		_, err = s.categoryTable.UpdateEntity(ctx, payload, &aztables.UpdateEntityOptions{IfMatch: &et, UpdateMode: aztables.UpdateModeMerge})
	}
	return err
}

// DeleteCategory removes a category record.
func (s *Storage) DeleteCategory(ctx context.Context, ownerID, id string) error {
	_, err := s.categoryTable.DeleteEntity(ctx, ownerID, id, nil)
	if err != nil && isNotFound(err) {
		return nil
	}
	return err
}

func isNotFound(err error) bool {
	var respErr *azcore.ResponseError
	return errors.As(err, &respErr) && respErr.StatusCode == 404
}
