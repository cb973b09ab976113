package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"planboard-api/domain"
)

type backend interface {
	ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	UpdateTask(ctx context.Context, upd TaskUpdate) error
	DeleteTask(ctx context.Context, ownerID, id string) error
	ApplyTaskOrders(ctx context.Context, updates []domain.OrderUpdate) error
	ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error)
	InsertCategory(ctx context.Context, c domain.Category) error
	UpdateCategory(ctx context.Context, ownerID, id string, name, color *string) error
	DeleteCategory(ctx context.Context, ownerID, id string) error
}

// Cache wraps a Storage instance with Redis-backed caching for task and
// category reads. Every successful mutation evicts the owner's keys and
// publishes the owner id on the updates channel so stream subscribers
// refresh.
type Cache struct {
	*Storage
	base    backend
	redis   *redis.Client
	ttl     time.Duration
	channel string
}

// NewCache creates a caching Storage wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration, channel string) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:    base,
		redis:   client,
		ttl:     ttl,
		channel: channel,
	}
	if s, ok := base.(*Storage); ok {
		c.Storage = s
	}
	return c
}

// ListTasks serves per-owner lists from Redis when possible. Admin listings
// (empty owner) always hit the backing store; a single collection-wide key
// would be invalidated by every mutation anyway.
func (c *Cache) ListTasks(ctx context.Context, ownerID string) ([]domain.Task, error) {
	if ownerID == "" {
		return c.base.ListTasks(ctx, ownerID)
	}
	if tasks, ok := loadCached[[]domain.Task](ctx, c.redis, tasksCacheKey(ownerID)); ok {
		return tasks, nil
	}

	tasks, err := c.base.ListTasks(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, tasksCacheKey(ownerID), tasks)
	return tasks, nil
}

func (c *Cache) ListCategories(ctx context.Context, ownerID string) ([]domain.Category, error) {
	if ownerID == "" {
		return c.base.ListCategories(ctx, ownerID)
	}
	if categories, ok := loadCached[[]domain.Category](ctx, c.redis, categoriesCacheKey(ownerID)); ok {
		return categories, nil
	}

	categories, err := c.base.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	c.store(ctx, categoriesCacheKey(ownerID), categories)
	return categories, nil
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.invalidate(ctx, t.OwnerID)
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, upd TaskUpdate) error {
	if err := c.base.UpdateTask(ctx, upd); err != nil {
		return err
	}
	c.invalidate(ctx, upd.OwnerID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, id string) error {
	if err := c.base.DeleteTask(ctx, ownerID, id); err != nil {
		return err
	}
	c.invalidate(ctx, ownerID)
	return nil
}

func (c *Cache) ApplyTaskOrders(ctx context.Context, updates []domain.OrderUpdate) error {
	if err := c.base.ApplyTaskOrders(ctx, updates); err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, u := range updates {
		if !seen[u.OwnerID] {
			seen[u.OwnerID] = true
			c.invalidate(ctx, u.OwnerID)
		}
	}
	return nil
}

func (c *Cache) InsertCategory(ctx context.Context, cat domain.Category) error {
	if err := c.base.InsertCategory(ctx, cat); err != nil {
		return err
	}
	c.invalidate(ctx, cat.OwnerID)
	return nil
}

func (c *Cache) UpdateCategory(ctx context.Context, ownerID, id string, name, color *string) error {
	if err := c.base.UpdateCategory(ctx, ownerID, id, name, color); err != nil {
		return err
	}
	c.invalidate(ctx, ownerID)
	return nil
}

func (c *Cache) DeleteCategory(ctx context.Context, ownerID, id string) error {
	if err := c.base.DeleteCategory(ctx, ownerID, id); err != nil {
		return err
	}
	c.invalidate(ctx, ownerID)
	return nil
}

func loadCached[T any](ctx context.Context, client *redis.Client, key string) (T, bool) {
	var zero T
	if client == nil {
		return zero, false
	}
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = client.Del(ctx, key).Err()
		}
		return zero, false
	}
	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		_ = client.Del(ctx, key).Err()
		return zero, false
	}
	return out, true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) invalidate(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.Del(ctx, tasksCacheKey(ownerID), categoriesCacheKey(ownerID)).Result()
	if c.channel != "" {
		_ = c.redis.Publish(ctx, c.channel, ownerID).Err()
	}
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}

func categoriesCacheKey(ownerID string) string {
	return "categories:" + ownerID
}
