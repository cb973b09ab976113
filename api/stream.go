package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"planboard-api/domain"
)

// UpdateBroker fans mutation notifications out to connected stream clients,
// keyed by owner.
type UpdateBroker struct {
	mu   sync.Mutex
	subs map[string]map[chan struct{}]struct{}
}

func NewUpdateBroker() *UpdateBroker {
	return &UpdateBroker{subs: make(map[string]map[chan struct{}]struct{})}
}

func (b *UpdateBroker) subscribe(ownerID string) chan struct{} {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.subs[ownerID] == nil {
		b.subs[ownerID] = make(map[chan struct{}]struct{})
	}
	b.subs[ownerID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *UpdateBroker) unsubscribe(ownerID string, ch chan struct{}) {
	b.mu.Lock()
	if set, ok := b.subs[ownerID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(b.subs, ownerID)
		}
	}
	b.mu.Unlock()
}

// Notify wakes every subscriber of the given owner. Slow subscribers are
// skipped; they already have a wakeup pending.
func (b *UpdateBroker) Notify(ownerID string) {
	b.mu.Lock()
	for ch := range b.subs[ownerID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	b.mu.Unlock()
}

// RegisterStream wires the SSE endpoint on the given Echo instance and
// returns the broker mutations should be routed to.
func RegisterStream(e *echo.Echo, store Storage, auth Authenticator) *UpdateBroker {
	broker := NewUpdateBroker()
	e.GET("/api/stream", streamTasks(store, auth, broker))
	return broker
}

func streamTasks(store Storage, auth Authenticator, broker *UpdateBroker) echo.HandlerFunc {
	return func(c echo.Context) error {
		// EventSource cannot set headers, so the token may arrive as a query
		// parameter instead.
		if c.Request().Header.Get(echo.HeaderAuthorization) == "" {
			if token := c.QueryParam("token"); token != "" {
				c.Request().Header.Set(echo.HeaderAuthorization, "Bearer "+token)
			}
		}
		user, err := requireUser(c, store, auth)
		if err != nil {
			return err
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/event-stream")
		c.Response().Header().Set(echo.HeaderCacheControl, "no-cache")
		c.Response().Header().Set(echo.HeaderConnection, "keep-alive")
		c.Response().Header().Set("X-Accel-Buffering", "no")
		flusher, ok := c.Response().Writer.(http.Flusher)
		if !ok {
			return c.String(http.StatusInternalServerError, "stream unsupported")
		}

		ctx := c.Request().Context()
		ch := broker.subscribe(user.ID)
		defer broker.unsubscribe(user.ID, ch)
		for {
			tasks, err := store.ListTasks(ctx, user.ID)
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			sorted := domain.SortTasks(tasks)
			data, err := sonic.ConfigStd.Marshal(viewTasks(sorted, time.Now()))
			if err != nil {
				c.Logger().Error(err)
				return err
			}
			if _, err := c.Response().Write([]byte("data: ")); err != nil {
				return err
			}
			if _, err := c.Response().Write(data); err != nil {
				return err
			}
			if _, err := c.Response().Write([]byte("\n\n")); err != nil {
				return err
			}
			flusher.Flush()
			select {
			case <-ctx.Done():
				return nil
			case <-ch:
				continue
			}
		}
	}
}

// SubscribeUpdates listens for mutation notifications published by the
// storage cache and forwards them to the broker. It reconnects forever until
// the context is cancelled.
func SubscribeUpdates(ctx context.Context, logger *log.Logger, rc *redis.Client, channel string, broker *UpdateBroker) {
	for {
		sub := rc.Subscribe(ctx, channel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				broker.Notify(msg.Payload)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		time.Sleep(time.Second)
	}
}
