package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"storefront-admin/internal/localstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event names published when a collection changes
const (
	EventCategoryImagesUpdated = "categoryImagesUpdated"
	EventSubcategoriesUpdated  = "subcategoriesUpdated"
	EventCouponsUpdated        = "couponsUpdated"
	EventProductsUpdated       = "productsUpdated"
	EventSyncTrigger           = "syncTrigger"
)

// Event is delivered to subscribers of its name and of its storage key
type Event struct {
	Name    string          `json:"name"`
	Key     string          `json:"key,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Origin  string          `json:"origin"`
	At      time.Time       `json:"at"`
}

// Handler receives events; it must not block for long
type Handler func(Event)

// Channel fans events out to local subscribers and to other instances over
// redis pub/sub. Local delivery is synchronous and at-least-once; delivery to
// other instances is best effort.
type Channel struct {
	store    *localstore.Store
	topic    string
	instance string
	logger   *zap.Logger

	mu       sync.RWMutex
	handlers map[string]map[uint64]Handler
	nextID   uint64
}

// New creates a Channel publishing on the given redis topic
func New(store *localstore.Store, topic string, logger *zap.Logger) *Channel {
	return &Channel{
		store:    store,
		topic:    topic,
		instance: uuid.NewString(),
		logger:   logger,
		handlers: make(map[string]map[uint64]Handler),
	}
}

// Instance identifies this process in published events
func (c *Channel) Instance() string {
	return c.instance
}

// IsRemote reports whether e was published by another instance
func (c *Channel) IsRemote(e Event) bool {
	return e.Origin != c.instance
}

// Subscribe registers h for an event name or a storage key.
// The returned function unregisters it.
func (c *Channel) Subscribe(nameOrKey string, h Handler) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	if c.handlers[nameOrKey] == nil {
		c.handlers[nameOrKey] = make(map[uint64]Handler)
	}
	c.handlers[nameOrKey][id] = h

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.handlers[nameOrKey], id)
		if len(c.handlers[nameOrKey]) == 0 {
			delete(c.handlers, nameOrKey)
		}
	}
}

// Publish notifies local subscribers, forwards the event to other instances
// and bumps the sync-trigger entry so pollers notice the change.
func (c *Channel) Publish(ctx context.Context, name, key string, payload interface{}) {
	event := Event{
		Name:   name,
		Key:    key,
		Origin: c.instance,
		At:     time.Now().UTC(),
	}

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.logger.Warn("Failed to encode event payload", zap.String("event", name), zap.Error(err))
		} else {
			event.Payload = data
		}
	}

	c.dispatch(event)

	if err := c.forward(ctx, event); err != nil {
		c.logger.Warn("Cross-instance publish failed, rewriting key instead",
			zap.String("event", name),
			zap.String("key", key),
			zap.Error(err),
		)
		if key != "" && event.Payload != nil {
			if err := c.store.Rewrite(ctx, key, event.Payload); err != nil {
				c.logger.Warn("Fallback key rewrite failed", zap.String("key", key), zap.Error(err))
			}
		}
	}

	if err := c.store.SetString(ctx, localstore.KeySyncTrigger, fmt.Sprint(event.At.UnixMilli())); err != nil {
		c.logger.Debug("Failed to bump sync trigger", zap.Error(err))
	}
}

func (c *Channel) forward(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return c.store.Client().Publish(ctx, c.topic, data).Err()
}

func (c *Channel) dispatch(event Event) {
	c.mu.RLock()
	var targets []Handler
	for _, h := range c.handlers[event.Name] {
		targets = append(targets, h)
	}
	if event.Key != "" && event.Key != event.Name {
		for _, h := range c.handlers[event.Key] {
			targets = append(targets, h)
		}
	}
	c.mu.RUnlock()

	for _, h := range targets {
		c.safeCall(h, event)
	}
}

func (c *Channel) safeCall(h Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Event handler panicked",
				zap.String("event", event.Name),
				zap.Any("panic", r),
			)
		}
	}()
	h(event)
}

// Run consumes events published by other instances until ctx is done
func (c *Channel) Run(ctx context.Context) error {
	sub := c.store.Client().Subscribe(ctx, c.topic)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", c.topic, err)
	}

	c.logger.Info("Listening for remote events", zap.String("topic", c.topic))

	messages := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				c.logger.Warn("Dropping malformed event", zap.Error(err))
				continue
			}
			if !c.IsRemote(event) {
				continue
			}
			c.dispatch(event)
		}
	}
}
