package vaultstate

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/goliatone/go-vaultstate/internal/merge"
)

// UpdateFn applies a read-modify-write step to a container value. It receives
// the current value (the zero value when nothing is stored) and returns the
// value to persist.
type UpdateFn[T any] func(current T) (T, error)

// containerCore binds one storage key to a subject. Updates serialize on mu,
// which is held across the backend round trip so concurrent callers always
// observe each other's results. External writes arrive through the backend's
// update stream and re-emit on the same subject.
type containerCore[T any] struct {
	storageKey  string
	deserialize Deserializer[T]
	storage     Storage

	mu      keyMutex
	loaded  bool
	loadErr error
	lastRaw string

	subject *Subject[T]
	watch   *Subscription[StorageUpdate]
}

// keyMutex is a context-aware mutex. Lock order is FIFO-ish via channel
// semantics; a caller abandoning the wait releases nothing.
type keyMutex chan struct{}

func newKeyMutex() keyMutex { return make(keyMutex, 1) }

func (m keyMutex) lock(ctx context.Context) error {
	select {
	case m <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m keyMutex) unlock() { <-m }

func newContainerCore[T any](storageKey string, deserialize Deserializer[T], storage Storage) *containerCore[T] {
	c := &containerCore[T]{
		storageKey:  storageKey,
		deserialize: deserialize,
		storage:     storage,
		mu:          newKeyMutex(),
	}
	c.subject = NewSubject(OnActivate[T](func() {
		_, _ = c.Get(context.Background())
	}))
	c.watch = storage.Updates().Subscribe()
	go c.watchLoop()
	return c
}

// State returns the container's observable. The first subscription triggers
// the initial backend read; load failures are surfaced through Get and
// Update, not the stream.
func (c *containerCore[T]) State() Observable[T] { return c.subject }

// Get returns the current value, reading from the backend on first access.
// A deserializer failure poisons the key: the error is returned to every
// subsequent reader until the stored value is corrected.
func (c *containerCore[T]) Get(ctx context.Context) (T, error) {
	var zero T
	if err := c.mu.lock(ctx); err != nil {
		return zero, err
	}
	defer c.mu.unlock()
	return c.loadLocked(ctx)
}

func (c *containerCore[T]) loadLocked(ctx context.Context) (T, error) {
	var zero T
	if c.loadErr != nil {
		return zero, c.loadErr
	}
	if c.loaded {
		value, _ := c.subject.Latest()
		return value, nil
	}

	raw, ok, err := c.storage.Get(ctx, c.storageKey)
	if err != nil {
		return zero, fmt.Errorf("vaultstate: read %s: %w", c.storageKey, err)
	}
	value := zero
	if ok {
		value, err = c.deserialize(raw)
		if err != nil {
			c.loadErr = fmt.Errorf("vaultstate: deserialize %s: %w", c.storageKey, err)
			return zero, c.loadErr
		}
	}
	c.loaded = true
	c.lastRaw = string(raw)
	c.subject.Next(value)
	return value, nil
}

// Update performs an atomic read-modify-write. Concurrent updates against the
// same container serialize: the second caller's fn observes the first
// caller's result. The returned value reflects what was durably written.
func (c *containerCore[T]) Update(ctx context.Context, fn UpdateFn[T]) (T, error) {
	var zero T
	if err := c.mu.lock(ctx); err != nil {
		return zero, err
	}
	defer c.mu.unlock()

	current, err := c.loadLocked(ctx)
	if err != nil {
		return zero, err
	}
	// The cached value stays live for subscribers; fn works on a deep copy so
	// an aborted update cannot mutate shared state.
	next, err := fn(merge.Clone(current))
	if err != nil {
		return zero, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return zero, fmt.Errorf("vaultstate: marshal %s: %w", c.storageKey, err)
	}
	if err := c.storage.Save(ctx, c.storageKey, raw); err != nil {
		return zero, fmt.Errorf("vaultstate: write %s: %w", c.storageKey, err)
	}
	c.lastRaw = string(raw)
	c.subject.Next(next)
	return next, nil
}

// Refresh re-reads the backend even when a cached value exists, emitting the
// fresh value when it differs. It is the reconciliation path for backends
// whose notifications cannot cross process boundaries. A successful refresh
// also clears a poisoned key once the stored value has been corrected.
func (c *containerCore[T]) Refresh(ctx context.Context) (T, error) {
	var zero T
	if err := c.mu.lock(ctx); err != nil {
		return zero, err
	}
	defer c.mu.unlock()

	raw, ok, err := c.storage.Get(ctx, c.storageKey)
	if err != nil {
		return zero, fmt.Errorf("vaultstate: read %s: %w", c.storageKey, err)
	}
	if c.loaded && c.loadErr == nil && string(raw) == c.lastRaw {
		value, _ := c.subject.Latest()
		return value, nil
	}
	value := zero
	if ok {
		value, err = c.deserialize(raw)
		if err != nil {
			c.loadErr = fmt.Errorf("vaultstate: deserialize %s: %w", c.storageKey, err)
			return zero, c.loadErr
		}
	}
	c.loaded = true
	c.loadErr = nil
	c.lastRaw = string(raw)
	c.subject.Next(value)
	return value, nil
}

// watchLoop revalidates the key on backend notifications. Notifications are
// conflated per subscription, so every event triggers a fresh read and the
// raw comparison suppresses echoes of this container's own writes.
func (c *containerCore[T]) watchLoop() {
	for range c.watch.Values() {
		c.revalidate(context.Background())
	}
}

func (c *containerCore[T]) revalidate(ctx context.Context) {
	if err := c.mu.lock(ctx); err != nil {
		return
	}
	defer c.mu.unlock()
	if !c.loaded || c.loadErr != nil {
		return
	}

	raw, ok, err := c.storage.Get(ctx, c.storageKey)
	if err != nil {
		return
	}
	if string(raw) == c.lastRaw {
		return
	}
	var value T
	if ok {
		value, err = c.deserialize(raw)
		if err != nil {
			c.loadErr = fmt.Errorf("vaultstate: deserialize %s: %w", c.storageKey, err)
			return
		}
	}
	c.lastRaw = string(raw)
	c.subject.Next(value)
}

// GlobalState is the container for globally scoped keys.
type GlobalState[T any] struct {
	*containerCore[T]
	key KeyDefinition[T]
}

func newGlobalState[T any](key KeyDefinition[T], storage Storage) *GlobalState[T] {
	return &GlobalState[T]{
		containerCore: newContainerCore(key.StorageKey(), key.Deserialize, storage),
		key:           key,
	}
}

// UserState is the container for one concrete user's copy of a key.
type UserState[T any] struct {
	*containerCore[T]
	key    KeyDefinition[T]
	userID string
}

func newUserState[T any](userID string, key KeyDefinition[T], storage Storage) *UserState[T] {
	return &UserState[T]{
		containerCore: newContainerCore(key.UserStorageKey(userID), key.Deserialize, storage),
		key:           key,
		userID:        userID,
	}
}

// UserID returns the user this container is bound to.
func (s *UserState[T]) UserID() string { return s.userID }
