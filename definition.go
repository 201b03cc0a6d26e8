package vaultstate

import (
	"encoding/json"
	"fmt"
	"sync"
)

// StorageLocation selects which backend a state definition persists to.
type StorageLocation string

const (
	// StorageDisk stores values in the persistent backend.
	StorageDisk StorageLocation = "disk"
	// StorageMemory stores values in the volatile backend.
	StorageMemory StorageLocation = "memory"
)

// StateDefinition identifies a state domain paired with its storage location.
// It is a pure identity value; keys are carved out of it via KeyDefinition.
type StateDefinition struct {
	name     string
	location StorageLocation
}

// NewStateDefinition builds a StateDefinition for a domain name and location.
func NewStateDefinition(name string, location StorageLocation) StateDefinition {
	return StateDefinition{name: name, location: location}
}

// Name returns the domain name.
func (d StateDefinition) Name() string { return d.name }

// Location returns the storage location.
func (d StateDefinition) Location() StorageLocation { return d.location }

// Deserializer reconstructs a live T from its persisted JSON representation.
// Persisted values may round-trip through storage at any time, so the
// function must faithfully re-initialize nested value types.
type Deserializer[T any] func(json.RawMessage) (T, error)

// KeyDefinition names a typed slot within a state definition. The pair
// (definition name, key) forms the cache key used by providers and derived
// state, so keys must be unique within their definition.
type KeyDefinition[T any] struct {
	Definition  StateDefinition
	Key         string
	Deserialize Deserializer[T]
}

// keyRegistry guards the uniqueness invariant across the process. Duplicate
// registration is a configuration error and fails at construction, never at
// first use.
var keyRegistry = struct {
	mu   sync.Mutex
	seen map[string]struct{}
}{seen: map[string]struct{}{}}

func registerKey(def StateDefinition, key string) error {
	id := fmt.Sprintf("%s/%s/%s", def.name, def.location, key)
	keyRegistry.mu.Lock()
	defer keyRegistry.mu.Unlock()
	if _, ok := keyRegistry.seen[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateKey, id)
	}
	keyRegistry.seen[id] = struct{}{}
	return nil
}

// NewKey builds and registers a KeyDefinition. It fails when the key is
// empty, the deserializer is missing, or the key collides with an existing
// registration for the same definition.
func NewKey[T any](def StateDefinition, key string, deserialize Deserializer[T]) (KeyDefinition[T], error) {
	if key == "" {
		return KeyDefinition[T]{}, ErrKeyRequired
	}
	if deserialize == nil {
		return KeyDefinition[T]{}, fmt.Errorf("%w: %s", ErrDeserializerRequired, key)
	}
	if err := registerKey(def, key); err != nil {
		return KeyDefinition[T]{}, err
	}
	return KeyDefinition[T]{Definition: def, Key: key, Deserialize: deserialize}, nil
}

// MustKey is NewKey that panics on configuration errors. Intended for
// package-level key variables.
func MustKey[T any](def StateDefinition, key string, deserialize Deserializer[T]) KeyDefinition[T] {
	kd, err := NewKey(def, key, deserialize)
	if err != nil {
		panic(err)
	}
	return kd
}

// NewRecordKey builds a KeyDefinition for a record-shaped value (a map keyed
// by an entity id) whose deserializer runs per entry.
func NewRecordKey[V any](def StateDefinition, key string, each Deserializer[V]) (KeyDefinition[map[string]V], error) {
	if each == nil {
		return KeyDefinition[map[string]V]{}, fmt.Errorf("%w: %s", ErrDeserializerRequired, key)
	}
	return NewKey(def, key, func(raw json.RawMessage) (map[string]V, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return nil, fmt.Errorf("vaultstate: record %q: %w", key, err)
		}
		out := make(map[string]V, len(entries))
		for id, entry := range entries {
			value, err := each(entry)
			if err != nil {
				return nil, fmt.Errorf("vaultstate: record %q entry %q: %w", key, id, err)
			}
			out[id] = value
		}
		return out, nil
	})
}

// MustRecordKey is NewRecordKey that panics on configuration errors.
func MustRecordKey[V any](def StateDefinition, key string, each Deserializer[V]) KeyDefinition[map[string]V] {
	kd, err := NewRecordKey(def, key, each)
	if err != nil {
		panic(err)
	}
	return kd
}

// StorageKey composes the backend key for a global container. User and
// derived scopes use distinct prefixes, and the storage location is part of
// the key, so keys never collide across scopes or between disk and memory
// definitions sharing a domain name.
func (k KeyDefinition[T]) StorageKey() string {
	return fmt.Sprintf("global_%s_%s_%s", k.Definition.location, k.Definition.name, k.Key)
}

// UserStorageKey composes the backend key for a single-user container.
func (k KeyDefinition[T]) UserStorageKey(userID string) string {
	return fmt.Sprintf("user_%s_%s_%s_%s", userID, k.Definition.location, k.Definition.name, k.Key)
}
