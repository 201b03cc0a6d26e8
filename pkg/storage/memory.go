// Package storage provides the backend implementations behind the
// vaultstate.Storage contract: a volatile in-memory store, a file-backed
// disk store, and an encrypting decorator.
package storage

import (
	"context"
	"sync"

	"encoding/json"

	vaultstate "github.com/goliatone/go-vaultstate"
)

// Memory is a volatile Storage backed by a map. Values survive only for the
// process lifetime.
type Memory struct {
	mu      sync.RWMutex
	records map[string]json.RawMessage
	updates *vaultstate.Subject[vaultstate.StorageUpdate]
}

// NewMemory constructs an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: map[string]json.RawMessage{},
		updates: vaultstate.NewSubject[vaultstate.StorageUpdate](),
	}
}

// Get implements vaultstate.Storage.
func (m *Memory) Get(_ context.Context, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.records[key]
	if !ok {
		return nil, false, nil
	}
	out := make(json.RawMessage, len(raw))
	copy(out, raw)
	return out, true, nil
}

// Save implements vaultstate.Storage. A nil value removes the key.
func (m *Memory) Save(_ context.Context, key string, value json.RawMessage) error {
	m.mu.Lock()
	if value == nil {
		delete(m.records, key)
	} else {
		stored := make(json.RawMessage, len(value))
		copy(stored, value)
		m.records[key] = stored
	}
	m.mu.Unlock()

	m.updates.Next(vaultstate.StorageUpdate{Key: key, Removed: value == nil})
	return nil
}

// Has implements vaultstate.Storage.
func (m *Memory) Has(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.records[key]
	return ok, nil
}

// Updates implements vaultstate.Storage.
func (m *Memory) Updates() vaultstate.Observable[vaultstate.StorageUpdate] {
	return m.updates
}
