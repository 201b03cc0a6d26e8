package vaultstate

import (
	"context"
	"encoding/json"
)

// StorageUpdate describes a change applied to a storage key. Backends emit
// one per write, including writes made by other execution contexts sharing
// the same store.
type StorageUpdate struct {
	Key     string
	Removed bool
}

// Storage is the backend contract containers read and write through. Values
// are raw JSON; (de)serialization belongs to the key definitions. A nil value
// passed to Save removes the key.
//
// Backends are shared, externally mutable state: every update notification is
// authoritative and containers re-emit on each one, never assuming they are
// the sole writer.
type Storage interface {
	Get(ctx context.Context, key string) (json.RawMessage, bool, error)
	Save(ctx context.Context, key string, value json.RawMessage) error
	Has(ctx context.Context, key string) (bool, error)
	Updates() Observable[StorageUpdate]
}

// Crypto is the opaque encryption collaborator. The state core never
// interprets ciphertext; values pass through unchanged semantics.
type Crypto interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}
