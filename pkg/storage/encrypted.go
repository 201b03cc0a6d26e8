package storage

import (
	"context"
	"encoding/json"
	"fmt"

	vaultstate "github.com/goliatone/go-vaultstate"
)

// Encrypted decorates a Storage so values rest encrypted. Ciphertext is
// opaque to this package; the Crypto collaborator owns key material and
// algorithms. Keys themselves are not encrypted.
type Encrypted struct {
	inner  vaultstate.Storage
	crypto vaultstate.Crypto
}

// NewEncrypted wraps inner with the given crypto collaborator.
func NewEncrypted(inner vaultstate.Storage, crypto vaultstate.Crypto) *Encrypted {
	return &Encrypted{inner: inner, crypto: crypto}
}

type cipherEnvelope struct {
	Ciphertext []byte `json:"ct"`
}

// Get implements vaultstate.Storage.
func (e *Encrypted) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return nil, ok, err
	}
	var envelope cipherEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, false, fmt.Errorf("storage: cipher envelope %s: %w", key, err)
	}
	plaintext, err := e.crypto.Decrypt(ctx, envelope.Ciphertext)
	if err != nil {
		return nil, false, fmt.Errorf("storage: decrypt %s: %w", key, err)
	}
	return plaintext, true, nil
}

// Save implements vaultstate.Storage.
func (e *Encrypted) Save(ctx context.Context, key string, value json.RawMessage) error {
	if value == nil {
		return e.inner.Save(ctx, key, nil)
	}
	ciphertext, err := e.crypto.Encrypt(ctx, value)
	if err != nil {
		return fmt.Errorf("storage: encrypt %s: %w", key, err)
	}
	raw, err := json.Marshal(cipherEnvelope{Ciphertext: ciphertext})
	if err != nil {
		return fmt.Errorf("storage: cipher envelope %s: %w", key, err)
	}
	return e.inner.Save(ctx, key, raw)
}

// Has implements vaultstate.Storage.
func (e *Encrypted) Has(ctx context.Context, key string) (bool, error) {
	return e.inner.Has(ctx, key)
}

// Updates implements vaultstate.Storage.
func (e *Encrypted) Updates() vaultstate.Observable[vaultstate.StorageUpdate] {
	return e.inner.Updates()
}
