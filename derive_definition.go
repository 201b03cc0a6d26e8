package vaultstate

import (
	"fmt"
	"time"
)

// DeriveDependencies carries constant collaborators into a derive function.
// They are fixed for the lifetime of the derived state.
type DeriveDependencies map[string]any

// DeriveFn transforms a parent emission into the derived value. It may block;
// results resolving after a newer parent emission has superseded their input
// are discarded, never emitted out of order.
type DeriveFn[TFrom, TTo any] func(from TFrom, deps DeriveDependencies) (TTo, error)

// DefaultCleanupDelay is how long a derived state outlives its last
// subscriber before its cache and parent subscription are torn down.
const DefaultCleanupDelay = time.Second

// DeriveDefinition describes state derived from a parent observable. The
// state definition scopes the derivation's cache key; the derivation name
// sub-divides that domain, so the pair must be unique per process.
//
// Derived values live in memory only, but the deserializer must still be able
// to faithfully reconstruct TTo from its JSON shape for the cases where a
// derived value crosses a storage boundary between execution contexts.
type DeriveDefinition[TFrom, TTo any] struct {
	Definition   StateDefinition
	Name         string
	Derive       DeriveFn[TFrom, TTo]
	Deserialize  Deserializer[TTo]
	CleanupDelay time.Duration
}

// NewDeriveDefinition validates and builds a DeriveDefinition. A negative
// cleanup delay is clamped to zero; a zero value selects the default.
func NewDeriveDefinition[TFrom, TTo any](
	def StateDefinition,
	name string,
	derive DeriveFn[TFrom, TTo],
	deserialize Deserializer[TTo],
	cleanupDelay time.Duration,
) (DeriveDefinition[TFrom, TTo], error) {
	if name == "" {
		return DeriveDefinition[TFrom, TTo]{}, ErrKeyRequired
	}
	if derive == nil {
		return DeriveDefinition[TFrom, TTo]{}, fmt.Errorf("%w: %s", ErrDeriveRequired, name)
	}
	if deserialize == nil {
		return DeriveDefinition[TFrom, TTo]{}, fmt.Errorf("%w: %s", ErrDeserializerRequired, name)
	}
	return DeriveDefinition[TFrom, TTo]{
		Definition:   def,
		Name:         name,
		Derive:       derive,
		Deserialize:  deserialize,
		CleanupDelay: cleanupDelay,
	}, nil
}

// DeriveFrom builds a DeriveDefinition that shares a key definition's
// identity. The resulting cache key is prefixed so it never collides with the
// key definition's own storage, even when both reside in memory.
func DeriveFrom[TFrom, TTo any](
	key KeyDefinition[TFrom],
	derive DeriveFn[TFrom, TTo],
	deserialize Deserializer[TTo],
	cleanupDelay time.Duration,
) (DeriveDefinition[TFrom, TTo], error) {
	return NewDeriveDefinition(key.Definition, key.Key, derive, deserialize, cleanupDelay)
}

// CacheKey returns the process-wide identity for this derivation.
func (d DeriveDefinition[TFrom, TTo]) CacheKey() string {
	return fmt.Sprintf("derived_%s_%s", d.Definition.name, d.Name)
}

func (d DeriveDefinition[TFrom, TTo]) cleanupDelay() time.Duration {
	switch {
	case d.CleanupDelay < 0:
		return 0
	case d.CleanupDelay == 0:
		return DefaultCleanupDelay
	default:
		return d.CleanupDelay
	}
}
