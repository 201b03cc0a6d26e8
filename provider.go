package vaultstate

import (
	"fmt"
	"sync"
)

// Provider resolves and memoizes state containers. For identical arguments
// every accessor returns the same container instance, which is what
// guarantees one cache, one storage subscription, and one writer per key.
//
// Accessors are package-level generic functions because Go methods cannot
// carry their own type parameters.
type Provider struct {
	disk     Storage
	memory   Storage
	accounts AccountService

	mu         sync.Mutex
	containers map[string]any
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

// NewProvider builds a Provider over a disk backend, a memory backend, and
// the account collaborator used by active-user containers.
func NewProvider(disk, memory Storage, accounts AccountService, opts ...ProviderOption) *Provider {
	p := &Provider{
		disk:       disk,
		memory:     memory,
		accounts:   accounts,
		containers: map[string]any{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

func (p *Provider) storageFor(location StorageLocation) Storage {
	if location == StorageMemory {
		return p.memory
	}
	return p.disk
}

// memoize returns the cached container for id, building it on first access.
// The build function runs under the provider lock so two concurrent callers
// can never construct divergent instances.
func memoize[C any](p *Provider, id string, build func() C) C {
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.containers[id]; ok {
		return existing.(C)
	}
	built := build()
	p.containers[id] = built
	return built
}

// Global resolves the memoized global container for key.
func Global[T any](p *Provider, key KeyDefinition[T]) *GlobalState[T] {
	id := "global|" + key.StorageKey()
	return memoize(p, id, func() *GlobalState[T] {
		return newGlobalState(key, p.storageFor(key.Definition.location))
	})
}

// User resolves the memoized container for one concrete user's copy of key.
func User[T any](p *Provider, userID string, key KeyDefinition[T]) *UserState[T] {
	id := fmt.Sprintf("user|%s|%s", userID, key.UserStorageKey(userID))
	return memoize(p, id, func() *UserState[T] {
		return newUserState(userID, key, p.storageFor(key.Definition.location))
	})
}

// Active resolves the memoized active-user container for key.
func Active[T any](p *Provider, key KeyDefinition[T]) *ActiveUserState[T] {
	id := "active|" + key.StorageKey()
	return memoize(p, id, func() *ActiveUserState[T] {
		return newActiveUserState(key, p.accounts, func(userID string) *UserState[T] {
			return User(p, userID, key)
		})
	})
}

// Derived resolves the memoized derived state for def over parent. The cache
// key is derived from the definition alone, so at most one computation chain
// exists per derivation regardless of how many consumers request it.
func Derived[TFrom, TTo any](p *Provider, parent Observable[TFrom], def DeriveDefinition[TFrom, TTo], deps DeriveDependencies) *DerivedState[TFrom, TTo] {
	return memoize(p, def.CacheKey(), func() *DerivedState[TFrom, TTo] {
		return newDerivedState(parent, def, deps)
	})
}
