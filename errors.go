package vaultstate

import "errors"

var (
	// ErrNoActiveUser indicates an active-user container was read or updated
	// while no account is active.
	ErrNoActiveUser = errors.New("vaultstate: no active user")
	// ErrKeyRequired indicates a key definition was constructed without a key.
	ErrKeyRequired = errors.New("vaultstate: key must be provided")
	// ErrDeserializerRequired indicates a key definition was constructed
	// without a deserializer.
	ErrDeserializerRequired = errors.New("vaultstate: deserializer must be provided")
	// ErrDuplicateKey indicates two key definitions registered the same key
	// within one state definition.
	ErrDuplicateKey = errors.New("vaultstate: key already registered for definition")
	// ErrDeriveRequired indicates a derive definition was constructed without
	// a derive function.
	ErrDeriveRequired = errors.New("vaultstate: derive function must be provided")
)
