package vaultstate

import "github.com/goliatone/go-vaultstate/internal/hydrate"

// JSONDeserializer returns a plain JSON deserializer for T. Suitable for
// value types whose zero value is a valid "nothing stored" representation.
func JSONDeserializer[T any]() Deserializer[T] {
	return hydrate.Deserializer[T]()
}

// StrictJSONDeserializer returns a deserializer that rejects payloads with
// fields T does not declare. Use it for keys whose stored shape must never
// drift silently.
func StrictJSONDeserializer[T any]() Deserializer[T] {
	return hydrate.Deserializer(hydrate.WithDisallowUnknownFields[T]())
}
