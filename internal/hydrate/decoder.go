// Package hydrate builds the deserializers that reconstitute persisted JSON
// into live state values. Stored payloads may have been written by another
// execution context or an older process, so decoding is hook-driven and never
// trusts the payload shape blindly.
package hydrate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// PostHook adjusts or validates the hydrated value after decoding.
type PostHook[T any] func(*T) error

// Option configures a Decoder instance.
type Option[T any] func(*Decoder[T])

// Decoder converts raw persisted JSON into strongly typed values.
type Decoder[T any] struct {
	postHooks    []PostHook[T]
	configureDec []func(*json.Decoder)
}

// WithPostHook applies hook after decoding completes.
func WithPostHook[T any](hook PostHook[T]) Option[T] {
	return func(d *Decoder[T]) {
		d.postHooks = append(d.postHooks, hook)
	}
}

// WithUseNumber enables json.Decoder.UseNumber during decoding.
func WithUseNumber[T any]() Option[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.UseNumber()
		})
	}
}

// WithDisallowUnknownFields rejects payloads carrying fields T does not have.
func WithDisallowUnknownFields[T any]() Option[T] {
	return func(d *Decoder[T]) {
		d.configureDec = append(d.configureDec, func(dec *json.Decoder) {
			dec.DisallowUnknownFields()
		})
	}
}

// NewDecoder constructs a Decoder with the supplied options.
func NewDecoder[T any](opts ...Option[T]) *Decoder[T] {
	d := &Decoder[T]{}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Decode converts raw into T, applying configured hooks. A nil or JSON null
// payload yields the zero value without invoking hooks.
func (d *Decoder[T]) Decode(raw json.RawMessage) (T, error) {
	var zero T
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return zero, nil
	}

	var result T
	decoder := json.NewDecoder(bytes.NewReader(raw))
	for _, configure := range d.configureDec {
		if configure != nil {
			configure(decoder)
		}
	}
	if err := decoder.Decode(&result); err != nil {
		return zero, fmt.Errorf("hydrate: decode %T: %w", result, err)
	}

	for _, hook := range d.postHooks {
		if hook == nil {
			continue
		}
		if err := hook(&result); err != nil {
			return zero, fmt.Errorf("hydrate: post-hook %T: %w", result, err)
		}
	}
	return result, nil
}

// Deserializer returns the Decode method as a standalone function, matching
// the deserializer shape key definitions expect.
func Deserializer[T any](opts ...Option[T]) func(json.RawMessage) (T, error) {
	return NewDecoder(opts...).Decode
}
