// Package activity fans state and policy domain events out to registered
// hooks. Platform-specific side effects (a browser badge refresh, an audit
// trail) subscribe here instead of subclassing the services that produce the
// events.
package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event describes one domain occurrence. IDs are stringly-typed to avoid
// coupling call sites to specific identifier types.
type Event struct {
	Verb       string
	UserID     string
	ObjectType string
	ObjectID   string
	Metadata   map[string]any
	OccurredAt time.Time
}

// Verbs emitted by the state and policy services.
const (
	VerbPolicyUpserted = "policy.upserted"
	VerbPolicyReplaced = "policy.replaced"
	VerbPolicyCleared  = "policy.cleared"
	VerbOptionsSaved   = "generator.options_saved"
)

// Hook receives normalized events.
type Hook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc allows plain functions to satisfy Hook.
type HookFunc func(ctx context.Context, event Event) error

// Notify dispatches to the underlying function.
func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks fans out events to zero or more hooks.
type Hooks []Hook

// Enabled reports whether there are any hooks to notify.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify forwards the event to all hooks, returning a joined error if any
// fail. Events missing a verb or object type are dropped.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}

	normalized := NormalizeEvent(event)
	if normalized.Verb == "" || normalized.ObjectType == "" {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, normalized); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// NormalizeEvent trims identifiers and stamps the occurrence time.
func NormalizeEvent(event Event) Event {
	event.Verb = strings.TrimSpace(event.Verb)
	event.UserID = strings.TrimSpace(event.UserID)
	event.ObjectType = strings.TrimSpace(event.ObjectType)
	event.ObjectID = strings.TrimSpace(event.ObjectID)
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	return event
}
