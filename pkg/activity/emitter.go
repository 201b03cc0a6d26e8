package activity

import (
	"context"
	"strings"
)

// Config controls activity emission defaults supplied by DI/config.
type Config struct {
	Enabled bool
}

// Emitter fans out events to hooks while applying defaults. A nil Emitter is
// valid and emits nothing, so services can carry one unconditionally.
type Emitter struct {
	hooks   Hooks
	enabled bool
}

// NewEmitter constructs an emitter from hooks and configuration.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	cloned := make(Hooks, 0, len(hooks))
	for _, hook := range hooks {
		if hook != nil {
			cloned = append(cloned, hook)
		}
	}
	return &Emitter{
		hooks:   cloned,
		enabled: cfg.Enabled && len(cloned) > 0,
	}
}

// Enabled reports whether emissions should be attempted.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled && len(e.hooks) > 0
}

// Emit forwards the event to all hooks.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Verb) == "" {
		return nil
	}
	return e.hooks.Notify(ctx, event)
}
