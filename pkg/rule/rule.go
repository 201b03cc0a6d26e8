// Package rule evaluates organization-authored policy rule expressions. A
// rule is a small boolean expression attached to a policy record that gates
// whether the policy applies in a given context. Engines are pluggable; the
// default is expr-lang, with CEL and (behind the js_eval build tag) JS
// available through the same interface.
package rule

import (
	"sync"
	"time"
)

// Context carries the inputs a rule may reference.
type Context struct {
	// Policy is the raw data payload of the policy under evaluation.
	Policy map[string]any
	// Organization is the issuing organization, flattened for binding.
	Organization map[string]any
	// UserID identifies the user the policy would apply to.
	UserID string
	// Now pins evaluation time; defaults to time.Now when nil.
	Now *time.Time
	// Args carries call-site extras.
	Args map[string]any
}

func (ctx Context) withDefaults() Context {
	if ctx.Now == nil {
		now := time.Now()
		ctx.Now = &now
	}
	if ctx.Policy == nil {
		ctx.Policy = map[string]any{}
	}
	if ctx.Organization == nil {
		ctx.Organization = map[string]any{}
	}
	if ctx.Args == nil {
		ctx.Args = map[string]any{}
	}
	return ctx
}

func (ctx Context) timestamp() time.Time {
	ctx = ctx.withDefaults()
	return *ctx.Now
}

// Evaluator executes rule expressions against a context.
type Evaluator interface {
	Evaluate(ctx Context, expr string) (any, error)
	Compile(expr string) (CompiledRule, error)
}

// CompiledRule is a reusable compiled expression program.
type CompiledRule interface {
	Evaluate(ctx Context) (any, error)
}

// ProgramCache stores compiled programs keyed by expression text.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapCache is a mutex-guarded ProgramCache for single-process use.
type MapCache struct {
	mu       sync.RWMutex
	programs map[string]any
}

// NewMapCache constructs an empty MapCache.
func NewMapCache() *MapCache {
	return &MapCache{programs: map[string]any{}}
}

// Get implements ProgramCache.
func (c *MapCache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	program, ok := c.programs[key]
	return program, ok
}

// Set implements ProgramCache.
func (c *MapCache) Set(key string, value any) {
	c.mu.Lock()
	c.programs[key] = value
	c.mu.Unlock()
}

// Truthy interprets an evaluation result as a policy gate: booleans pass
// through, nil is false, anything else is true.
func Truthy(result any) bool {
	switch v := result.(type) {
	case nil:
		return false
	case bool:
		return v
	default:
		return true
	}
}
