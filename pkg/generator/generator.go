// Package generator layers credential generation on top of the scoped state
// core and the policy service. A Strategy adapts one generator kind (password,
// passphrase) to its persisted options key, the policy type constraining it,
// and the evaluator that applies those constraints; Service wires the
// strategy to live state.
package generator

import (
	"context"

	vaultstate "github.com/goliatone/go-vaultstate"
	"github.com/goliatone/go-vaultstate/internal/merge"
	"github.com/goliatone/go-vaultstate/pkg/activity"
	"github.com/goliatone/go-vaultstate/pkg/policy"
)

// PolicyEvaluator applies a generator kind's policy constraints to options.
// Implementations are stateless value objects built per evaluation.
type PolicyEvaluator[O any] interface {
	// InEffect reports whether any constraint is active.
	InEffect() bool
	// ApplyPolicy raises options to meet the policy's minimums.
	ApplyPolicy(options O) O
	// Sanitize resolves internal inconsistencies left after applying, such
	// as a minimum count for a disabled character class.
	Sanitize(options O) O
}

// Strategy tailors the generator service to one credential kind.
type Strategy[O, P any] interface {
	// Disk is the key definition under which the kind's options persist.
	Disk() vaultstate.KeyDefinition[O]
	// PolicyType is the policy type the kind reacts to.
	PolicyType() policy.Type
	// ToGeneratorPolicy maps one raw policy's data to typed constraints.
	ToGeneratorPolicy(p policy.Policy) P
	// Evaluator builds the evaluator for the enforced constraint set.
	Evaluator(policies []P) PolicyEvaluator[O]
	// Generate produces a credential from fully resolved options.
	Generate(ctx context.Context, options O) (string, error)
}

// Service composes a strategy with the state provider and policy service.
type Service[O, P any] struct {
	strategy Strategy[O, P]
	policies *policy.Service
	provider *vaultstate.Provider
	emitter  *activity.Emitter

	defaults    O
	hasDefaults bool
}

// ServiceOption configures a Service.
type ServiceOption[O, P any] func(*Service[O, P])

// WithDefaults layers saved options over the given defaults: fields the user
// never touched fall back to the default value on save.
func WithDefaults[O, P any](defaults O) ServiceOption[O, P] {
	return func(s *Service[O, P]) {
		s.defaults = defaults
		s.hasDefaults = true
	}
}

// WithServiceEmitter attaches an activity emitter notified on option saves.
func WithServiceEmitter[O, P any](emitter *activity.Emitter) ServiceOption[O, P] {
	return func(s *Service[O, P]) { s.emitter = emitter }
}

// NewService builds a generator service for one strategy.
func NewService[O, P any](strategy Strategy[O, P], policies *policy.Service, provider *vaultstate.Provider, opts ...ServiceOption[O, P]) *Service[O, P] {
	s := &Service[O, P]{
		strategy: strategy,
		policies: policies,
		provider: provider,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Options streams the active user's persisted options for this kind.
func (s *Service[O, P]) Options() vaultstate.Observable[O] {
	return vaultstate.Active(s.provider, s.strategy.Disk()).State()
}

// SaveOptions persists options for the active user, layered over the
// configured defaults when present.
func (s *Service[O, P]) SaveOptions(ctx context.Context, options O) error {
	if s.hasDefaults {
		options = merge.Overlay(options, s.defaults)
	}
	saved := options
	_, err := vaultstate.Active(s.provider, s.strategy.Disk()).Update(ctx, func(O) (O, error) {
		return saved, nil
	})
	if err != nil {
		return err
	}
	if s.emitter.Enabled() {
		_ = s.emitter.Emit(ctx, activity.Event{
			Verb:       activity.VerbOptionsSaved,
			ObjectType: "generator_options",
			ObjectID:   s.strategy.Disk().Key,
		})
	}
	return nil
}

// Policy streams the enforced constraint sets for this kind's policy type.
func (s *Service[O, P]) Policy() vaultstate.Observable[[]P] {
	return vaultstate.Map(s.policies.Get(s.strategy.PolicyType()), s.toGeneratorPolicies)
}

// PolicyInEffect streams whether any constraint currently binds.
func (s *Service[O, P]) PolicyInEffect() vaultstate.Observable[bool] {
	return vaultstate.Map(s.Policy(), func(policies []P) bool {
		return s.strategy.Evaluator(policies).InEffect()
	})
}

// EnforcePolicy resolves the current constraints once and returns options
// raised to meet them and sanitized for consistency.
func (s *Service[O, P]) EnforcePolicy(ctx context.Context, options O) (O, error) {
	policies, err := vaultstate.FirstValue(ctx, s.Policy())
	if err != nil {
		var zero O
		return zero, err
	}
	evaluator := s.strategy.Evaluator(policies)
	return evaluator.Sanitize(evaluator.ApplyPolicy(options)), nil
}

// Generate delegates credential production to the strategy.
func (s *Service[O, P]) Generate(ctx context.Context, options O) (string, error) {
	return s.strategy.Generate(ctx, options)
}

func (s *Service[O, P]) toGeneratorPolicies(policies []policy.Policy) []P {
	out := make([]P, 0, len(policies))
	for _, p := range policies {
		out = append(out, s.strategy.ToGeneratorPolicy(p))
	}
	return out
}
