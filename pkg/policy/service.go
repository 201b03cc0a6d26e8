package policy

import (
	"context"
	"fmt"
	"sort"

	vaultstate "github.com/goliatone/go-vaultstate"
	"github.com/goliatone/go-vaultstate/pkg/activity"
	"github.com/goliatone/go-vaultstate/pkg/rule"
)

// Service turns the active user's raw policy record into enforced policy
// streams. The canonical feed is Policies: every policy belonging to an
// organization the user is an accepted member of, with policies enabled,
// minus the ones the user is exempt from. Raw records are deliberately not
// exposed.
type Service struct {
	provider  *vaultstate.Provider
	accounts  vaultstate.AccountService
	orgs      Directory
	key       vaultstate.KeyDefinition[map[string]Policy]
	evaluator rule.Evaluator
	emitter   *activity.Emitter

	enforced *vaultstate.Subject[[]Policy]
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRuleEvaluator enables conditional policy rules. Policies carrying a
// rule expression apply only when it evaluates truthy; evaluation errors
// fail safe toward enforcement.
func WithRuleEvaluator(evaluator rule.Evaluator) ServiceOption {
	return func(s *Service) { s.evaluator = evaluator }
}

// WithEmitter attaches an activity emitter notified on record mutations.
func WithEmitter(emitter *activity.Emitter) ServiceOption {
	return func(s *Service) { s.emitter = emitter }
}

// WithRecordKey overrides the key definition backing the policy record.
func WithRecordKey(key vaultstate.KeyDefinition[map[string]Policy]) ServiceOption {
	return func(s *Service) { s.key = key }
}

// NewService builds a policy service over the given provider, account
// collaborator, and organization directory.
func NewService(provider *vaultstate.Provider, accounts vaultstate.AccountService, orgs Directory, opts ...ServiceOption) *Service {
	s := &Service{
		provider: provider,
		accounts: accounts,
		orgs:     orgs,
		key:      RecordKey,
		enforced: vaultstate.NewSubject[[]Policy](),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	go s.run()
	return s
}

// run recomputes the enforced feed whenever the backing record changes or
// the active account's unlock state flips. A locked account always yields an
// empty list, never another user's stale data.
func (s *Service) run() {
	record := vaultstate.Active(s.provider, s.key).State().Subscribe()
	unlocked := s.accounts.Unlocked().Subscribe()

	var (
		current      map[string]Policy
		haveRecord   bool
		isUnlocked   bool
		haveUnlocked bool
	)
	for {
		select {
		case r, ok := <-record.Values():
			if !ok {
				return
			}
			current = r
			haveRecord = true
		case u, ok := <-unlocked.Values():
			if !ok {
				return
			}
			isUnlocked = u
			haveUnlocked = true
			if isUnlocked && haveRecord {
				// The record may have changed out of band while the account
				// was locked; unlock forces a fresh backend read instead of
				// trusting the cached value.
				if fresh, err := vaultstate.Active(s.provider, s.key).Refresh(context.Background()); err == nil {
					current = fresh
				}
			}
		}
		if !haveRecord || !haveUnlocked {
			continue
		}
		if !isUnlocked {
			s.enforced.Next([]Policy{})
			continue
		}
		s.enforced.Next(s.enforce(current, s.activeUserID()))
	}
}

func (s *Service) activeUserID() string {
	userID, err := vaultstate.FirstValue(context.Background(), s.accounts.ActiveUserID())
	if err != nil {
		return ""
	}
	return userID
}

func (s *Service) enforce(record map[string]Policy, userID string) []Policy {
	out := make([]Policy, 0, len(record))
	for _, p := range record {
		if s.appliesTo(p, userID) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// appliesTo implements the enforcement filter: accepted membership, policies
// enabled on the organization, and no role exemption. A policy whose
// organization record cannot be found is treated as applying; missing org
// data must never silently drop enforcement.
func (s *Service) appliesTo(p Policy, userID string) bool {
	org, ok := s.orgs.Get(p.OrganizationID)
	if !ok {
		return true
	}
	if org.Status < StatusAccepted {
		return false
	}
	if !org.UsePolicies {
		return false
	}
	if isExempt(p, org) {
		return false
	}
	return s.ruleApplies(p, org, userID)
}

// isExempt reports whether the user's role waives the policy. Users who can
// manage policies are generally exempt from them, but maximum vault timeout
// is stricter: it binds everyone except owners.
func isExempt(p Policy, org Organization) bool {
	switch p.Type {
	case TypeMaximumVaultTimeout:
		return org.IsOwner
	default:
		return org.CanManagePolicies
	}
}

func (s *Service) ruleApplies(p Policy, org Organization, userID string) bool {
	if p.Rule == "" || s.evaluator == nil {
		return true
	}
	result, err := s.evaluator.Evaluate(rule.Context{
		Policy: p.DataMap(),
		Organization: map[string]any{
			"id":                org.ID,
			"usePolicies":       org.UsePolicies,
			"isOwner":           org.IsOwner,
			"canManagePolicies": org.CanManagePolicies,
		},
		UserID: userID,
	}, p.Rule)
	if err != nil {
		// A broken rule must not relax enforcement.
		return true
	}
	return rule.Truthy(result)
}

// Policies is the enforced policy feed for the active user.
func (s *Service) Policies() vaultstate.Observable[[]Policy] {
	return s.enforced
}

// Get streams the enforced policies of one type.
func (s *Service) Get(policyType Type) vaultstate.Observable[[]Policy] {
	return vaultstate.Map(s.enforced, func(policies []Policy) []Policy {
		return filterType(policies, policyType)
	})
}

// Applies streams whether at least one enforced policy of the type exists.
func (s *Service) Applies(policyType Type) vaultstate.Observable[bool] {
	return vaultstate.Map(s.enforced, func(policies []Policy) bool {
		return len(filterType(policies, policyType)) > 0
	})
}

// GetForUser streams an explicit user's enforced policies of one type,
// for admin contexts inspecting accounts other than the active one.
func (s *Service) GetForUser(userID string, policyType Type) vaultstate.Observable[[]Policy] {
	state := vaultstate.User(s.provider, userID, s.key).State()
	return vaultstate.Map(state, func(record map[string]Policy) []Policy {
		return filterType(s.enforce(record, userID), policyType)
	})
}

// GetAll reads a user's enforced policies of one type once. Empty userID
// targets the active user; a locked active account reads empty, matching the
// Policies stream.
func (s *Service) GetAll(ctx context.Context, policyType Type, userID string) ([]Policy, error) {
	if userID == "" {
		unlocked, err := vaultstate.FirstValue(ctx, s.accounts.Unlocked())
		if err != nil {
			return nil, err
		}
		if !unlocked {
			return []Policy{}, nil
		}
	}
	record, err := s.record(ctx, userID)
	if err != nil {
		return nil, err
	}
	if userID == "" {
		userID = s.activeUserID()
	}
	return filterType(s.enforce(record, userID), policyType), nil
}

func (s *Service) record(ctx context.Context, userID string) (map[string]Policy, error) {
	if userID == "" {
		return vaultstate.Active(s.provider, s.key).Get(ctx)
	}
	return vaultstate.User(s.provider, userID, s.key).Get(ctx)
}

// MasterPasswordOptions streams the combined master password constraints,
// nil when no master password policy is enforced.
func (s *Service) MasterPasswordOptions() vaultstate.Observable[*MasterPasswordOptions] {
	return vaultstate.Map(s.enforced, CombineMasterPasswordOptions)
}

// EvaluateMasterPassword reports whether a candidate password complies with
// the combined options. See the package-level function of the same name.
func (s *Service) EvaluateMasterPassword(passwordStrength int, newPassword string, options *MasterPasswordOptions) bool {
	return EvaluateMasterPassword(passwordStrength, newPassword, options)
}

// ResetPasswordOptions locates org's enabled reset password policy within
// the supplied list. See ResetPasswordOptionsFor.
func (s *Service) ResetPasswordOptions(policies []Policy, organizationID string) (ResetPasswordOptions, bool) {
	return ResetPasswordOptionsFor(policies, organizationID)
}

// Upsert merges one policy into the active user's record.
func (s *Service) Upsert(ctx context.Context, p Policy) error {
	if p.ID == "" {
		return fmt.Errorf("policy: upsert requires a policy id")
	}
	_, err := vaultstate.Active(s.provider, s.key).Update(ctx, func(record map[string]Policy) (map[string]Policy, error) {
		if record == nil {
			record = map[string]Policy{}
		}
		record[p.ID] = p
		return record, nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, activity.VerbPolicyUpserted, "", p.ID, map[string]any{"type": p.Type.String()})
	return nil
}

// Replace overwrites the active user's whole record, as after a full sync.
func (s *Service) Replace(ctx context.Context, record map[string]Policy) error {
	_, err := vaultstate.Active(s.provider, s.key).Update(ctx, func(map[string]Policy) (map[string]Policy, error) {
		if record == nil {
			record = map[string]Policy{}
		}
		return record, nil
	})
	if err != nil {
		return err
	}
	s.emit(ctx, activity.VerbPolicyReplaced, "", "", map[string]any{"count": len(record)})
	return nil
}

// Clear empties a user's record. Empty userID targets the active user. The
// cleared record persists as an empty map, not null, so an explicit clear is
// indistinguishable from "no policies" downstream.
func (s *Service) Clear(ctx context.Context, userID string) error {
	empty := func(map[string]Policy) (map[string]Policy, error) {
		return map[string]Policy{}, nil
	}
	var err error
	if userID == "" {
		_, err = vaultstate.Active(s.provider, s.key).Update(ctx, empty)
	} else {
		_, err = vaultstate.User(s.provider, userID, s.key).Update(ctx, empty)
	}
	if err != nil {
		return err
	}
	// Attribute the event to the cleared user, not the operator's account.
	s.emit(ctx, activity.VerbPolicyCleared, userID, "", nil)
	return nil
}

func (s *Service) emit(ctx context.Context, verb, userID, objectID string, metadata map[string]any) {
	if !s.emitter.Enabled() {
		return
	}
	if userID == "" {
		userID = s.activeUserID()
	}
	_ = s.emitter.Emit(ctx, activity.Event{
		Verb:       verb,
		UserID:     userID,
		ObjectType: "policy",
		ObjectID:   objectID,
		Metadata:   metadata,
	})
}

func filterType(policies []Policy, policyType Type) []Policy {
	out := make([]Policy, 0, len(policies))
	for _, p := range policies {
		if p.Type == policyType {
			out = append(out, p)
		}
	}
	return out
}
