// Package policy aggregates server-synced organization policies into the
// constraints that actually bind the current user. Raw policy records live in
// a per-user state container; this package filters them by organization
// membership, enablement, and role exemptions, and combines the survivors
// into enforced, typed option objects.
package policy

import (
	"encoding/json"
	"fmt"

	vaultstate "github.com/goliatone/go-vaultstate"
	"github.com/goliatone/go-vaultstate/internal/hydrate"
)

// Type identifies the constraint family a policy record belongs to.
type Type int

const (
	TypeTwoFactorAuthentication Type = iota
	TypeMasterPassword
	TypePasswordGenerator
	TypeSingleOrg
	TypeRequireSSO
	TypePersonalOwnership
	TypeDisableSend
	TypeSendOptions
	TypeResetPassword
	TypeMaximumVaultTimeout
	TypeDisablePersonalVaultExport
	TypeActivateAutofill
)

func (t Type) String() string {
	switch t {
	case TypeTwoFactorAuthentication:
		return "two_factor_authentication"
	case TypeMasterPassword:
		return "master_password"
	case TypePasswordGenerator:
		return "password_generator"
	case TypeSingleOrg:
		return "single_org"
	case TypeRequireSSO:
		return "require_sso"
	case TypePersonalOwnership:
		return "personal_ownership"
	case TypeDisableSend:
		return "disable_send"
	case TypeSendOptions:
		return "send_options"
	case TypeResetPassword:
		return "reset_password"
	case TypeMaximumVaultTimeout:
		return "maximum_vault_timeout"
	case TypeDisablePersonalVaultExport:
		return "disable_personal_vault_export"
	case TypeActivateAutofill:
		return "activate_autofill"
	default:
		return "unknown"
	}
}

// Policy is one organization-scoped constraint record. The server owns
// identity; the client never invents policy ids. Data is the type-specific
// payload, kept raw until a typed view is requested at a read boundary.
type Policy struct {
	ID             string          `json:"id"`
	OrganizationID string          `json:"organizationId"`
	Type           Type            `json:"type"`
	Enabled        bool            `json:"enabled"`
	Data           json.RawMessage `json:"data,omitempty"`
	// Rule optionally gates applicability with an expression evaluated
	// against the organization/user context. Empty means unconditional.
	Rule string `json:"rule,omitempty"`
}

// MasterPasswordData is the payload shape of TypeMasterPassword policies.
// Numeric fields are pointers because absent and zero differ: an absent
// minimum imposes nothing.
type MasterPasswordData struct {
	MinComplexity  *int `json:"minComplexity,omitempty"`
	MinLength      *int `json:"minLength,omitempty"`
	RequireUpper   bool `json:"requireUpper,omitempty"`
	RequireLower   bool `json:"requireLower,omitempty"`
	RequireNumbers bool `json:"requireNumbers,omitempty"`
	RequireSpecial bool `json:"requireSpecial,omitempty"`
	EnforceOnLogin bool `json:"enforceOnLogin,omitempty"`
}

// PasswordGeneratorData is the payload shape of TypePasswordGenerator
// policies.
type PasswordGeneratorData struct {
	MinLength  *int `json:"minLength,omitempty"`
	UseUpper   bool `json:"useUpper,omitempty"`
	UseLower   bool `json:"useLower,omitempty"`
	UseNumbers bool `json:"useNumbers,omitempty"`
	MinNumbers *int `json:"minNumbers,omitempty"`
	UseSpecial bool `json:"useSpecial,omitempty"`
	MinSpecial *int `json:"minSpecial,omitempty"`
}

// ResetPasswordData is the payload shape of TypeResetPassword policies.
type ResetPasswordData struct {
	AutoEnrollEnabled bool `json:"autoEnrollEnabled,omitempty"`
}

// MasterPasswordData decodes the payload as master password constraints.
// An absent payload yields the zero value: no constraint (fail open).
func (p Policy) MasterPasswordData() (MasterPasswordData, error) {
	return decodeData[MasterPasswordData](p)
}

// PasswordGeneratorData decodes the payload as generator constraints.
func (p Policy) PasswordGeneratorData() (PasswordGeneratorData, error) {
	return decodeData[PasswordGeneratorData](p)
}

// ResetPasswordData decodes the payload as reset password options.
func (p Policy) ResetPasswordData() (ResetPasswordData, error) {
	return decodeData[ResetPasswordData](p)
}

// DataMap decodes the payload generically for rule evaluation.
func (p Policy) DataMap() map[string]any {
	if len(p.Data) == 0 {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(p.Data, &out); err != nil {
		return nil
	}
	return out
}

func decodeData[T any](p Policy) (T, error) {
	value, err := hydrate.Deserializer[T]()(p.Data)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("policy: %s data for %s: %w", p.Type, p.ID, err)
	}
	return value, nil
}

// OrganizationUserStatus is the user's membership standing within an
// organization.
type OrganizationUserStatus int

const (
	StatusRevoked OrganizationUserStatus = iota - 1
	StatusInvited
	StatusAccepted
	StatusConfirmed
)

// Organization is the slice of the organization record the enforcement
// filter needs: membership standing plus the role flags that drive
// exemptions.
type Organization struct {
	ID                string
	Status            OrganizationUserStatus
	UsePolicies       bool
	IsOwner           bool
	CanManagePolicies bool
}

// Directory is the organization lookup collaborator.
type Directory interface {
	Get(organizationID string) (Organization, bool)
}

// DirectoryFunc adapts a function to Directory.
type DirectoryFunc func(organizationID string) (Organization, bool)

// Get implements Directory.
func (f DirectoryFunc) Get(organizationID string) (Organization, bool) {
	return f(organizationID)
}

// Definition scopes the persisted policy record.
var Definition = vaultstate.NewStateDefinition("policies", vaultstate.StorageDisk)

// RecordKey addresses the per-user policy record: a map of policy id to
// policy, mirroring the server's sync payload.
var RecordKey = vaultstate.MustRecordKey(Definition, "policies", func(raw json.RawMessage) (Policy, error) {
	return hydrate.Deserializer[Policy]()(raw)
})

// MapPoliciesFromSync decodes a sync response's policy list. Unknown fields
// are tolerated; the server may be newer than this client.
func MapPoliciesFromSync(raw json.RawMessage) ([]Policy, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var policies []Policy
	if err := json.Unmarshal(raw, &policies); err != nil {
		return nil, fmt.Errorf("policy: decode sync payload: %w", err)
	}
	return policies, nil
}
