package policy

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MasterPasswordOptions is the combined view of every enabled master
// password policy that applies. Combination is monotonic-strict: numeric
// minimums take the maximum across contributors and boolean requirements OR
// together, so merging never relaxes a stricter policy.
type MasterPasswordOptions struct {
	MinComplexity  int  `json:"minComplexity"`
	MinLength      int  `json:"minLength"`
	RequireUpper   bool `json:"requireUpper"`
	RequireLower   bool `json:"requireLower"`
	RequireNumbers bool `json:"requireNumbers"`
	RequireSpecial bool `json:"requireSpecial"`
	EnforceOnLogin bool `json:"enforceOnLogin"`
}

// ResetPasswordOptions is the view of a single organization's reset password
// policy.
type ResetPasswordOptions struct {
	AutoEnrollEnabled bool `json:"autoEnrollEnabled"`
}

// CombineMasterPasswordOptions folds all enabled master password policies in
// the list into one options object. It returns nil when no enabled policy
// with a payload contributes anything, meaning nothing is enforced.
func CombineMasterPasswordOptions(policies []Policy) *MasterPasswordOptions {
	var enforced *MasterPasswordOptions
	for _, p := range policies {
		if p.Type != TypeMasterPassword || !p.Enabled || len(p.Data) == 0 {
			continue
		}
		data, err := p.MasterPasswordData()
		if err != nil {
			continue
		}
		if enforced == nil {
			enforced = &MasterPasswordOptions{}
		}
		if data.MinComplexity != nil && *data.MinComplexity > enforced.MinComplexity {
			enforced.MinComplexity = *data.MinComplexity
		}
		if data.MinLength != nil && *data.MinLength > enforced.MinLength {
			enforced.MinLength = *data.MinLength
		}
		if data.RequireUpper {
			enforced.RequireUpper = true
		}
		if data.RequireLower {
			enforced.RequireLower = true
		}
		if data.RequireNumbers {
			enforced.RequireNumbers = true
		}
		if data.RequireSpecial {
			enforced.RequireSpecial = true
		}
		if data.EnforceOnLogin {
			enforced.EnforceOnLogin = true
		}
	}
	return enforced
}

var (
	digitRe   = regexp.MustCompile(`[0-9]`)
	specialRe = regexp.MustCompile(`[!@#$%^&*]`)
)

// EvaluateMasterPassword reports whether a candidate password satisfies the
// combined options. Nil options means nothing is enforced and every password
// passes. Length counts characters, not bytes, and the upper/lower checks
// case-fold so cased letters outside ASCII satisfy them.
func EvaluateMasterPassword(passwordStrength int, newPassword string, options *MasterPasswordOptions) bool {
	if options == nil {
		return true
	}
	if options.MinComplexity > 0 && options.MinComplexity > passwordStrength {
		return false
	}
	if options.MinLength > 0 && options.MinLength > utf8.RuneCountInString(newPassword) {
		return false
	}
	if options.RequireUpper && strings.ToLower(newPassword) == newPassword {
		return false
	}
	if options.RequireLower && strings.ToUpper(newPassword) == newPassword {
		return false
	}
	if options.RequireNumbers && !digitRe.MatchString(newPassword) {
		return false
	}
	if options.RequireSpecial && !specialRe.MatchString(newPassword) {
		return false
	}
	return true
}

// ResetPasswordOptionsFor locates org's enabled reset password policy and
// returns its options plus whether such a policy is enabled. Auto enrollment
// defaults to false when the payload is absent.
func ResetPasswordOptionsFor(policies []Policy, organizationID string) (ResetPasswordOptions, bool) {
	var options ResetPasswordOptions
	if organizationID == "" {
		return options, false
	}
	for _, p := range policies {
		if p.OrganizationID != organizationID || p.Type != TypeResetPassword || !p.Enabled {
			continue
		}
		data, err := p.ResetPasswordData()
		if err == nil {
			options.AutoEnrollEnabled = data.AutoEnrollEnabled
		}
		return options, true
	}
	return options, false
}
