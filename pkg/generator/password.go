package generator

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	vaultstate "github.com/goliatone/go-vaultstate"
	"github.com/goliatone/go-vaultstate/pkg/policy"
)

// Definition scopes persisted generator options on disk.
var Definition = vaultstate.NewStateDefinition("generator", vaultstate.StorageDisk)

// PasswordSettings keys the active user's password generation options.
var PasswordSettings = vaultstate.MustKey(Definition, "passwordGenerationOptions", vaultstate.JSONDeserializer[PasswordOptions]())

// Character length bounds enforced during sanitization.
const (
	MinPasswordLength = 5
	MaxPasswordLength = 128
)

// PasswordOptions are user-facing password generation settings.
type PasswordOptions struct {
	Length     int  `json:"length"`
	Uppercase  bool `json:"uppercase"`
	Lowercase  bool `json:"lowercase"`
	Numbers    bool `json:"number"`
	MinNumbers int  `json:"minNumber"`
	Special    bool `json:"special"`
	MinSpecial int  `json:"minSpecial"`
}

// DefaultPasswordOptions are the starting settings layered under saves.
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{
		Length:     14,
		Uppercase:  true,
		Lowercase:  true,
		Numbers:    true,
		MinNumbers: 1,
		Special:    false,
		MinSpecial: 0,
	}
}

// PasswordPolicy is a password generator constraint set mapped from one
// enforced policy's data.
type PasswordPolicy struct {
	MinLength    int
	UseUppercase bool
	UseLowercase bool
	UseNumbers   bool
	NumberCount  int
	UseSpecial   bool
	SpecialCount int
}

// PasswordEvaluator applies password policy constraints. Multiple enforced
// policies combine monotonically: the strictest value of every field binds.
type PasswordEvaluator struct {
	policy PasswordPolicy
}

// NewPasswordEvaluator folds the constraint sets into one evaluator.
func NewPasswordEvaluator(policies ...PasswordPolicy) *PasswordEvaluator {
	var combined PasswordPolicy
	for _, p := range policies {
		combined.MinLength = max(combined.MinLength, p.MinLength)
		combined.UseUppercase = combined.UseUppercase || p.UseUppercase
		combined.UseLowercase = combined.UseLowercase || p.UseLowercase
		combined.UseNumbers = combined.UseNumbers || p.UseNumbers
		combined.NumberCount = max(combined.NumberCount, p.NumberCount)
		combined.UseSpecial = combined.UseSpecial || p.UseSpecial
		combined.SpecialCount = max(combined.SpecialCount, p.SpecialCount)
	}
	return &PasswordEvaluator{policy: combined}
}

// InEffect reports whether any constraint binds.
func (e *PasswordEvaluator) InEffect() bool {
	p := e.policy
	return p.MinLength > 0 || p.UseUppercase || p.UseLowercase ||
		p.UseNumbers || p.NumberCount > 0 || p.UseSpecial || p.SpecialCount > 0
}

// ApplyPolicy raises options to the policy's minimums.
func (e *PasswordEvaluator) ApplyPolicy(options PasswordOptions) PasswordOptions {
	p := e.policy
	options.Length = max(options.Length, p.MinLength)
	options.Uppercase = options.Uppercase || p.UseUppercase
	options.Lowercase = options.Lowercase || p.UseLowercase
	options.Numbers = options.Numbers || p.UseNumbers
	options.MinNumbers = max(options.MinNumbers, p.NumberCount)
	options.Special = options.Special || p.UseSpecial
	options.MinSpecial = max(options.MinSpecial, p.SpecialCount)
	return options
}

// Sanitize resolves inconsistencies after applying: counts for disabled
// character classes drop to zero, at least one class stays enabled, and the
// length covers the required counts within the allowed bounds.
func (e *PasswordEvaluator) Sanitize(options PasswordOptions) PasswordOptions {
	if !options.Uppercase && !options.Lowercase && !options.Numbers && !options.Special {
		options.Lowercase = true
	}
	if !options.Numbers {
		options.MinNumbers = 0
	}
	if !options.Special {
		options.MinSpecial = 0
	}
	options.Length = max(options.Length, MinPasswordLength, options.MinNumbers+options.MinSpecial)
	options.Length = min(options.Length, MaxPasswordLength)
	return options
}

// PasswordStrategy generates random passwords and persists its options under
// PasswordSettings.
type PasswordStrategy struct{}

// NewPasswordStrategy returns the password generator strategy.
func NewPasswordStrategy() *PasswordStrategy { return &PasswordStrategy{} }

func (*PasswordStrategy) Disk() vaultstate.KeyDefinition[PasswordOptions] {
	return PasswordSettings
}

func (*PasswordStrategy) PolicyType() policy.Type {
	return policy.TypePasswordGenerator
}

// ToGeneratorPolicy maps a raw policy's data to password constraints.
// Malformed data yields an empty constraint set rather than an error so one
// bad policy cannot disable enforcement of the rest.
func (*PasswordStrategy) ToGeneratorPolicy(p policy.Policy) PasswordPolicy {
	data, err := p.PasswordGeneratorData()
	if err != nil {
		return PasswordPolicy{}
	}
	out := PasswordPolicy{
		UseUppercase: data.UseUpper,
		UseLowercase: data.UseLower,
		UseNumbers:   data.UseNumbers,
		UseSpecial:   data.UseSpecial,
	}
	if data.MinLength != nil {
		out.MinLength = *data.MinLength
	}
	if data.MinNumbers != nil {
		out.NumberCount = *data.MinNumbers
	}
	if data.MinSpecial != nil {
		out.SpecialCount = *data.MinSpecial
	}
	return out
}

func (*PasswordStrategy) Evaluator(policies []PasswordPolicy) PolicyEvaluator[PasswordOptions] {
	return NewPasswordEvaluator(policies...)
}

const (
	lowerSet   = "abcdefghijklmnopqrstuvwxyz"
	upperSet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	numberSet  = "0123456789"
	specialSet = "!@#$%^&*"
)

// Generate produces a random password honoring the option's character
// classes and minimum counts.
func (*PasswordStrategy) Generate(_ context.Context, options PasswordOptions) (string, error) {
	options = NewPasswordEvaluator().Sanitize(options)

	var all string
	chars := make([]byte, 0, options.Length)
	pick := func(set string, n int) error {
		for i := 0; i < n; i++ {
			c, err := randByte(set)
			if err != nil {
				return err
			}
			chars = append(chars, c)
		}
		return nil
	}

	if options.Lowercase {
		all += lowerSet
	}
	if options.Uppercase {
		all += upperSet
	}
	if options.Numbers {
		all += numberSet
		if err := pick(numberSet, options.MinNumbers); err != nil {
			return "", err
		}
	}
	if options.Special {
		all += specialSet
		if err := pick(specialSet, options.MinSpecial); err != nil {
			return "", err
		}
	}
	if err := pick(all, options.Length-len(chars)); err != nil {
		return "", err
	}
	if err := shuffle(chars); err != nil {
		return "", err
	}
	return string(chars), nil
}

func randByte(set string) (byte, error) {
	if set == "" {
		return 0, fmt.Errorf("generator: empty character set")
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(len(set))))
	if err != nil {
		return 0, fmt.Errorf("generator: random source: %w", err)
	}
	return set[n.Int64()], nil
}

func shuffle(chars []byte) error {
	for i := len(chars) - 1; i > 0; i-- {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			return fmt.Errorf("generator: random source: %w", err)
		}
		j := n.Int64()
		chars[i], chars[j] = chars[j], chars[i]
	}
	return nil
}

var _ Strategy[PasswordOptions, PasswordPolicy] = (*PasswordStrategy)(nil)
