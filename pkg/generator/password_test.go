package generator

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/goliatone/go-vaultstate/pkg/policy"
)

func intp(v int) *int { return &v }

func countAny(s, set string) int {
	n := 0
	for _, r := range s {
		if strings.ContainsRune(set, r) {
			n++
		}
	}
	return n
}

func TestNewPasswordEvaluatorCombines(t *testing.T) {
	e := NewPasswordEvaluator(
		PasswordPolicy{MinLength: 12, UseNumbers: true, NumberCount: 1},
		PasswordPolicy{MinLength: 16, UseSpecial: true, SpecialCount: 2},
	)
	if !e.InEffect() {
		t.Fatalf("expected combined policy in effect")
	}
	got := e.ApplyPolicy(PasswordOptions{Length: 8})
	if got.Length != 16 {
		t.Fatalf("Length = %d, want the stricter 16", got.Length)
	}
	if !got.Numbers || got.MinNumbers != 1 || !got.Special || got.MinSpecial != 2 {
		t.Fatalf("constraints lost in combination: %+v", got)
	}
}

func TestPasswordEvaluatorInEffect(t *testing.T) {
	if NewPasswordEvaluator().InEffect() {
		t.Fatalf("empty policy must not be in effect")
	}
	if !NewPasswordEvaluator(PasswordPolicy{MinLength: 8}).InEffect() {
		t.Fatalf("expected min length constraint in effect")
	}
	if !NewPasswordEvaluator(PasswordPolicy{UseUppercase: true}).InEffect() {
		t.Fatalf("expected character class constraint in effect")
	}
}

func TestPasswordEvaluatorApplyPolicyKeepsStricterOptions(t *testing.T) {
	e := NewPasswordEvaluator(PasswordPolicy{MinLength: 10, NumberCount: 1, UseNumbers: true})
	got := e.ApplyPolicy(PasswordOptions{Length: 20, Numbers: true, MinNumbers: 3})
	if got.Length != 20 || got.MinNumbers != 3 {
		t.Fatalf("policy must never relax user options: %+v", got)
	}
}

func TestPasswordEvaluatorSanitize(t *testing.T) {
	e := NewPasswordEvaluator()

	got := e.Sanitize(PasswordOptions{Length: 10, MinNumbers: 3, MinSpecial: 2})
	if got.MinNumbers != 0 || got.MinSpecial != 0 {
		t.Fatalf("counts for disabled classes must reset: %+v", got)
	}
	if !got.Lowercase {
		t.Fatalf("at least one character class must stay enabled: %+v", got)
	}

	got = e.Sanitize(PasswordOptions{Length: 3, Lowercase: true})
	if got.Length != MinPasswordLength {
		t.Fatalf("Length = %d, want floor %d", got.Length, MinPasswordLength)
	}

	got = e.Sanitize(PasswordOptions{Length: 4, Numbers: true, MinNumbers: 6, Special: true, MinSpecial: 4})
	if got.Length != 10 {
		t.Fatalf("Length = %d, want the sum of required counts", got.Length)
	}

	got = e.Sanitize(PasswordOptions{Length: 500, Lowercase: true})
	if got.Length != MaxPasswordLength {
		t.Fatalf("Length = %d, want cap %d", got.Length, MaxPasswordLength)
	}
}

func TestToGeneratorPolicy(t *testing.T) {
	data, _ := json.Marshal(policy.PasswordGeneratorData{
		MinLength:  intp(12),
		UseUpper:   true,
		UseNumbers: true,
		MinNumbers: intp(2),
	})
	p := policy.Policy{ID: "p1", Type: policy.TypePasswordGenerator, Enabled: true, Data: data}

	got := NewPasswordStrategy().ToGeneratorPolicy(p)
	want := PasswordPolicy{MinLength: 12, UseUppercase: true, UseNumbers: true, NumberCount: 2}
	if got != want {
		t.Fatalf("ToGeneratorPolicy = %+v, want %+v", got, want)
	}

	malformed := policy.Policy{ID: "p2", Type: policy.TypePasswordGenerator, Data: json.RawMessage(`"nonsense"`)}
	if got := NewPasswordStrategy().ToGeneratorPolicy(malformed); got != (PasswordPolicy{}) {
		t.Fatalf("malformed data must map to the empty constraint set, got %+v", got)
	}
}

func TestGenerateHonorsOptions(t *testing.T) {
	strategy := NewPasswordStrategy()
	options := PasswordOptions{
		Length:     24,
		Lowercase:  true,
		Numbers:    true,
		MinNumbers: 3,
		Special:    true,
		MinSpecial: 2,
	}

	for i := 0; i < 20; i++ {
		password, err := strategy.Generate(context.Background(), options)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(password) != 24 {
			t.Fatalf("len = %d, want 24", len(password))
		}
		if got := countAny(password, numberSet); got < 3 {
			t.Fatalf("expected at least 3 digits, got %d in %q", got, password)
		}
		if got := countAny(password, specialSet); got < 2 {
			t.Fatalf("expected at least 2 specials, got %d in %q", got, password)
		}
		if got := countAny(password, upperSet); got != 0 {
			t.Fatalf("uppercase disabled but present in %q", password)
		}
	}
}

func TestGenerateSanitizesDegenerateOptions(t *testing.T) {
	password, err := NewPasswordStrategy().Generate(context.Background(), PasswordOptions{Length: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(password) != MinPasswordLength {
		t.Fatalf("len = %d, want sanitized floor %d", len(password), MinPasswordLength)
	}
	if got := countAny(password, lowerSet); got != len(password) {
		t.Fatalf("expected all lowercase fallback, got %q", password)
	}
}
