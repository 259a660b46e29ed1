package fieldrule

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
)

// ValidationResult is the outcome of validating a single field value.
type ValidationResult struct {
	Field      string   `json:"field"`
	IsValid    bool     `json:"is_valid"`
	Normalized any      `json:"normalized_value"`
	Errors     []string `json:"errors"`
	Warnings   []string `json:"warnings"`
}

// Validator owns a rule table. The zero value is not usable; call New.
type Validator struct {
	mu    sync.RWMutex
	rules map[string]Rule
	order []string
}

// New returns a Validator loaded with DefaultRules.
func New() *Validator {
	v := &Validator{rules: make(map[string]Rule)}
	for _, r := range DefaultRules() {
		v.rules[r.Field] = r
		v.order = append(v.order, r.Field)
	}
	return v
}

// Rule returns the rule for field.
func (v *Validator) Rule(field string) (Rule, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	r, ok := v.rules[field]
	return r, ok
}

// AllRules returns every rule in table order.
func (v *Validator) AllRules() []Rule {
	return v.filter(func(Rule) bool { return true })
}

// RulesByCategory returns the rules in category c.
func (v *Validator) RulesByCategory(c Category) []Rule {
	return v.filter(func(r Rule) bool { return r.Category == c })
}

// CriticalRules returns the rules with critical priority.
func (v *Validator) CriticalRules() []Rule {
	return v.filter(func(r Rule) bool { return r.Priority == PriorityCritical })
}

func (v *Validator) filter(keep func(Rule) bool) []Rule {
	v.mu.RLock()
	defer v.mu.RUnlock()
	var out []Rule
	for _, f := range v.order {
		if r := v.rules[f]; keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// AddCustomRule adds a rule or replaces the rule for the same field.
func (v *Validator) AddCustomRule(r Rule) error {
	if strings.TrimSpace(r.Field) == "" {
		return eris.New("fieldrule: rule field name is required")
	}
	if r.Type == "" {
		return eris.Errorf("fieldrule: rule %s has no type", r.Field)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, exists := v.rules[r.Field]; !exists {
		v.order = append(v.order, r.Field)
	}
	v.rules[r.Field] = r
	return nil
}

// CompareFieldValues compares a stored value with a web value under the
// field's rule.
func (v *Validator) CompareFieldValues(field string, db, web any) ComparisonResult {
	r, ok := v.Rule(field)
	if !ok {
		return CompareValues(nil, field, db, web)
	}
	return CompareValues(&r, field, db, web)
}

// ValidateField checks value against the field's rule.
func (v *Validator) ValidateField(field string, value any) ValidationResult {
	res := ValidationResult{Field: field, Errors: []string{}, Warnings: []string{}}

	r, ok := v.Rule(field)
	if !ok {
		res.IsValid = true
		res.Normalized = value
		res.Warnings = append(res.Warnings, "No validation rule found for field: "+field)
		return res
	}

	canonical := Canonical(value)
	res.Normalized = normalize(&r, value)

	if canonical == nil {
		if r.Required {
			res.Errors = append(res.Errors, fmt.Sprintf("Field %s is required", field))
		}
		res.IsValid = len(res.Errors) == 0
		return res
	}

	if got := typeOf(canonical); got != r.Type {
		res.Errors = append(res.Errors, fmt.Sprintf("Field %s must be of type %s, got %s", field, r.Type, got))
	}

	switch n := res.Normalized.(type) {
	case string:
		if r.Pattern != nil && !r.Pattern.MatchString(n) {
			res.Errors = append(res.Errors, fmt.Sprintf("Field %s does not match required pattern", field))
		}
		res.Errors = append(res.Errors, lengthErrors(field, len([]rune(n)), r, "characters")...)
	case float64:
		if r.Min != nil && n < *r.Min {
			res.Errors = append(res.Errors, fmt.Sprintf("Field %s must be at least %g", field, *r.Min))
		}
		if r.Max != nil && n > *r.Max {
			res.Errors = append(res.Errors, fmt.Sprintf("Field %s must be at most %g", field, *r.Max))
		}
	case []string:
		res.Errors = append(res.Errors, lengthErrors(field, len(n), r, "items")...)
		if len(r.AllowedValues) > 0 {
			var unknown []string
			for _, item := range n {
				if !slices.Contains(r.AllowedValues, item) {
					unknown = append(unknown, item)
				}
			}
			if len(unknown) > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf("Field %s contains unrecognized values: %s", field, strings.Join(unknown, ", ")))
			}
		}
	}

	if r.Validate != nil {
		if msg := r.Validate(res.Normalized); msg != "" {
			res.Errors = append(res.Errors, msg)
		}
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

func lengthErrors(field string, n int, r Rule, unit string) []string {
	var errs []string
	if r.MinLength > 0 && n < r.MinLength {
		errs = append(errs, fmt.Sprintf("Field %s must have at least %d %s", field, r.MinLength, unit))
	}
	if r.MaxLength > 0 && n > r.MaxLength {
		errs = append(errs, fmt.Sprintf("Field %s must have at most %d %s", field, r.MaxLength, unit))
	}
	return errs
}
