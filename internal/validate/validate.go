// Package validate contains the ordered field rules applied to form drafts.
// Evaluation stops at the first failing rule.
package validate

import (
	"regexp"
	"strings"
	"time"
)

var (
	// nameRe allows ASCII letters and spaces, at least three of them.
	nameRe  = regexp.MustCompile(`^[A-Za-z ]{3,}$`)
	phoneRe = regexp.MustCompile(`^\d{10}$`)
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// MinPasswordLen is the credential length floor.
const MinPasswordLen = 8

// DateLayout is the accepted date of birth format.
const DateLayout = "2006-01-02"

// Genders is the fixed gender enumeration.
var Genders = []string{"Male", "Female"}

// Values is the read-only view of field values a rule checks against.
type Values interface {
	Get(field string) string
}

// Map adapts a plain map to Values.
type Map map[string]string

func (m Map) Get(field string) string { return m[field] }

// Check reports whether the (already normalized) value passes.
// vals gives access to sibling fields for cross-field rules.
type Check func(value string, vals Values) bool

// Rule binds one check to one field.
type Rule struct {
	Field   string
	Message string
	Check   Check
	// Raw disables whitespace trimming for the field (credentials).
	Raw bool
}

// RuleSet is evaluated in slice order.
type RuleSet []Rule

// Result is the outcome of RuleSet.Evaluate.
type Result struct {
	OK      bool
	Field   string
	Message string
	// Values holds the normalized values that were validated, keyed by field.
	Values map[string]string
}

// Error returns the violated rule message, or "" when OK.
func (r Result) Error() string {
	if r.OK {
		return ""
	}
	return r.Message
}

// Normalize trims surrounding whitespace unless raw is set.
func Normalize(v string, raw bool) string {
	if raw {
		return v
	}
	return strings.TrimSpace(v)
}

// Evaluate checks every rule in order and stops at the first violation.
// The returned Values contain the normalized value of every field the rule
// set mentions, so callers submit exactly what was validated.
func (rs RuleSet) Evaluate(vals Values) Result {
	norm := make(map[string]string, len(rs))
	for _, r := range rs {
		if _, ok := norm[r.Field]; !ok {
			norm[r.Field] = Normalize(vals.Get(r.Field), r.Raw)
		}
	}
	nv := Map(norm)
	for _, r := range rs {
		if !r.Check(norm[r.Field], nv) {
			return Result{Field: r.Field, Message: r.Message, Values: norm}
		}
	}
	return Result{OK: true, Values: norm}
}

// Name accepts letters and spaces, at least three characters after trimming.
func Name(v string, _ Values) bool { return nameRe.MatchString(v) }

// Phone accepts exactly ten decimal digits.
func Phone(v string, _ Values) bool { return phoneRe.MatchString(v) }

// Email accepts a local@domain.tld shape.
func Email(v string, _ Values) bool { return emailRe.MatchString(v) }

// Password enforces MinPasswordLen characters.
func Password(v string, _ Values) bool { return len([]rune(v)) >= MinPasswordLen }

// Matches returns a check that requires equality with another field.
func Matches(other string) Check {
	return func(v string, vals Values) bool {
		return v == vals.Get(other)
	}
}

// OneOf returns a check requiring membership of a fixed set. Empty fails.
func OneOf(set []string) Check {
	allowed := make(map[string]struct{}, len(set))
	for _, s := range set {
		allowed[s] = struct{}{}
	}
	return func(v string, _ Values) bool {
		if v == "" {
			return false
		}
		_, ok := allowed[v]
		return ok
	}
}

// BirthDate accepts a YYYY-MM-DD date that is not in the future.
func BirthDate(now func() time.Time) Check {
	return func(v string, _ Values) bool {
		d, err := time.Parse(DateLayout, v)
		if err != nil {
			return false
		}
		return !d.After(now())
	}
}

// Required rejects empty values.
func Required(v string, _ Values) bool { return v != "" }
