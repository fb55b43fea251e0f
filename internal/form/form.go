// Package form declares the fixed field sets of the console's data-entry
// forms and the Draft that holds their in-progress values.
package form

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"staffconsole/internal/validate"
)

// Field names as sent to the records service.
const (
	FirstName       = "firstName"
	LastName        = "lastName"
	Email           = "email"
	Phone           = "phone"
	DOB             = "dob"
	Gender          = "gender"
	Password        = "password"
	ConfirmPassword = "confirmPassword"
	Department      = "department"
)

// Kind selects a form type.
type Kind string

const (
	KindAdmin Kind = "admin"
	KindStaff Kind = "staff"
)

// ParseKind accepts "admin" or "staff".
func ParseKind(s string) (Kind, error) {
	switch Kind(strings.ToLower(strings.TrimSpace(s))) {
	case KindAdmin:
		return KindAdmin, nil
	case KindStaff:
		return KindStaff, nil
	default:
		return "", fmt.Errorf("unknown form kind %q", s)
	}
}

var ErrUnknownField = errors.New("unknown field")

// DefaultDepartments is used when no department list is configured.
var DefaultDepartments = []string{
	"Pediatrics",
	"Orthopedics",
	"Cardiology",
	"Neurology",
	"Oncology",
	"Radiology",
	"Physiotherapy",
	"Dermatology",
	"Opthalmology",
	"Gynecology",
	"Odontology",
}

// Spec describes one form type: its field order, rules, and attachment policy.
type Spec struct {
	Kind   Kind
	Fields []string
	Rules  validate.RuleSet
	// Role is appended to every create request for this kind.
	Role string
	// AttachmentField names the multipart part carrying the staged file.
	// Empty means the form never carries an attachment.
	AttachmentField    string
	AttachmentRequired bool
	// Departments lists the allowed department values (staff only).
	Departments []string
	// DepartmentField is the wire name of the department value.
	DepartmentField string
}

// Options tunes the staff form.
type Options struct {
	Departments   []string
	RequireAvatar bool
	// Role overrides the role sent with staff records.
	Role string
	Now  func() time.Time
}

// AdminSpec returns the admin-creation form.
func AdminSpec(now func() time.Time) Spec {
	if now == nil {
		now = time.Now
	}
	return Spec{
		Kind:   KindAdmin,
		Fields: []string{FirstName, LastName, Email, Phone, DOB, Gender, Password, ConfirmPassword},
		Rules:  personRules(now),
		Role:   "Admin",
	}
}

// StaffSpec returns the staff-onboarding form.
func StaffSpec(opt Options) Spec {
	now := opt.Now
	if now == nil {
		now = time.Now
	}
	deps := opt.Departments
	if len(deps) == 0 {
		deps = DefaultDepartments
	}
	role := opt.Role
	if role == "" {
		role = "Doctor"
	}
	rules := personRules(now)
	rules = append(rules, validate.Rule{
		Field:   Department,
		Message: "Please select a department!",
		Check:   validate.OneOf(deps),
	})
	return Spec{
		Kind:               KindStaff,
		Fields:             []string{FirstName, LastName, Email, Phone, DOB, Gender, Password, ConfirmPassword, Department},
		Rules:              rules,
		Role:               role,
		AttachmentField:    "docAvatar",
		AttachmentRequired: opt.RequireAvatar,
		Departments:        deps,
		DepartmentField:    "doctorDepartment",
	}
}

// personRules is the shared rule order: names, contact, personal,
// credentials, categorical.
func personRules(now func() time.Time) validate.RuleSet {
	return validate.RuleSet{
		{Field: FirstName, Message: "First Name must contain only letters and at least 3 characters", Check: validate.Name},
		{Field: LastName, Message: "Last Name must contain only letters and at least 3 characters", Check: validate.Name},
		{Field: Email, Message: "Please provide a valid email address!", Check: validate.Email},
		{Field: Phone, Message: "Phone number must contain exactly 10 digits!", Check: validate.Phone},
		{Field: DOB, Message: "Date of birth must be a valid YYYY-MM-DD date!", Check: validate.BirthDate(now)},
		{Field: Password, Message: "Password must be at least 8 characters!", Check: validate.Password, Raw: true},
		{Field: ConfirmPassword, Message: "Passwords do not match!", Check: validate.Matches(Password), Raw: true},
		{Field: Gender, Message: "Please select a valid gender!", Check: validate.OneOf(validate.Genders)},
	}
}

// Has reports whether field belongs to the form.
func (s Spec) Has(field string) bool {
	for _, f := range s.Fields {
		if f == field {
			return true
		}
	}
	return false
}

// AcceptsAttachment reports whether the form can carry a file.
func (s Spec) AcceptsAttachment() bool { return s.AttachmentField != "" }

// Draft holds the in-progress values of one form instance.
// It is safe for concurrent use.
type Draft struct {
	spec Spec

	mu     sync.RWMutex
	values map[string]string
}

// NewDraft returns an empty draft for spec.
func NewDraft(spec Spec) *Draft {
	return &Draft{spec: spec, values: make(map[string]string, len(spec.Fields))}
}

// Spec returns the form description.
func (d *Draft) Spec() Spec { return d.spec }

// Set stores a raw value. Fields outside the form's set are rejected.
func (d *Draft) Set(field, value string) error {
	if !d.spec.Has(field) {
		return fmt.Errorf("%w: %s", ErrUnknownField, field)
	}
	d.mu.Lock()
	d.values[field] = value
	d.mu.Unlock()
	return nil
}

// Get returns the raw value of field ("" when unset).
func (d *Draft) Get(field string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.values[field]
}

// Values returns a copy of the raw values in declared field order.
func (d *Draft) Values() []Value {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Value, 0, len(d.spec.Fields))
	for _, f := range d.spec.Fields {
		out = append(out, Value{Name: f, Value: d.values[f]})
	}
	return out
}

// Snapshot copies the values into a validate.Map.
func (d *Draft) Snapshot() validate.Map {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m := make(validate.Map, len(d.values))
	for k, v := range d.values {
		m[k] = v
	}
	return m
}

// Empty reports whether every field is blank.
func (d *Draft) Empty() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, v := range d.values {
		if v != "" {
			return false
		}
	}
	return true
}

// Clear removes every value.
func (d *Draft) Clear() {
	d.mu.Lock()
	d.values = make(map[string]string, len(d.spec.Fields))
	d.mu.Unlock()
}

// Validate runs the form's rules against the current values.
func (d *Draft) Validate() validate.Result {
	return d.spec.Rules.Evaluate(d.Snapshot())
}

// Value is one ordered field/value pair.
type Value struct {
	Name  string
	Value string
}

// Submission lists the validated values in field order, without the
// confirmation field, followed by the role.
func (s Spec) Submission(validated map[string]string) []Value {
	out := make([]Value, 0, len(s.Fields)+1)
	for _, f := range s.Fields {
		if f == ConfirmPassword {
			continue
		}
		name := f
		if f == Department && s.DepartmentField != "" {
			name = s.DepartmentField
		}
		out = append(out, Value{Name: name, Value: validated[f]})
	}
	if s.Role != "" {
		out = append(out, Value{Name: "role", Value: s.Role})
	}
	return out
}
