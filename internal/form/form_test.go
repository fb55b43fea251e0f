package form

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fixedNow() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }

func validStaff(t *testing.T, d *Draft) {
	t.Helper()
	for k, v := range map[string]string{
		FirstName:       "Alice",
		LastName:        "Smith",
		Email:           "alice@example.com",
		Phone:           "0123456789",
		DOB:             "1990-04-01",
		Gender:          "Female",
		Password:        "longenough",
		ConfirmPassword: "longenough",
		Department:      "Cardiology",
	} {
		require.NoError(t, d.Set(k, v))
	}
}

func TestDraftRejectsUnknownField(t *testing.T) {
	d := NewDraft(AdminSpec(fixedNow))
	err := d.Set(Department, "Cardiology")
	require.True(t, errors.Is(err, ErrUnknownField))
	err = d.Set("nickname", "x")
	require.ErrorIs(t, err, ErrUnknownField)
}

func TestDraftClear(t *testing.T) {
	d := NewDraft(StaffSpec(Options{Now: fixedNow}))
	validStaff(t, d)
	require.False(t, d.Empty())
	d.Clear()
	require.True(t, d.Empty())
	require.Equal(t, "", d.Get(FirstName))
}

func TestStaffRuleOrder(t *testing.T) {
	d := NewDraft(StaffSpec(Options{Now: fixedNow}))
	validStaff(t, d)
	require.True(t, d.Validate().OK)

	require.NoError(t, d.Set(Department, ""))
	require.NoError(t, d.Set(Gender, "Other"))
	res := d.Validate()
	require.Equal(t, Gender, res.Field)

	require.NoError(t, d.Set(Phone, "12"))
	res = d.Validate()
	require.Equal(t, Phone, res.Field)
	require.Equal(t, "Phone number must contain exactly 10 digits!", res.Message)

	require.NoError(t, d.Set(FirstName, "Al"))
	res = d.Validate()
	require.Equal(t, FirstName, res.Field)
}

func TestStaffDepartmentsConfigurable(t *testing.T) {
	d := NewDraft(StaffSpec(Options{Now: fixedNow, Departments: []string{"Payroll"}}))
	validStaff(t, d)
	require.Equal(t, Department, d.Validate().Field)
	require.NoError(t, d.Set(Department, "Payroll"))
	require.True(t, d.Validate().OK)
}

func TestSubmissionUsesValidatedValues(t *testing.T) {
	spec := StaffSpec(Options{Now: fixedNow})
	d := NewDraft(spec)
	validStaff(t, d)
	require.NoError(t, d.Set(FirstName, "  Alice "))
	res := d.Validate()
	require.True(t, res.OK)

	vals := spec.Submission(res.Values)
	got := map[string]string{}
	for _, v := range vals {
		got[v.Name] = v.Value
	}
	require.Equal(t, "Alice", got[FirstName])
	require.Equal(t, "Cardiology", got["doctorDepartment"])
	require.Equal(t, "Doctor", got["role"])
	_, hasConfirm := got[ConfirmPassword]
	require.False(t, hasConfirm)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind(" Staff ")
	require.NoError(t, err)
	require.Equal(t, KindStaff, k)
	_, err = ParseKind("nurse")
	require.Error(t, err)
}
