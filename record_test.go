package changetrail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gotasktoday/changetrail"
)

type Audit struct {
	UpdatedBy string `json:"updatedBy"`
}

type employee struct {
	Audit
	Name        string   `json:"name"`
	Status      string   `json:"status"`
	CTC         float64  `json:"ctc"`
	Skills      []string `json:"skills,omitempty"`
	Manager     *string  `json:"manager"`
	Designation string
	Password    string `json:"-"`
	internal    string
}

type employeePatch struct {
	Name     *string  `json:"name"`
	Status   *string  `json:"status"`
	CTC      *float64 `json:"ctc"`
	Skills   []string `json:"skills"`
	Manager  *string  `json:"manager"`
	Password *string  `json:"-"`
	Team     *string  `json:"team"`
}

func ptr[T any](v T) *T { return &v }

func TestBuildFrom_Structs(t *testing.T) {
	t.Parallel()

	old := employee{
		Audit:       Audit{UpdatedBy: "admin"},
		Name:        "Alice",
		Status:      "Active",
		CTC:         50000,
		Designation: "Engineer",
		Password:    "secret",
		internal:    "x",
	}

	tcs := []struct {
		name  string
		patch any
		want  changetrail.Summary
	}{
		{
			name:  "status change via pointer field",
			patch: employeePatch{Status: ptr("Inactive")},
			want:  changetrail.Summary{"status": `Status was updated from "Active" to "Inactive"`},
		},
		{
			name:  "nil fields are absent",
			patch: employeePatch{},
			want:  changetrail.Summary{},
		},
		{
			name:  "unchanged value",
			patch: employeePatch{CTC: ptr(50000.0)},
			want:  changetrail.Summary{},
		},
		{
			name:  "slice set from empty",
			patch: employeePatch{Skills: []string{"go"}},
			want:  changetrail.Summary{"skills": `Skills was updated from "null" to "["go"]"`},
		},
		{
			name:  "nil pointer in old renders as null",
			patch: employeePatch{Manager: ptr("Bob")},
			want:  changetrail.Summary{"manager": `Manager was updated from "null" to "Bob"`},
		},
		{
			name:  "json dash and unknown fields ignored",
			patch: employeePatch{Password: ptr("other"), Team: ptr("core")},
			want:  changetrail.Summary{},
		},
		{
			name:  "map patch against struct",
			patch: map[string]any{"Designation": "Lead", "updatedBy": "hr"},
			want: changetrail.Summary{
				"Designation": `Designation was updated from "Engineer" to "Lead"`,
				"updatedBy":   `UpdatedBy was updated from "admin" to "hr"`,
			},
		},
		{
			name:  "typed map patch",
			patch: map[string]string{"name": "Alicia"},
			want:  changetrail.Summary{"name": `Name was updated from "Alice" to "Alicia"`},
		},
		{
			name:  "pointer to patch struct",
			patch: &employeePatch{Name: ptr("Alicia")},
			want:  changetrail.Summary{"name": `Name was updated from "Alice" to "Alicia"`},
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, err := changetrail.BuildFrom(&old, tc.patch)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildFrom_InvalidInput(t *testing.T) {
	t.Parallel()

	var nilEmployee *employee

	tcs := []struct {
		name    string
		old     any
		patch   any
		wantArg string
	}{
		{name: "nil old", old: nil, patch: map[string]any{}, wantArg: "old"},
		{name: "nil pointer old", old: nilEmployee, patch: map[string]any{}, wantArg: "old"},
		{name: "scalar old", old: 42, patch: map[string]any{}, wantArg: "old"},
		{name: "scalar patch", old: employee{}, patch: "status=Inactive", wantArg: "patch"},
		{name: "non-string map keys", old: employee{}, patch: map[int]any{1: "x"}, wantArg: "patch"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := changetrail.BuildFrom(tc.old, tc.patch)
			var invalid *changetrail.InvalidInputError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, tc.wantArg, invalid.Arg)
		})
	}
}

func TestBuilder_BuildFrom_Strict(t *testing.T) {
	t.Parallel()

	b := changetrail.NewBuilder(changetrail.Strict())
	_, err := b.BuildFrom(employee{}, employeePatch{Team: ptr("core")})

	var unknown *changetrail.UnknownFieldError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "team", unknown.Field)
}
