package main

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func mustTime(t *testing.T, s string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339, s)
	require.NoError(t, err)
	return at
}

// run executes the CLI against db (which may be nil) and returns stdout.
func run(t *testing.T, db *sql.DB, args ...string) (string, error) {
	t.Helper()
	a := &app{
		logger: zap.NewNop(),
		openDB: func(string) (*sql.DB, error) { return db, nil },
	}
	var out bytes.Buffer
	root := newRootCmd(a)
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

const employeeJSON = `{"id": 42, "name": "Alice", "status": "Active", "ctc": 50000, "skills": ["go"]}`

func TestDiff(t *testing.T) {
	t.Parallel()

	old := writeFile(t, "old.json", employeeJSON)

	tcs := []struct {
		name  string
		patch string
		args  []string
		want  string
	}{
		{
			name:  "yaml patch",
			patch: "status: Inactive\nctc: 50000.0\nteam: core\n",
			want:  "Status was updated from \"Active\" to \"Inactive\"\n",
		},
		{
			name:  "sorted by field",
			patch: `{"status": "Inactive", "name": "Alicia"}`,
			want: "Name was updated from \"Alice\" to \"Alicia\"\n" +
				"Status was updated from \"Active\" to \"Inactive\"\n",
		},
		{
			name:  "composite values",
			patch: `{"skills": ["go", "sql"]}`,
			want:  "Skills was updated from \"[\"go\"]\" to \"[\"go\",\"sql\"]\"\n",
		},
		{
			name:  "no changes",
			patch: `{"status": "Active"}`,
			want:  "",
		},
		{
			name:  "empty patch",
			patch: "",
			want:  "",
		},
		{
			name:  "shallow equality treats new slices as changed",
			patch: `{"skills": ["go"]}`,
			args:  []string{"--equality", "shallow"},
			want:  "Skills was updated from \"[\"go\"]\" to \"[\"go\"]\"\n",
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			patch := writeFile(t, "patch.yaml", tc.patch)
			args := append([]string{"diff", "--old", old, "--patch", patch}, tc.args...)
			got, err := run(t, nil, args...)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDiff_JSON(t *testing.T) {
	t.Parallel()

	old := writeFile(t, "old.json", employeeJSON)
	patch := writeFile(t, "patch.json", `{"status": "Inactive"}`)

	out, err := run(t, nil, "diff", "--old", old, "--patch", patch, "--format", "json")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, map[string]string{"status": `Status was updated from "Active" to "Inactive"`}, got)
}

func TestDiff_Errors(t *testing.T) {
	t.Parallel()

	old := writeFile(t, "old.json", employeeJSON)
	patch := writeFile(t, "patch.json", `{"team": "core"}`)

	tcs := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{name: "strict rejects unknown field", args: []string{"--patch", patch, "--strict"}, wantErr: `unknown field "team"`},
		{name: "unknown equality", args: []string{"--patch", patch, "--equality", "fuzzy"}, wantErr: "unknown equality"},
		{name: "unknown format", args: []string{"--patch", patch, "--format", "xml"}, wantErr: "unknown format"},
		{name: "missing patch file", args: []string{"--patch", filepath.Join(t.TempDir(), "none.json")}, wantErr: "failed to read"},
		{name: "patch is not an object", args: []string{"--patch", writeFile(t, "list.json", `[1, 2]`)}, wantErr: "failed to parse"},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			args := append([]string{"diff", "--old", old}, tc.args...)
			_, err := run(t, nil, args...)
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestDiff_RedactFromConfig(t *testing.T) {
	t.Parallel()

	cfg := writeFile(t, "changetrail.yaml", "redact: [ctc]\n")
	old := writeFile(t, "old.json", employeeJSON)
	patch := writeFile(t, "patch.json", `{"ctc": 60000}`)

	got, err := run(t, nil, "--config", cfg, "diff", "--old", old, "--patch", patch)
	require.NoError(t, err)
	assert.Equal(t, "Ctc was updated from \"***\" to \"***\"\n", got)
}

func TestMigrate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\nid_column: employee_id\n")

	mock.ExpectQuery(`SELECT\s+n\.nspname`).
		WithArgs("hr", "employees", "employee_id").
		WillReturnRows(sqlmock.NewRows([]string{"nspname", "relname", "id_type"}).AddRow("hr", "employees", "bigint"))
	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "hr"\."employees_history"`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectClose()

	_, err = run(t, db, "--config", cfg, "migrate", "hr.employees")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Errors(t *testing.T) {
	t.Parallel()

	withDB := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\n")
	withoutDB := writeFile(t, "empty.yaml", "")

	_, err := run(t, nil, "--config", withDB, "migrate")
	assert.ErrorContains(t, err, "no tables to migrate")

	_, err = run(t, nil, "--config", withoutDB, "migrate", "employees")
	assert.ErrorContains(t, err, "database_url is not set")
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\n")
	patch := writeFile(t, "patch.yaml", "status: Inactive\nname: Alice\n")

	changes := map[string]string{"status": `Status was updated from "Active" to "Inactive"`}
	changesJSON, err := json.Marshal(changes)
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "employees" WHERE "id" = $1 FOR UPDATE`)).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(42, "Alice", "Active"))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "employees" SET "status" = $1 WHERE "id" = $2 RETURNING *`)).
		WithArgs("Inactive", "42").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "status"}).AddRow(42, "Alice", "Inactive"))
	mock.ExpectExec(`INSERT INTO "employees_history"`).
		WithArgs(sqlmock.AnyArg(), "42", "UPDATE", sqlmock.AnyArg(), "hr-admin", "trace-7", "offboarding",
			changesJSON, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	got, err := run(t, db, "--config", cfg, "update",
		"--table", "employees", "--id", "42", "--patch", patch,
		"--operator", "hr-admin", "--reason", "offboarding", "--trace-id", "trace-7")
	require.NoError(t, err)
	assert.Equal(t, "Status was updated from \"Active\" to \"Inactive\"\n", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_WritesMetricsTextfile(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\n")
	patch := writeFile(t, "patch.json", `{"status": "Inactive", "ctc": 50000}`)
	prom := filepath.Join(t.TempDir(), "changetrail.prom")

	cols := []string{"id", "status", "ctc"}
	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("9").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, "Active", "50000.00"))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE "employees" SET "status" = $1 WHERE "id" = $2 RETURNING *`)).
		WithArgs("Inactive", "9").
		WillReturnRows(sqlmock.NewRows(cols).AddRow(9, "Inactive", "50000.00"))
	mock.ExpectExec(`INSERT INTO "employees_history"`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectClose()

	_, err = run(t, db, "--config", cfg, "update",
		"--table", "employees", "--id", "9", "--patch", patch, "--metrics-textfile", prom)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	body, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(body), `changetrail_history_entries_total{operation="UPDATE",table="employees"} 1`)
	assert.Contains(t, string(body), `changetrail_changed_fields_total{table="employees"} 1`)
}

func TestUpdate_NotFoundRollsBack(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\n")
	patch := writeFile(t, "patch.json", `{"status": "Inactive"}`)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).
		WithArgs("7").
		WillReturnRows(sqlmock.NewRows([]string{"id", "status"}))
	mock.ExpectRollback()
	mock.ExpectClose()

	_, err = run(t, db, "--config", cfg, "update", "--table", "employees", "--id", "7", "--patch", patch)
	assert.ErrorContains(t, err, "record not found")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestHistory(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	cfg := writeFile(t, "changetrail.yaml", "database_url: postgres://localhost/hr\n")

	mock.ExpectQuery(`FROM "employees_history"\s+WHERE id = \$1`).
		WithArgs("42").
		WillReturnRows(sqlmock.NewRows([]string{
			"history_id", "id", "operation", "operated_at", "operated_by", "trace_id", "reason", "changes", "before", "after",
		}).AddRow(
			"0b6a3c1e-5d2f-4e8a-9c7b-1a2b3c4d5e6f", "42", "UPDATE",
			mustTime(t, "2026-10-19T09:00:00Z"), "hr-admin", "trace-7", "offboarding",
			[]byte(`{"status":"Status was updated from \"Active\" to \"Inactive\""}`), nil, nil,
		))
	mock.ExpectClose()

	got, err := run(t, db, "--config", cfg, "history", "--table", "employees", "--id", "42")
	require.NoError(t, err)
	assert.Equal(t, "2026-10-19T09:00:00Z UPDATE by hr-admin (offboarding)\n"+
		"  Status was updated from \"Active\" to \"Inactive\"\n", got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildLogger(t *testing.T) {
	t.Parallel()

	logger, err := buildLogger("warn", false)
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zap.InfoLevel))

	logger, err = buildLogger("warn", true)
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.DebugLevel))

	_, err = buildLogger("loud", false)
	assert.Error(t, err)
}
