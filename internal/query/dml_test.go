package query_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gotasktoday/changetrail/internal/query"
)

func TestParseDML(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name    string
		sql     string
		wantDML query.DML
		wantOK  bool
	}{
		{
			name:    "insert simple",
			sql:     "INSERT INTO tasks (id) VALUES ($1)",
			wantDML: query.DML{Op: query.OpInsert, Table: "tasks"},
			wantOK:  true,
		},
		{
			name: "insert with returning",
			sql: `insert into hr.employees (id)
values ($1)
returning *`,
			wantDML: query.DML{Op: query.OpInsert, Table: "hr.employees", HasReturning: true},
			wantOK:  true,
		},
		{
			name:    "update with alias",
			sql:     `UPDATE employees e SET ctc = ctc + 1 WHERE id = $1`,
			wantDML: query.DML{Op: query.OpUpdate, Table: "employees"},
			wantOK:  true,
		},
		{
			name: "delete with returning and cte",
			sql: `WITH c AS (
	SELECT id FROM tasks WHERE status = 'archived'
) DELETE FROM public.tasks t USING c WHERE t.id = c.id RETURNING t.id`,
			wantDML: query.DML{Op: query.OpDelete, Table: "public.tasks", HasReturning: true},
			wantOK:  true,
		},
		{
			name:   "select is ignored",
			sql:    "SELECT * FROM tasks",
			wantOK: false,
		},
		{
			name:    "returning word inside literal",
			sql:     "UPDATE tasks SET note='returning soon'",
			wantDML: query.DML{Op: query.OpUpdate, Table: "tasks", HasReturning: true},
			wantOK:  true,
		},
		{
			name:    "quoted identifier with alias",
			sql:     `UPDATE "HR"."Employees" he SET status = $1 WHERE he.id = $2`,
			wantDML: query.DML{Op: query.OpUpdate, Table: `"HR"."Employees"`},
			wantOK:  true,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := query.ParseDML(tc.sql)
			assert.Equal(t, tc.wantOK, ok)
			if ok {
				assert.Equal(t, tc.wantDML, got)
			}
		})
	}
}

func TestAppendReturningAll(t *testing.T) {
	t.Parallel()

	tcs := []struct {
		name string
		sql  string
		want string
		ok   bool
	}{
		{
			name: "simple insert",
			sql:  "INSERT INTO tasks (id) VALUES ($1)",
			want: "INSERT INTO tasks (id) VALUES ($1)\nRETURNING *",
			ok:   true,
		},
		{
			name: "trim whitespace",
			sql:  "  UPDATE tasks SET status='done'  ",
			want: "UPDATE tasks SET status='done'\nRETURNING *",
			ok:   true,
		},
		{
			name: "keep semicolon",
			sql:  "DELETE FROM tasks WHERE id=$1;",
			want: "DELETE FROM tasks WHERE id=$1\nRETURNING *;",
			ok:   true,
		},
		{
			name: "only semicolons",
			sql:  " ;; ",
			want: " ;; ",
			ok:   false,
		},
		{
			name: "empty string",
			sql:  "   ",
			want: "   ",
			ok:   false,
		},
	}

	for _, tc := range tcs {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got, ok := query.AppendReturningAll(tc.sql)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSelectForUpdate(t *testing.T) {
	t.Parallel()

	got := query.SelectForUpdate("hr.employees", "id")
	assert.Equal(t, `SELECT * FROM "hr"."employees" WHERE "id" = $1 FOR UPDATE`, got)
}

func TestUpdate(t *testing.T) {
	t.Parallel()

	q, args := query.Update("employees", "id", []string{"ctc", "status"},
		map[string]any{"status": "Inactive", "ctc": 60000, "name": "ignored"}, 7)

	assert.Equal(t, `UPDATE "employees" SET "ctc" = $1, "status" = $2 WHERE "id" = $3 RETURNING *`, q)
	assert.Equal(t, []any{60000, "Inactive", 7}, args)
}
