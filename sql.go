package changetrail

import (
	"database/sql"
	"encoding/json"
	"errors"
)

// affectedResult implements sql.Result for statements run through QueryContext.
type affectedResult struct{ n int64 }

func newAffectedRows(n int) sql.Result {
	return affectedResult{n: int64(n)}
}

func (r affectedResult) LastInsertId() (int64, error) {
	return 0, errors.New("changetrail: LastInsertId is not supported")
}

func (r affectedResult) RowsAffected() (int64, error) {
	return r.n, nil
}

// scanOne reads the first row of rows into a map and closes rows.
func scanOne(rows *sql.Rows) (map[string]any, error) {
	ms, err := scanAll(rows)
	if err != nil {
		return nil, err
	}
	if len(ms) == 0 {
		return nil, sql.ErrNoRows
	}
	return ms[0], nil
}

// scanAll reads every row into a map keyed by column name and closes rows.
func scanAll(rows *sql.Rows) ([]map[string]any, error) {
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, rowToMap(cols, vals))
	}
	return out, rows.Err()
}

// rowToMap converts a single row to a map, decoding JSON byte values.
func rowToMap(cols []string, vals []any) map[string]any {
	m := make(map[string]any, len(cols))
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			var js any
			if json.Unmarshal(b, &js) == nil {
				m[c] = js
				continue
			}
			m[c] = string(b)
			continue
		}
		m[c] = v
	}
	return m
}
