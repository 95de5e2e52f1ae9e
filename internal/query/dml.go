// Package query recognises and builds the DML statements history capture relies on.
package query

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gotasktoday/changetrail/internal/ident"
)

// Operation names as stored in history tables.
const (
	OpInsert = "INSERT"
	OpUpdate = "UPDATE"
	OpDelete = "DELETE"
)

// DML describes a recognised data-changing statement.
type DML struct {
	Op           string // OpInsert, OpUpdate or OpDelete
	Table        string // possibly schema-qualified
	HasReturning bool
}

var (
	reInsert    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?insert\s+into\s+([^\s(]+)`)
	reUpdate    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?update\s+([^\s]+(?:\s+(?:as\s+)?[^\s]+)?)\s+set\b`)
	reDelete    = regexp.MustCompile(`(?is)^\s*(?:with\b.*?\)\s*)?delete\s+from\s+([^\s]+(?:\s+(?:as\s+)?[^\s]+)?)`)
	reReturning = regexp.MustCompile(`(?is)\breturning\b`)
)

// ParseDML recognises a single top-level INSERT, UPDATE or DELETE.
func ParseDML(q string) (DML, bool) {
	qs := strings.TrimSpace(q)
	for _, c := range []struct {
		op string
		re *regexp.Regexp
	}{
		{OpInsert, reInsert},
		{OpUpdate, reUpdate},
		{OpDelete, reDelete},
	} {
		if m := c.re.FindStringSubmatch(qs); len(m) == 2 {
			return DML{Op: c.op, Table: ident.StripAlias(m[1]), HasReturning: reReturning.MatchString(qs)}, true
		}
	}
	return DML{}, false
}

// AppendReturningAll appends "RETURNING *" to a non-empty statement,
// keeping a trailing semicolon at the very end.
func AppendReturningAll(q string) (string, bool) {
	trimmed := strings.TrimSpace(q)
	hasSemicolon := false
	for strings.HasSuffix(trimmed, ";") {
		hasSemicolon = true
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	if trimmed == "" {
		return q, false
	}
	out := trimmed + "\nRETURNING *"
	if hasSemicolon {
		out += ";"
	}
	return out, true
}

// SelectForUpdate builds a statement that locks and returns one row by key.
func SelectForUpdate(table, keyColumn string) string {
	return fmt.Sprintf("SELECT * FROM %s WHERE %s = $1 FOR UPDATE", ident.QuoteName(table), ident.Quote(keyColumn))
}

// Update builds an UPDATE that sets columns (in the given order) on the row
// matching keyColumn and returns the updated row. The key is the last argument.
func Update(table, keyColumn string, columns []string, values map[string]any, key any) (string, []any) {
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+1)
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = $%d", ident.Quote(c), i+1)
		args = append(args, values[c])
	}
	args = append(args, key)
	q := fmt.Sprintf("UPDATE %s SET %s WHERE %s = $%d RETURNING *",
		ident.QuoteName(table), strings.Join(sets, ", "), ident.Quote(keyColumn), len(columns)+1)
	return q, args
}
