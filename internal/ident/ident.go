// Package ident handles possibly schema-qualified PostgreSQL identifiers.
package ident

import (
	"slices"
	"strings"
	"unicode"
)

// Split breaks an identifier such as `public."Order.Lines"` into its parts,
// honouring double quotes and "" escapes.
func Split(name string) []string {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}
	var (
		parts    []string
		cur      strings.Builder
		inQuotes bool
	)
	runes := []rune(name)
	for i := 0; i < len(runes); i++ {
		switch r := runes[i]; {
		case r == '"' && inQuotes && i+1 < len(runes) && runes[i+1] == '"':
			cur.WriteRune('"')
			i++
		case r == '"':
			inQuotes = !inQuotes
		case r == '.' && !inQuotes:
			parts = append(parts, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(parts, strings.TrimSpace(cur.String()))
}

// History returns the parts of the history table that tracks base.
func History(base, suffix string) []string {
	parts := Split(base)
	if len(parts) == 0 {
		if suffix == "" {
			return nil
		}
		return []string{suffix}
	}
	out := slices.Clone(parts)
	out[len(out)-1] += suffix
	return out
}

// StripAlias drops an alias following a table reference, e.g. `orders o` -> `orders`.
func StripAlias(s string) string {
	s = strings.TrimRight(strings.TrimSpace(s), ",")
	inQuotes := false
	for i, r := range s {
		if r == '"' {
			inQuotes = !inQuotes
			continue
		}
		if !inQuotes && unicode.IsSpace(r) {
			return strings.TrimSpace(s[:i])
		}
	}
	return s
}

// Quote quotes a single identifier part.
func Quote(part string) string {
	return `"` + strings.ReplaceAll(part, `"`, `""`) + `"`
}

// QuoteAll quotes every part and joins them with dots.
func QuoteAll(parts []string) string {
	quoted := make([]string, len(parts))
	for i, p := range parts {
		quoted[i] = Quote(p)
	}
	return strings.Join(quoted, ".")
}

// QuoteName splits and re-quotes a dotted identifier.
func QuoteName(name string) string {
	return QuoteAll(Split(name))
}

// RegclassLiteral renders parts as a string literal usable with to_regclass.
func RegclassLiteral(parts []string) string {
	if len(parts) == 0 {
		return "''"
	}
	return "'" + strings.ReplaceAll(QuoteAll(parts), "'", "''") + "'"
}

// Base returns the unqualified table name.
func Base(name string) string {
	parts := Split(name)
	if len(parts) == 0 {
		return strings.TrimSpace(name)
	}
	return parts[len(parts)-1]
}

// SnakeCase converts a Go identifier like HTTPServerLog to http_server_log.
func SnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 && (unicode.IsLower(runes[i-1]) || (i+1 < len(runes) && unicode.IsLower(runes[i+1]))) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
