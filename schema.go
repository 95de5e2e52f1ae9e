package changetrail

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/jinzhu/inflection"

	"github.com/gotasktoday/changetrail/internal/ident"
)

// SchemaConfig controls history table generation.
type SchemaConfig struct {
	HistorySuffix string // suffix appended to base table name (default: _history)
	IDColumn      string // column whose type the history id column copies (default: id)
	CreateIDIndex bool   // index history rows by (id, operated_at)
}

// TableNamer provides a custom table name for a model.
type TableNamer interface {
	TableName() string
}

// Migrate creates a history table for every target. A target is a table name,
// a TableNamer, or a struct whose type name is pluralised into snake_case
// (LeaveRequest -> leave_requests).
func Migrate(ctx context.Context, db *sql.DB, cfg SchemaConfig, targets ...any) error {
	if cfg.HistorySuffix == "" {
		cfg.HistorySuffix = "_history"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if len(targets) == 0 {
		return nil
	}
	names := make([]string, 0, len(targets))
	for _, t := range targets {
		name, err := resolveTableName(t)
		if err != nil {
			return err
		}
		names = append(names, name)
	}

	for _, name := range names {
		parts := ident.Split(name)
		if len(parts) == 0 {
			return fmt.Errorf("changetrail: invalid table identifier %q", name)
		}
		base, err := selectBaseTable(ctx, db, parts, cfg.IDColumn)
		if err != nil {
			return err
		}
		if err := createHistoryTable(ctx, db, cfg, base); err != nil {
			return err
		}
	}
	return nil
}

type tableInfo struct {
	schema string
	table  string
	ident  string
	idType string
}

func selectBaseTable(ctx context.Context, db *sql.DB, parts []string, idColumn string) (tableInfo, error) {
	var schemaName, tableName string
	switch len(parts) {
	case 1:
		schemaName = "public"
		tableName = parts[0]
	case 2:
		schemaName = parts[0]
		tableName = parts[1]
	default:
		return tableInfo{}, fmt.Errorf("changetrail: unsupported identifier %q", strings.Join(parts, "."))
	}

	row := db.QueryRowContext(ctx, `
        SELECT
            n.nspname,
            r.relname,
            pg_catalog.format_type(a.atttypid, a.atttypmod) AS id_type
        FROM pg_class r
        JOIN pg_namespace n ON n.oid = r.relnamespace
        LEFT JOIN (
            SELECT attrelid, atttypid, atttypmod
            FROM pg_attribute
            WHERE attname = $3
              AND attnum > 0
              AND NOT attisdropped
        ) AS a ON a.attrelid = r.oid
        WHERE n.nspname = $1 AND r.relname = $2
    `, schemaName, tableName, idColumn)

	var info tableInfo
	var idType sql.NullString
	if err := row.Scan(&info.schema, &info.table, &idType); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return tableInfo{}, fmt.Errorf("changetrail: table %s.%s not found", schemaName, tableName)
		}
		return tableInfo{}, err
	}
	info.ident = ident.QuoteAll([]string{info.schema, info.table})
	if idType.Valid {
		info.idType = idType.String
	}
	return info, nil
}

func createHistoryTable(ctx context.Context, db *sql.DB, cfg SchemaConfig, base tableInfo) error {
	historyParts := ident.History(base.ident, cfg.HistorySuffix)
	historyIdent := ident.QuoteAll(historyParts)
	if historyIdent == "" {
		return fmt.Errorf("changetrail: invalid history identifier for %s", base.ident)
	}
	idType := base.idType
	if idType == "" {
		idType = "UUID"
	}
	columns := []string{
		"history_id UUID PRIMARY KEY",
		"id " + idType,
		"operation TEXT NOT NULL",
		"operated_at TIMESTAMPTZ NOT NULL",
		"operated_by TEXT",
		"trace_id TEXT",
		"reason TEXT",
		"changes JSONB",
		"before JSONB",
		"after JSONB",
	}

	ddl := fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        %s
    );
    `, historyIdent, strings.Join(columns, ",\n\t"))

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("changetrail: failed to create %s: %w", historyIdent, err)
	}
	if cfg.CreateIDIndex {
		indexName := fmt.Sprintf("idx_%s_id", historyParts[len(historyParts)-1])
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (id, operated_at);`, ident.Quote(indexName), historyIdent)
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("changetrail: failed to index %s: %w", historyIdent, err)
		}
	}
	return nil
}

var tableNamerType = reflect.TypeOf((*TableNamer)(nil)).Elem()

func resolveTableName(target any) (string, error) {
	switch v := target.(type) {
	case nil:
		return "", errors.New("changetrail: nil table target")
	case string:
		name := strings.TrimSpace(v)
		if name == "" {
			return "", errors.New("changetrail: empty table name")
		}
		return name, nil
	case TableNamer:
		if val := reflect.ValueOf(v); val.Kind() == reflect.Pointer && val.IsNil() {
			return "", fmt.Errorf("changetrail: nil pointer target %T", target)
		}
		return namerTableName(v)
	}

	typ := reflect.TypeOf(target)
	if typ.Kind() == reflect.Pointer {
		if reflect.ValueOf(target).IsNil() {
			return "", fmt.Errorf("changetrail: nil pointer target %T", target)
		}
		typ = typ.Elem()
	}
	if typ.Kind() != reflect.Struct {
		return "", fmt.Errorf("changetrail: unsupported table target %T", target)
	}
	// A value whose TableName has a pointer receiver.
	if reflect.PointerTo(typ).Implements(tableNamerType) {
		return namerTableName(reflect.New(typ).Interface().(TableNamer))
	}
	if typ.Name() == "" {
		return "", fmt.Errorf("changetrail: cannot derive table name for anonymous struct of type %v", typ)
	}
	return inflection.Plural(ident.SnakeCase(typ.Name())), nil
}

func namerTableName(n TableNamer) (string, error) {
	name := strings.TrimSpace(n.TableName())
	if name == "" {
		return "", fmt.Errorf("changetrail: TableName of %T returned an empty string", n)
	}
	return name, nil
}
