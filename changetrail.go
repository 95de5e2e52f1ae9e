package changetrail

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jinzhu/inflection"
	"go.uber.org/zap"

	"github.com/gotasktoday/changetrail/internal/buffer"
	"github.com/gotasktoday/changetrail/internal/ident"
	"github.com/gotasktoday/changetrail/internal/query"
	"github.com/gotasktoday/changetrail/sink"
)

// RedactFunc masks a value before it is stored or described.
type RedactFunc func(key string, v any) any

// RedactMap maps field keys to redaction functions.
type RedactMap map[string]RedactFunc

// Mask replaces any value with a fixed placeholder.
func Mask(string, any) any { return "***" }

// Config defines how history is captured and stored.
type Config struct {
	HistorySuffix   string      // e.g. "_history" (default)
	IDColumn        string      // primary key column of tracked tables, "id" by default
	Redact          RedactMap   // optional key-based redaction of row images and descriptions
	SkipIfNotExists bool        // skip tables that have no history table
	CaptureRows     bool        // append RETURNING * to captured DML that lacks it
	Strict          bool        // reject patch keys unknown to the stored row
	Equal           EqualFunc   // DeepEqual when nil
	Sinks           []sink.Sink // notified after commit
	Metrics         *Metrics
	Logger          *zap.Logger
	Now             func() time.Time
}

// HistoryTableName returns the history table name for base.
func (c Config) HistoryTableName(base string) string {
	return ident.QuoteAll(ident.History(base, c.HistorySuffix))
}

// Handler holds the configuration shared by wrapped databases.
type Handler struct {
	cfg     Config
	builder *Builder
	log     *zap.Logger
}

// New creates a Handler, filling in defaults.
func New(cfg Config) *Handler {
	if cfg.HistorySuffix == "" {
		cfg.HistorySuffix = "_history"
	}
	if cfg.IDColumn == "" {
		cfg.IDColumn = "id"
	}
	if cfg.Redact == nil {
		cfg.Redact = RedactMap{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	opts := []Option{WithEqual(cfg.Equal), WithRedact(cfg.Redact)}
	if cfg.Strict {
		opts = append(opts, Strict())
	}
	return &Handler{
		cfg:     cfg,
		builder: NewBuilder(opts...),
		log:     cfg.Logger.Named("changetrail"),
	}
}

// Builder returns the summary builder configured for this handler.
func (h *Handler) Builder() *Builder {
	return h.builder
}

// DB wraps a *sql.DB to record history on its transactions.
type DB struct {
	*sql.DB
	h *Handler
}

// WrapDB attaches the handler to a *sql.DB connection.
func (h *Handler) WrapDB(db *sql.DB) *DB {
	return &DB{DB: db, h: h}
}

func (h *Handler) applyRedact(m map[string]any) map[string]any {
	if m == nil || len(h.cfg.Redact) == 0 {
		return m
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if fn, ok := h.cfg.Redact[k]; ok && fn != nil {
			out[k] = fn(k, v)
		} else {
			out[k] = v
		}
	}
	return out
}

// Tx is a transaction that buffers history entries until Commit.
type Tx struct {
	*sql.Tx
	h   *Handler
	buf *buffer.Buffer[entry]
	ctx context.Context
}

// BeginTx starts a transaction that records history.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*Tx, error) {
	t, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{Tx: t, h: db.h, buf: buffer.New[entry](), ctx: ctx}, nil
}

// ExecContext runs q and captures INSERT, UPDATE and DELETE statements.
// Row images are captured when the statement has a RETURNING clause (or
// CaptureRows adds one): INSERT and UPDATE rows as after, DELETE rows as before.
func (t *Tx) ExecContext(ctx context.Context, q string, args ...any) (sql.Result, error) {
	dml, ok := query.ParseDML(q)
	if !ok || skipped(ctx) {
		return t.Tx.ExecContext(ctx, q, args...)
	}
	if !dml.HasReturning && t.h.cfg.CaptureRows {
		if rq, ok := query.AppendReturningAll(q); ok {
			q, dml.HasReturning = rq, true
		}
	}
	if !dml.HasReturning {
		res, err := t.Tx.ExecContext(ctx, q, args...)
		if err == nil {
			t.add(ctx, entry{table: dml.Table, op: dml.Op})
		}
		return res, err
	}

	rows, err := t.Tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	ms, err := scanAll(rows)
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to scan rows: %w", err)
	}
	for _, m := range ms {
		e := entry{table: dml.Table, op: dml.Op}
		if dml.Op == query.OpDelete {
			e.before = m
		} else {
			e.after = m
		}
		t.add(ctx, e)
	}
	return newAffectedRows(len(ms)), nil
}

// Update applies patch to the row of table whose id column equals id and
// records a history entry describing the fields that changed. Fields whose
// values already match the stored row are not written. When nothing changes
// no statement is issued and an empty Summary is returned.
func (t *Tx) Update(ctx context.Context, table string, id any, patch map[string]any) (Summary, error) {
	idCol := t.h.cfg.IDColumn
	rows, err := t.Tx.QueryContext(ctx, query.SelectForUpdate(table, idCol), id)
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to load %s: %w", table, err)
	}
	before, err := scanOne(rows)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s %s=%v", ErrNotFound, table, idCol, id)
	}
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to scan %s: %w", table, err)
	}

	changes, err := t.h.builder.Build(alignRow(before, patch), patch)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		t.h.log.Debug("no changes detected", zap.String("table", table), zap.Any("id", id))
		return changes, nil
	}

	q, args := query.Update(table, idCol, changes.Fields(), patch, id)
	rows, err = t.Tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to update %s: %w", table, err)
	}
	after, err := scanOne(rows)
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to scan updated %s: %w", table, err)
	}

	if !skipped(ctx) {
		t.add(ctx, entry{
			table:    table,
			op:       query.OpUpdate,
			recordID: id,
			before:   before,
			after:    after,
			changes:  changes,
		})
	}
	return changes, nil
}

func (t *Tx) add(ctx context.Context, e entry) {
	e.historyID = uuid.New()
	e.meta = MetaFrom(ctx)
	e.at = t.h.cfg.Now()
	t.buf.Add(e)
	t.h.log.Debug("captured change",
		zap.String("table", e.table),
		zap.String("operation", e.op),
		zap.Int("changed_fields", len(e.changes)),
	)
}

// Commit writes buffered history entries, commits, then notifies sinks.
func (t *Tx) Commit() error {
	entries, err := t.flush()
	if err != nil {
		return err
	}
	if err := t.Tx.Commit(); err != nil {
		return err
	}
	t.publish(entries)
	return nil
}

// Rollback discards buffered history entries and rolls back the transaction.
func (t *Tx) Rollback() error {
	t.buf.Reset()
	return t.Tx.Rollback()
}

// flush inserts buffered entries into their history tables within the transaction.
func (t *Tx) flush() ([]entry, error) {
	entries := t.buf.Drain()
	if len(entries) == 0 {
		return nil, nil
	}

	written := make([]entry, 0, len(entries))
	exists := map[string]bool{}
	for _, e := range entries {
		historyParts := ident.History(e.table, t.h.cfg.HistorySuffix)
		historyIdent := ident.QuoteAll(historyParts)
		if historyIdent == "" {
			return nil, fmt.Errorf("changetrail: invalid history table identifier for %q", e.table)
		}
		if t.h.cfg.SkipIfNotExists {
			ok, err := t.historyTableExists(exists, historyParts)
			if err != nil {
				return nil, err
			}
			if !ok {
				t.h.log.Debug("history table missing, skipping", zap.String("table", e.table))
				continue
			}
		}

		before := t.h.applyRedact(e.before)
		after := t.h.applyRedact(e.after)
		if e.recordID == nil {
			e.recordID = pickID(e.table, t.h.cfg.IDColumn, before, after)
		}
		changesJSON, err := jsonArg(e.changes)
		if err != nil {
			return nil, fmt.Errorf("changetrail: failed to marshal changes: %w", err)
		}
		beforeJSON, err := jsonArg(before)
		if err != nil {
			return nil, fmt.Errorf("changetrail: failed to marshal before: %w", err)
		}
		afterJSON, err := jsonArg(after)
		if err != nil {
			return nil, fmt.Errorf("changetrail: failed to marshal after: %w", err)
		}

		stmt := fmt.Sprintf(`
INSERT INTO %s (history_id, id, operation, operated_at, operated_by, trace_id, reason, changes, before, after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`, historyIdent)
		if _, err := t.Tx.ExecContext(
			t.ctx,
			stmt,
			e.historyID.String(),
			e.recordID,
			e.op,
			e.at,
			e.meta.Operator,
			e.meta.TraceID,
			e.meta.Reason,
			changesJSON,
			beforeJSON,
			afterJSON,
		); err != nil {
			return nil, fmt.Errorf("changetrail: failed to insert history table: %w", err)
		}
		written = append(written, e)
	}
	t.h.log.Debug("flushed history", zap.Int("entries", len(written)))
	return written, nil
}

func (t *Tx) historyTableExists(cache map[string]bool, parts []string) (bool, error) {
	lit := ident.RegclassLiteral(parts)
	if ok, seen := cache[lit]; seen {
		return ok, nil
	}
	var ok bool
	if err := t.Tx.QueryRowContext(t.ctx, `SELECT to_regclass($1) IS NOT NULL`, ident.QuoteAll(parts)).Scan(&ok); err != nil {
		return false, fmt.Errorf("changetrail: failed to look up history table: %w", err)
	}
	cache[lit] = ok
	return ok, nil
}

func (t *Tx) publish(entries []entry) {
	for _, e := range entries {
		t.h.cfg.Metrics.observe(e)
		if len(t.h.cfg.Sinks) == 0 {
			continue
		}
		ev := sink.Event{
			HistoryID:  e.historyID.String(),
			Table:      e.table,
			Operation:  e.op,
			RecordID:   recordIDString(e.recordID),
			Changes:    e.changes,
			Operator:   e.meta.Operator,
			TraceID:    e.meta.TraceID,
			Reason:     e.meta.Reason,
			OperatedAt: e.at,
		}
		for _, s := range t.h.cfg.Sinks {
			if err := s.Publish(t.ctx, ev); err != nil {
				t.h.log.Warn("failed to publish history event",
					zap.String("history_id", ev.HistoryID),
					zap.String("table", ev.Table),
					zap.Error(err),
				)
			}
		}
	}
}

// History returns the history entries of one record, oldest first.
func (db *DB) History(ctx context.Context, table string, id any) ([]HistoryEntry, error) {
	historyIdent := db.h.cfg.HistoryTableName(table)
	if historyIdent == "" {
		return nil, fmt.Errorf("changetrail: invalid history table identifier for %q", table)
	}
	rows, err := db.QueryContext(ctx, fmt.Sprintf(`
SELECT history_id, id::text, operation, operated_at, operated_by, trace_id, reason, changes, before, after
FROM %s
WHERE id = $1
ORDER BY operated_at, history_id
`, historyIdent), id)
	if err != nil {
		return nil, fmt.Errorf("changetrail: failed to query history: %w", err)
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var out []HistoryEntry
	for rows.Next() {
		var (
			he                                HistoryEntry
			recordID, by, trace, why          sql.NullString
			changesJSON, beforeJSON, afterJSON []byte
		)
		if err := rows.Scan(&he.ID, &recordID, &he.Operation, &he.OperatedAt, &by, &trace, &why, &changesJSON, &beforeJSON, &afterJSON); err != nil {
			return nil, fmt.Errorf("changetrail: failed to scan history: %w", err)
		}
		he.RecordID, he.OperatedBy, he.TraceID, he.Reason = recordID.String, by.String, trace.String, why.String
		if err := unmarshalJSON(changesJSON, &he.Changes); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(beforeJSON, &he.Before); err != nil {
			return nil, err
		}
		if err := unmarshalJSON(afterJSON, &he.After); err != nil {
			return nil, err
		}
		out = append(out, he)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("changetrail: failed to read history: %w", err)
	}
	return out, nil
}

// pickID chooses the record id from the row images.
func pickID(table, idColumn string, before, after map[string]any) any {
	// idColumn first, then "<singular table>_id".
	keys := []string{idColumn, inflection.Singular(ident.Base(table)) + "_id"}
	for _, k := range keys {
		if v, ok := before[k]; ok {
			return v
		}
		if v, ok := after[k]; ok {
			return v
		}
	}
	return nil
}

func recordIDString(id any) string {
	if id == nil {
		return ""
	}
	return DisplayString(id)
}

func jsonArg[M ~map[string]V, V any](m M) (any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func unmarshalJSON[T any](b []byte, dst *T) error {
	if len(b) == 0 {
		return nil
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return fmt.Errorf("changetrail: failed to decode history column: %w", err)
	}
	return nil
}
