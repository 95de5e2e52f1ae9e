package changetrail

import (
	"time"

	"github.com/google/uuid"
)

// entry is a captured change waiting in a transaction buffer.
type entry struct {
	historyID uuid.UUID
	table     string
	op        string
	recordID  any
	before    map[string]any // DELETE, and UPDATE through Tx.Update
	after     map[string]any // INSERT and UPDATE
	changes   Summary        // UPDATE through Tx.Update
	meta      Meta
	at        time.Time
}

// HistoryEntry is one persisted row of a history table.
type HistoryEntry struct {
	ID         uuid.UUID      `json:"history_id"`
	RecordID   string         `json:"id"`
	Operation  string         `json:"operation"`
	OperatedAt time.Time      `json:"operated_at"`
	OperatedBy string         `json:"operated_by,omitempty"`
	TraceID    string         `json:"trace_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	Changes    Summary        `json:"changes,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
}
