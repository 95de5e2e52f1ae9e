// Package sink delivers committed history entries outside the database.
package sink

import (
	"context"
	"errors"
	"time"
)

// Event is a committed history entry.
type Event struct {
	HistoryID  string            `json:"history_id"`
	Table      string            `json:"table"`
	Operation  string            `json:"operation"`
	RecordID   string            `json:"record_id,omitempty"`
	Changes    map[string]string `json:"changes,omitempty"`
	Operator   string            `json:"operator,omitempty"`
	TraceID    string            `json:"trace_id,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	OperatedAt time.Time         `json:"operated_at"`
}

// Key identifies the record an event belongs to.
func (e Event) Key() string {
	return e.Table + ":" + e.RecordID
}

// Sink receives events after the transaction that produced them commits.
type Sink interface {
	Publish(ctx context.Context, e Event) error
}

// Multi publishes to every sink and joins their errors.
type Multi []Sink

func (m Multi) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, s := range m {
		if err := s.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
