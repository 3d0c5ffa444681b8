// Package journal is the append-only execution log. Every pipeline
// transition (entries, exits, rejections, reconciliation cycles, kill-switch
// flips) is appended as one JSON line; records are never updated or deleted.
package journal

import (
	"time"

	"main/internal/schema"
)

// RecordType tags one journal line.
type RecordType string

const (
	RecordEntry          RecordType = "entry"
	RecordExit           RecordType = "exit"
	RecordRejection      RecordType = "risk_rejection"
	RecordValidation     RecordType = "validation_failure"
	RecordReconciliation RecordType = "reconciliation"
	RecordKillSwitch     RecordType = "kill_switch"
)

// Record is one appended event. Only the fields relevant to its type are
// populated.
type Record struct {
	Timestamp time.Time  `json:"timestamp"`
	Type      RecordType `json:"type"`

	Signal   *schema.Signal               `json:"signal,omitempty"`
	Position *schema.Position             `json:"position,omitempty"`
	Order    *schema.Order                `json:"order,omitempty"`
	Result   *schema.OrderResult          `json:"result,omitempty"`
	Trigger  schema.ExitTrigger           `json:"trigger,omitempty"`
	Reason   string                       `json:"reason,omitempty"`
	Report   *schema.ReconciliationReport `json:"report,omitempty"`
	PnL      float64                      `json:"pnl,omitempty"`
}

// Sink receives journal records. Implementations must be append-only.
type Sink interface {
	Append(rec Record) error
	Close() error
}

// Journal fans records out to every configured sink. A failing sink is
// reported by Append but never blocks the others.
type Journal struct {
	sinks []Sink
}

// New creates a journal over the given sinks.
func New(sinks ...Sink) *Journal {
	return &Journal{sinks: sinks}
}

// Append stamps and forwards the record to every sink, returning the first
// sink error.
func (j *Journal) Append(rec Record) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}
	var firstErr error
	for _, s := range j.sinks {
		if err := s.Append(rec); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close closes every sink, returning the first error.
func (j *Journal) Close() error {
	var firstErr error
	for _, s := range j.sinks {
		if err := s.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
