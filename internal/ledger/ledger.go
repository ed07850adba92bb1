// Package ledger implements the process-wide append-only usage ledger.
// It is the only mutable state shared between concurrent requests.
package ledger

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/kailas-cloud/modelmux/internal/domain/usage"
)

// Mirror persists ledger entries to durable counters. Mirror failures are
// logged and never fail the originating call.
type Mirror interface {
	Record(ctx context.Context, rec usage.Record) error
}

// Ledger is a mutex-guarded append-only log of usage records. Appends are
// atomic: a reader snapshot sees either the full record or none of it.
type Ledger struct {
	mu      sync.Mutex
	records []usage.Record

	mirror Mirror
	logger *zap.Logger
}

// New creates an empty ledger.
func New(logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{logger: logger}
}

// WithMirror attaches a durable mirror (e.g. Redis daily counters).
func (l *Ledger) WithMirror(m Mirror) *Ledger {
	l.mirror = m
	return l
}

// Append records one successful provider call. Mirror failures are
// swallowed after logging, so Append never fails the originating call.
func (l *Ledger) Append(ctx context.Context, rec usage.Record) error {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()

	if l.mirror != nil {
		if err := l.mirror.Record(ctx, rec); err != nil {
			l.logger.Warn("Failed to mirror usage record",
				zap.String("provider", rec.Provider),
				zap.String("model", rec.Model),
				zap.Error(err),
			)
		}
	}
	return nil
}

// Snapshot returns a copy of all records. Read-only consumers must not
// mutate the ledger; the copy enforces that.
func (l *Ledger) Snapshot() []usage.Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]usage.Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
