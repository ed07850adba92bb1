// Package ledger persists daily usage aggregates to a key-value store so
// cost data survives process restarts. Counters are per (provider, model,
// day); cost is stored in micro-dollars to keep INCRBY integer.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/modelmux/internal/domain/usage"
)

// store is the consumer interface for ledger persistence (ISP).
type store interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
}

// Store mirrors usage records into durable daily counters.
type Store struct {
	store     store
	keyPrefix string
	ttl       time.Duration
}

// New creates a ledger mirror. ttl is the retention for daily keys
// (recommended: 90 days).
func New(s store, keyPrefix string, ttl time.Duration) *Store {
	return &Store{store: s, keyPrefix: keyPrefix, ttl: ttl}
}

// Record increments the day's token and cost counters for the record's
// (provider, model) pair.
func (s *Store) Record(ctx context.Context, rec usage.Record) error {
	base := fmt.Sprintf("%susage:%s:%s:%s", s.keyPrefix, rec.Provider, rec.Model, rec.Day())

	counters := map[string]int64{
		base + ":prompt_tokens":     int64(rec.PromptTokens),
		base + ":completion_tokens": int64(rec.CompletionTokens),
		base + ":cost_micros":       int64(rec.CostUSD * 1e6),
		base + ":requests":          1,
	}

	for key, val := range counters {
		if val == 0 && key != base+":requests" {
			continue
		}
		if err := s.store.IncrBy(ctx, key, val); err != nil {
			return fmt.Errorf("ledger INCRBY %s: %w", key, err)
		}
		// NX: set retention once, never reset on subsequent increments.
		if err := s.store.Expire(ctx, key, s.ttl, true); err != nil {
			return fmt.Errorf("ledger EXPIRE %s: %w", key, err)
		}
	}

	return nil
}
