// Package usage aggregates ledger records into per-provider,
// per-model and per-day cost reports.
package usage

import (
	"time"

	domusage "github.com/kailas-cloud/modelmux/internal/domain/usage"
)

// Filter narrows a usage report. Zero values match everything.
type Filter struct {
	Provider string
	Model    string
	Op       domusage.Operation
	Since    time.Time
	Until    time.Time
}

func (f Filter) matches(r domusage.Record) bool {
	if f.Provider != "" && r.Provider != f.Provider {
		return false
	}
	if f.Model != "" && r.Model != f.Model {
		return false
	}
	if f.Op != "" && r.Op != f.Op {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Summary is an aggregated view over the matched records. Unpriced
// counts records for which no pricing table entry existed, their cost
// contribution is zero.
type Summary struct {
	Totals     domusage.Totals
	Unpriced   int
	ByProvider map[string]domusage.Totals
	ByModel    map[string]domusage.Totals
	ByDay      map[string]domusage.Totals
}

// Service builds usage summaries from a record source.
type Service struct {
	source Source
}

// New creates a usage reporting service.
func New(source Source) *Service {
	return &Service{source: source}
}

// Summarize aggregates all records matching the filter.
func (s *Service) Summarize(filter Filter) Summary {
	summary := Summary{
		ByProvider: make(map[string]domusage.Totals),
		ByModel:    make(map[string]domusage.Totals),
		ByDay:      make(map[string]domusage.Totals),
	}

	for _, rec := range s.source.Snapshot() {
		if !filter.matches(rec) {
			continue
		}

		summary.Totals.Accumulate(rec)
		if !rec.Priced {
			summary.Unpriced++
		}

		byProvider := summary.ByProvider[rec.Provider]
		byProvider.Accumulate(rec)
		summary.ByProvider[rec.Provider] = byProvider

		byModel := summary.ByModel[rec.Model]
		byModel.Accumulate(rec)
		summary.ByModel[rec.Model] = byModel

		byDay := summary.ByDay[rec.Day()]
		byDay.Accumulate(rec)
		summary.ByDay[rec.Day()] = byDay
	}

	return summary
}
