// Package usage defines the append-only cost ledger's record shape and
// the aggregate views computed over it.
package usage

import "time"

// Operation identifies the capability that consumed tokens.
type Operation string

// Ledger operations.
const (
	OpChat      Operation = "chat"
	OpText      Operation = "text"
	OpEmbedding Operation = "embedding"
	OpVision    Operation = "vision"
)

// Record is one append-only ledger entry for a successful provider call.
type Record struct {
	Timestamp        time.Time
	Provider         string
	Model            string
	Op               Operation
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
	Priced           bool // false when the (provider, model) pair had no price entry
}

// TotalTokens returns prompt + completion tokens.
func (r Record) TotalTokens() int { return r.PromptTokens + r.CompletionTokens }

// Day returns the UTC calendar day of the record as "YYYY-MM-DD".
func (r Record) Day() string { return r.Timestamp.UTC().Format("2006-01-02") }

// Totals is an aggregate over a set of records.
type Totals struct {
	Requests         int
	PromptTokens     int
	CompletionTokens int
	CostUSD          float64
}

// Accumulate adds one record into the totals.
func (t *Totals) Accumulate(r Record) {
	t.Requests++
	t.PromptTokens += r.PromptTokens
	t.CompletionTokens += r.CompletionTokens
	t.CostUSD += r.CostUSD
}

// TotalTokens returns prompt + completion tokens.
func (t Totals) TotalTokens() int { return t.PromptTokens + t.CompletionTokens }
