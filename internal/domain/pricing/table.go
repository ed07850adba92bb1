// Package pricing holds the static price table used for cost accounting.
// The table is built once at startup and never mutated afterwards, so
// concurrent cost lookups need no synchronization.
package pricing

// Price is the USD cost per 1000 tokens for one (provider, model) pair.
type Price struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

type key struct {
	provider string
	model    string
}

// Table is an immutable price table keyed by (provider ID, model ID).
type Table struct {
	prices map[key]Price
}

// Builder accumulates entries for an immutable Table.
type Builder struct {
	prices map[key]Price
}

// NewBuilder creates an empty price table builder.
func NewBuilder() *Builder {
	return &Builder{prices: make(map[key]Price)}
}

// Set registers the price for a (provider, model) pair.
func (b *Builder) Set(provider, model string, promptPer1K, completionPer1K float64) *Builder {
	b.prices[key{provider, model}] = Price{PromptPer1K: promptPer1K, CompletionPer1K: completionPer1K}
	return b
}

// Build freezes the accumulated entries into a Table.
func (b *Builder) Build() *Table {
	return &Table{prices: b.prices}
}

// Cost computes the USD cost for the given token counts:
// (prompt/1000)*price_prompt + (completion/1000)*price_completion.
// Unknown (provider, model) pairs return 0 and known=false; the caller
// records a zero-cost warning instead of failing the call.
func (t Table) Cost(provider, model string, promptTokens, completionTokens int) (usd float64, known bool) {
	p, ok := t.prices[key{provider, model}]
	if !ok {
		return 0, false
	}
	return float64(promptTokens)/1000*p.PromptPer1K +
		float64(completionTokens)/1000*p.CompletionPer1K, true
}

// Len returns the number of priced pairs.
func (t Table) Len() int { return len(t.prices) }
