package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrConfiguration signals an unknown provider or vector store identifier.
	ErrConfiguration = errors.New("configuration error")
	// ErrValidation signals malformed input rejected before any network call.
	ErrValidation = errors.New("validation error")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrCapabilityNotSupported signals a capability the provider does not implement.
	ErrCapabilityNotSupported = errors.New("capability not supported")
	// ErrVectorStore signals a vector store connection or write failure.
	ErrVectorStore = errors.New("vector store error")
	// ErrDocumentNotFound signals a missing document.
	ErrDocumentNotFound = errors.New("document not found")
)

// Fault classifies provider failures for the failover policy.
type Fault string

// Provider fault kinds.
const (
	FaultRateLimited    Fault = "rate_limited"
	FaultTimeout        Fault = "timeout"
	FaultAuthFailed     Fault = "auth_failed"
	FaultInvalidRequest Fault = "invalid_request"
	FaultUnavailable    Fault = "unavailable"
)

// Retriable reports whether the failover policy may try another provider.
// AuthFailed and InvalidRequest are configuration/input errors: retrying
// cannot change the outcome.
func (f Fault) Retriable() bool {
	return f != FaultAuthFailed && f != FaultInvalidRequest
}

// ProviderError wraps a backend fault with the provider that produced it.
type ProviderError struct {
	Provider string
	Kind     Fault
	Status   int // HTTP status from the backend, 0 if not applicable
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Kind, e.Err)
	}
	return fmt.Sprintf("provider %s: %s", e.Provider, e.Kind)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// NewProviderError creates a classified provider error.
func NewProviderError(provider string, kind Fault, status int, err error) *ProviderError {
	return &ProviderError{Provider: provider, Kind: kind, Status: status, Err: err}
}

// FaultOf extracts the fault kind from an error chain.
// Returns FaultUnavailable, false for unclassified errors.
func FaultOf(err error) (Fault, bool) {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind, true
	}
	return FaultUnavailable, false
}

// AllProvidersFailed aggregates the last error per provider after the
// preference list is exhausted.
type AllProvidersFailed struct {
	Last map[string]error
}

func (e *AllProvidersFailed) Error() string {
	if len(e.Last) == 0 {
		return "all providers failed: no providers configured"
	}
	ids := make([]string, 0, len(e.Last))
	for id := range e.Last {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%s: %v", id, e.Last[id]))
	}
	return "all providers failed: " + strings.Join(parts, "; ")
}

// NewAllProvidersFailed creates the aggregate failover error.
func NewAllProvidersFailed(last map[string]error) *AllProvidersFailed {
	return &AllProvidersFailed{Last: last}
}
