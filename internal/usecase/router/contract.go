package router

import (
	"context"

	"github.com/kailas-cloud/modelmux/internal/domain/usage"
)

// UsageLedger records accounting entries for completed requests.
type UsageLedger interface {
	Append(ctx context.Context, rec usage.Record) error
}
