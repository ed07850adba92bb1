package health

import "context"

// Checker checks availability of a single component.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
