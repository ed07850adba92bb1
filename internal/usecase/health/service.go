package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status Status
	Checks map[string]CheckResult
}

// Service coordinates health checks across the vector store and providers.
type Service struct {
	store    Checker
	names    []string
	checkers map[string]Checker
}

// New creates a Service. store can be nil when the vector store has no
// health probe (the in-memory driver).
func New(store Checker) *Service {
	return &Service{
		store:    store,
		checkers: make(map[string]Checker),
	}
}

// Register adds a named component check. Registration order is preserved
// in the report.
func (s *Service) Register(name string, c Checker) {
	if _, ok := s.checkers[name]; !ok {
		s.names = append(s.names, name)
	}
	s.checkers[name] = c
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := make(map[string]CheckResult)

	if s.store != nil {
		checks["store"] = result(s.store.HealthCheck(ctx))
	}

	for _, name := range s.names {
		checks["provider:"+name] = result(s.checkers[name].HealthCheck(ctx))
	}

	status := Healthy
	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	if failed > 0 {
		status = Degraded
	}
	if len(checks) > 0 && failed == len(checks) {
		status = Unhealthy
	}

	return Report{Status: status, Checks: checks}
}

func result(err error) CheckResult {
	if err != nil {
		return CheckError
	}
	return CheckOK
}
