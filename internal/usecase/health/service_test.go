package health

import (
	"context"
	"errors"
	"testing"
)

type checkFn func(ctx context.Context) error

func (f checkFn) HealthCheck(ctx context.Context) error { return f(ctx) }

func ok() checkFn   { return func(context.Context) error { return nil } }
func fail() checkFn { return func(context.Context) error { return errors.New("down") } }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(ok())
	svc.Register("openai", ok())

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Fatalf("status = %q, want %q", report.Status, Healthy)
	}
	if report.Checks["store"] != CheckOK || report.Checks["provider:openai"] != CheckOK {
		t.Fatalf("checks = %v", report.Checks)
	}
}

func TestCheck_PartialFailureIsDegraded(t *testing.T) {
	svc := New(ok())
	svc.Register("openai", ok())
	svc.Register("bedrock", fail())

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Fatalf("status = %q, want %q", report.Status, Degraded)
	}
	if report.Checks["provider:bedrock"] != CheckError {
		t.Fatalf("checks = %v", report.Checks)
	}
}

func TestCheck_TotalFailureIsUnhealthy(t *testing.T) {
	svc := New(fail())
	svc.Register("openai", fail())

	report := svc.Check(context.Background())
	if report.Status != Unhealthy {
		t.Fatalf("status = %q, want %q", report.Status, Unhealthy)
	}
}

func TestCheck_NilStoreSkipsStoreCheck(t *testing.T) {
	svc := New(nil)
	svc.Register("openai", ok())

	report := svc.Check(context.Background())
	if _, present := report.Checks["store"]; present {
		t.Fatal("store check should be absent")
	}
	if report.Status != Healthy {
		t.Fatalf("status = %q, want %q", report.Status, Healthy)
	}
}
