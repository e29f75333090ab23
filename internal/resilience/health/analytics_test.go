package health

import (
	"context"
	"testing"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// =============================================================================
// Scoring
// =============================================================================

func TestPerformanceScore(t *testing.T) {
	// Perfect service: full availability, instant responses, no errors
	if got := performanceScore(1.0, 0, 0); got != 100 {
		t.Errorf("perfect service: expected 100, got %.2f", got)
	}

	// Dead service
	if got := performanceScore(0, 2*time.Second, 1.0); got != 0 {
		t.Errorf("dead service: expected 0, got %.2f", got)
	}

	// 90% availability, 500ms avg, 5% errors:
	// 0.40*0.9 + 0.35*0.5 + 0.25*0.5 = 0.66
	got := performanceScore(0.9, 500*time.Millisecond, 0.05)
	if got < 65.9 || got > 66.1 {
		t.Errorf("expected ~66, got %.2f", got)
	}

	// Error rate at or beyond the 10% floor zeroes that component
	got = performanceScore(1.0, 0, 0.20)
	want := (0.40 + 0.35) * 100
	if got != want {
		t.Errorf("expected %.2f, got %.2f", want, got)
	}
}

func TestPercentileDuration(t *testing.T) {
	times := []time.Duration{50, 10, 30, 20, 40} // unsorted on purpose

	if got := percentileDuration(times, 0.50); got != 30 {
		t.Errorf("median: expected 30, got %d", got)
	}
	if got := percentileDuration(times, 0); got != 10 {
		t.Errorf("p0: expected 10, got %d", got)
	}
	if got := percentileDuration(times, 1); got != 50 {
		t.Errorf("p100: expected 50, got %d", got)
	}
	if got := percentileDuration(nil, 0.95); got != 0 {
		t.Errorf("empty: expected 0, got %d", got)
	}
}

func TestMeanDuration(t *testing.T) {
	if got := meanDuration([]time.Duration{10, 20, 30}); got != 20 {
		t.Errorf("expected 20, got %d", got)
	}
	if got := meanDuration(nil); got != 0 {
		t.Errorf("empty: expected 0, got %d", got)
	}
}

// =============================================================================
// Downtime
// =============================================================================

func TestDowntimeStats(t *testing.T) {
	base := time.Now()
	at := func(min int) time.Time { return base.Add(time.Duration(min) * time.Minute) }
	res := func(status domain.Status, min int) domain.HealthCheckResult {
		return domain.HealthCheckResult{Status: status, Timestamp: at(min)}
	}

	// Two outages: minutes 10-20 and 40-45. MTTR = (10m+5m)/2, MTBF = 30m.
	results := []domain.HealthCheckResult{
		res(domain.StatusHealthy, 0),
		res(domain.StatusUnhealthy, 10),
		res(domain.StatusUnhealthy, 15),
		res(domain.StatusHealthy, 20),
		res(domain.StatusHealthy, 30),
		res(domain.StatusError, 40),
		res(domain.StatusHealthy, 45),
	}

	mttr, mtbf := downtimeStats(results)
	if mttr != 7*time.Minute+30*time.Second {
		t.Errorf("expected MTTR 7m30s, got %s", mttr)
	}
	if mtbf != 30*time.Minute {
		t.Errorf("expected MTBF 30m, got %s", mtbf)
	}
}

func TestDowntimeStats_OpenOutage(t *testing.T) {
	base := time.Now()
	results := []domain.HealthCheckResult{
		{Status: domain.StatusHealthy, Timestamp: base},
		{Status: domain.StatusUnhealthy, Timestamp: base.Add(time.Minute)},
	}

	// Still down at the window end: no completed outage to average
	mttr, mtbf := downtimeStats(results)
	if mttr != 0 || mtbf != 0 {
		t.Errorf("expected zero stats for single open outage, got mttr=%s mtbf=%s", mttr, mtbf)
	}
}

// =============================================================================
// Reports
// =============================================================================

func TestServiceReport(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	_ = r.RegisterService("orders", domain.HealthCheckConfig{Type: domain.CheckCustom}, "", nil)

	m, _ := r.Monitor("orders")
	m.SetCustomCheck(func(ctx context.Context) (any, error) { return true, nil })
	for i := 0; i < 9; i++ {
		m.Check(context.Background(), domain.CheckCustom, nil)
	}
	m.SetCustomCheck(func(ctx context.Context) (any, error) { return false, nil })
	m.Check(context.Background(), domain.CheckCustom, nil)

	report, err := r.ServiceReport("orders", 24)
	if err != nil {
		t.Fatalf("ServiceReport failed: %v", err)
	}

	if report.Samples != 10 {
		t.Errorf("expected 10 samples, got %d", report.Samples)
	}
	if report.Availability != 90 {
		t.Errorf("expected 90%% availability, got %.2f", report.Availability)
	}
	if report.Status != domain.StatusDegraded {
		t.Errorf("expected degraded status, got %s", report.Status)
	}
	if report.ConsecutiveFailures != 1 {
		t.Errorf("expected 1 consecutive failure, got %d", report.ConsecutiveFailures)
	}
	if report.PerformanceScore <= 0 || report.PerformanceScore > 100 {
		t.Errorf("score out of range: %.2f", report.PerformanceScore)
	}
}

func TestServiceReport_UnknownService(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	if _, err := r.ServiceReport("ghost", 24); err == nil {
		t.Error("expected error for unknown service")
	}
}

func TestAllReports(t *testing.T) {
	r := NewRegistry(nil, time.Minute)
	_ = r.RegisterService("a", domain.HealthCheckConfig{}, "", nil)
	_ = r.RegisterService("b", domain.HealthCheckConfig{}, "", nil)

	reports := r.AllReports(24)
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}
	if reports["a"].Service != "a" {
		t.Errorf("report not attributed: %+v", reports["a"])
	}
}
