package coordinator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/infra/storage"
	"github.com/vietddude/sentinel/internal/infra/storage/memory"
)

// =============================================================================
// Fixtures
// =============================================================================

func fastRegistration(name string) domain.ServiceRegistration {
	return domain.ServiceRegistration{
		Name: name,
		URL:  "http://" + name,
		Health: domain.HealthCheckConfig{
			Type: domain.CheckCustom,
		},
		Recovery: domain.RecoveryConfig{
			MaxAttempts:      3,
			Timeout:          time.Second,
			GradualInterval:  time.Millisecond,
			SuccessThreshold: 0.8,
		},
		Fallbacks: []domain.FallbackConfig{
			{
				Type:         domain.FallbackDegradedMode,
				Priority:     1,
				Enabled:      true,
				Capabilities: []string{"read_only"},
			},
		},
	}
}

func newTestCoordinator(t *testing.T, regs ...domain.ServiceRegistration) *Coordinator {
	t.Helper()
	c := New(Options{
		EventRepo:   memory.NewEventRepo(),
		AttemptRepo: memory.NewAttemptRepo(),
	})
	for _, reg := range regs {
		if err := c.RegisterService(reg); err != nil {
			t.Fatalf("RegisterService(%s) failed: %v", reg.Name, err)
		}
	}
	return c
}

func passingProbe(ctx context.Context, args map[string]any) (bool, error) { return true, nil }
func failingProbe(ctx context.Context, args map[string]any) (bool, error) { return false, nil }

// =============================================================================
// Registration
// =============================================================================

func TestCoordinator_RegisterAndUnregister(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	if _, err := c.GetRecoveryStatus("payments"); err != nil {
		t.Fatalf("GetRecoveryStatus failed: %v", err)
	}

	if err := c.UnregisterService("payments"); err != nil {
		t.Fatalf("UnregisterService failed: %v", err)
	}
	if err := c.UnregisterService("payments"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
	if _, err := c.GetRecoveryStatus("payments"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered after unregister, got %v", err)
	}
}

func TestCoordinator_RegisterRequiresName(t *testing.T) {
	c := New(Options{})
	if err := c.RegisterService(domain.ServiceRegistration{}); err == nil {
		t.Error("expected error for empty service name")
	}
}

func TestCoordinator_CheckServiceHealth(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	if err := c.SetCustomCheck("payments", func(ctx context.Context) (any, error) { return true, nil }); err != nil {
		t.Fatalf("SetCustomCheck failed: %v", err)
	}

	result, err := c.CheckServiceHealth(context.Background(), "payments", domain.CheckCustom, nil)
	if err != nil {
		t.Fatalf("CheckServiceHealth failed: %v", err)
	}
	if result.Status != domain.StatusHealthy {
		t.Errorf("expected healthy, got %s", result.Status)
	}

	if _, err := c.CheckServiceHealth(context.Background(), "ghost", domain.CheckCustom, nil); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

// =============================================================================
// Failure Handling
// =============================================================================

func TestHandleFailure_UnknownService(t *testing.T) {
	c := newTestCoordinator(t)
	_, err := c.HandleFailure(context.Background(), "ghost", domain.FailureHigh, "timeout", "", nil, passingProbe, passingProbe)
	if !errors.Is(err, ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered, got %v", err)
	}
}

func TestHandleFailure_CriticalRecovers(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "process died", nil, passingProbe, passingProbe)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}

	if result.Status != StatusRecovered {
		t.Fatalf("expected recovery_successful, got %s (%s)", result.Status, result.Error)
	}
	if result.RecoveryID == "" {
		t.Error("expected recovery id")
	}
	// Critical failures always recover via the immediate strategy
	if result.Data["strategy"] != string(domain.StrategyImmediate) {
		t.Errorf("expected immediate strategy, got %v", result.Data["strategy"])
	}

	status, _ := c.GetRecoveryStatus("payments")
	if status.ConsecutiveFailures != 0 {
		t.Errorf("expected failure count reset, got %d", status.ConsecutiveFailures)
	}

	events := c.RecentFailureEvents("payments", 10)
	if len(events) != 1 || !events[0].Resolved || events[0].RecoveryID != result.RecoveryID {
		t.Errorf("expected resolved event linked to attempt, got %+v", events)
	}
}

func TestHandleFailure_RecoveryFailsThenFallback(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "", nil, failingProbe, failingProbe)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}

	if result.Status != StatusFallback {
		t.Fatalf("expected fallback_executed, got %s (%s)", result.Status, result.Error)
	}
	if result.FallbackType != domain.FallbackDegradedMode {
		t.Errorf("expected degraded mode, got %s", result.FallbackType)
	}
	if result.Data["mode"] != "degraded" {
		t.Errorf("unexpected fallback data: %+v", result.Data)
	}

	stats := c.GetGlobalRecoveryStatus().Stats
	if stats.FailedRecoveries != 1 || stats.TotalFallbackExecutions != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestHandleFailure_NoFallbacksFails(t *testing.T) {
	reg := fastRegistration("payments")
	reg.Fallbacks = nil
	c := newTestCoordinator(t, reg)

	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "", nil, failingProbe, failingProbe)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected handling_failed, got %s", result.Status)
	}
	if result.Error == "" {
		t.Error("expected error detail")
	}

	// A failed handling docks the health score
	status, _ := c.GetRecoveryStatus("payments")
	if status.HealthScore >= 1.0 {
		t.Errorf("expected health score below 1.0, got %.2f", status.HealthScore)
	}
}

func TestHandleFailure_LowLevelSkipsRecovery(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", nil, passingProbe, passingProbe)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback for low level, got %s", result.Status)
	}

	stats := c.GetGlobalRecoveryStatus().Stats
	if stats.TotalRecoveryAttempts != 0 {
		t.Errorf("low failures must not attempt recovery, got %d attempts", stats.TotalRecoveryAttempts)
	}
}

func TestHandleFailure_HealthScoreClamped(t *testing.T) {
	reg := fastRegistration("payments")
	reg.Fallbacks = nil
	c := newTestCoordinator(t, reg)

	for i := 0; i < 15; i++ {
		_, _ = c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", nil, nil, nil)
	}

	status, _ := c.GetRecoveryStatus("payments")
	if status.HealthScore != 0 {
		t.Errorf("expected score clamped at 0, got %.2f", status.HealthScore)
	}
}

func TestHandleFailure_MetaDrivesFallback(t *testing.T) {
	reg := fastRegistration("payments")
	reg.Fallbacks = []domain.FallbackConfig{
		{Type: domain.FallbackStaticResponse, Priority: 1, Enabled: true},
	}
	c := newTestCoordinator(t, reg)

	meta := map[string]any{
		"operation": "get_balance",
		"request":   map[string]any{"account": "a-1"},
	}
	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureMedium, "timeout", "", meta, nil, nil)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback, got %s", result.Status)
	}
	if result.Data["operation"] != "get_balance" {
		t.Errorf("expected operation from meta, got %v", result.Data["operation"])
	}
}

func TestHandleFailure_ResponseTimeGatesFallback(t *testing.T) {
	reg := fastRegistration("payments")
	reg.Fallbacks = []domain.FallbackConfig{
		{
			Type:                  domain.FallbackDegradedMode,
			Priority:              1,
			Enabled:               true,
			ResponseTimeThreshold: 100 * time.Millisecond,
			Capabilities:          []string{"read_only"},
		},
	}
	c := newTestCoordinator(t, reg)

	// No observed response time anywhere: the threshold keeps the config
	// ineligible and handling fails.
	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFailed {
		t.Fatalf("expected handling_failed without response time, got %s", result.Status)
	}

	meta := map[string]any{"response_time": 5 * time.Second}
	result, err = c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", meta, nil, nil)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback with slow response time, got %s (%s)", result.Status, result.Error)
	}
	if result.FallbackType != domain.FallbackDegradedMode {
		t.Errorf("expected degraded_mode, got %s", result.FallbackType)
	}
}

func TestHandleFailure_ResponseTimeFromMonitorHistory(t *testing.T) {
	reg := fastRegistration("payments")
	reg.Fallbacks = []domain.FallbackConfig{
		{
			Type:                  domain.FallbackDegradedMode,
			Priority:              1,
			Enabled:               true,
			ResponseTimeThreshold: time.Millisecond,
			Capabilities:          []string{"read_only"},
		},
	}
	c := newTestCoordinator(t, reg)

	if err := c.SetCustomCheck("payments", func(ctx context.Context) (any, error) {
		time.Sleep(5 * time.Millisecond)
		return true, nil
	}); err != nil {
		t.Fatalf("SetCustomCheck failed: %v", err)
	}
	if _, err := c.CheckServiceHealth(context.Background(), "payments", domain.CheckCustom, nil); err != nil {
		t.Fatalf("CheckServiceHealth failed: %v", err)
	}

	// No response time in meta: the most recent check supplies it.
	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", nil, nil, nil)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback from monitored response time, got %s (%s)", result.Status, result.Error)
	}
}

// =============================================================================
// Strategy Selection
// =============================================================================

func TestPickStrategy(t *testing.T) {
	c := newTestCoordinator(t)

	cases := []struct {
		name     string
		level    domain.FailureLevel
		failures int
		score    float64
		want     domain.RecoveryStrategy
	}{
		{"critical always immediate", domain.FailureCritical, 9, 0.1, domain.StrategyImmediate},
		{"many failures canary", domain.FailureHigh, 5, 0.9, domain.StrategyCanary},
		{"some failures gradual", domain.FailureHigh, 3, 0.9, domain.StrategyGradual},
		{"healthy immediate", domain.FailureHigh, 1, 0.8, domain.StrategyImmediate},
		{"middling gradual", domain.FailureHigh, 1, 0.5, domain.StrategyGradual},
		{"poor adaptive", domain.FailureHigh, 1, 0.3, domain.StrategyAdaptive},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := &serviceState{consecutiveFailures: tc.failures, healthScore: tc.score}
			if got := c.pickStrategy(tc.level, state); got != tc.want {
				t.Errorf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

// =============================================================================
// Concurrency
// =============================================================================

func TestHandleFailure_ConcurrentSameService(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	var wg sync.WaitGroup
	results := make([]HandleResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "", nil, passingProbe, passingProbe)
			if err != nil {
				t.Errorf("HandleFailure failed: %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	// Per-service serialization: every call completes with a defined status
	for i, r := range results {
		if r.Status != StatusRecovered && r.Status != StatusFallback && r.Status != StatusFailed {
			t.Errorf("call %d: undefined status %q", i, r.Status)
		}
	}

	stats := c.GetGlobalRecoveryStatus().Stats
	if stats.TotalFailures != 8 {
		t.Errorf("expected 8 failures recorded, got %d", stats.TotalFailures)
	}
}

func TestGetRecoveryStatus_NotBlockedByHandling(t *testing.T) {
	c := newTestCoordinator(t, fastRegistration("payments"))

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	stuckProbe := func(ctx context.Context, args map[string]any) (bool, error) {
		once.Do(func() { close(started) })
		<-release
		return true, nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "", nil, stuckProbe, stuckProbe)
	}()
	<-started

	// Status reads must not queue behind the in-flight recovery.
	got := make(chan RecoveryStatus, 1)
	go func() {
		status, err := c.GetRecoveryStatus("payments")
		if err != nil {
			t.Errorf("GetRecoveryStatus failed: %v", err)
			return
		}
		got <- status
	}()

	select {
	case status := <-got:
		if status.Active == nil {
			t.Error("expected an active attempt while handling is in flight")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("GetRecoveryStatus blocked behind an in-flight recovery")
	}

	close(release)
	<-done
}

// =============================================================================
// Retention
// =============================================================================

func TestPrune(t *testing.T) {
	eventRepo := memory.NewEventRepo()
	c := New(Options{
		EventRepo:      eventRepo,
		EventRetention: time.Millisecond,
	})
	if err := c.RegisterService(fastRegistration("payments")); err != nil {
		t.Fatalf("RegisterService failed: %v", err)
	}

	_, _ = c.HandleFailure(context.Background(), "payments", domain.FailureLow, "slow", "", nil, nil, nil)
	time.Sleep(5 * time.Millisecond)

	eventsRemoved, _ := c.Prune(context.Background())
	if eventsRemoved != 1 {
		t.Errorf("expected 1 event pruned, got %d", eventsRemoved)
	}
	if got := c.RecentFailureEvents("payments", 10); len(got) != 0 {
		t.Errorf("expected no events after prune, got %d", len(got))
	}
}

// =============================================================================
// Persistence Wiring
// =============================================================================

func TestHandleFailure_PersistsAuditTrail(t *testing.T) {
	eventRepo := memory.NewEventRepo()
	attemptRepo := memory.NewAttemptRepo()
	c := New(Options{EventRepo: eventRepo, AttemptRepo: attemptRepo})
	if err := c.RegisterService(fastRegistration("payments")); err != nil {
		t.Fatalf("RegisterService failed: %v", err)
	}

	result, err := c.HandleFailure(context.Background(), "payments", domain.FailureCritical, "crash", "", nil, passingProbe, passingProbe)
	if err != nil {
		t.Fatalf("HandleFailure failed: %v", err)
	}
	if result.Status != StatusRecovered {
		t.Fatalf("expected recovery, got %s", result.Status)
	}

	since := time.Now().Add(-time.Minute)
	events, err := eventRepo.ListRecent(context.Background(), "payments", since)
	if err != nil {
		t.Fatalf("ListRecent events failed: %v", err)
	}
	if len(events) != 1 || !events[0].Resolved {
		t.Errorf("expected one resolved persisted event, got %+v", events)
	}

	attempts, err := attemptRepo.ListRecent(context.Background(), "payments", since)
	if err != nil {
		t.Fatalf("ListRecent attempts failed: %v", err)
	}
	if len(attempts) != 1 || attempts[0].Status != domain.RecoverySuccessful {
		t.Errorf("expected one successful persisted attempt, got %+v", attempts)
	}
}

var _ storage.FailureEventRepository = memory.NewEventRepo()
var _ storage.RecoveryAttemptRepository = memory.NewAttemptRepo()
