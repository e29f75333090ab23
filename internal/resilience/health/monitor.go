// Package health implements per-service health probing, status derivation
// and the registry that schedules checks and raises alerts.
package health

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
	"github.com/vietddude/sentinel/internal/resilience/metrics"
)

const (
	historyLimit  = 1000
	slaMinSamples = 5
	slaWindow     = 20
)

// CustomCheck is a caller-supplied predicate. It may return a bool
// (healthy/unhealthy) or a domain.Status, which is passed through.
// Errors map to the error status; they never propagate to the caller.
type CustomCheck func(ctx context.Context) (any, error)

// Monitor runs health checks for a single service and derives its status
// from rolling consecutive-failure/-success counters.
type Monitor struct {
	service string
	cfg     domain.HealthCheckConfig
	client  *http.Client
	bodyRe  *regexp.Regexp

	mu      sync.RWMutex
	custom  CustomCheck
	history []domain.HealthCheckResult
	state   domain.ServiceHealthState
}

// NewMonitor creates a monitor for the named service. Invalid body
// patterns are a configuration error.
func NewMonitor(service string, cfg domain.HealthCheckConfig) (*Monitor, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 2
	}
	if cfg.ResponseTimeThreshold <= 0 {
		cfg.ResponseTimeThreshold = time.Second
	}
	if cfg.AvailabilityThreshold <= 0 {
		cfg.AvailabilityThreshold = 0.95
	}

	var bodyRe *regexp.Regexp
	if cfg.BodyPattern != "" {
		re, err := regexp.Compile(cfg.BodyPattern)
		if err != nil {
			return nil, fmt.Errorf("invalid body pattern for %s: %w", service, err)
		}
		bodyRe = re
	}

	return &Monitor{
		service: service,
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		bodyRe:  bodyRe,
		history: make([]domain.HealthCheckResult, 0, 64),
	}, nil
}

// SetCustomCheck installs the predicate used by the custom check type.
func (m *Monitor) SetCustomCheck(fn CustomCheck) {
	m.mu.Lock()
	m.custom = fn
	m.mu.Unlock()
}

// Config returns the monitor's check configuration.
func (m *Monitor) Config() domain.HealthCheckConfig {
	return m.cfg
}

// Check runs one probe of the given type and records the result. Network
// and application failures are represented as timeout/error statuses, never
// as returned errors.
func (m *Monitor) Check(ctx context.Context, checkType domain.CheckType, params map[string]any) domain.HealthCheckResult {
	start := time.Now()

	var result domain.HealthCheckResult
	switch checkType {
	case domain.CheckHTTP:
		result = m.checkHTTP(ctx, params)
	case domain.CheckTCP:
		result = m.checkTCP(ctx, params)
	case domain.CheckPing:
		result = m.checkPing(ctx, params)
	case domain.CheckCustom:
		result = m.checkCustom(ctx, params)
	case domain.CheckSLA:
		result = m.checkSLA()
	default:
		result = domain.HealthCheckResult{
			Status: domain.StatusError,
			Error:  fmt.Sprintf("unknown check type: %s", checkType),
		}
	}

	result.Service = m.service
	result.CheckType = checkType
	result.Timestamp = time.Now()
	if result.ResponseTime == 0 {
		result.ResponseTime = time.Since(start)
	}

	m.record(result)

	metrics.ChecksTotal.WithLabelValues(m.service, string(checkType), string(result.Status)).Inc()
	metrics.CheckLatency.WithLabelValues(m.service, string(checkType)).Observe(result.ResponseTime.Seconds())

	return result
}

// CurrentStatus derives the service status from the run counters. Failures
// dominate: a failure streak is reported even when the success threshold
// was reached earlier.
func (m *Monitor) CurrentStatus() domain.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	switch {
	case m.state.ConsecutiveFailures >= m.cfg.FailureThreshold:
		return domain.StatusUnhealthy
	case m.state.ConsecutiveFailures > 0:
		return domain.StatusDegraded
	case m.state.ConsecutiveSuccesses >= m.cfg.SuccessThreshold:
		return domain.StatusHealthy
	default:
		return domain.StatusUnknown
	}
}

// State returns a copy of the rolling counters.
func (m *Monitor) State() domain.ServiceHealthState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// History returns results newer than since, oldest first. A zero time
// returns the full retained history.
func (m *Monitor) History(since time.Time) []domain.HealthCheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.HealthCheckResult, 0, len(m.history))
	for _, r := range m.history {
		if since.IsZero() || r.Timestamp.After(since) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Monitor) record(result domain.HealthCheckResult) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.history = append(m.history, result)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}

	m.state.TotalChecks++
	m.state.LastCheck = result.Timestamp

	switch {
	case result.Status == domain.StatusHealthy:
		m.state.ConsecutiveSuccesses++
		m.state.ConsecutiveFailures = 0
		m.state.TotalSuccesses++
		m.state.LastSuccess = result.Timestamp
	case result.Status.IsFailure():
		m.state.ConsecutiveFailures++
		m.state.ConsecutiveSuccesses = 0
		m.state.TotalFailures++
		m.state.LastFailure = result.Timestamp
	}
	// unknown results touch totals only
}

func (m *Monitor) checkHTTP(ctx context.Context, params map[string]any) domain.HealthCheckResult {
	url := stringParam(params, "url", m.cfg.URL)
	if url == "" {
		return domain.HealthCheckResult{Status: domain.StatusError, Error: "no url configured"}
	}

	timeout := durationParam(params, "timeout", m.cfg.Timeout)
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return domain.HealthCheckResult{Status: domain.StatusError, Error: err.Error()}
	}

	start := time.Now()
	resp, err := m.client.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		return domain.HealthCheckResult{Status: status, ResponseTime: elapsed, Error: err.Error()}
	}
	defer resp.Body.Close()

	result := domain.HealthCheckResult{
		ResponseTime: elapsed,
		StatusCode:   resp.StatusCode,
	}

	if !statusAllowed(resp.StatusCode, m.cfg.ExpectedStatusCodes) {
		result.Status = domain.StatusUnhealthy
		result.Error = fmt.Sprintf("unexpected status code %d", resp.StatusCode)
		return result
	}

	if m.bodyRe != nil {
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil || !m.bodyRe.Match(body) {
			result.Status = domain.StatusDegraded
			result.Error = "response body pattern not matched"
			return result
		}
	}

	result.Status = domain.StatusHealthy
	return result
}

func (m *Monitor) checkTCP(ctx context.Context, params map[string]any) domain.HealthCheckResult {
	host := stringParam(params, "host", m.cfg.Host)
	port := intParam(params, "port", m.cfg.Port)
	if host == "" || port == 0 {
		return domain.HealthCheckResult{Status: domain.StatusError, Error: "no host/port configured"}
	}

	timeout := durationParam(params, "timeout", m.cfg.Timeout)
	dialer := net.Dialer{Timeout: timeout}

	start := time.Now()
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	elapsed := time.Since(start)

	if err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		return domain.HealthCheckResult{Status: status, ResponseTime: elapsed, Error: err.Error()}
	}
	_ = conn.Close()

	return domain.HealthCheckResult{Status: domain.StatusHealthy, ResponseTime: elapsed}
}

// checkPing verifies plain reachability of the host: name resolution plus
// a TCP dial (unprivileged, no raw ICMP).
func (m *Monitor) checkPing(ctx context.Context, params map[string]any) domain.HealthCheckResult {
	host := stringParam(params, "host", m.cfg.Host)
	if host == "" {
		return domain.HealthCheckResult{Status: domain.StatusError, Error: "no host configured"}
	}

	timeout := durationParam(params, "timeout", m.cfg.Timeout)
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if _, err := net.DefaultResolver.LookupHost(pingCtx, host); err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		return domain.HealthCheckResult{Status: status, ResponseTime: time.Since(start), Error: err.Error()}
	}

	port := intParam(params, "port", m.cfg.Port)
	if port == 0 {
		port = 80
	}
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(pingCtx, "tcp", net.JoinHostPort(host, fmt.Sprint(port)))
	elapsed := time.Since(start)
	if err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		return domain.HealthCheckResult{Status: status, ResponseTime: elapsed, Error: err.Error()}
	}
	_ = conn.Close()

	return domain.HealthCheckResult{Status: domain.StatusHealthy, ResponseTime: elapsed}
}

func (m *Monitor) checkCustom(ctx context.Context, params map[string]any) domain.HealthCheckResult {
	fn := m.customCheck(params)
	if fn == nil {
		return domain.HealthCheckResult{Status: domain.StatusError, Error: "no custom check configured"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	start := time.Now()
	value, err := fn(checkCtx)
	elapsed := time.Since(start)

	if err != nil {
		status := domain.StatusError
		if isTimeout(err) {
			status = domain.StatusTimeout
		}
		return domain.HealthCheckResult{Status: status, ResponseTime: elapsed, Error: err.Error()}
	}

	switch v := value.(type) {
	case bool:
		if v {
			return domain.HealthCheckResult{Status: domain.StatusHealthy, ResponseTime: elapsed}
		}
		return domain.HealthCheckResult{Status: domain.StatusUnhealthy, ResponseTime: elapsed}
	case domain.Status:
		return domain.HealthCheckResult{Status: v, ResponseTime: elapsed}
	case domain.HealthCheckResult:
		v.ResponseTime = elapsed
		return v
	default:
		return domain.HealthCheckResult{
			Status: domain.StatusError,
			Error:  fmt.Sprintf("custom check returned unsupported type %T", value),
		}
	}
}

func (m *Monitor) customCheck(params map[string]any) CustomCheck {
	if params != nil {
		if fn, ok := params["predicate"].(CustomCheck); ok {
			return fn
		}
		if fn, ok := params["predicate"].(func(ctx context.Context) (any, error)); ok {
			return fn
		}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.custom
}

// checkSLA evaluates availability and mean latency over the recent sample
// window instead of probing. Fewer than slaMinSamples samples yield unknown.
func (m *Monitor) checkSLA() domain.HealthCheckResult {
	m.mu.RLock()
	samples := m.history
	if len(samples) > slaWindow {
		samples = samples[len(samples)-slaWindow:]
	}
	window := make([]domain.HealthCheckResult, len(samples))
	copy(window, samples)
	m.mu.RUnlock()

	if len(window) < slaMinSamples {
		return domain.HealthCheckResult{Status: domain.StatusUnknown, Error: "insufficient samples"}
	}

	healthy := 0
	var totalRT time.Duration
	for _, r := range window {
		if r.Status == domain.StatusHealthy {
			healthy++
		}
		totalRT += r.ResponseTime
	}

	availability := float64(healthy) / float64(len(window))
	meanRT := totalRT / time.Duration(len(window))

	if availability >= m.cfg.AvailabilityThreshold && meanRT <= m.cfg.ResponseTimeThreshold {
		return domain.HealthCheckResult{Status: domain.StatusHealthy}
	}
	return domain.HealthCheckResult{
		Status: domain.StatusDegraded,
		Error: fmt.Sprintf("sla violated: availability=%.3f mean_rt=%s",
			availability, meanRT),
	}
}

func statusAllowed(code int, allowed []int) bool {
	if len(allowed) == 0 {
		return code >= 200 && code < 300
	}
	for _, c := range allowed {
		if c == code {
			return true
		}
	}
	return false
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func stringParam(params map[string]any, key, fallback string) string {
	if params != nil {
		if v, ok := params[key].(string); ok && v != "" {
			return v
		}
	}
	return fallback
}

func intParam(params map[string]any, key string, fallback int) int {
	if params != nil {
		switch v := params[key].(type) {
		case int:
			return v
		case float64:
			return int(v)
		}
	}
	return fallback
}

func durationParam(params map[string]any, key string, fallback time.Duration) time.Duration {
	if params != nil {
		if v, ok := params[key].(time.Duration); ok && v > 0 {
			return v
		}
	}
	return fallback
}
