package health

import (
	"sort"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// Report summarizes a service's health over an observation window.
type Report struct {
	Service              string        `json:"service"`
	Status               domain.Status `json:"status"`
	Samples              int           `json:"samples"`
	Availability         float64       `json:"availability"` // percent
	AvgResponseTime      time.Duration `json:"avg_response_time"`
	MedianResponseTime   time.Duration `json:"median_response_time"`
	P95ResponseTime      time.Duration `json:"p95_response_time"`
	MTTR                 time.Duration `json:"mttr"`
	MTBF                 time.Duration `json:"mtbf"`
	ConsecutiveFailures  int           `json:"consecutive_failures"`
	ConsecutiveSuccesses int           `json:"consecutive_successes"`
	PerformanceScore     float64       `json:"performance_score"` // 0-100
	WindowHours          int           `json:"window_hours"`
}

// ServiceReport builds the analytics report for one service over the last
// hoursBack hours.
func (r *Registry) ServiceReport(service string, hoursBack int) (Report, error) {
	monitor, err := r.Monitor(service)
	if err != nil {
		return Report{}, err
	}
	return buildReport(monitor, hoursBack), nil
}

// AllReports builds reports for every registered service.
func (r *Registry) AllReports(hoursBack int) map[string]Report {
	out := make(map[string]Report)
	for _, name := range r.Services() {
		monitor, err := r.Monitor(name)
		if err != nil {
			continue
		}
		out[name] = buildReport(monitor, hoursBack)
	}
	return out
}

func buildReport(monitor *Monitor, hoursBack int) Report {
	if hoursBack <= 0 {
		hoursBack = 24
	}
	since := time.Now().Add(-time.Duration(hoursBack) * time.Hour)
	results := monitor.History(since)
	state := monitor.State()

	report := Report{
		Service:              monitor.service,
		Status:               monitor.CurrentStatus(),
		Samples:              len(results),
		ConsecutiveFailures:  state.ConsecutiveFailures,
		ConsecutiveSuccesses: state.ConsecutiveSuccesses,
		WindowHours:          hoursBack,
	}
	if len(results) == 0 {
		return report
	}

	healthy := 0
	errored := 0
	times := make([]time.Duration, 0, len(results))
	for _, res := range results {
		if res.Status == domain.StatusHealthy {
			healthy++
		}
		if res.Status == domain.StatusError || res.Status == domain.StatusTimeout {
			errored++
		}
		times = append(times, res.ResponseTime)
	}

	availability := float64(healthy) / float64(len(results))
	errorRate := float64(errored) / float64(len(results))

	report.Availability = availability * 100
	report.AvgResponseTime = meanDuration(times)
	report.MedianResponseTime = percentileDuration(times, 0.50)
	report.P95ResponseTime = percentileDuration(times, 0.95)
	report.MTTR, report.MTBF = downtimeStats(results)
	report.PerformanceScore = performanceScore(availability, report.AvgResponseTime, errorRate)

	return report
}

// performanceScore blends availability (40%), inverse-normalized response
// time (35%, 1000ms floor) and inverse-normalized error rate (25%, 10%
// floor) into a 0-100 score.
func performanceScore(availability float64, avgRT time.Duration, errorRate float64) float64 {
	rtScore := 1 - float64(avgRT.Milliseconds())/1000
	if rtScore < 0 {
		rtScore = 0
	}
	errScore := 1 - errorRate/0.10
	if errScore < 0 {
		errScore = 0
	}
	score := (0.40*availability + 0.35*rtScore + 0.25*errScore) * 100
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// downtimeStats computes MTTR (mean duration of unhealthy runs) and MTBF
// (mean time between the starts of unhealthy runs) from a chronological
// result slice.
func downtimeStats(results []domain.HealthCheckResult) (mttr, mtbf time.Duration) {
	type run struct {
		start time.Time
		end   time.Time // zero if still down at window end
	}

	var runs []run
	down := false
	for _, res := range results {
		failing := res.Status.IsFailure()
		switch {
		case failing && !down:
			runs = append(runs, run{start: res.Timestamp})
			down = true
		case !failing && down && res.Status == domain.StatusHealthy:
			runs[len(runs)-1].end = res.Timestamp
			down = false
		}
	}

	var totalDown time.Duration
	completed := 0
	for _, r := range runs {
		if !r.end.IsZero() {
			totalDown += r.end.Sub(r.start)
			completed++
		}
	}
	if completed > 0 {
		mttr = totalDown / time.Duration(completed)
	}

	if len(runs) >= 2 {
		var totalBetween time.Duration
		for i := 1; i < len(runs); i++ {
			totalBetween += runs[i].start.Sub(runs[i-1].start)
		}
		mtbf = totalBetween / time.Duration(len(runs)-1)
	}

	return mttr, mtbf
}

func meanDuration(times []time.Duration) time.Duration {
	if len(times) == 0 {
		return 0
	}
	var total time.Duration
	for _, t := range times {
		total += t
	}
	return total / time.Duration(len(times))
}

func percentileDuration(times []time.Duration, p float64) time.Duration {
	if len(times) == 0 {
		return 0
	}
	sorted := make([]time.Duration, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	idx := int(p * float64(len(sorted)-1))
	return sorted[idx]
}
