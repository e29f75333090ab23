package recovery

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/sentinel/internal/core/domain"
)

// gradualRamp is the traffic fraction ladder for the gradual strategy.
var gradualRamp = []float64{0.10, 0.30, 0.50, 0.70, 1.00}

const errorMessageLimit = 50

// runImmediate brings full traffic back as soon as one health check and
// one operation test both pass. Attempt i waits timeout/maxAttempts
// beforehand, except the first.
func (o *Orchestrator) runImmediate(ctx context.Context, attempt *domain.RecoveryAttempt, health HealthProbe, op OperationProbe, args map[string]any) (bool, error) {
	wait := o.cfg.Timeout / time.Duration(o.cfg.MaxAttempts)

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			if err := sleep(ctx, wait); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++

		healthy, err := o.probe(ctx, health, args)
		if err != nil {
			o.recordError(attempt, err.Error())
			continue
		}
		if !healthy {
			o.recordError(attempt, "health check not passing")
			continue
		}

		ok, err := o.probe(ctx, op, args)
		if err != nil {
			o.recordError(attempt, err.Error())
			continue
		}
		if ok {
			return true, nil
		}
		o.recordError(attempt, "operation test failed")
	}
	return false, nil
}

// runGradual walks the ramp ladder. Each step samples max(1, 10*fraction)
// operations and advances only when the step's success rate clears the
// threshold; a failed step is retried until attempts are exhausted.
// Recovery percentage reflects the highest step passed so far.
func (o *Orchestrator) runGradual(ctx context.Context, attempt *domain.RecoveryAttempt, op OperationProbe, args map[string]any) (bool, error) {
	step := 0
	for attempt.AttemptsMade < o.cfg.MaxAttempts && step < len(gradualRamp) {
		if attempt.AttemptsMade > 0 {
			if err := sleep(ctx, o.cfg.GradualInterval); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++

		fraction := gradualRamp[step]
		samples := sampleCount(fraction, 10)
		rate, err := o.sampleOperations(ctx, attempt, op, args, samples)
		if err != nil {
			return false, err
		}

		if rate >= o.cfg.SuccessThreshold {
			attempt.RecoveryPercentage = fraction * 100
			step++
		} else {
			o.recordError(attempt, fmt.Sprintf(
				"gradual step %.0f%% below threshold: %.2f < %.2f",
				fraction*100, rate, o.cfg.SuccessThreshold))
		}
	}
	return step == len(gradualRamp), nil
}

// runCanary routes a fixed small traffic fraction and commits to full
// traffic once the canary sample clears the threshold.
func (o *Orchestrator) runCanary(ctx context.Context, attempt *domain.RecoveryAttempt, op OperationProbe, args map[string]any) (bool, error) {
	samples := sampleCount(o.cfg.CanaryTrafficPercent, 100)

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			if err := sleep(ctx, o.cfg.GradualInterval); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++
		attempt.RecoveryPercentage = o.cfg.CanaryTrafficPercent * 100

		rate, err := o.sampleOperations(ctx, attempt, op, args, samples)
		if err != nil {
			return false, err
		}
		if rate >= o.cfg.SuccessThreshold {
			return true, nil
		}
		o.recordError(attempt, fmt.Sprintf(
			"canary below threshold: %.2f < %.2f", rate, o.cfg.SuccessThreshold))
	}
	return false, nil
}

// runLoadBalanced tests every instance and succeeds when the aggregate
// operation success rate over the healthy instances clears the threshold.
func (o *Orchestrator) runLoadBalanced(ctx context.Context, attempt *domain.RecoveryAttempt, health HealthProbe, op OperationProbe, args map[string]any) (bool, error) {
	instances := o.instances(args)
	if len(instances) == 0 {
		o.recordError(attempt, "no instances supplied")
		return false, nil
	}

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			if err := sleep(ctx, o.cfg.GradualInterval); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++

		healthyCount := 0
		opSuccesses := 0
		for _, instance := range instances {
			if err := ctx.Err(); err != nil {
				return false, err
			}
			instArgs := withInstance(args, instance)

			healthy, err := o.probe(ctx, health, instArgs)
			if err != nil {
				o.recordError(attempt, fmt.Sprintf("%s: %v", instance, err))
				continue
			}
			if !healthy {
				continue
			}
			healthyCount++

			ok, err := o.probe(ctx, op, instArgs)
			if err != nil {
				o.recordError(attempt, fmt.Sprintf("%s: %v", instance, err))
				continue
			}
			if ok {
				opSuccesses++
			}
		}

		attempt.RecoveryPercentage = float64(healthyCount) / float64(len(instances)) * 100

		if healthyCount > 0 {
			rate := float64(opSuccesses) / float64(healthyCount)
			if rate >= o.cfg.SuccessThreshold {
				return true, nil
			}
			o.recordError(attempt, fmt.Sprintf(
				"load-balanced below threshold: %.2f < %.2f", rate, o.cfg.SuccessThreshold))
		} else {
			o.recordError(attempt, "no healthy instances")
		}
	}
	return false, nil
}

// runAdaptive ramps traffic as attempt/maxAttempts with exponential
// inter-attempt waits capped at the recovery timeout. Sample counts derive
// from the fraction and double while the running success rate is poor.
func (o *Orchestrator) runAdaptive(ctx context.Context, attempt *domain.RecoveryAttempt, op OperationProbe, args map[string]any) (bool, error) {
	totalSamples := 0
	totalSuccesses := 0

	for i := 0; i < o.cfg.MaxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(float64(o.cfg.GradualInterval) * math.Pow(o.cfg.BackoffFactor, float64(i)))
			if wait > o.cfg.Timeout {
				wait = o.cfg.Timeout
			}
			if err := sleep(ctx, wait); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++

		fraction := float64(i+1) / float64(o.cfg.MaxAttempts)
		samples := sampleCount(fraction, 10)
		if totalSamples > 0 && float64(totalSuccesses)/float64(totalSamples) < 0.5 {
			samples *= 2
		}

		rate, err := o.sampleOperations(ctx, attempt, op, args, samples)
		if err != nil {
			return false, err
		}
		attempt.RecoveryPercentage = fraction * 100

		totalSamples += samples
		totalSuccesses += int(rate * float64(samples))

		if rate >= o.cfg.SuccessThreshold {
			return true, nil
		}
		o.recordError(attempt, fmt.Sprintf(
			"adaptive step %.0f%% below threshold: %.2f < %.2f",
			fraction*100, rate, o.cfg.SuccessThreshold))
	}
	return false, nil
}

// runRolling verifies one instance per attempt, in order. Recovery
// succeeds only when every instance passed health and operation tests.
func (o *Orchestrator) runRolling(ctx context.Context, attempt *domain.RecoveryAttempt, health HealthProbe, op OperationProbe, args map[string]any) (bool, error) {
	instances := o.instances(args)
	if len(instances) == 0 {
		o.recordError(attempt, "no instances supplied")
		return false, nil
	}

	verified := 0
	for attempt.AttemptsMade < o.cfg.MaxAttempts && verified < len(instances) {
		if attempt.AttemptsMade > 0 {
			if err := sleep(ctx, o.cfg.GradualInterval); err != nil {
				return false, err
			}
		}
		attempt.AttemptsMade++

		instance := instances[verified]
		instArgs := withInstance(args, instance)

		healthy, err := o.probe(ctx, health, instArgs)
		if err != nil {
			o.recordError(attempt, fmt.Sprintf("%s: %v", instance, err))
			continue
		}
		if !healthy {
			o.recordError(attempt, fmt.Sprintf("%s: health check not passing", instance))
			continue
		}

		ok, err := o.probe(ctx, op, instArgs)
		if err != nil {
			o.recordError(attempt, fmt.Sprintf("%s: %v", instance, err))
			continue
		}
		if !ok {
			o.recordError(attempt, fmt.Sprintf("%s: operation test failed", instance))
			continue
		}

		verified++
		attempt.RecoveryPercentage = float64(verified) / float64(len(instances)) * 100
	}
	return verified == len(instances), nil
}

// sampleOperations runs the operation probe n times and returns the
// success rate. Probe errors count as failed samples.
func (o *Orchestrator) sampleOperations(ctx context.Context, attempt *domain.RecoveryAttempt, op OperationProbe, args map[string]any, n int) (float64, error) {
	successes := 0
	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		ok, err := o.probe(ctx, op, args)
		if err != nil {
			o.recordError(attempt, err.Error())
			continue
		}
		if ok {
			successes++
		}
	}
	return float64(successes) / float64(n), nil
}

// probe invokes a caller-supplied probe, converting panics into errors so
// they count as failed samples instead of unwinding the strategy.
func (o *Orchestrator) probe(ctx context.Context, fn func(context.Context, map[string]any) (bool, error), args map[string]any) (ok bool, err error) {
	if fn == nil {
		return false, fmt.Errorf("probe not supplied")
	}
	defer func() {
		if r := recover(); r != nil {
			ok = false
			err = fmt.Errorf("probe panic: %v", r)
		}
	}()
	return fn(ctx, args)
}

func (o *Orchestrator) recordError(attempt *domain.RecoveryAttempt, msg string) {
	if len(attempt.ErrorMessages) >= errorMessageLimit {
		return
	}
	attempt.ErrorMessages = append(attempt.ErrorMessages, msg)
}

// instances resolves the target instance set: call args override config.
func (o *Orchestrator) instances(args map[string]any) []string {
	if args != nil {
		switch v := args["instances"].(type) {
		case []string:
			if len(v) > 0 {
				return v
			}
		case []any:
			out := make([]string, 0, len(v))
			for _, item := range v {
				if s, ok := item.(string); ok {
					out = append(out, s)
				}
			}
			if len(out) > 0 {
				return out
			}
		}
	}
	return o.cfg.Instances
}

func withInstance(args map[string]any, instance string) map[string]any {
	out := make(map[string]any, len(args)+1)
	for k, v := range args {
		out[k] = v
	}
	out["instance"] = instance
	return out
}

func sampleCount(fraction float64, scale float64) int {
	n := int(fraction * scale)
	if n < 1 {
		return 1
	}
	return n
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
