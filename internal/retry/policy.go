// Package retry decides whether a failed queue entry should be rescheduled
// and how long it should wait before the next attempt.
package retry

import (
	"time"

	"gantry/internal/config"
	"gantry/internal/services"
)

// Policy computes exponential backoff delays for retryable failures.
type Policy struct {
	Base time.Duration
	Cap  time.Duration
}

// Decision is the outcome of evaluating a failure against the policy.
type Decision struct {
	Requeue bool
	Delay   time.Duration
}

// FromConfig builds a policy from the workflow retry settings.
func FromConfig(cfg *config.Config) Policy {
	return Policy{
		Base: time.Duration(cfg.Workflow.RetryBackoffSeconds) * time.Second,
		Cap:  time.Duration(cfg.Workflow.RetryBackoffCapSeconds) * time.Second,
	}
}

// Decide evaluates a stage failure. attempts is the number of attempts already
// consumed including the one that just failed. Validation, configuration, and
// duplicate errors are never retried; everything else retries with doubling
// delay until the attempt budget runs out.
func (p Policy) Decide(attempts, maxAttempts int, err error) Decision {
	if err == nil {
		return Decision{}
	}
	if services.IsPermanent(err) {
		return Decision{}
	}
	if maxAttempts > 0 && attempts >= maxAttempts {
		return Decision{}
	}
	return Decision{Requeue: true, Delay: p.delay(attempts)}
}

func (p Policy) delay(attempts int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = 30 * time.Second
	}
	cap := p.Cap
	if cap <= 0 {
		cap = 15 * time.Minute
	}

	delay := base
	// attempts is at least 1 when a failure is being evaluated.
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
