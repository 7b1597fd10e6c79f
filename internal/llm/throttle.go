package llm

import (
	"context"
	"sync"
	"time"
)

const (
	// rampGrowth and rampFloor set the penalty after a 429:
	// extra = extra*rampGrowth + rampFloor, raised to Retry-After if larger.
	rampGrowth = 1.5
	rampFloor  = time.Second

	// decayFactor and decayStep shrink the penalty on success:
	// extra = extra*decayFactor - decayStep, floored at zero. Decay is
	// deliberately slower than ramp so sustained load settles under the
	// provider's limit instead of oscillating across it.
	decayFactor = 0.75
	decayStep   = 100 * time.Millisecond
)

// Throttle spaces outbound API calls. One Throttle is shared by every
// dispatch in a run; concurrent checks contend on it so the run as a whole
// respects the provider's rate limit.
type Throttle struct {
	mu             sync.Mutex
	base           time.Duration
	extra          time.Duration
	lastCall       time.Time
	totalCalls     int
	totalThrottled time.Duration
}

// ThrottleStats is a point-in-time snapshot for run reporting.
type ThrottleStats struct {
	TotalCalls     int
	TotalThrottled time.Duration
	EffectiveDelay time.Duration
}

// NewThrottle returns a throttle enforcing at least base between calls.
func NewThrottle(base time.Duration) *Throttle {
	if base < 0 {
		base = 0
	}
	return &Throttle{base: base}
}

// Wait blocks until the effective delay since the previous call has
// elapsed, or until ctx is done. The first call never waits.
func (t *Throttle) Wait(ctx context.Context) error {
	t.mu.Lock()
	var remaining time.Duration
	if !t.lastCall.IsZero() {
		remaining = t.base + t.extra - time.Since(t.lastCall)
	}
	if remaining > 0 {
		t.totalThrottled += remaining
	}
	t.mu.Unlock()

	if remaining <= 0 {
		return nil
	}
	timer := time.NewTimer(remaining)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// markCall records that a request is being sent now.
func (t *Throttle) markCall() {
	t.mu.Lock()
	t.lastCall = time.Now()
	t.totalCalls++
	t.mu.Unlock()
}

// Ramp increases the adaptive penalty after a rate-limit response.
// retryAfter is the provider's hint (zero when absent); the new penalty
// is never below it.
func (t *Throttle) Ramp(retryAfter time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := time.Duration(float64(t.extra)*rampGrowth) + rampFloor
	if retryAfter > next {
		next = retryAfter
	}
	t.extra = next
}

// Decay shrinks the adaptive penalty after a successful response.
func (t *Throttle) Decay() {
	t.mu.Lock()
	defer t.mu.Unlock()
	next := time.Duration(float64(t.extra)*decayFactor) - decayStep
	if next < 0 {
		next = 0
	}
	t.extra = next
}

// EffectiveDelay reports the current per-call spacing.
func (t *Throttle) EffectiveDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.base + t.extra
}

// Stats returns a snapshot of call and wait counters.
func (t *Throttle) Stats() ThrottleStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ThrottleStats{
		TotalCalls:     t.totalCalls,
		TotalThrottled: t.totalThrottled,
		EffectiveDelay: t.base + t.extra,
	}
}
