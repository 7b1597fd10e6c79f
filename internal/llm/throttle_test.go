package llm

import (
	"context"
	"testing"
	"time"
)

func TestThrottleRampSequence(t *testing.T) {
	th := NewThrottle(0)

	want := []time.Duration{
		time.Second,
		2500 * time.Millisecond,
		4750 * time.Millisecond,
	}
	for i, w := range want {
		th.Ramp(0)
		if got := th.EffectiveDelay(); got != w {
			t.Errorf("after ramp %d: delay = %s, want %s", i+1, got, w)
		}
	}

	th.Decay()
	if got, want := th.EffectiveDelay(), 3462500*time.Microsecond; got != want {
		t.Errorf("after decay: delay = %s, want %s", got, want)
	}
}

func TestThrottleRampHonorsRetryAfter(t *testing.T) {
	th := NewThrottle(0)
	th.Ramp(5 * time.Second)
	if got := th.EffectiveDelay(); got != 5*time.Second {
		t.Errorf("delay = %s, want 5s", got)
	}

	// A smaller hint never lowers the penalty.
	th.Ramp(time.Second)
	if got, want := th.EffectiveDelay(), 8500*time.Millisecond; got != want {
		t.Errorf("delay = %s, want %s", got, want)
	}
}

func TestThrottleDecayFloorsAtZero(t *testing.T) {
	th := NewThrottle(0)
	for i := 0; i < 10; i++ {
		th.Decay()
	}
	if got := th.EffectiveDelay(); got != 0 {
		t.Errorf("delay = %s, want 0", got)
	}
}

func TestThrottleBaseSurvivesDecay(t *testing.T) {
	th := NewThrottle(500 * time.Millisecond)
	th.Ramp(0)
	for i := 0; i < 20; i++ {
		th.Decay()
	}
	if got := th.EffectiveDelay(); got != 500*time.Millisecond {
		t.Errorf("delay = %s, want base 500ms", got)
	}
}

func TestThrottleWaitFirstCallImmediate(t *testing.T) {
	th := NewThrottle(time.Hour)
	start := time.Now()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("first Wait blocked for %s", elapsed)
	}
}

func TestThrottleWaitSpacesCalls(t *testing.T) {
	th := NewThrottle(50 * time.Millisecond)
	th.markCall()
	start := time.Now()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Errorf("Wait returned after %s, want ~50ms spacing", elapsed)
	}
}

func TestThrottleWaitCancelled(t *testing.T) {
	th := NewThrottle(time.Hour)
	th.markCall()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := th.Wait(ctx); err != context.Canceled {
		t.Errorf("Wait() error = %v, want context.Canceled", err)
	}
}

func TestThrottleStats(t *testing.T) {
	th := NewThrottle(10 * time.Millisecond)
	th.markCall()
	if err := th.Wait(context.Background()); err != nil {
		t.Fatalf("Wait() error = %v", err)
	}
	th.markCall()

	stats := th.Stats()
	if stats.TotalCalls != 2 {
		t.Errorf("TotalCalls = %d, want 2", stats.TotalCalls)
	}
	if stats.TotalThrottled <= 0 {
		t.Errorf("TotalThrottled = %s, want > 0", stats.TotalThrottled)
	}
	if stats.EffectiveDelay != 10*time.Millisecond {
		t.Errorf("EffectiveDelay = %s, want 10ms", stats.EffectiveDelay)
	}
}
