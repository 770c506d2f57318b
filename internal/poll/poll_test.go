package poll

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestPolicy_MaxAttempts(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		timeout  time.Duration
		want     int
	}{
		{"default", DefaultInterval, DefaultTimeout, 150},
		{"exact", 10 * time.Millisecond, 100 * time.Millisecond, 10},
		{"fraction dropped", 30 * time.Millisecond, 100 * time.Millisecond, 3},
		{"timeout below interval", 100 * time.Millisecond, 50 * time.Millisecond, 0},
		{"zero interval", 0, time.Second, 0},
		{"negative timeout", time.Millisecond, -time.Second, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Policy{Interval: tt.interval, Timeout: tt.timeout}
			if got := p.MaxAttempts(); got != tt.want {
				t.Errorf("MaxAttempts() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPolicy_Validate(t *testing.T) {
	if err := DefaultPolicy().Validate(); err != nil {
		t.Errorf("default policy invalid: %v", err)
	}
	if err := (Policy{Interval: 0, Timeout: time.Second}).Validate(); err == nil {
		t.Error("expected error for zero interval")
	}
	if err := (Policy{Interval: time.Second, Timeout: time.Millisecond}).Validate(); err == nil {
		t.Error("expected error for timeout shorter than interval")
	}
}

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	p := New(Policy{Interval: time.Second, Timeout: 10 * time.Second})

	start := time.Now()
	ok, attempts := p.WaitFor(context.Background(), func() bool { return true })
	if !ok || attempts != 1 {
		t.Fatalf("WaitFor() = (%v, %d), want (true, 1)", ok, attempts)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("immediate success took %s", elapsed)
	}
}

func TestWaitFor_SucceedsOnLaterAttempt(t *testing.T) {
	p := New(Policy{Interval: 5 * time.Millisecond, Timeout: time.Second})

	var calls atomic.Int32
	ok, attempts := p.WaitFor(context.Background(), func() bool {
		return calls.Add(1) >= 3
	})
	if !ok {
		t.Fatal("expected predicate to be satisfied")
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWaitFor_ExhaustsWithinBounds(t *testing.T) {
	policies := []Policy{
		{Interval: 20 * time.Millisecond, Timeout: 200 * time.Millisecond},
		{Interval: 30 * time.Millisecond, Timeout: 100 * time.Millisecond},
		{Interval: 50 * time.Millisecond, Timeout: 250 * time.Millisecond},
	}
	for _, policy := range policies {
		t.Run(policy.String(), func(t *testing.T) {
			p := New(policy)
			start := time.Now()
			ok, attempts := p.WaitFor(context.Background(), func() bool { return false })
			elapsed := time.Since(start)

			if ok {
				t.Fatal("never-true predicate reported satisfied")
			}
			if attempts != policy.MaxAttempts() {
				t.Errorf("attempts = %d, want %d", attempts, policy.MaxAttempts())
			}
			lower := policy.Timeout - policy.Interval
			upper := policy.Timeout + policy.Interval
			if elapsed < lower || elapsed > upper {
				t.Errorf("elapsed %s outside [%s, %s]", elapsed, lower, upper)
			}
		})
	}
}

func TestWaitFor_ZeroAttempts(t *testing.T) {
	p := New(Policy{Interval: time.Second, Timeout: time.Millisecond})
	called := false
	ok, attempts := p.WaitFor(context.Background(), func() bool {
		called = true
		return true
	})
	if ok || attempts != 0 || called {
		t.Errorf("WaitFor() = (%v, %d), called=%v; want no evaluation", ok, attempts, called)
	}
}

func TestWaitFor_ContextCancelled(t *testing.T) {
	p := New(Policy{Interval: 50 * time.Millisecond, Timeout: 10 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	start := time.Now()
	ok, _ := p.WaitFor(ctx, func() bool { return false })
	if ok {
		t.Fatal("expected unsatisfied wait after cancellation")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("cancellation not honoured, waited %s", elapsed)
	}
}

func TestWaitFor_WakeShortensSleep(t *testing.T) {
	p := New(Policy{Interval: 2 * time.Second, Timeout: 10 * time.Second})

	var ready atomic.Bool
	wake := make(chan struct{}, 1)
	go func() {
		time.Sleep(30 * time.Millisecond)
		ready.Store(true)
		wake <- struct{}{}
	}()

	start := time.Now()
	ok, attempts := p.WithWake(wake).WaitFor(context.Background(), ready.Load)
	if !ok {
		t.Fatal("expected wake to satisfy the predicate")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("wake did not shorten the sleep, waited %s", elapsed)
	}
}

func TestWaitFor_SpuriousWakeKeepsBound(t *testing.T) {
	policy := Policy{Interval: 20 * time.Millisecond, Timeout: 100 * time.Millisecond}
	wake := make(chan struct{})
	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case wake <- struct{}{}:
			case <-done:
				return
			}
		}
	}()

	start := time.Now()
	ok, attempts := New(policy).WithWake(wake).WaitFor(context.Background(), func() bool { return false })
	elapsed := time.Since(start)
	if ok {
		t.Fatal("never-true predicate reported satisfied")
	}
	if attempts != policy.MaxAttempts() {
		t.Errorf("attempts = %d, want %d", attempts, policy.MaxAttempts())
	}
	if elapsed > policy.Timeout+policy.Interval {
		t.Errorf("spurious wakes extended the wait to %s", elapsed)
	}
}

func TestWaitFor_RetryHook(t *testing.T) {
	var retries []int
	p := New(Policy{Interval: time.Millisecond, Timeout: 4 * time.Millisecond}).
		WithRetryHook(func(attempt int) { retries = append(retries, attempt) })

	p.WaitFor(context.Background(), func() bool { return false })
	if len(retries) != 4 {
		t.Fatalf("retry hook called %d times, want 4", len(retries))
	}
	for i, a := range retries {
		if a != i+1 {
			t.Errorf("retries[%d] = %d, want %d", i, a, i+1)
		}
	}
}

func TestWaitFor_ClosedWakeRechecks(t *testing.T) {
	policy := Policy{Interval: time.Second, Timeout: 5 * time.Second}
	var stopped atomic.Bool
	done := make(chan struct{})
	go func() {
		time.Sleep(20 * time.Millisecond)
		stopped.Store(true)
		close(done)
	}()

	start := time.Now()
	ok, _ := New(policy).WithWake(done).WaitFor(context.Background(), stopped.Load)
	if !ok {
		t.Fatal("closing the wake channel should re-check the predicate")
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("closed wake channel was not noticed, waited %s", elapsed)
	}
}

func TestWaitFor_NoEvaluationAfterReturn(t *testing.T) {
	p := New(Policy{Interval: 10 * time.Millisecond, Timeout: 10 * time.Second})
	wake := make(chan struct{}, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var returned atomic.Bool
	var late atomic.Int32
	stopWaking := make(chan struct{})
	defer close(stopWaking)
	go func() {
		for {
			select {
			case wake <- struct{}{}:
			case <-stopWaking:
				return
			}
		}
	}()

	ok, attempts := p.WithWake(wake).WaitFor(ctx, func() bool {
		if returned.Load() {
			late.Add(1)
		}
		return false
	})
	returned.Store(true)
	time.Sleep(30 * time.Millisecond)

	if ok {
		t.Fatal("expected unsatisfied wait")
	}
	if attempts == 0 {
		t.Error("expected at least one attempt")
	}
	if n := late.Load(); n != 0 {
		t.Errorf("predicate evaluated %d times after WaitFor returned", n)
	}
}
