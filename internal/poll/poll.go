// Package poll implements the bounded fixed-interval wait used by every
// handshake stage.
//
// A wait evaluates its predicate at most MaxAttempts times, sleeping one
// interval between evaluations. The signals being waited on are produced by
// other processes, so there is nothing in-process to block on; an optional
// wake channel only lets the predicate be re-checked sooner.
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// DefaultInterval is the pause between two evaluations of a predicate.
	DefaultInterval = 200 * time.Millisecond
	// DefaultTimeout bounds every stage of the handshake.
	DefaultTimeout = 30 * time.Second
)

// Policy is the (interval, timeout) pair shared by every bounded wait.
type Policy struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPolicy returns the 200ms / 30s policy.
func DefaultPolicy() Policy {
	return Policy{Interval: DefaultInterval, Timeout: DefaultTimeout}
}

// MaxAttempts is Timeout / Interval, rounded down.
func (p Policy) MaxAttempts() int {
	if p.Interval <= 0 || p.Timeout <= 0 {
		return 0
	}
	return int(p.Timeout / p.Interval)
}

// Validate checks that the policy allows at least one attempt.
func (p Policy) Validate() error {
	if p.Interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", p.Interval)
	}
	if p.Timeout < p.Interval {
		return fmt.Errorf("timeout %s is shorter than interval %s", p.Timeout, p.Interval)
	}
	return nil
}

func (p Policy) String() string {
	return fmt.Sprintf("interval=%s timeout=%s attempts=%d", p.Interval, p.Timeout, p.MaxAttempts())
}

// Poller runs bounded waits under a Policy.
type Poller struct {
	policy  Policy
	wake    <-chan struct{}
	onRetry func(attempt int)
}

// New creates a poller for the given policy.
func New(policy Policy) *Poller {
	return &Poller{policy: policy}
}

// Policy returns the poller's policy.
func (p *Poller) Policy() Policy {
	return p.policy
}

// WithWake returns a copy of the poller whose sleeps are interrupted by
// signals on ch. A nil channel disables wakeups.
func (p *Poller) WithWake(ch <-chan struct{}) *Poller {
	cp := *p
	cp.wake = ch
	return &cp
}

// WithRetryHook returns a copy of the poller that calls fn after every failed
// attempt, before sleeping.
func (p *Poller) WithRetryHook(fn func(attempt int)) *Poller {
	cp := *p
	cp.onRetry = fn
	return &cp
}

var (
	errNotReady  = errors.New("condition not met")
	errExhausted = errors.New("attempts exhausted")
)

// WaitFor evaluates pred until it returns true or the attempt budget is spent.
// It returns whether pred was satisfied and how many attempts were used.
// Every attempt, the last one included, is followed by one interval, so an
// unsatisfied wait lasts about Timeout. Cancelling ctx ends the wait
// unsatisfied.
func (p *Poller) WaitFor(ctx context.Context, pred func() bool) (bool, int) {
	maxAttempts := p.policy.MaxAttempts()
	if maxAttempts == 0 {
		return false, 0
	}

	timer := &wakeTimer{wake: p.wake, pred: pred}
	attempts := 0
	operation := func() error {
		if timer.satisfied.Swap(false) {
			// A wakeup satisfied the predicate mid-interval.
			return nil
		}
		if attempts == maxAttempts {
			return backoff.Permanent(errExhausted)
		}
		attempts++
		if pred() {
			return nil
		}
		return errNotReady
	}
	notify := func(error, time.Duration) {
		if p.onRetry != nil {
			p.onRetry(attempts)
		}
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(p.policy.Interval), uint64(maxAttempts)),
		ctx,
	)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err != nil && timer.satisfied.Load() {
		// Cancelled in the same instant a wakeup satisfied pred.
		return true, attempts
	}
	return err == nil, attempts
}

// wakeTimer is a backoff.Timer that fires early when a wake signal finds pred
// satisfied. Spurious wakes do not fire it, so the attempt budget keeps its
// time bound.
type wakeTimer struct {
	wake      <-chan struct{}
	pred      func() bool
	satisfied atomic.Bool

	c    chan time.Time
	stop chan struct{}
	done chan struct{}
}

func (t *wakeTimer) Start(d time.Duration) {
	t.Stop()
	t.c = make(chan time.Time, 1)
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(d, t.c, t.stop, t.done)
}

// Stop waits for the running interval to end, so pred is never evaluated
// after WaitFor returned.
func (t *wakeTimer) Stop() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
}

func (t *wakeTimer) C() <-chan time.Time {
	return t.c
}

func (t *wakeTimer) run(d time.Duration, c chan<- time.Time, stop, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(d)
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case now := <-timer.C:
			c <- now
			return
		case _, ok := <-t.wake:
			if !ok {
				// A closed channel wakes once, e.g. a listener's Done.
				t.wake = nil
			}
			if t.pred() {
				t.satisfied.Store(true)
				c <- time.Now()
				return
			}
		}
	}
}
