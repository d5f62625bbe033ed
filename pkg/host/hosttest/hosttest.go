// Package hosttest provides a deterministic host.Env for component tests.
//
// Nothing runs on its own: timers fire when the test advances simulated time,
// idle callbacks run when the test declares the host idle, and dispatched work
// runs when the test flushes the queue.
//
//	env := hosttest.New()
//	inst := component.Mount(env, myComponent)
//	env.Advance(600 * time.Millisecond)
//
// Every scheduled callback is recorded so tests can assert on the delay or
// idle options a component asked for.
package hosttest

import (
	"sync"
	"time"

	"github.com/vango-dev/posthoginit/pkg/host"
)

// Kind distinguishes recorded schedules.
type Kind int

const (
	KindTimeout Kind = iota + 1
	KindIdle
)

// Scheduled records one SetTimeout or RequestIdleCallback call.
type Scheduled struct {
	Kind    Kind
	Delay   time.Duration    // SetTimeout delay
	Options host.IdleOptions // RequestIdleCallback options
	At      time.Time        // simulated time of the call

	env      *Env
	timeout  func()
	idle     func(host.IdleDeadline)
	canceled bool
	fired    bool
}

// Fired reports whether the callback has run.
func (s *Scheduled) Fired() bool {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()
	return s.fired
}

// Canceled reports whether the handle was canceled before firing.
func (s *Scheduled) Canceled() bool {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()
	return s.canceled
}

// Cancel implements host.Handle.
func (s *Scheduled) Cancel() bool {
	s.env.mu.Lock()
	defer s.env.mu.Unlock()
	if s.fired || s.canceled {
		return false
	}
	s.canceled = true
	return true
}

// due returns when the callback fires on its own, if ever.
func (s *Scheduled) due() (time.Time, bool) {
	switch s.Kind {
	case KindTimeout:
		return s.At.Add(s.Delay), true
	case KindIdle:
		if s.Options.Timeout > 0 {
			return s.At.Add(s.Options.Timeout), true
		}
	}
	return time.Time{}, false
}

// Env is a manual host.Env that also implements host.IdleScheduler.
// Wrap it with host.WithoutIdle to test the timer fallback.
type Env struct {
	mu        sync.Mutex
	now       time.Time
	scheduled []*Scheduled
	queue     []func()
}

var _ host.IdleScheduler = (*Env)(nil)

// New returns an Env whose clock starts at the Unix epoch.
func New() *Env {
	return &Env{now: time.Unix(0, 0)}
}

// Now implements host.Env.
func (e *Env) Now() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.now
}

// Dispatch implements host.Env. Work runs on the next Flush.
func (e *Env) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	e.queue = append(e.queue, fn)
	e.mu.Unlock()
}

// SetTimeout implements host.Env.
func (e *Env) SetTimeout(d time.Duration, fn func()) host.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &Scheduled{Kind: KindTimeout, Delay: d, At: e.now, env: e, timeout: fn}
	e.scheduled = append(e.scheduled, s)
	return s
}

// RequestIdleCallback implements host.IdleScheduler.
func (e *Env) RequestIdleCallback(fn func(host.IdleDeadline), opts host.IdleOptions) host.Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := &Scheduled{Kind: KindIdle, Options: opts, At: e.now, env: e, idle: fn}
	e.scheduled = append(e.scheduled, s)
	return s
}

// Scheduled returns every schedule recorded so far, in call order.
func (e *Env) Scheduled() []*Scheduled {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*Scheduled(nil), e.scheduled...)
}

// Pending returns the number of schedules that have neither fired nor been canceled.
func (e *Env) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, s := range e.scheduled {
		if !s.fired && !s.canceled {
			n++
		}
	}
	return n
}

// Flush runs queued dispatches, including work queued while flushing.
func (e *Env) Flush() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		fn := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		fn()
	}
}

// Advance moves simulated time forward by d, firing due timers and idle
// timeouts in due order, then flushes the queue. Timers scheduled by a firing
// callback also fire if they fall due before the new time.
func (e *Env) Advance(d time.Duration) {
	e.Flush()

	e.mu.Lock()
	target := e.now.Add(d)
	e.mu.Unlock()

	for {
		e.mu.Lock()
		s, at := e.nextDue(target)
		if s == nil {
			e.now = target
			e.mu.Unlock()
			return
		}
		s.fired = true
		e.now = at
		e.mu.Unlock()

		if s.Kind == KindTimeout {
			s.timeout()
		} else {
			s.idle(host.IdleDeadline{DidTimeout: true})
		}
		e.Flush()
	}
}

// nextDue returns the earliest pending schedule due no later than target.
// Ties go to the schedule recorded first. Callers hold e.mu.
func (e *Env) nextDue(target time.Time) (*Scheduled, time.Time) {
	var (
		next   *Scheduled
		nextAt time.Time
	)
	for _, s := range e.scheduled {
		if s.fired || s.canceled {
			continue
		}
		at, ok := s.due()
		if !ok || at.After(target) {
			continue
		}
		if next == nil || at.Before(nextAt) {
			next, nextAt = s, at
		}
	}
	return next, nextAt
}

// Idle flushes the queue and then runs every pending idle callback, as a
// real loop does when it has nothing else to do.
func (e *Env) Idle() {
	e.Flush()

	e.mu.Lock()
	var ready []*Scheduled
	for _, s := range e.scheduled {
		if s.Kind == KindIdle && !s.fired && !s.canceled {
			s.fired = true
			ready = append(ready, s)
		}
	}
	e.mu.Unlock()

	for _, s := range ready {
		s.idle(host.IdleDeadline{})
		e.Flush()
	}
}
