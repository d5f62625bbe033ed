package host

import "time"

// Env is the scheduling surface every host provides.
type Env interface {
	// Dispatch queues fn to run on the loop. Safe from any goroutine.
	Dispatch(fn func())

	// SetTimeout runs fn on the loop once d has elapsed.
	SetTimeout(d time.Duration, fn func()) Handle

	// Now returns the host's current time.
	Now() time.Time
}

// IdleScheduler is implemented by hosts that can run work when the loop has
// nothing else to do.
type IdleScheduler interface {
	// RequestIdleCallback runs fn on the loop the next time it is idle, or
	// once opts.Timeout has elapsed, whichever comes first.
	RequestIdleCallback(fn func(IdleDeadline), opts IdleOptions) Handle
}

// IdleOptions configures RequestIdleCallback.
type IdleOptions struct {
	// Timeout bounds how long the callback may be deferred.
	// Zero means no bound.
	Timeout time.Duration
}

// IdleDeadline is passed to idle callbacks.
type IdleDeadline struct {
	// DidTimeout is true when the callback ran because Timeout elapsed
	// rather than because the loop went idle.
	DidTimeout bool
}

// Handle refers to a scheduled callback.
type Handle interface {
	// Cancel prevents the callback from being queued and reports whether it
	// was still pending.
	Cancel() bool
}

type timerOnly struct {
	Env
}

// WithoutIdle returns env with its idle capability hidden.
func WithoutIdle(env Env) Env {
	return timerOnly{Env: env}
}
