// Package host provides the environment components are mounted into: a
// single-threaded event loop with timer and idle-callback primitives.
//
// Every callback scheduled through an Env runs on the loop goroutine, one at
// a time, so state touched only from callbacks needs no locking.
//
// # Capabilities
//
// Env is guaranteed: Dispatch, SetTimeout and Now. Idle scheduling is
// optional and discovered with a type assertion:
//
//	if idle, ok := env.(host.IdleScheduler); ok {
//	    idle.RequestIdleCallback(fn, host.IdleOptions{Timeout: 1500 * time.Millisecond})
//	} else {
//	    env.SetTimeout(600*time.Millisecond, func() { fn(host.IdleDeadline{}) })
//	}
//
// WithoutIdle wraps an Env so the assertion fails, which is how callers and
// tests exercise the timer fallback.
package host
