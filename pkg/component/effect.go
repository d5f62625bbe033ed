package component

import "sync/atomic"

// Cleanup is returned by an effect and runs when its owner is disposed.
type Cleanup func()

// Effect is a side effect registered during render. It runs once, after the
// render that registered it, and its Cleanup runs on unmount.
type Effect struct {
	fn      func() Cleanup
	cleanup Cleanup

	owner *Owner

	ran      atomic.Bool
	disposed atomic.Bool
}

func newEffect(owner *Owner, fn func() Cleanup) *Effect {
	return &Effect{
		fn:    fn,
		owner: owner,
	}
}

func (e *Effect) run() {
	if e.disposed.Load() || !e.ran.CompareAndSwap(false, true) {
		return
	}
	e.cleanup = e.fn()
}

func (e *Effect) dispose() {
	if e.disposed.Swap(true) {
		return
	}
	if e.cleanup != nil {
		e.cleanup()
		e.cleanup = nil
	}
}
