package host

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultQueueSize is the dispatch queue capacity. Dispatch drops work when
// the queue is full; timers and idle timeouts wait for room instead.
const DefaultQueueSize = 256

// ErrLoopRunning is returned by Run when the loop is already running.
var ErrLoopRunning = errors.New("host: loop already running")

// Loop is the default Env. It implements IdleScheduler.
//
// Callbacks run on the goroutine that calls Run. Idle callbacks run when the
// dispatch queue is empty; their timeouts route through the queue like any
// other dispatched work.
type Loop struct {
	clock  clock.Clock
	logger *slog.Logger

	queue chan func()
	wake  chan struct{}

	idleMu sync.Mutex
	idle   []*idleRequest

	running   atomic.Bool
	closed    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithClock sets the clock used for timers. Tests pass clock.NewMock().
func WithClock(c clock.Clock) LoopOption {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(logger *slog.Logger) LoopOption {
	return func(l *Loop) {
		l.logger = logger
	}
}

// WithQueueSize sets the dispatch queue capacity.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.queue = make(chan func(), n)
		}
	}
}

// NewLoop creates a Loop. Call Run to start processing.
func NewLoop(opts ...LoopOption) *Loop {
	l := &Loop{
		clock:  clock.New(),
		logger: slog.Default(),
		queue:  make(chan func(), DefaultQueueSize),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the loop clock's current time.
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Dispatch queues fn to run on the loop. Work dispatched after Close, or
// while the queue is full, is discarded.
func (l *Loop) Dispatch(fn func()) {
	if fn == nil || l.closed.Load() {
		return
	}
	select {
	case l.queue <- fn:
	case <-l.done:
	default:
		l.logger.Warn("dispatch queue full, discarding callback")
	}
}

// enqueue queues work whose handle has already been claimed. It waits for
// room in the queue, so the callback is lost only if the loop closes first.
func (l *Loop) enqueue(fn func()) {
	if l.closed.Load() {
		return
	}
	select {
	case l.queue <- fn:
	case <-l.done:
	}
}

// SetTimeout runs fn on the loop once d has elapsed on the loop clock.
func (l *Loop) SetTimeout(d time.Duration, fn func()) Handle {
	h := &handle{}
	h.timer = l.clock.AfterFunc(d, func() {
		if h.fire() {
			l.enqueue(fn)
		}
	})
	return h
}

// RequestIdleCallback implements IdleScheduler.
func (l *Loop) RequestIdleCallback(fn func(IdleDeadline), opts IdleOptions) Handle {
	req := &idleRequest{fn: fn}
	if opts.Timeout > 0 {
		req.timer = l.clock.AfterFunc(opts.Timeout, func() {
			if req.fire() {
				l.enqueue(func() {
					fn(IdleDeadline{DidTimeout: true})
				})
			}
		})
	}

	l.idleMu.Lock()
	l.idle = append(l.idle, req)
	l.idleMu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return req
}

// Run processes dispatched work until ctx is done or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	defer l.running.Store(false)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.execute(fn)
			continue
		default:
		}

		// Queue drained: the loop is idle.
		if l.runIdle() {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.done:
			return nil
		case fn := <-l.queue:
			l.execute(fn)
		case <-l.wake:
		}
	}
}

// Close stops the loop. Pending timers still fire but their work is discarded.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.closed.Store(true)
		close(l.done)
	})
}

// runIdle runs idle callbacks registered before this idle period and reports
// whether any ran. It stops early when new work is dispatched.
func (l *Loop) runIdle() bool {
	l.idleMu.Lock()
	reqs := l.idle
	l.idle = nil
	l.idleMu.Unlock()

	ran := false
	for i, req := range reqs {
		if len(l.queue) > 0 {
			l.idleMu.Lock()
			l.idle = append(reqs[i:len(reqs):len(reqs)], l.idle...)
			l.idleMu.Unlock()
			return true
		}
		if !req.fire() {
			continue
		}
		if req.timer != nil {
			req.timer.Stop()
		}
		ran = true
		l.execute(func() {
			req.fn(IdleDeadline{})
		})
	}
	return ran
}

// execute runs fn with panic recovery.
func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("dispatch panic",
				"panic", r,
				"stack", string(debug.Stack()))
		}
	}()
	fn()
}

type handle struct {
	done  atomic.Bool
	timer *clock.Timer
}

// fire claims the callback. Only the first caller wins.
func (h *handle) fire() bool {
	return h.done.CompareAndSwap(false, true)
}

func (h *handle) Cancel() bool {
	if !h.fire() {
		return false
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	return true
}

type idleRequest struct {
	handle
	fn func(IdleDeadline)
}
