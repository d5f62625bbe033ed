package posthoginit

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// countingInit counts calls and optionally fails, panics or blocks.
type countingInit struct {
	calls    atomic.Int32
	err      error
	panicVal any
	release  chan struct{}

	mu     sync.Mutex
	ctxErr error
}

func (c *countingInit) InitializePostHogConsent(ctx context.Context) error {
	c.calls.Add(1)
	if c.release != nil {
		<-c.release
	}
	c.mu.Lock()
	c.ctxErr = ctx.Err()
	c.mu.Unlock()
	if c.panicVal != nil {
		panic(c.panicVal)
	}
	return c.err
}

// settledRecorder collects outcomes reported through WithOnSettled.
type settledRecorder struct {
	ch chan Outcome
}

func newSettledRecorder() *settledRecorder {
	return &settledRecorder{ch: make(chan Outcome, 16)}
}

func (r *settledRecorder) option() Option {
	return WithOnSettled(func(o Outcome) { r.ch <- o })
}

func (r *settledRecorder) wait(t *testing.T) Outcome {
	t.Helper()
	select {
	case o := <-r.ch:
		return o
	case <-time.After(2 * time.Second):
		t.Fatal("component did not settle")
		return ""
	}
}

func (r *settledRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case o := <-r.ch:
		t.Fatalf("unexpected settle: %s", o)
	case <-time.After(20 * time.Millisecond):
	}
}

// syncBuffer is a bytes.Buffer safe for concurrent log writes.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestLogger() (*slog.Logger, *syncBuffer) {
	buf := &syncBuffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})), buf
}
