package posthoginit

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/vango-dev/posthoginit/internal/config"
	"github.com/vango-dev/posthoginit/pkg/component"
	"github.com/vango-dev/posthoginit/pkg/consent"
	"github.com/vango-dev/posthoginit/pkg/host"
	"github.com/vango-dev/posthoginit/pkg/host/hosttest"
)

func TestRendersNothing(t *testing.T) {
	env := hosttest.New()
	fake := &countingInit{}
	rec := newSettledRecorder()

	inst := component.Mount(env, New(WithInitializer(fake), rec.option()))
	if inst.Output() != nil || inst.HTML() != "" {
		t.Errorf("mounted output = %q, want empty", inst.HTML())
	}

	env.Idle()
	rec.wait(t)
	if inst.HTML() != "" {
		t.Errorf("output after initialization = %q, want empty", inst.HTML())
	}

	inst.Unmount()
	if inst.HTML() != "" {
		t.Errorf("output after unmount = %q, want empty", inst.HTML())
	}
}

func TestIdlePathRequestsTimeout(t *testing.T) {
	env := hosttest.New()
	inst := component.Mount(env, New(WithInitializer(&countingInit{})))
	defer inst.Unmount()

	scheduled := env.Scheduled()
	if len(scheduled) != 1 {
		t.Fatalf("scheduled %d callbacks, want 1", len(scheduled))
	}
	if scheduled[0].Kind != hosttest.KindIdle {
		t.Errorf("Kind = %v, want idle", scheduled[0].Kind)
	}
	if got := scheduled[0].Options.Timeout; got != 1500*time.Millisecond {
		t.Errorf("idle timeout = %v, want 1500ms", got)
	}
}

func TestFallbackPathUsesTimer(t *testing.T) {
	env := hosttest.New()
	inst := component.Mount(host.WithoutIdle(env), New(WithInitializer(&countingInit{})))
	defer inst.Unmount()

	scheduled := env.Scheduled()
	if len(scheduled) != 1 {
		t.Fatalf("scheduled %d callbacks, want 1", len(scheduled))
	}
	if scheduled[0].Kind != hosttest.KindTimeout {
		t.Errorf("Kind = %v, want timeout", scheduled[0].Kind)
	}
	if got := scheduled[0].Delay; got != 600*time.Millisecond {
		t.Errorf("delay = %v, want 600ms", got)
	}
}

func TestUnmountBeforeFireSkips(t *testing.T) {
	tests := []struct {
		name string
		wrap func(*hosttest.Env) host.Env
	}{
		{"idle", func(e *hosttest.Env) host.Env { return e }},
		{"fallback", func(e *hosttest.Env) host.Env { return host.WithoutIdle(e) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := hosttest.New()
			fake := &countingInit{}
			rec := newSettledRecorder()

			inst := component.Mount(tt.wrap(env), New(WithInitializer(fake), rec.option()))
			inst.Unmount()

			// Past both deferral windows.
			env.Advance(2 * time.Second)

			if got := rec.wait(t); got != OutcomeSkipped {
				t.Errorf("outcome = %s, want skipped", got)
			}
			if n := fake.calls.Load(); n != 0 {
				t.Errorf("initializer called %d times, want 0", n)
			}

			// The guard is logical: the handle was not canceled, it fired.
			s := env.Scheduled()[0]
			if s.Canceled() || !s.Fired() {
				t.Errorf("Canceled() = %v, Fired() = %v; want handle left to fire", s.Canceled(), s.Fired())
			}
		})
	}
}

func TestFallbackFiresOnceAfterDelay(t *testing.T) {
	env := hosttest.New()
	fake := &countingInit{}
	rec := newSettledRecorder()

	inst := component.Mount(host.WithoutIdle(env), New(WithInitializer(fake), rec.option()))
	defer inst.Unmount()

	env.Advance(599 * time.Millisecond)
	rec.expectNone(t)
	if fake.calls.Load() != 0 {
		t.Fatal("initializer called before the fallback delay")
	}

	env.Advance(time.Millisecond)
	if got := rec.wait(t); got != OutcomeInitialized {
		t.Errorf("outcome = %s, want initialized", got)
	}

	env.Advance(10 * time.Second)
	rec.expectNone(t)
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("initializer called %d times, want 1", n)
	}
}

func TestIdlePath(t *testing.T) {
	t.Run("fires when host is idle", func(t *testing.T) {
		env := hosttest.New()
		fake := &countingInit{}
		rec := newSettledRecorder()

		inst := component.Mount(env, New(WithInitializer(fake), rec.option()))
		defer inst.Unmount()

		env.Idle()
		if got := rec.wait(t); got != OutcomeInitialized {
			t.Errorf("outcome = %s, want initialized", got)
		}
		if n := fake.calls.Load(); n != 1 {
			t.Errorf("initializer called %d times, want 1", n)
		}
	})

	t.Run("fires on timeout when never idle", func(t *testing.T) {
		env := hosttest.New()
		fake := &countingInit{}
		rec := newSettledRecorder()

		inst := component.Mount(env, New(WithInitializer(fake), rec.option()))
		defer inst.Unmount()

		env.Advance(1499 * time.Millisecond)
		rec.expectNone(t)

		env.Advance(time.Millisecond)
		if got := rec.wait(t); got != OutcomeInitialized {
			t.Errorf("outcome = %s, want initialized", got)
		}
		if n := fake.calls.Load(); n != 1 {
			t.Errorf("initializer called %d times, want 1", n)
		}
	})
}

func TestFailureIsLoggedAndSwallowed(t *testing.T) {
	tests := []struct {
		name     string
		opts     func(*countingInit) []Option
		fake     *countingInit
		wantLogs []string
	}{
		{
			name:     "initializer error",
			fake:     &countingInit{err: stderrors.New("posthog unreachable")},
			opts:     func(i *countingInit) []Option { return []Option{WithInitializer(i)} },
			wantLogs: []string{"failed to initialize PostHog consent", "E201", "posthog unreachable"},
		},
		{
			name:     "initializer panic",
			fake:     &countingInit{panicVal: "kaboom-7f3a"},
			opts:     func(i *countingInit) []Option { return []Option{WithInitializer(i)} },
			wantLogs: []string{"failed to initialize PostHog consent", "E203", "panic: kaboom-7f3a"},
		},
		{
			name: "loader error",
			fake: &countingInit{},
			opts: func(*countingInit) []Option {
				return []Option{WithLoader(func(context.Context) (Initializer, error) {
					return nil, stderrors.New("module missing")
				})}
			},
			wantLogs: []string{"failed to initialize PostHog consent", "E202", "module missing", "could not be loaded"},
		},
		{
			name:     "no loader",
			fake:     &countingInit{},
			opts:     func(*countingInit) []Option { return nil },
			wantLogs: []string{"E202", "no initializer configured", "WithConsent"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := hosttest.New()
			logger, logs := newTestLogger()
			rec := newSettledRecorder()

			opts := append(tt.opts(tt.fake), WithLogger(logger), rec.option())
			inst := component.Mount(env, New(opts...))
			defer inst.Unmount()

			env.Idle()
			if got := rec.wait(t); got != OutcomeFailed {
				t.Errorf("outcome = %s, want failed", got)
			}
			out := logs.String()
			for _, want := range tt.wantLogs {
				if !strings.Contains(out, want) {
					t.Errorf("logs missing %q:\n%s", want, out)
				}
			}
			if n := tt.fake.calls.Load(); n > 1 {
				t.Errorf("initializer called %d times; failures must not retry", n)
			}
		})
	}
}

func TestInFlightWorkCompletesAfterUnmount(t *testing.T) {
	env := hosttest.New()
	fake := &countingInit{release: make(chan struct{})}
	rec := newSettledRecorder()

	inst := component.Mount(env, New(WithInitializer(fake), rec.option()))
	env.Idle()

	deadline := time.Now().Add(2 * time.Second)
	for fake.calls.Load() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("initializer was not called")
		}
		time.Sleep(time.Millisecond)
	}

	inst.Unmount()
	close(fake.release)

	if got := rec.wait(t); got != OutcomeInitialized {
		t.Errorf("outcome = %s, want initialized", got)
	}
	fake.mu.Lock()
	ctxErr := fake.ctxErr
	fake.mu.Unlock()
	if ctxErr != nil {
		t.Errorf("initializer context error = %v, want nil after unmount", ctxErr)
	}
}

func TestImmediate(t *testing.T) {
	env := hosttest.New()
	fake := &countingInit{}
	rec := newSettledRecorder()

	inst := component.Mount(env, New(WithInitializer(fake), WithImmediate(true), rec.option()))
	defer inst.Unmount()

	if len(env.Scheduled()) != 0 {
		t.Error("immediate mode should not use timers or idle callbacks")
	}
	env.Flush()
	if got := rec.wait(t); got != OutcomeInitialized {
		t.Errorf("outcome = %s, want initialized", got)
	}
}

func TestWithoutIdleOption(t *testing.T) {
	env := hosttest.New()
	inst := component.Mount(env, New(WithInitializer(&countingInit{}), WithoutIdle()))
	defer inst.Unmount()

	if s := env.Scheduled(); len(s) != 1 || s[0].Kind != hosttest.KindTimeout {
		t.Errorf("scheduled = %+v, want one timeout", s)
	}
}

func TestMountsAreIndependent(t *testing.T) {
	env := hosttest.New()
	fake := &countingInit{}
	rec := newSettledRecorder()
	c := New(WithInitializer(fake), rec.option())

	first := component.Mount(env, c)
	second := component.Mount(env, c)
	defer second.Unmount()
	first.Unmount()

	env.Idle()

	got := map[Outcome]int{}
	got[rec.wait(t)]++
	got[rec.wait(t)]++
	if got[OutcomeSkipped] != 1 || got[OutcomeInitialized] != 1 {
		t.Errorf("outcomes = %v, want one skipped and one initialized", got)
	}
	if n := fake.calls.Load(); n != 1 {
		t.Errorf("initializer called %d times, want 1", n)
	}
}

func TestWithConsentLoadsLazily(t *testing.T) {
	env := hosttest.New()
	rec := newSettledRecorder()
	lazy := consent.NewLazy(func() (*consent.Manager, error) {
		return consent.NewManager(consent.WithStore(consent.StaticStore(consent.StatePending))), nil
	})

	inst := component.Mount(env, New(WithConsent(lazy), rec.option()))
	defer inst.Unmount()

	if lazy.Loaded() {
		t.Fatal("consent manager should not load at mount")
	}
	env.Idle()
	if got := rec.wait(t); got != OutcomeInitialized {
		t.Errorf("outcome = %s, want initialized", got)
	}
	if !lazy.Loaded() {
		t.Error("consent manager should load when the callback fires")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg))
	env := hosttest.New()
	rec := newSettledRecorder()
	c := New(WithInitializer(&countingInit{}), WithMetrics(m), rec.option())

	skipped := component.Mount(env, c)
	skipped.Unmount()
	kept := component.Mount(host.WithoutIdle(env), c)
	defer kept.Unmount()

	env.Advance(2 * time.Second)
	rec.wait(t)
	rec.wait(t)

	if got := testutil.ToFloat64(m.scheduled.WithLabelValues("idle")); got != 1 {
		t.Errorf("scheduled{idle} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.scheduled.WithLabelValues("timeout")); got != 1 {
		t.Errorf("scheduled{timeout} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.settled.WithLabelValues("skipped")); got != 1 {
		t.Errorf("settled{skipped} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.settled.WithLabelValues("initialized")); got != 1 {
		t.Errorf("settled{initialized} = %v, want 1", got)
	}
	if n := testutil.CollectAndCount(m.duration); n != 1 {
		t.Errorf("duration series = %d, want 1", n)
	}

	var nilMetrics *Metrics
	nilMetrics.observeScheduled(PathIdle)
	nilMetrics.observeSettled(OutcomeFailed)
	nilMetrics.observeDuration(time.Second)
}

func TestTracing(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	env := hosttest.New()
	logger, _ := newTestLogger()
	rec := newSettledRecorder()
	fake := &countingInit{err: stderrors.New("nope")}

	inst := component.Mount(host.WithoutIdle(env), New(
		WithInitializer(fake),
		WithTracer(tp.Tracer("test")),
		WithLogger(logger),
		rec.option(),
	))
	defer inst.Unmount()

	env.Advance(600 * time.Millisecond)
	rec.wait(t)

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "posthog.initialize" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status().Code)
	}
	found := false
	for _, kv := range span.Attributes() {
		if kv == attribute.String("posthoginit.path", "timeout") {
			found = true
		}
	}
	if !found {
		t.Errorf("span attributes %v missing posthoginit.path=timeout", span.Attributes())
	}
}

func TestFromConfig(t *testing.T) {
	p := New(FromConfig(config.DeferConfig{
		IdleTimeout:   "2s",
		FallbackDelay: "300ms",
		Immediate:     true,
		DisableIdle:   true,
	})...)

	if p.idleTimeout != 2*time.Second {
		t.Errorf("idleTimeout = %v, want 2s", p.idleTimeout)
	}
	if p.fallbackDelay != 300*time.Millisecond {
		t.Errorf("fallbackDelay = %v, want 300ms", p.fallbackDelay)
	}
	if !p.immediate || !p.disableIdle {
		t.Errorf("immediate = %v, disableIdle = %v", p.immediate, p.disableIdle)
	}

	d := New(FromConfig(config.New().Defer)...)
	if d.idleTimeout != DefaultIdleTimeout || d.fallbackDelay != DefaultFallbackDelay || d.immediate || d.disableIdle {
		t.Errorf("defaults = %+v", d)
	}
}
