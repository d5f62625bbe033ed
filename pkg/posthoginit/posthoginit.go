package posthoginit

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/posthoginit/internal/errors"
	"github.com/vango-dev/posthoginit/pkg/component"
	"github.com/vango-dev/posthoginit/pkg/host"
)

const tracerName = "github.com/vango-dev/posthoginit"

// Path is the scheduling primitive a mount used.
type Path string

const (
	PathIdle      Path = "idle"
	PathTimeout   Path = "timeout"
	PathImmediate Path = "immediate"
)

// Outcome is how a mount settled.
type Outcome string

const (
	// OutcomeSkipped: the component unmounted before the callback fired.
	OutcomeSkipped Outcome = "skipped"

	// OutcomeInitialized: InitializePostHogConsent returned nil.
	OutcomeInitialized Outcome = "initialized"

	// OutcomeFailed: loading or initialization failed; the error was logged.
	OutcomeFailed Outcome = "failed"
)

// PostHogInit defers analytics initialization until after first paint.
// One value may be mounted any number of times; each mount has its own
// cancellation flag.
type PostHogInit struct {
	loader        Loader
	idleTimeout   time.Duration
	fallbackDelay time.Duration
	immediate     bool
	disableIdle   bool

	logger    *slog.Logger
	metrics   *Metrics
	tracer    trace.Tracer
	onSettled func(Outcome)
}

var _ component.Component = (*PostHogInit)(nil)

// New creates the component.
func New(opts ...Option) *PostHogInit {
	p := &PostHogInit{
		loader:        missingLoader,
		idleTimeout:   DefaultIdleTimeout,
		fallbackDelay: DefaultFallbackDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tracer == nil {
		p.tracer = otel.Tracer(tracerName)
	}
	return p
}

// Render implements component.Component. It registers the mount effect and
// renders nothing.
func (p *PostHogInit) Render(ctx component.Ctx) *component.VNode {
	ctx.UseEffect(func() component.Cleanup {
		return p.mount(ctx)
	})
	return nil
}

func (p *PostHogInit) mount(ctx component.Ctx) component.Cleanup {
	logger := p.logger
	if logger == nil {
		logger = ctx.Logger()
	}

	// Work that has started must outlive the unmount.
	std := context.WithoutCancel(ctx.StdContext())

	var canceled atomic.Bool
	var path Path
	path = p.schedule(ctx.Env(), func() {
		if canceled.Load() {
			logger.Debug("posthog init skipped, component unmounted", "path", path)
			p.settle(OutcomeSkipped)
			return
		}
		go p.initialize(std, logger, path)
	})

	p.metrics.observeScheduled(path)
	logger.Debug("posthog init scheduled", "path", path)

	return func() {
		canceled.Store(true)
	}
}

// schedule arranges for cb to run on the loop and reports how.
// The returned handle is dropped on purpose: unmount only flips the guard.
func (p *PostHogInit) schedule(env host.Env, cb func()) Path {
	if p.immediate {
		env.Dispatch(cb)
		return PathImmediate
	}
	if idle, ok := env.(host.IdleScheduler); ok && !p.disableIdle {
		idle.RequestIdleCallback(func(host.IdleDeadline) { cb() }, host.IdleOptions{Timeout: p.idleTimeout})
		return PathIdle
	}
	env.SetTimeout(p.fallbackDelay, cb)
	return PathTimeout
}

func (p *PostHogInit) initialize(ctx context.Context, logger *slog.Logger, path Path) {
	if err := p.traced(ctx, path); err != nil {
		logger.Error("failed to initialize PostHog consent", errorAttrs(err)...)
		p.settle(OutcomeFailed)
		return
	}
	logger.Debug("posthog initialized", "path", path)
	p.settle(OutcomeInitialized)
}

// traced runs call inside the initialization span. The span has ended by the
// time traced returns.
func (p *PostHogInit) traced(ctx context.Context, path Path) error {
	ctx, span := p.tracer.Start(ctx, "posthog.initialize",
		trace.WithAttributes(attribute.String("posthoginit.path", string(path))))
	defer span.End()

	start := time.Now()
	err := p.call(ctx)
	p.metrics.observeDuration(time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// call loads and invokes the initializer, converting panics to errors.
func (p *PostHogInit) call(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.New("E203").Wrap(fmt.Errorf("panic: %v", r))
		}
	}()

	initializer, err := p.loader(ctx)
	if err != nil {
		return errors.FromError(err, "E202")
	}
	if err := initializer.InitializePostHogConsent(ctx); err != nil {
		return errors.New("E201").Wrap(err)
	}
	return nil
}

// errorAttrs returns slog key/value pairs for err, including the detail and
// suggestion of a coded error.
func errorAttrs(err error) []any {
	attrs := []any{"error", err}
	var e *errors.Error
	if stderrors.As(err, &e) {
		if e.Detail != "" {
			attrs = append(attrs, "detail", e.Detail)
		}
		if e.Suggestion != "" {
			attrs = append(attrs, "suggestion", e.Suggestion)
		}
	}
	return attrs
}

func (p *PostHogInit) settle(o Outcome) {
	p.metrics.observeSettled(o)
	if p.onSettled != nil {
		p.onSettled(o)
	}
}
