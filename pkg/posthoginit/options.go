package posthoginit

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/vango-dev/posthoginit/internal/config"
	"github.com/vango-dev/posthoginit/pkg/consent"
)

const (
	// DefaultIdleTimeout bounds the idle-callback deferral.
	DefaultIdleTimeout = config.DefaultIdleTimeout

	// DefaultFallbackDelay is used when the host has no idle scheduler.
	DefaultFallbackDelay = config.DefaultFallbackDelay
)

// Option configures PostHogInit.
type Option func(*PostHogInit)

// WithLoader sets how the Initializer is resolved.
func WithLoader(l Loader) Option {
	return func(p *PostHogInit) {
		p.loader = l
	}
}

// WithInitializer uses i directly.
func WithInitializer(i Initializer) Option {
	return WithLoader(Static(i))
}

// WithConsent resolves a consent Manager lazily.
func WithConsent(l *consent.Lazy) Option {
	return WithLoader(FromConsent(l))
}

// WithIdleTimeout sets the idle-callback timeout. Default: 1500ms.
func WithIdleTimeout(d time.Duration) Option {
	return func(p *PostHogInit) {
		if d > 0 {
			p.idleTimeout = d
		}
	}
}

// WithFallbackDelay sets the timer delay used without an idle scheduler.
// Default: 600ms.
func WithFallbackDelay(d time.Duration) Option {
	return func(p *PostHogInit) {
		if d > 0 {
			p.fallbackDelay = d
		}
	}
}

// WithImmediate skips the deferral: the callback is dispatched to the next
// loop turn instead.
func WithImmediate(immediate bool) Option {
	return func(p *PostHogInit) {
		p.immediate = immediate
	}
}

// WithoutIdle always uses the fallback timer.
func WithoutIdle() Option {
	return func(p *PostHogInit) {
		p.disableIdle = true
	}
}

// WithLogger sets the logger. Default: the mount logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *PostHogInit) {
		p.logger = logger
	}
}

// WithMetrics records scheduling and outcomes in m.
func WithMetrics(m *Metrics) Option {
	return func(p *PostHogInit) {
		p.metrics = m
	}
}

// WithTracer sets the tracer used for the initialization span.
// Default: the global tracer provider.
func WithTracer(t trace.Tracer) Option {
	return func(p *PostHogInit) {
		p.tracer = t
	}
}

// WithOnSettled registers fn to observe how each mount settled. A skipped
// mount settles on the loop; the others settle on the initialization goroutine.
func WithOnSettled(fn func(Outcome)) Option {
	return func(p *PostHogInit) {
		p.onSettled = fn
	}
}

// FromConfig translates the defer section of posthoginit.json.
func FromConfig(cfg config.DeferConfig) []Option {
	opts := []Option{
		WithIdleTimeout(cfg.IdleTimeoutDuration()),
		WithFallbackDelay(cfg.FallbackDelayDuration()),
		WithImmediate(cfg.Immediate),
	}
	if cfg.DisableIdle {
		opts = append(opts, WithoutIdle())
	}
	return opts
}
