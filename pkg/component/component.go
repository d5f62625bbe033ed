package component

import (
	"context"
	"log/slog"

	"github.com/vango-dev/posthoginit/internal/errors"
	"github.com/vango-dev/posthoginit/pkg/host"
)

// Component is anything that can render.
type Component interface {
	Render(ctx Ctx) *VNode
}

// Func adapts a render function to Component.
type Func func(ctx Ctx) *VNode

// Render implements Component.
func (f Func) Render(ctx Ctx) *VNode {
	return f(ctx)
}

// Ctx is available to a component while it renders.
type Ctx interface {
	// Env returns the host the component is mounted into.
	Env() host.Env

	// StdContext returns a context canceled when the component unmounts.
	StdContext() context.Context

	// Logger returns the mount logger, tagged with the owner ID.
	Logger() *slog.Logger

	// Owner returns the component's Owner.
	Owner() *Owner

	// UseEffect registers fn to run after render. The returned Cleanup
	// runs on unmount. Panics outside render.
	UseEffect(fn func() Cleanup)
}

type renderCtx struct {
	env       host.Env
	std       context.Context
	logger    *slog.Logger
	owner     *Owner
	rendering bool
}

func (c *renderCtx) Env() host.Env               { return c.env }
func (c *renderCtx) StdContext() context.Context { return c.std }
func (c *renderCtx) Logger() *slog.Logger        { return c.logger }
func (c *renderCtx) Owner() *Owner               { return c.owner }

func (c *renderCtx) UseEffect(fn func() Cleanup) {
	if !c.rendering {
		panic(errors.New("E205"))
	}
	if c.owner.IsDisposed() {
		panic(errors.New("E206"))
	}
	e := newEffect(c.owner, fn)
	c.owner.registerEffect(e)
	c.owner.scheduleEffect(e)
}

// MountOption configures Mount.
type MountOption func(*mountConfig)

type mountConfig struct {
	parent *Owner
	ctx    context.Context
	logger *slog.Logger
}

// WithParent mounts the component under parent.
func WithParent(parent *Owner) MountOption {
	return func(c *mountConfig) {
		c.parent = parent
	}
}

// WithContext sets the parent of the component's StdContext.
func WithContext(ctx context.Context) MountOption {
	return func(c *mountConfig) {
		c.ctx = ctx
	}
}

// WithLogger sets the logger exposed through Ctx.Logger.
// Default: slog.Default().
func WithLogger(logger *slog.Logger) MountOption {
	return func(c *mountConfig) {
		c.logger = logger
	}
}

// Instance is a mounted component.
type Instance struct {
	owner  *Owner
	output *VNode
}

// Mount renders c into env and then runs the effects it registered.
// It must be called on the host loop.
func Mount(env host.Env, c Component, opts ...MountOption) *Instance {
	cfg := mountConfig{
		ctx:    context.Background(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	owner := NewOwner(cfg.parent)
	std, cancel := context.WithCancel(cfg.ctx)
	owner.OnCleanup(cancel)

	rctx := &renderCtx{
		env:       env,
		std:       std,
		logger:    cfg.logger.With("owner", owner.ID()),
		owner:     owner,
		rendering: true,
	}
	output := c.Render(rctx)
	rctx.rendering = false

	// Effects run after the output is committed.
	owner.RunPendingEffects()

	return &Instance{owner: owner, output: output}
}

// Unmount disposes the component. It must be called on the host loop.
// Calling Unmount more than once is a no-op.
func (i *Instance) Unmount() {
	i.owner.Dispose()
}

// Mounted reports whether the component has not been unmounted.
func (i *Instance) Mounted() bool {
	return !i.owner.IsDisposed()
}

// Owner returns the instance's Owner.
func (i *Instance) Owner() *Owner {
	return i.owner
}

// Output returns the rendered tree. Nil means the component renders nothing.
func (i *Instance) Output() *VNode {
	return i.output
}

// HTML returns the rendered output as HTML.
func (i *Instance) HTML() string {
	return RenderHTML(i.output)
}
