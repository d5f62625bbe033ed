package consent

import (
	"context"
	"sync"
	"sync/atomic"
)

// Lazy builds a Manager on first use and returns the same result afterwards,
// including a build error.
type Lazy struct {
	get    func() (*Manager, error)
	loaded atomic.Bool
}

// NewLazy returns a Lazy that calls build at most once.
func NewLazy(build func() (*Manager, error)) *Lazy {
	l := &Lazy{}
	l.get = sync.OnceValues(func() (*Manager, error) {
		defer l.loaded.Store(true)
		return build()
	})
	return l
}

// Get builds the Manager if needed. A done ctx fails fast without building.
func (l *Lazy) Get(ctx context.Context) (*Manager, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return l.get()
}

// Loaded reports whether the build has run.
func (l *Lazy) Loaded() bool {
	return l.loaded.Load()
}
