package component

import (
	"sync"
	"sync/atomic"
)

var idCounter atomic.Uint64

func nextID() uint64 {
	return idCounter.Add(1)
}

// Owner represents a component scope that owns effects and cleanups.
// When an Owner is disposed, all effects and child owners it contains are
// disposed too.
//
// Owners form a hierarchy mirroring the component tree.
type Owner struct {
	id uint64

	// parent is nil for a root Owner.
	parent *Owner

	children   []*Owner
	childrenMu sync.Mutex

	effects   []*Effect
	effectsMu sync.Mutex

	// cleanups are manual cleanup functions registered via OnCleanup.
	cleanups   []func()
	cleanupsMu sync.Mutex

	// pendingEffects are effects scheduled to run after render.
	pendingEffects   []*Effect
	pendingEffectsMu sync.Mutex

	disposed atomic.Bool
}

// NewOwner creates a new Owner with the given parent.
// If parent is nil, creates a root Owner.
func NewOwner(parent *Owner) *Owner {
	o := &Owner{
		id:     nextID(),
		parent: parent,
	}
	if parent != nil {
		parent.addChild(o)
	}
	return o
}

// ID returns the unique identifier for this Owner.
func (o *Owner) ID() uint64 {
	return o.id
}

// IsDisposed returns true if this Owner has been disposed.
func (o *Owner) IsDisposed() bool {
	return o.disposed.Load()
}

func (o *Owner) addChild(child *Owner) {
	o.childrenMu.Lock()
	o.children = append(o.children, child)
	o.childrenMu.Unlock()
}

func (o *Owner) removeChild(child *Owner) {
	o.childrenMu.Lock()
	defer o.childrenMu.Unlock()
	for i, c := range o.children {
		if c == child {
			o.children = append(o.children[:i], o.children[i+1:]...)
			return
		}
	}
}

func (o *Owner) registerEffect(e *Effect) {
	o.effectsMu.Lock()
	o.effects = append(o.effects, e)
	o.effectsMu.Unlock()
}

// OnCleanup registers fn to run when the Owner is disposed.
// Registering on a disposed Owner runs fn immediately.
func (o *Owner) OnCleanup(fn func()) {
	if o.disposed.Load() {
		fn()
		return
	}
	o.cleanupsMu.Lock()
	o.cleanups = append(o.cleanups, fn)
	o.cleanupsMu.Unlock()
}

func (o *Owner) scheduleEffect(e *Effect) {
	o.pendingEffectsMu.Lock()
	o.pendingEffects = append(o.pendingEffects, e)
	o.pendingEffectsMu.Unlock()
}

// RunPendingEffects runs effects scheduled during render, then those of
// child owners.
func (o *Owner) RunPendingEffects() {
	if o.disposed.Load() {
		return
	}

	o.pendingEffectsMu.Lock()
	effects := o.pendingEffects
	o.pendingEffects = nil
	o.pendingEffectsMu.Unlock()

	for _, e := range effects {
		e.run()
	}

	o.childrenMu.Lock()
	children := make([]*Owner, len(o.children))
	copy(children, o.children)
	o.childrenMu.Unlock()

	for _, child := range children {
		child.RunPendingEffects()
	}
}

// Dispose disposes this Owner and all its children, effects, and cleanups.
// Children are disposed in reverse order (last created first), then effect
// cleanups run, then OnCleanup functions in reverse order.
// Dispose is idempotent.
func (o *Owner) Dispose() {
	if o.disposed.Swap(true) {
		return
	}

	if o.parent != nil {
		o.parent.removeChild(o)
	}

	o.childrenMu.Lock()
	children := o.children
	o.children = nil
	o.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	o.effectsMu.Lock()
	effects := o.effects
	o.effects = nil
	o.effectsMu.Unlock()

	for _, e := range effects {
		e.dispose()
	}

	o.cleanupsMu.Lock()
	cleanups := o.cleanups
	o.cleanups = nil
	o.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}

	o.pendingEffectsMu.Lock()
	o.pendingEffects = nil
	o.pendingEffectsMu.Unlock()
}
