package hook

import (
	"context"
	"sync"
)

// Slot is the engine's registered handler. An empty slot means statements
// go straight to the standard execution path.
type Slot struct {
	mu      sync.RWMutex
	handler Handler
}

// Load returns the registered handler, or nil.
func (s *Slot) Load() Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Store registers h. A nil h empties the slot.
func (s *Slot) Store(h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Run sends call to the handler in slot, or to standard when it is empty.
func Run(ctx context.Context, slot *Slot, standard Handler, call *Call) error {
	if h := slot.Load(); h != nil {
		return h.ProcessUtility(ctx, call)
	}
	return standard.ProcessUtility(ctx, call)
}

// Extension installs a Dispatcher into a Slot and removes it again.
type Extension struct {
	slot     *Slot
	standard Handler
	opts     []Option

	mu        sync.Mutex
	installed bool
	previous  Handler
	active    *Dispatcher
}

// NewExtension creates an extension for slot. standard is the execution path
// used when nothing was registered before Install.
func NewExtension(slot *Slot, standard Handler, opts ...Option) *Extension {
	return &Extension{
		slot:     slot,
		standard: standard,
		opts:     opts,
	}
}

// Install captures the slot's current handler and registers a Dispatcher
// that delegates to it, or to the standard path if the slot was empty.
// Installing twice is a no-op.
func (e *Extension) Install() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.installed {
		return
	}

	e.previous = e.slot.Load()
	next := e.previous
	if next == nil {
		next = e.standard
	}
	e.active = NewDispatcher(next, e.opts...)
	e.slot.Store(e.active)
	e.installed = true
}

// Uninstall restores exactly the handler Install captured. Without a prior
// Install, or when called again, it does nothing.
func (e *Extension) Uninstall() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.installed {
		return
	}

	e.slot.Store(e.previous)
	e.previous = nil
	e.active = nil
	e.installed = false
}

// Installed reports whether the extension is registered.
func (e *Extension) Installed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.installed
}

// Dispatcher returns the installed dispatcher, or nil.
func (e *Extension) Dispatcher() *Dispatcher {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active
}
