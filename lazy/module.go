package lazy

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
)

// Module is a handle standing in for a capability that may not be installed.
// It is cheap to create and to inspect; only Get and the helpers built on it
// trigger a lookup.
//
// The zero value is not usable; obtain handles from Resolver.Module or New.
type Module struct {
	name     string
	resolver *Resolver

	resolved atomic.Pointer[Capability]

	mu     sync.Mutex
	failed error // set only under CacheFailures
}

// New returns an unresolved handle for name backed by its own resolver.
func New(name string, loader Loader, opts ...Option) *Module {
	return NewResolver(loader, opts...).Module(name)
}

// Name returns the capability name the handle is bound to.
// It never triggers resolution.
func (m *Module) Name() string {
	return m.name
}

// Resolved reports whether the capability has been loaded.
// It never triggers resolution.
func (m *Module) Resolved() bool {
	return m.resolved.Load() != nil
}

// String implements fmt.Stringer without triggering resolution.
func (m *Module) String() string {
	state := "unresolved"
	if m.Resolved() {
		state = "resolved"
	}
	return fmt.Sprintf("lazy.Module(%s, %s)", m.name, state)
}

// Get returns the capability, loading it on first use.
// After a successful load every call returns the same reference without
// consulting the loader. On failure it returns a *NotInstalledError or an
// *InitializationError.
func (m *Module) Get(ctx context.Context) (Capability, error) {
	if c := m.resolved.Load(); c != nil {
		return *c, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another caller may have published while we waited.
	if c := m.resolved.Load(); c != nil {
		return *c, nil
	}
	if m.failed != nil {
		return nil, m.failed
	}

	c, err := m.resolver.Resolve(ctx, m.name)
	if err != nil {
		if m.resolver.policy == CacheFailures {
			m.failed = err
		}
		return nil, err
	}
	m.resolved.Store(&c)
	return c, nil
}

// MustGet is like Get but panics on failure.
func (m *Module) MustGet(ctx context.Context) Capability {
	c, err := m.Get(ctx)
	if err != nil {
		panic(err)
	}
	return c
}

// Do resolves the capability and invokes fn with it.
func (m *Module) Do(ctx context.Context, fn func(Capability) error) error {
	c, err := m.Get(ctx)
	if err != nil {
		return err
	}
	return fn(c)
}

// As resolves m and asserts the capability to T.
func As[T any](ctx context.Context, m *Module) (T, error) {
	var zero T
	c, err := m.Get(ctx)
	if err != nil {
		return zero, err
	}
	t, ok := c.(T)
	if !ok {
		return zero, fmt.Errorf("capability %s is %T, not %s", m.name, c, reflect.TypeFor[T]())
	}
	return t, nil
}
