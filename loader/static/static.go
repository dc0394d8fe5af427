// Package static implements an in-process capability table.
//
// Optional packages register a Factory under a capability name, usually from
// an init function, the same way database/sql drivers register themselves:
//
//	func init() {
//	    static.MustRegister("click", func(ctx context.Context) (lazy.Capability, error) {
//	        return newClick()
//	    })
//	}
//
// Nothing runs until a lazy handle for that name is first accessed.
package static

import (
	"context"
	"fmt"
	"sync"

	"github.com/reglet-dev/reglet-lazy/lazy"
)

// Factory constructs a capability. It runs the capability's initialization code.
type Factory func(ctx context.Context) (lazy.Capability, error)

// Table maps capability names to factories and remembers what it has built.
type Table struct {
	mu        sync.RWMutex
	factories map[string]Factory
	loaded    map[string]lazy.Capability
	initLocks map[string]*initLock
}

// initLock serializes construction of one name. It is dropped from the table
// once no Load holds or waits on it.
type initLock struct {
	mu   sync.Mutex
	refs int
}

// New returns an empty table.
func New() *Table {
	return &Table{
		factories: map[string]Factory{},
		loaded:    map[string]lazy.Capability{},
		initLocks: map[string]*initLock{},
	}
}

// Default is the process-wide table used by the package-level functions.
// It is populated by Register calls and lives until the process exits.
var Default = New()

// Register installs a factory. Returns an error if the name already exists.
func (t *Table) Register(name string, factory Factory) error {
	if name == "" {
		return fmt.Errorf("static: name is required")
	}
	if factory == nil {
		return fmt.Errorf("static: factory is required for %s", name)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.factories[name]; exists {
		return fmt.Errorf("static: %s already registered", name)
	}
	t.factories[name] = factory
	return nil
}

// MustRegister panics if registration fails.
func (t *Table) MustRegister(name string, factory Factory) {
	if err := t.Register(name, factory); err != nil {
		panic(err)
	}
}

// Unregister removes a factory and forgets any capability built from it.
// Handles that already resolved the capability keep their reference.
func (t *Table) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.factories, name)
	delete(t.loaded, name)
}

// Load returns the capability for name, constructing it on first use.
// Successful constructions are shared by every later Load of the same name;
// factory errors are not remembered.
func (t *Table) Load(ctx context.Context, name string) (lazy.Capability, error) {
	t.mu.RLock()
	c, ok := t.loaded[name]
	t.mu.RUnlock()
	if ok {
		return c, nil
	}

	// Serialize initialization per name. Factories may load other names from
	// this table, but must not load their own.
	lock := t.acquire(name)
	defer t.release(name, lock)

	t.mu.RLock()
	c, ok = t.loaded[name]
	factory, registered := t.factories[name]
	t.mu.RUnlock()
	if ok {
		return c, nil
	}
	if !registered {
		return nil, &lazy.NotInstalledError{Name: name}
	}

	c, err := factory(ctx)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, lazy.ErrNilCapability
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	// Unregistered while the factory ran.
	if _, still := t.factories[name]; still {
		t.loaded[name] = c
	}
	return c, nil
}

func (t *Table) acquire(name string) *initLock {
	t.mu.Lock()
	l, ok := t.initLocks[name]
	if !ok {
		l = &initLock{}
		t.initLocks[name] = l
	}
	l.refs++
	t.mu.Unlock()

	l.mu.Lock()
	return l
}

func (t *Table) release(name string, l *initLock) {
	l.mu.Unlock()

	t.mu.Lock()
	defer t.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(t.initLocks, name)
	}
}

// Register installs a factory in the Default table.
func Register(name string, factory Factory) error {
	return Default.Register(name, factory)
}

// MustRegister installs a factory in the Default table and panics on failure.
func MustRegister(name string, factory Factory) {
	Default.MustRegister(name, factory)
}
