package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/reglet-dev/reglet-lazy/lazy"
)

type route struct {
	pattern string
	loader  lazy.Loader
}

// Mux routes capability names to loaders by glob pattern.
// Patterns use doublestar syntax, so "wasm/**" matches "wasm/net/http".
// Routes are tried in registration order; the first match wins.
type Mux struct {
	mu     sync.RWMutex
	routes []route
}

// NewMux creates an empty mux.
func NewMux() *Mux {
	return &Mux{}
}

// Handle registers loader for names matching pattern.
func (m *Mux) Handle(pattern string, l lazy.Loader) error {
	if !doublestar.ValidatePattern(pattern) {
		return fmt.Errorf("invalid capability pattern %q", pattern)
	}
	if l == nil {
		return fmt.Errorf("loader is required for pattern %q", pattern)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routes = append(m.routes, route{pattern: pattern, loader: l})
	return nil
}

// Load dispatches to the first loader whose pattern matches name.
func (m *Mux) Load(ctx context.Context, name string) (lazy.Capability, error) {
	l, ok := m.match(name)
	if !ok {
		return nil, &lazy.NotInstalledError{Name: name}
	}
	return l.Load(ctx, name)
}

func (m *Mux) match(name string) (lazy.Loader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.routes {
		// Patterns were validated in Handle, so Match cannot fail here.
		if ok, _ := doublestar.Match(r.pattern, name); ok {
			return r.loader, true
		}
	}
	return nil, false
}
