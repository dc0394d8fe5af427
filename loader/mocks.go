package loader

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/reglet-dev/reglet-lazy/lazy"
)

// MockCapability is a minimal lazy.Capability for testing.
type MockCapability struct {
	ID string
}

func (c *MockCapability) Name() string { return c.ID }

// MockLoader implements lazy.Loader for testing.
// With neither Capability nor Err set it reports the name as not installed.
type MockLoader struct {
	mu         sync.Mutex
	Capability lazy.Capability
	Err        error
	Calls      []string
}

// Load records the lookup and returns the configured outcome.
func (m *MockLoader) Load(ctx context.Context, name string) (lazy.Capability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, name)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Capability != nil {
		return m.Capability, nil
	}
	return nil, &lazy.NotInstalledError{Name: name}
}

// Set replaces the mock's outcome.
func (m *MockLoader) Set(c lazy.Capability, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Capability = c
	m.Err = err
}

// CallCount returns how many lookups the mock has served.
func (m *MockLoader) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// NewTestLogger returns a logger that discards output.
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
