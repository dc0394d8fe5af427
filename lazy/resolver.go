package lazy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"
)

// Capability is a loaded optional module.
type Capability interface {
	// Name returns the name the capability was loaded under.
	Name() string
}

// Loader performs the host-specific lookup of a capability.
// Implementations report absence with an error matching ErrNotInstalled.
// Any other error is treated as an initialization failure.
type Loader interface {
	Load(ctx context.Context, name string) (Capability, error)
}

// LoaderFunc adapts a function to the Loader interface.
type LoaderFunc func(ctx context.Context, name string) (Capability, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, name string) (Capability, error) {
	return f(ctx, name)
}

// Policy controls how a handle reacts to a failed resolution.
type Policy int

const (
	// RetryOnAccess repeats the lookup on every access after a failure.
	RetryOnAccess Policy = iota

	// CacheFailures remembers the first failure and returns it on later accesses.
	CacheFailures
)

func (p Policy) String() string {
	switch p {
	case RetryOnAccess:
		return "retry-on-access"
	case CacheFailures:
		return "cache-failures"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// Resolver turns capability names into handles and performs the lookups
// those handles trigger.
type Resolver struct {
	loader Loader
	policy Policy
	logger *slog.Logger
}

// NewResolver creates a resolver backed by loader.
func NewResolver(loader Loader, opts ...Option) *Resolver {
	r := &Resolver{
		loader: loader,
		policy: RetryOnAccess,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Policy returns the failure policy applied to handles created by r.
func (r *Resolver) Policy() Policy {
	return r.policy
}

// Module returns an unresolved handle for name. It never fails and performs no lookup.
func (r *Resolver) Module(name string) *Module {
	return &Module{name: name, resolver: r}
}

// Resolve performs a single lookup of name and maps the outcome onto the
// error taxonomy. It does not memoize; handles do.
func (r *Resolver) Resolve(ctx context.Context, name string) (Capability, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrEmptyName
	}
	if r.loader == nil {
		return nil, &NotInstalledError{Name: name}
	}

	start := time.Now()
	c, err := r.load(ctx, name)
	if err != nil {
		err = r.classify(name, err)
		if _, ok := err.(*NotInstalledError); ok {
			r.logger.DebugContext(ctx, "capability not installed", "name", name)
		} else {
			r.logger.WarnContext(ctx, "capability failed to initialize", "name", name, "error", err)
		}
		return nil, err
	}
	if c == nil {
		r.logger.WarnContext(ctx, "loader returned no capability", "name", name)
		return nil, &InitializationError{Name: name, Cause: ErrNilCapability}
	}

	r.logger.DebugContext(ctx, "capability resolved", "name", name, "duration", time.Since(start))
	return c, nil
}

// load calls the loader, converting a panic in initialization code into an error.
func (r *Resolver) load(ctx context.Context, name string) (c Capability, err error) {
	defer func() {
		if v := recover(); v != nil {
			c = nil
			err = &InitializationError{
				Name:  name,
				Cause: &PanicError{Value: v, Stack: debug.Stack()},
			}
		}
	}()
	return r.loader.Load(ctx, name)
}

// classify maps a loader error onto NotInstalledError or InitializationError.
// An absence that names a different capability is a dependency failing inside
// this capability's initialization, so it is not reported as this one missing.
func (r *Resolver) classify(name string, err error) error {
	var initErr *InitializationError
	if errors.As(err, &initErr) && initErr.Name == name {
		return initErr
	}
	if !IsNotInstalledFor(err, name) {
		return &InitializationError{Name: name, Cause: err}
	}

	var notInstalled *NotInstalledError
	if errors.As(err, &notInstalled) && notInstalled.Name == name {
		return notInstalled
	}
	return &NotInstalledError{Name: name, Err: err}
}
