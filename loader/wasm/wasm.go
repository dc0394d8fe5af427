// Package wasm loads capabilities installed as WebAssembly artifacts on the
// capability search path.
//
// A capability missing from every root is not installed. Once found, any
// failure to verify, describe, or instantiate it is returned as-is so the
// resolver reports it as an initialization failure.
package wasm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reglet-dev/reglet-lazy/host"
	"github.com/reglet-dev/reglet-lazy/lazy"
	"github.com/reglet-dev/reglet-lazy/lockfile"
	"github.com/reglet-dev/reglet-lazy/manifest"
	"github.com/reglet-dev/reglet-lazy/repository"
)

// Finder locates installed artifacts.
type Finder interface {
	Find(ctx context.Context, name string) (*repository.Artifact, error)
}

// ManifestError indicates an artifact whose manifest does not describe it.
type ManifestError struct {
	Name   string
	Reason string
}

func (e *ManifestError) Error() string {
	return fmt.Sprintf("capability %s has an invalid manifest: %s", e.Name, e.Reason)
}

// Loader implements lazy.Loader over a repository and a host executor.
type Loader struct {
	executor    *host.Executor
	finder      Finder
	lock        *lockfile.Lockfile
	constraints map[string]string
	logger      *slog.Logger
}

// Option configures a Loader.
type Option func(*Loader)

// WithFinder replaces the default filesystem repository.
func WithFinder(f Finder) Option {
	return func(l *Loader) { l.finder = f }
}

// WithLockfile verifies artifacts against pinned digests.
func WithLockfile(lock *lockfile.Lockfile) Option {
	return func(l *Loader) { l.lock = lock }
}

// WithConstraint requires the installed version of name to satisfy a
// semantic version constraint such as "^8.0".
func WithConstraint(name, constraint string) Option {
	return func(l *Loader) { l.constraints[name] = constraint }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewLoader creates a loader that instantiates artifacts in executor.
func NewLoader(executor *host.Executor, opts ...Option) *Loader {
	l := &Loader{
		executor:    executor,
		constraints: make(map[string]string),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.finder == nil {
		l.finder = repository.NewFSRepository(repository.WithLogger(l.logger))
	}
	return l
}

var _ lazy.Loader = (*Loader)(nil)

// Load finds, verifies, and instantiates the capability called name.
func (l *Loader) Load(ctx context.Context, name string) (lazy.Capability, error) {
	art, err := l.finder.Find(ctx, name)
	if err != nil {
		return nil, err
	}

	wasm, err := art.ReadWASM()
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	if err := l.verify(name, art, wasm); err != nil {
		return nil, err
	}

	meta, err := l.describe(name, art)
	if err != nil {
		return nil, err
	}

	inst, err := l.executor.Instantiate(ctx, name, wasm)
	if err != nil {
		return nil, err
	}

	for _, export := range meta.Exports {
		if !inst.HasExport(export) {
			_ = inst.Close(ctx)
			return nil, &ManifestError{Name: name, Reason: fmt.Sprintf("declared export %q is missing", export)}
		}
	}

	l.logger.DebugContext(ctx, "wasm capability ready", "name", name, "version", meta.Version, "path", art.WASMPath)
	return inst, nil
}

// verify checks the artifact against the lockfile pin and its own digest file.
func (l *Loader) verify(name string, art *repository.Artifact, wasm []byte) error {
	if err := l.lock.Verify(name, wasm); err != nil {
		return err
	}
	recorded, err := art.ReadDigest()
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", repository.DigestFile, err)
	}
	if recorded.IsZero() {
		return nil
	}
	return recorded.Verify(name, wasm)
}

// describe reads and checks the manifest. An artifact without one is
// described by its name alone.
func (l *Loader) describe(name string, art *repository.Artifact) (*manifest.Metadata, error) {
	meta, err := art.ReadManifest()
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = &manifest.Metadata{Name: name}
	} else {
		if err := manifest.Validate(meta); err != nil {
			return nil, err
		}
		if meta.Name != name {
			return nil, &ManifestError{Name: name, Reason: fmt.Sprintf("declares name %q", meta.Name)}
		}
	}
	if err := manifest.CheckVersion(meta, l.constraints[name]); err != nil {
		return nil, err
	}
	return meta, nil
}
