// Package repository locates installed capability artifacts on disk.
package repository

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/reglet-dev/reglet-lazy/lazy"
	"github.com/reglet-dev/reglet-lazy/lockfile"
	"github.com/reglet-dev/reglet-lazy/manifest"
)

const (
	// EnvSearchPath overrides the default search path. It holds a list of
	// directories separated by os.PathListSeparator.
	EnvSearchPath = "REGLET_CAPABILITY_PATH"

	// ArtifactFile is the module binary inside a capability directory.
	ArtifactFile = "capability.wasm"

	// DigestFile optionally records the artifact's digest.
	DigestFile = "digest.txt"
)

// NotFoundError indicates no root on the search path holds the capability.
type NotFoundError struct {
	Name     string
	Searched []string
	Reason   string
}

func (e *NotFoundError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("capability %s not found: %s", e.Name, e.Reason)
	}
	return fmt.Sprintf("capability %s not found in %s", e.Name, strings.Join(e.Searched, string(os.PathListSeparator)))
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, lazy.ErrNotInstalled)
func (e *NotFoundError) Is(target error) bool {
	return target == lazy.ErrNotInstalled
}

// CapabilityName returns the name that could not be found.
func (e *NotFoundError) CapabilityName() string {
	return e.Name
}

// Artifact is an installed capability found on the search path.
type Artifact struct {
	Name     string
	Dir      string
	WASMPath string

	// MaxSize bounds ReadWASM; zero or less means unbounded.
	MaxSize int64
}

// ReadWASM reads the module binary.
func (a *Artifact) ReadWASM() ([]byte, error) {
	return readFileLimited(a.WASMPath, a.MaxSize)
}

// ReadManifest parses the first manifest file present in the artifact
// directory. It returns nil and no error when the artifact has no manifest.
func (a *Artifact) ReadManifest() (*manifest.Metadata, error) {
	for _, name := range manifest.Filenames {
		data, err := readFileLimited(filepath.Join(a.Dir, name), maxManifestSize)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		parser, err := manifest.ParserFor(name)
		if err != nil {
			return nil, err
		}
		meta, err := parser.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return meta, nil
	}
	return nil, nil
}

// ReadDigest returns the digest recorded next to the artifact, or the zero
// digest when none is recorded.
func (a *Artifact) ReadDigest() (lockfile.Digest, error) {
	data, err := readFileLimited(filepath.Join(a.Dir, DigestFile), maxManifestSize)
	if errors.Is(err, fs.ErrNotExist) {
		return lockfile.Digest{}, nil
	}
	if err != nil {
		return lockfile.Digest{}, err
	}
	return lockfile.ParseDigest(string(data))
}

// FSRepository finds capabilities in an ordered list of root directories.
type FSRepository struct {
	roots   []string
	maxSize int64
	logger  *slog.Logger
}

// Option configures an FSRepository.
type Option func(*FSRepository)

// WithRoots sets the search path, replacing the default.
func WithRoots(roots ...string) Option {
	return func(r *FSRepository) { r.roots = roots }
}

// WithMaxArtifactSize bounds artifact reads. Zero or less disables the bound.
func WithMaxArtifactSize(n int64) Option {
	return func(r *FSRepository) { r.maxSize = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *FSRepository) { r.logger = l }
}

// NewFSRepository creates a filesystem-based repository.
func NewFSRepository(opts ...Option) *FSRepository {
	r := &FSRepository{
		roots:   DefaultRoots(),
		maxSize: DefaultMaxArtifactSize,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// DefaultRoots returns the search path from REGLET_CAPABILITY_PATH, falling
// back to ~/.reglet/capabilities.
func DefaultRoots() []string {
	if v := os.Getenv(EnvSearchPath); v != "" {
		var roots []string
		for _, root := range filepath.SplitList(v) {
			if root != "" {
				roots = append(roots, root)
			}
		}
		if len(roots) > 0 {
			return roots
		}
	}
	home, _ := os.UserHomeDir()
	return []string{filepath.Join(home, ".reglet", "capabilities")}
}

// Roots returns the search path.
func (r *FSRepository) Roots() []string {
	return append([]string(nil), r.roots...)
}

// Find returns the first installed artifact for name on the search path.
// Roots are consulted on every call; nothing is cached.
func (r *FSRepository) Find(ctx context.Context, name string) (*Artifact, error) {
	if err := ValidateName(name); err != nil {
		return nil, &NotFoundError{Name: name, Reason: err.Error()}
	}

	for _, root := range r.roots {
		dir, err := capabilityPath(root, name)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping capability root", "root", root, "name", name, "error", err)
			continue
		}
		wasmPath := filepath.Join(dir, ArtifactFile)
		info, err := os.Stat(wasmPath)
		if errors.Is(err, fs.ErrNotExist) || errors.Is(err, syscall.ENOTDIR) {
			continue
		}
		if err != nil {
			// Present but unreadable is a broken install, not a missing one.
			return nil, fmt.Errorf("failed to inspect capability %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}
		r.logger.DebugContext(ctx, "capability found", "name", name, "path", wasmPath)
		return &Artifact{Name: name, Dir: dir, WASMPath: wasmPath, MaxSize: r.maxSize}, nil
	}

	return nil, &NotFoundError{Name: name, Searched: r.Roots()}
}

// ValidateName checks that name can be mapped safely onto a directory.
// A valid name is one or more "/"-separated segments, each containing only
// alphanumerics, underscores, hyphens, and dots, and at most 64 characters.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("capability name cannot be empty")
	}
	if strings.HasPrefix(name, "/") || strings.Contains(name, `\`) {
		return fmt.Errorf("capability name cannot be an absolute path")
	}
	for _, seg := range strings.Split(name, "/") {
		switch {
		case seg == "":
			return fmt.Errorf("capability name %q has an empty segment", name)
		case seg == "." || seg == "..":
			return fmt.Errorf("capability name cannot contain directory references")
		case len(seg) > 64:
			return fmt.Errorf("capability name segment too long (max 64 chars)")
		}
		for _, ch := range seg {
			if !isValidNameChar(ch) {
				return fmt.Errorf("invalid capability name %q: must contain only alphanumeric characters, underscores, hyphens, and dots", name)
			}
		}
	}
	return nil
}

func isValidNameChar(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9') ||
		r == '_' ||
		r == '-' ||
		r == '.'
}

func capabilityPath(root, name string) (string, error) {
	fullPath := filepath.Join(root, filepath.FromSlash(name))

	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(fullPath)

	// Security: Verify the resolved path is still within the root directory
	if !strings.HasPrefix(cleanPath, cleanRoot+string(os.PathSeparator)) {
		return "", fmt.Errorf("security violation: path traversal detected for capability %q", name)
	}
	return cleanPath, nil
}
