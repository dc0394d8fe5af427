package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-yaml"
)

// DefaultName is the conventional lockfile name inside a capability root.
const DefaultName = "capabilities.lock"

// document is the YAML structure of a lockfile.
type document struct {
	Generated    time.Time         `yaml:"generated"`
	Capabilities map[string]pinDoc `yaml:"capabilities"`
	Version      int               `yaml:"lockfile_version"`
}

type pinDoc struct {
	Pinned time.Time `yaml:"pinned,omitempty"`
	Digest string    `yaml:"digest"`
	Source string    `yaml:"source,omitempty"`
}

func (d *document) toLockfile() *Lockfile {
	l := &Lockfile{
		Generated:    d.Generated,
		Version:      d.Version,
		Capabilities: make(map[string]Pin, len(d.Capabilities)),
	}
	for name, p := range d.Capabilities {
		l.Capabilities[name] = Pin{Pinned: p.Pinned, Digest: p.Digest, Source: p.Source}
	}
	return l
}

func fromLockfile(l *Lockfile) *document {
	d := &document{
		Generated:    l.Generated,
		Version:      l.Version,
		Capabilities: make(map[string]pinDoc, len(l.Capabilities)),
	}
	for name, p := range l.Capabilities {
		d.Capabilities[name] = pinDoc{Pinned: p.Pinned, Digest: p.Digest, Source: p.Source}
	}
	return d
}

// Load reads a lockfile from path. A missing file yields a nil lockfile and
// no error: nothing is pinned.
func Load(ctx context.Context, path string) (*Lockfile, error) {
	dir := filepath.Dir(path)
	base := filepath.Base(path)

	root, err := os.OpenRoot(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open directory %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	file, err := root.Open(base)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open lockfile %q: %w", base, err)
	}
	defer func() { _ = file.Close() }()

	var doc document
	if err := yaml.NewDecoder(file).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding lockfile YAML: %w", err)
	}

	lock := doc.toLockfile()
	if err := lock.Validate(); err != nil {
		return nil, fmt.Errorf("invalid lockfile: %w", err)
	}
	return lock, nil
}

// Save writes a lockfile to path, creating the directory if needed.
func Save(ctx context.Context, lock *Lockfile, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating directory %q: %w", dir, err)
	}

	root, err := os.OpenRoot(dir)
	if err != nil {
		return fmt.Errorf("opening directory for write %q: %w", dir, err)
	}
	defer func() { _ = root.Close() }()

	base := filepath.Base(path)
	file, err := root.OpenFile(base, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("creating lockfile %q: %w", base, err)
	}
	defer func() { _ = file.Close() }()

	encoder := yaml.NewEncoder(file)
	defer func() { _ = encoder.Close() }()

	if err := encoder.Encode(fromLockfile(lock)); err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	return nil
}
