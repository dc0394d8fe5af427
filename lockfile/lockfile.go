// Package lockfile pins installed capabilities to content digests.
//
// A pinned capability whose artifact no longer matches its digest is still
// installed, but refuses to initialize.
package lockfile

import (
	"errors"
	"fmt"
	"time"
)

// ErrIntegrityCheckFailed is returned when digest verification fails.
var ErrIntegrityCheckFailed = errors.New("integrity check failed")

// IntegrityError indicates digest mismatch.
type IntegrityError struct {
	Name     string
	Expected Digest
	Actual   Digest
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf(
		"integrity check failed for %s: expected %s, got %s",
		e.Name,
		e.Expected.String(),
		e.Actual.String(),
	)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, lockfile.ErrIntegrityCheckFailed)
func (e *IntegrityError) Is(target error) bool {
	return target == ErrIntegrityCheckFailed
}

// Lockfile maps capability names to pinned digests.
//
// Invariants:
// - Each pin must carry a parseable digest
type Lockfile struct {
	Generated    time.Time
	Capabilities map[string]Pin
	Version      int
}

// Pin is a single pinned capability.
type Pin struct {
	Pinned time.Time
	Digest string
	Source string
}

// New creates an empty lockfile.
func New() *Lockfile {
	return &Lockfile{
		Version:      1,
		Generated:    time.Now().UTC(),
		Capabilities: make(map[string]Pin),
	}
}

// Add pins a capability. Returns error if the digest is missing or malformed.
func (l *Lockfile) Add(name string, pin Pin) error {
	if _, err := ParseDigest(pin.Digest); err != nil {
		return fmt.Errorf("capability %q: %w", name, err)
	}
	if l.Capabilities == nil {
		l.Capabilities = make(map[string]Pin)
	}
	l.Capabilities[name] = pin
	return nil
}

// Get returns the pin for name. Returns nil if the capability is not pinned.
func (l *Lockfile) Get(name string) *Pin {
	if l == nil || l.Capabilities == nil {
		return nil
	}
	if pin, ok := l.Capabilities[name]; ok {
		return &pin
	}
	return nil
}

// Validate checks lockfile invariants.
func (l *Lockfile) Validate() error {
	for name, pin := range l.Capabilities {
		if _, err := ParseDigest(pin.Digest); err != nil {
			return fmt.Errorf("capability %q: %w", name, err)
		}
	}
	return nil
}

// Verify checks data against the pin for name. Unpinned capabilities and a
// nil lockfile always pass.
func (l *Lockfile) Verify(name string, data []byte) error {
	pin := l.Get(name)
	if pin == nil {
		return nil
	}
	expected, err := ParseDigest(pin.Digest)
	if err != nil {
		return fmt.Errorf("capability %q: %w", name, err)
	}
	return expected.Verify(name, data)
}
