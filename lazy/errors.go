package lazy

import (
	"errors"
	"fmt"
)

// Sentinel errors for resolution failures.
// These allow both errors.Is() checks and errors.As() for detailed information.
var (
	// ErrNotInstalled is returned when a capability cannot be located by the loader.
	ErrNotInstalled = errors.New("capability not installed")

	// ErrInitialization is returned when a capability was located but failed to initialize.
	ErrInitialization = errors.New("capability initialization failed")

	// ErrEmptyName is returned when a handle bound to an empty name is accessed.
	ErrEmptyName = errors.New("capability name cannot be empty")

	// ErrNilCapability is the cause recorded when a loader reports success without a capability.
	ErrNilCapability = errors.New("loader returned nil capability")
)

// NotInstalledError indicates the named capability could not be located.
// The message names the capability so callers can tell users what to install.
type NotInstalledError struct {
	Name string

	// Err carries the loader's own not-found detail, if any.
	Err error
}

func (e *NotInstalledError) Error() string {
	return fmt.Sprintf("Module %s is not yet installed.", e.Name)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, lazy.ErrNotInstalled)
func (e *NotInstalledError) Is(target error) bool {
	return target == ErrNotInstalled
}

func (e *NotInstalledError) Unwrap() error {
	return e.Err
}

// CapabilityName returns the name of the missing capability.
func (e *NotInstalledError) CapabilityName() string {
	return e.Name
}

// Named is implemented by not-installed errors that record which capability
// was missing. Loaders should implement it on their own not-found errors so a
// missing dependency is never mistaken for the requested capability.
type Named interface {
	CapabilityName() string
}

// missingName returns the capability name recorded by the first Named error
// in err's chain.
func missingName(err error) (string, bool) {
	var named Named
	if errors.As(err, &named) {
		return named.CapabilityName(), true
	}
	return "", false
}

// InitializationError indicates the capability was found but its
// initialization failed. Cause is the original error, untouched.
type InitializationError struct {
	Name  string
	Cause error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("module %s failed to initialize: %v", e.Name, e.Cause)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, lazy.ErrInitialization)
func (e *InitializationError) Is(target error) bool {
	return target == ErrInitialization
}

// Unwrap exposes the original cause to errors.Is and errors.As.
func (e *InitializationError) Unwrap() error {
	return e.Cause
}

// PanicError records a panic raised by a loader while initializing a capability.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic during initialization: %v", e.Value)
}

// IsNotInstalled reports whether err means the requested capability is absent.
// An initialization failure caused by a missing dependency also matches
// ErrNotInstalled through its cause, but is not reported here.
func IsNotInstalled(err error) bool {
	return errors.Is(err, ErrNotInstalled) && !errors.Is(err, ErrInitialization)
}

// IsNotInstalledFor reports whether err means name itself is absent. A
// missing dependency reported while loading name does not count.
func IsNotInstalledFor(err error, name string) bool {
	if !IsNotInstalled(err) {
		return false
	}
	if missing, ok := missingName(err); ok {
		return missing == name
	}
	return true
}

// IsInitialization reports whether err means the capability failed to initialize.
func IsInitialization(err error) bool {
	return errors.Is(err, ErrInitialization)
}
