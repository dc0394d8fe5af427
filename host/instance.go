package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

var (
	// ErrClosed is returned by calls on an instance after Close.
	ErrClosed = errors.New("capability instance closed")

	// ErrInterrupted is returned when a call is stopped because its context
	// was done.
	ErrInterrupted = errors.New("capability call interrupted")
)

// InterruptedError reports a call stopped by its context. The runtime
// discards the guest when this happens; the instance replaces it with a
// freshly initialized one on the next call, so guest state does not survive
// an interrupted call.
type InterruptedError struct {
	Name  string
	Func  string
	Cause error
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("call %s.%s interrupted: %v", e.Name, e.Func, e.Cause)
}

// Is implements error matching for errors.Is() checks.
// This allows: errors.Is(err, host.ErrInterrupted)
func (e *InterruptedError) Is(target error) bool {
	return target == ErrInterrupted
}

func (e *InterruptedError) Unwrap() error {
	return e.Cause
}

// Instance is an initialized capability running in the executor's runtime.
// Calls are serialized; guest memory is not safe for concurrent use.
type Instance struct {
	name     string
	executor *Executor
	compiled wazero.CompiledModule

	mu     sync.Mutex
	module api.Module
	closed bool
}

// Name returns the capability name the instance was created under.
func (i *Instance) Name() string {
	return i.name
}

// Exports returns the sorted names of exported functions.
func (i *Instance) Exports() []string {
	defs := i.compiled.ExportedFunctions()
	names := make([]string, 0, len(defs))
	for name := range defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasExport reports whether the instance exports a function called fn.
func (i *Instance) HasExport(fn string) bool {
	_, ok := i.compiled.ExportedFunctions()[fn]
	return ok
}

// Call invokes an exported function with raw wasm values.
func (i *Instance) Call(ctx context.Context, fn string, params ...uint64) ([]uint64, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx = withCapability(ctx, i.name)
	mod, err := i.live(ctx)
	if err != nil {
		return nil, err
	}

	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("function %q not found", fn)
	}
	res, err := f.Call(ctx, params...)
	if err != nil {
		return nil, i.callError(ctx, mod, fn, err)
	}
	return res, nil
}

// Invoke passes input to fn using the packed pointer/length convention and
// returns a copy of the bytes fn points back to. The guest must export
// "allocate" when input is non-empty.
func (i *Instance) Invoke(ctx context.Context, fn string, input []byte) ([]byte, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	ctx = withCapability(ctx, i.name)
	mod, err := i.live(ctx)
	if err != nil {
		return nil, err
	}

	f := mod.ExportedFunction(fn)
	if f == nil {
		return nil, fmt.Errorf("function %q not found", fn)
	}

	var ptr, length uint32
	if len(input) > 0 {
		allocate := mod.ExportedFunction("allocate")
		if allocate == nil {
			return nil, fmt.Errorf("function 'allocate' not exported")
		}
		res, err := allocate.Call(ctx, uint64(len(input)))
		if err != nil {
			return nil, i.callError(ctx, mod, "allocate", err)
		}
		//nolint:gosec // WASM pointers are 32-bit
		ptr = uint32(res[0])
		//nolint:gosec // input length bounded by guest memory
		length = uint32(len(input))

		if !mod.Memory().Write(ptr, input) {
			return nil, fmt.Errorf("failed to write input to memory")
		}
	}

	res, err := f.Call(ctx, packPtrLen(ptr, length))
	if err != nil {
		return nil, i.callError(ctx, mod, fn, err)
	}
	if len(res) == 0 {
		return nil, nil
	}

	outPtr, outLen := unpackPtrLen(res[0])
	if outLen == 0 {
		return nil, nil
	}
	data, ok := mod.Memory().Read(outPtr, outLen)
	if !ok {
		return nil, fmt.Errorf("failed to read result from memory")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// live returns a usable module, replacing one the runtime closed after an
// interrupted call. Must be called with i.mu held.
func (i *Instance) live(ctx context.Context) (api.Module, error) {
	if i.closed {
		return nil, ErrClosed
	}
	if !i.module.IsClosed() {
		return i.module, nil
	}

	i.executor.logger.WarnContext(ctx, "reinitializing interrupted capability", "name", i.name)
	mod, err := i.executor.instantiate(ctx, i.name, i.compiled)
	if err != nil {
		return nil, fmt.Errorf("failed to reinitialize %s: %w", i.name, err)
	}
	i.module = mod
	return mod, nil
}

// callError wraps a failed call, marking it interrupted when the runtime
// closed the module because ctx was done.
func (i *Instance) callError(ctx context.Context, mod api.Module, fn string, err error) error {
	if ctx.Err() != nil && mod.IsClosed() {
		return &InterruptedError{Name: i.name, Func: fn, Cause: err}
	}
	return fmt.Errorf("call %s.%s failed: %w", i.name, fn, err)
}

// Close releases the instance and its compiled module. Later calls fail
// with ErrClosed.
func (i *Instance) Close(ctx context.Context) error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return nil
	}
	i.closed = true

	err := i.module.Close(ctx)
	if cerr := i.compiled.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

func packPtrLen(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

func unpackPtrLen(packed uint64) (ptr, length uint32) {
	//nolint:gosec // WASM pointers and lengths are 32-bit
	return uint32(packed >> 32), uint32(packed)
}
