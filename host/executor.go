// Package host runs capability artifacts in a WebAssembly sandbox.
package host

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

const (
	// HostModule is the import namespace of functions the host exposes to guests.
	HostModule = "reglet"

	// InitializeExport is called once after instantiation when a guest exports it.
	InitializeExport = "_initialize"
)

// Executor owns a wazero runtime shared by every capability it instantiates.
type Executor struct {
	runtime     wazero.Runtime
	cache       wazero.CompilationCache
	logger      *slog.Logger
	memoryPages uint32
}

// NewExecutor creates a new executor with the given options.
func NewExecutor(ctx context.Context, opts ...Option) (*Executor, error) {
	e := &Executor{logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}

	// A done context stops a running guest by closing its module. Instance
	// reports that as an InterruptedError and reinitializes on the next call.
	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if e.cache != nil {
		cfg = cfg.WithCompilationCache(e.cache)
	}
	if e.memoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(e.memoryPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate WASI: %w", err)
	}
	e.runtime = rt

	if err := e.registerHostFunctions(ctx); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("failed to register host functions: %w", err)
	}

	return e, nil
}

// registerHostFunctions registers the host functions with the runtime.
func (e *Executor) registerHostFunctions(ctx context.Context) error {
	_, err := e.runtime.NewHostModuleBuilder(HostModule).
		NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(e.logMessage), []api.ValueType{api.ValueTypeI64}, []api.ValueType{}).
		WithParameterNames("message").
		Export("log_message").
		Instantiate(ctx)
	return err
}

// Instantiate compiles and instantiates wasm as the capability name, then
// runs its _initialize export if present. Each call yields an independent
// instance.
func (e *Executor) Instantiate(ctx context.Context, name string, wasm []byte) (*Instance, error) {
	compiled, err := e.runtime.CompileModule(ctx, wasm)
	if err != nil {
		return nil, fmt.Errorf("failed to compile module: %w", err)
	}

	mod, err := e.instantiate(ctx, name, compiled)
	if err != nil {
		_ = compiled.Close(ctx)
		return nil, err
	}

	inst := &Instance{name: name, executor: e, module: mod, compiled: compiled}
	e.logger.DebugContext(ctx, "capability instantiated", "name", name, "exports", len(inst.Exports()))
	return inst, nil
}

// instantiate creates a fresh module from compiled and initializes it.
func (e *Executor) instantiate(ctx context.Context, name string, compiled wazero.CompiledModule) (api.Module, error) {
	// Anonymous so the same artifact may be instantiated more than once.
	cfg := wazero.NewModuleConfig().WithName("").WithStartFunctions()
	mod, err := e.runtime.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to instantiate module: %w", err)
	}

	if init := mod.ExportedFunction(InitializeExport); init != nil {
		if _, err := init.Call(withCapability(ctx, name)); err != nil {
			_ = mod.Close(ctx)
			return nil, fmt.Errorf("failed to call %s: %w", InitializeExport, err)
		}
	}
	return mod, nil
}

// Close releases resources held by the executor, including every instance
// it created.
func (e *Executor) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}
