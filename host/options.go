package host

import (
	"log/slog"

	"github.com/tetratelabs/wazero"
)

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithLogger sets the logger guest log messages are forwarded to.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithCompilationCache configures the executor with a compilation cache.
func WithCompilationCache(cache wazero.CompilationCache) Option {
	return func(e *Executor) {
		e.cache = cache
	}
}

// WithMemoryLimitPages caps guest memory, in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(e *Executor) {
		e.memoryPages = pages
	}
}
