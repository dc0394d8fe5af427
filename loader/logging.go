package loader

import (
	"context"
	"log/slog"
	"time"

	"github.com/reglet-dev/reglet-lazy/lazy"
)

// Logging wraps a loader and logs every lookup it performs.
type Logging struct {
	next   lazy.Loader
	logger *slog.Logger
	source string
}

// NewLogging creates a logging decorator. source labels the wrapped loader
// in log records (e.g. "static", "wasm").
func NewLogging(next lazy.Loader, source string, logger *slog.Logger) *Logging {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logging{next: next, logger: logger, source: source}
}

// Load delegates to the wrapped loader.
func (l *Logging) Load(ctx context.Context, name string) (lazy.Capability, error) {
	start := time.Now()
	capability, err := l.next.Load(ctx, name)
	attrs := []any{
		"name", name,
		"source", l.source,
		"duration", time.Since(start),
	}
	switch {
	case err == nil:
		l.logger.InfoContext(ctx, "capability loaded", attrs...)
	case lazy.IsNotInstalledFor(err, name):
		l.logger.DebugContext(ctx, "capability not found", attrs...)
	default:
		l.logger.ErrorContext(ctx, "capability load failed", append(attrs, "error", err)...)
	}
	return capability, err
}
