package lazy

import "log/slog"

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithFailurePolicy sets how handles react to failed resolutions.
// The default is RetryOnAccess.
func WithFailurePolicy(p Policy) Option {
	return func(r *Resolver) { r.policy = p }
}
