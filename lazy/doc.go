// Package lazy lets a host reference an optional capability by name before
// it is known to be available.
//
// A Module handle is returned immediately and performs no lookup. The first
// call that needs the real capability (Get, As, Do, MustGet) asks the
// Resolver's Loader for it. Success is memoized on the handle and the Loader
// is never consulted again for that handle. Failures are reported as either
// a *NotInstalledError ("Module <name> is not yet installed.") or an
// *InitializationError wrapping the original cause.
//
// By default failures are not cached: every access after a failure repeats
// the lookup, so a capability installed after the handle was created becomes
// visible without recreating the handle. WithFailurePolicy(CacheFailures)
// switches to remembering the first failure.
//
// Basic usage:
//
//	resolver := lazy.NewResolver(loader)
//	click := resolver.Module("click")
//
//	// Inspecting the handle never triggers a lookup.
//	fmt.Println(click.Name())
//
//	cap, err := click.Get(ctx)
//	if lazy.IsNotInstalled(err) {
//	    // tell the user to install "click"
//	}
package lazy
