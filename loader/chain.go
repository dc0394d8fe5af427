// Package loader provides composable lazy.Loader implementations.
package loader

import (
	"context"

	"github.com/reglet-dev/reglet-lazy/lazy"
)

// Chain tries loaders in order.
// Implements Chain of Responsibility pattern: a loader that reports the
// capability as not installed hands the lookup to the next one, any other
// outcome ends the chain.
type Chain struct {
	links []lazy.Loader
}

// NewChain creates a chain over the given loaders.
func NewChain(links ...lazy.Loader) *Chain {
	return &Chain{links: links}
}

// Append adds a loader to the end of the chain.
func (c *Chain) Append(l lazy.Loader) *Chain {
	c.links = append(c.links, l)
	return c
}

// Load asks each loader in turn.
func (c *Chain) Load(ctx context.Context, name string) (lazy.Capability, error) {
	var last error
	for _, link := range c.links {
		capability, err := link.Load(ctx, name)
		if err == nil {
			return capability, nil
		}
		if !lazy.IsNotInstalledFor(err, name) {
			return nil, err
		}
		last = err
	}
	return nil, &lazy.NotInstalledError{Name: name, Err: last}
}
