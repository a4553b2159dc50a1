// Package catalog holds the active space objects of one simulation run.
package catalog

import (
	"errors"
	"fmt"

	"github.com/signalsfoundry/debris-avoidance-sim/model"
)

var (
	// ErrBodyExists indicates a body with the same ID is already catalogued.
	ErrBodyExists = errors.New("body already exists")
	// ErrBodyNotFound indicates a requested body is not catalogued.
	ErrBodyNotFound = errors.New("body not found")
	// ErrBodyInvalid indicates a body failed validation on insert.
	ErrBodyInvalid = errors.New("invalid body")
)

// Catalog is an ID-keyed store of bodies that remembers insertion order so
// iteration is deterministic. It is not safe for concurrent use; the engine
// that owns it serialises all access.
type Catalog struct {
	bodies map[string]*model.Body
	order  []string
}

// New constructs an empty catalog.
func New() *Catalog {
	return &Catalog{bodies: make(map[string]*model.Body)}
}

// Add inserts b. The catalog keeps the pointer so propagation can update the
// body in place.
func (c *Catalog) Add(b *model.Body) error {
	if b == nil || b.ID == "" {
		return fmt.Errorf("%w: empty id", ErrBodyInvalid)
	}
	if _, exists := c.bodies[b.ID]; exists {
		return fmt.Errorf("%w: %q", ErrBodyExists, b.ID)
	}
	c.bodies[b.ID] = b
	c.order = append(c.order, b.ID)
	return nil
}

// Get returns the body with the given ID, or nil if not found.
func (c *Catalog) Get(id string) *model.Body {
	return c.bodies[id]
}

// Has reports whether id is catalogued.
func (c *Catalog) Has(id string) bool {
	_, ok := c.bodies[id]
	return ok
}

// Remove deletes the body with the given ID.
func (c *Catalog) Remove(id string) error {
	if _, ok := c.bodies[id]; !ok {
		return fmt.Errorf("%w: %q", ErrBodyNotFound, id)
	}
	delete(c.bodies, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

// List returns the catalogued bodies in insertion order. The slice is new
// but the bodies are shared with the catalog.
func (c *Catalog) List() []*model.Body {
	res := make([]*model.Body, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, c.bodies[id])
	}
	return res
}

// Snapshot returns value copies of every body in insertion order.
func (c *Catalog) Snapshot() []model.Body {
	res := make([]model.Body, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, *c.bodies[id])
	}
	return res
}

// Len returns the number of catalogued bodies.
func (c *Catalog) Len() int { return len(c.order) }

// Sweep removes every body for which drop returns true and returns their IDs
// in insertion order.
func (c *Catalog) Sweep(drop func(*model.Body) bool) []string {
	var removed []string
	kept := c.order[:0]
	for _, id := range c.order {
		b := c.bodies[id]
		if drop(b) {
			delete(c.bodies, id)
			removed = append(removed, id)
			continue
		}
		kept = append(kept, id)
	}
	c.order = kept
	return removed
}
