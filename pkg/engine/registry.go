package engine

import (
	"fmt"
	"sync"
)

// Component is a registered schema together with its registration callback.
type Component struct {
	Schema   *ComponentSchema
	Register RegisterFunc
	position int
}

// ComponentRegistry holds every known component. It is populated during an
// explicit initialization phase and frozen before builds use it; a frozen
// registry is safe for concurrent readers.
type ComponentRegistry struct {
	mu         sync.RWMutex
	components map[string]*Component
	order      []string
	frozen     bool
}

// NewComponentRegistry creates an empty registry.
func NewComponentRegistry() *ComponentRegistry {
	return &ComponentRegistry{
		components: make(map[string]*Component),
		order:      make([]string, 0),
	}
}

// Register adds a component schema and its callback. It fails if the schema
// recorded a definition error, the identifier is taken, or the registry is frozen.
func (r *ComponentRegistry) Register(schema *ComponentSchema, fn RegisterFunc) error {
	if schema == nil {
		return fmt.Errorf("schema cannot be nil")
	}
	if err := schema.Err(); err != nil {
		return err
	}
	if schema.ID == "" {
		return NewConfigError(KindSchemaRedefinition, "", "component identifier must not be empty")
	}
	if fn == nil {
		return NewConfigError(KindSchemaRedefinition, schema.ID, "component has no registration callback")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("registry is frozen, cannot register %s", schema.ID)
	}
	if _, exists := r.components[schema.ID]; exists {
		return NewConfigError(KindSchemaRedefinition, schema.ID, "component is registered twice")
	}

	r.components[schema.ID] = &Component{
		Schema:   schema,
		Register: fn,
		position: len(r.order),
	}
	r.order = append(r.order, schema.ID)
	return nil
}

// Freeze ends the initialization phase. Later Register calls fail.
func (r *ComponentRegistry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Frozen reports whether the registry is read-only.
func (r *ComponentRegistry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.frozen
}

// Get returns a registered component.
func (r *ComponentRegistry) Get(id string) (*Component, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.components[id]
	return c, ok
}

// Schema returns the schema of a registered component.
func (r *ComponentRegistry) Schema(id string) (*ComponentSchema, bool) {
	c, ok := r.Get(id)
	if !ok {
		return nil, false
	}
	return c.Schema, true
}

// IDs returns the registered identifiers in registration order.
func (r *ComponentRegistry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// Len returns the number of registered components.
func (r *ComponentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// CheckReferences verifies that every dependency, conflict and auto-load
// declared by a registered schema names a registered component.
func (r *ComponentRegistry) CheckReferences() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var errs ErrorList
	for _, id := range r.order {
		s := r.components[id].Schema
		for _, ref := range append(append(s.Dependencies(), s.Conflicts()...), s.AutoLoad()...) {
			if _, ok := r.components[ref]; !ok {
				errs = append(errs, NewConfigError(KindUnknownComponent, id,
					fmt.Sprintf("schema references unknown component %s", ref)).WithOther(ref))
			}
		}
	}
	return errs.ErrOrNil()
}
