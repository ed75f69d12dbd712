package tools

import (
	"context"
	"sort"

	"komoridev/deepshack/internal/api"
	"komoridev/deepshack/internal/core"
)

// Capability is a callable the model may invoke. Execute receives arguments
// already coerced to the declared parameter types and returns a textual
// result fed back into the conversation.
type Capability interface {
	Schema() Schema
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// Registry holds the registered capabilities. It is populated at startup and
// read-only afterwards, so lookups take no lock.
type Registry struct {
	capabilities map[string]Capability
}

// NewRegistry creates an empty capability registry.
func NewRegistry() *Registry {
	return &Registry{capabilities: make(map[string]Capability)}
}

// Register adds a capability, replacing any previous one of the same name.
func (r *Registry) Register(c Capability) {
	schema := c.Schema()
	core.GetLogger().Infow("registered capability", "name", schema.Name)
	r.capabilities[schema.Name] = c
}

// Get retrieves a capability by name.
func (r *Registry) Get(name string) (Capability, bool) {
	c, ok := r.capabilities[name]
	return c, ok
}

// Specs returns the wire tool specifications for all capabilities, sorted by
// name so request bodies are deterministic.
func (r *Registry) Specs() []api.ToolSpec {
	if len(r.capabilities) == 0 {
		return nil
	}
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	sort.Strings(names)

	specs := make([]api.ToolSpec, 0, len(names))
	for _, name := range names {
		specs = append(specs, r.capabilities[name].Schema().Spec())
	}
	return specs
}
