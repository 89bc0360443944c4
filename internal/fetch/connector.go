package fetch

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docpipe/internal/model"
)

// Connector fetches comparator field values from one named external target.
// Implementations must honor the context deadline and return rather than
// hang; the orchestrator classifies deadline expiry as TIMEOUT.
type Connector interface {
	Name() string
	Fetch(ctx context.Context, doc *model.Document, snapshot model.Snapshot) (map[string]model.Value, error)
}

// Registry maps target names to connectors. Registration happens at process
// start, not at call time.
type Registry struct {
	conns map[string]Connector
	order []string // insertion order for deterministic iteration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]Connector)}
}

// Register adds a connector. A later registration under the same name
// replaces the earlier one.
func (r *Registry) Register(c Connector) {
	name := c.Name()
	if _, exists := r.conns[name]; !exists {
		r.order = append(r.order, name)
	}
	r.conns[name] = c
}

// Get returns the connector for a target name.
func (r *Registry) Get(name string) (Connector, error) {
	c, ok := r.conns[name]
	if !ok {
		return nil, eris.Errorf("fetch: unknown target %q", name)
	}
	return c, nil
}

// Names returns all registered target names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}
