package fetch

import (
	"context"

	"github.com/sells-group/docpipe/internal/model"
)

// StaticConnector serves a fixed comparator payload. Used for demo target
// configurations and wiring tests; real deployments use http targets.
type StaticConnector struct {
	name    string
	payload map[string]model.Value
}

// NewStaticConnector creates a connector that always returns payload.
func NewStaticConnector(name string, payload map[string]model.Value) *StaticConnector {
	return &StaticConnector{name: name, payload: payload}
}

func (c *StaticConnector) Name() string { return c.name }

func (c *StaticConnector) Fetch(ctx context.Context, doc *model.Document, snapshot model.Snapshot) (map[string]model.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]model.Value, len(c.payload))
	for k, v := range c.payload {
		out[k] = v
	}
	return out, nil
}
