// Package extract turns raw document bytes into a typed field snapshot.
package extract

import (
	"context"

	"github.com/sells-group/docpipe/internal/model"
)

// Extractor produces the initial field snapshot for an ingested document.
type Extractor interface {
	Extract(ctx context.Context, doc *model.Document, content []byte) (model.Snapshot, error)
}
