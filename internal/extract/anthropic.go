package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/docpipe/internal/model"
	"github.com/sells-group/docpipe/pkg/anthropic"
)

const extractionSystemPrompt = `You extract structured fields from business documents.
Respond with a single JSON object and nothing else. Each key is a field name
in snake_case; each value is an object {"value": <string|number|bool>, "confidence": <0..1>}.
Dates must be formatted YYYY-MM-DD. Do not invent fields that are not present.`

// AnthropicExtractor extracts fields from document text with a language
// model. The response is a flat JSON object of field name to value and
// confidence.
type AnthropicExtractor struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicExtractor creates an AnthropicExtractor.
func NewAnthropicExtractor(client anthropic.Client, modelID string, maxTokens int64) *AnthropicExtractor {
	if maxTokens <= 0 {
		maxTokens = 2048
	}
	return &AnthropicExtractor{client: client, model: modelID, maxTokens: maxTokens}
}

type extractedField struct {
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
}

func (e *AnthropicExtractor) Extract(ctx context.Context, doc *model.Document, content []byte) (model.Snapshot, error) {
	prompt := fmt.Sprintf("Document type: %s\nFilename: %s\n\n%s", doc.DocType, doc.Filename, string(content))

	resp, err := e.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     e.model,
		MaxTokens: e.maxTokens,
		System:    extractionSystemPrompt,
		Messages: []anthropic.Message{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, eris.Wrapf(err, "extract: %s", doc.ID)
	}
	resp.Usage.LogUsage(e.model, "extract")

	raw := stripFences(resp.Text)
	var fields map[string]extractedField
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, eris.Wrapf(err, "extract: %s: parse model response", doc.ID)
	}
	if len(fields) == 0 {
		return nil, eris.Errorf("extract: %s: no fields found", doc.ID)
	}

	snap := make(model.Snapshot, len(fields))
	for name, f := range fields {
		v, err := model.FromAny(f.Value)
		if err != nil {
			zap.L().Warn("skipping unconvertible field",
				zap.String("document_id", doc.ID),
				zap.String("field", name),
				zap.Error(err))
			continue
		}
		conf := f.Confidence
		if conf < 0 || conf > 1 {
			conf = 0
		}
		snap[name] = model.FieldValue{
			Name:       name,
			Value:      v,
			Confidence: model.Confidence(conf),
			Provenance: model.ProvenanceExtracted,
		}
	}
	if len(snap) == 0 {
		return nil, eris.Errorf("extract: %s: no usable fields", doc.ID)
	}
	return snap, nil
}

// stripFences removes a markdown code fence the model sometimes wraps
// around the JSON body.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
