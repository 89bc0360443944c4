package extract

import (
	"bufio"
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/docpipe/internal/model"
)

// TextExtractor parses plain-text documents made of "key: value" lines.
// Values are typed by inference: ISO dates, booleans, and numbers are
// recognized; everything else stays a string. A trailing "@0.95" on a line
// overrides the default confidence for that field.
type TextExtractor struct {
	defaultConfidence float64
}

// NewTextExtractor creates a TextExtractor. A non-positive confidence
// falls back to 0.9.
func NewTextExtractor(defaultConfidence float64) *TextExtractor {
	if defaultConfidence <= 0 {
		defaultConfidence = 0.9
	}
	return &TextExtractor{defaultConfidence: defaultConfidence}
}

func (e *TextExtractor) Extract(_ context.Context, doc *model.Document, content []byte) (model.Snapshot, error) {
	snap := make(model.Snapshot)

	scanner := bufio.NewScanner(bytes.NewReader(content))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, rest, ok := strings.Cut(line, ":")
		if !ok {
			return nil, eris.Errorf("extract: %s line %d: missing ':' separator", doc.Filename, lineNo)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, eris.Errorf("extract: %s line %d: empty field name", doc.Filename, lineNo)
		}

		rest = strings.TrimSpace(rest)
		conf := e.defaultConfidence
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			if c, err := strconv.ParseFloat(strings.TrimSpace(rest[at+1:]), 64); err == nil && c >= 0 && c <= 1 {
				conf = c
				rest = strings.TrimSpace(rest[:at])
			}
		}

		snap[key] = model.FieldValue{
			Name:       key,
			Value:      inferValue(rest),
			Confidence: model.Confidence(conf),
			Provenance: model.ProvenanceExtracted,
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrapf(err, "extract: read %s", doc.Filename)
	}
	if len(snap) == 0 {
		return nil, eris.Errorf("extract: %s: no fields found", doc.Filename)
	}
	return snap, nil
}

func inferValue(s string) model.Value {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return model.Date(t)
	}
	switch strings.ToLower(s) {
	case "true":
		return model.Bool(true)
	case "false":
		return model.Bool(false)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return model.Number(f)
	}
	return model.String(s)
}
