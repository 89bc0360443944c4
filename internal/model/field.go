package model

import (
	"sort"
	"time"
)

// Provenance records how a field value entered the pipeline.
type Provenance string

const (
	ProvenanceExtracted Provenance = "EXTRACTED"
	ProvenanceCorrected Provenance = "CORRECTED"
)

// FieldValue is an extracted or corrected field with its confidence.
// Confidence is nil when the extractor reported none; routing treats a
// missing confidence as the minimum value.
type FieldValue struct {
	Name       string     `json:"name"`
	Value      Value      `json:"value"`
	Confidence *float64   `json:"confidence,omitempty"`
	Provenance Provenance `json:"provenance"`
}

// Snapshot is a document's current extraction: field name to FieldValue,
// names unique, insertion order irrelevant.
type Snapshot map[string]FieldValue

// Correction is a reviewer's override of a single field.
type Correction struct {
	Field    FieldValue `json:"field"`
	Reviewer string     `json:"reviewer"`
	Reason   string     `json:"reason,omitempty"`
	At       time.Time  `json:"at"`
}

// Apply layers corrections over the snapshot, producing a new snapshot.
// The correction wins on conflict and is marked CORRECTED. The receiver
// is not modified.
func (s Snapshot) Apply(corrections []Correction) Snapshot {
	out := make(Snapshot, len(s)+len(corrections))
	for name, fv := range s {
		out[name] = fv
	}
	for _, c := range corrections {
		fv := c.Field
		fv.Provenance = ProvenanceCorrected
		if fv.Name == "" {
			continue
		}
		out[fv.Name] = fv
	}
	return out
}

// MinConfidence returns the lowest confidence across all fields. A field
// without a confidence counts as 0. An empty snapshot returns 0.
func (s Snapshot) MinConfidence() float64 {
	if len(s) == 0 {
		return 0
	}
	minConf := 1.0
	for _, fv := range s {
		c := 0.0
		if fv.Confidence != nil {
			c = *fv.Confidence
		}
		if c < minConf {
			minConf = c
		}
	}
	return minConf
}

// FieldNames returns the snapshot's field names in sorted order.
func (s Snapshot) FieldNames() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Confidence is a convenience for building *float64 confidence values.
func Confidence(c float64) *float64 { return &c }
