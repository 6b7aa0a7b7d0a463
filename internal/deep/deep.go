// Package deep runs the language-model pass that jointly interprets OCR text,
// capture metadata and vision tags into a structured semantic summary.
//
// Everything here is advisory: a failed or unparsable model reply degrades to
// "no hint available" and must never abort the pipeline.
package deep

import (
	"context"

	"github.com/snaplens/snaplens/internal/meta"
	"github.com/snaplens/snaplens/internal/vision"
)

// Payload caps applied before any model call. Lossy but safe: front elements
// are retained, order is preserved.
const (
	MaxOCRChars = 3000
	MaxTags     = 10
	MaxObjects  = 10
	MaxBrands   = 5
)

// Evidence is the joined analysis input for the model pass.
type Evidence struct {
	OCRText string
	Capture meta.Capture
	Place   meta.Place
	Tags    vision.Tags
}

// Truncated returns a copy of the evidence with the payload caps applied.
func (e Evidence) Truncated() Evidence {
	out := e
	if len(out.OCRText) > MaxOCRChars {
		out.OCRText = out.OCRText[:MaxOCRChars]
	}
	out.Tags.Tags = capList(out.Tags.Tags, MaxTags)
	out.Tags.Objects = capList(out.Tags.Objects, MaxObjects)
	out.Tags.Brands = capList(out.Tags.Brands, MaxBrands)
	return out
}

func capList(in []string, max int) []string {
	if len(in) <= max {
		return in
	}
	return in[:max]
}

// Result is the structured reply of the deep-analysis pass.
type Result struct {
	ContentType string   `json:"content_type"`
	Intents     []string `json:"intents"`
	Actions     []string `json:"actions"`
	Explanation string   `json:"explanation"`
}

// Hints is the structured reply of the entity-extraction pass. Empty lists
// and strings mean the model saw no such entity.
type Hints struct {
	Event    string   `json:"event"`
	People   []string `json:"people"`
	Products []string `json:"products"`
	Websites []string `json:"websites"`
	Places   []string `json:"places"`
	Dates    []string `json:"dates"`
	Prices   []string `json:"prices"`
}

// Merger produces an advisory deep-analysis result. A nil result with a
// non-nil error means "no advisory available"; callers record the error and
// proceed.
type Merger interface {
	Merge(ctx context.Context, ev Evidence) (*Result, error)
}

// EntityExtractor produces advisory entity hints under the same contract.
type EntityExtractor interface {
	Extract(ctx context.Context, ev Evidence) (*Hints, error)
}
