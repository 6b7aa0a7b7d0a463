package classify

import (
	"strings"

	"github.com/snaplens/snaplens/internal/deep"
	"github.com/snaplens/snaplens/internal/meta"
	"github.com/snaplens/snaplens/internal/vision"
)

// hintRule is one step of the coarse advisory cascade.
type hintRule struct {
	name  string
	label ContentType
	match func(*deep.Hints) bool
}

// hintCascade is coarser than the deterministic cascade: the model path is
// higher-recall but unreliable, so only strong entity signals short-circuit.
var hintCascade = []hintRule{
	{
		name:  "event-signal",
		label: EventFlyer,
		match: func(h *deep.Hints) bool { return strings.TrimSpace(h.Event) != "" },
	},
	{
		name:  "product-and-person",
		label: Book,
		match: func(h *deep.Hints) bool { return len(h.Products) > 0 && len(h.People) > 0 },
	},
	{
		name:  "product-only",
		label: Product,
		match: func(h *deep.Hints) bool { return len(h.Products) > 0 },
	},
	{
		name:  "website-no-person",
		label: Generic,
		match: func(h *deep.Hints) bool { return len(h.Websites) > 0 && len(h.People) == 0 },
	},
}

// Reconcile folds the advisory model outputs into a final content type.
//
// Precedence: entity hints run through the coarse cascade first; if they do
// not match, a deep-analysis result naming a recognized content type is used;
// everything else falls through to the deterministic cascade. Both advisory
// inputs may be nil.
func Reconcile(hints *deep.Hints, result *deep.Result, tags vision.Tags, ocrText string, capture meta.Capture) ContentType {
	if hints != nil {
		for _, r := range hintCascade {
			if r.match(hints) {
				return r.label
			}
		}
	}
	if result != nil {
		if ct, ok := Parse(result.ContentType); ok {
			return ct
		}
	}
	return Classify(tags, ocrText, capture)
}
