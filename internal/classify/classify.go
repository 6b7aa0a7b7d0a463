// Package classify assigns a content-type label to an analyzed image.
//
// Two tiers: a deterministic rule cascade that is always available, and an
// advisory reconciliation layer that lets model-derived hints take precedence
// when they exist. Both cascades are ordered rule tables evaluated
// top-to-bottom with first-match-wins semantics.
package classify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/snaplens/snaplens/internal/meta"
	"github.com/snaplens/snaplens/internal/vision"
)

// ContentType is the closed classification set. Generic is the universal
// fallback, never an error state.
type ContentType string

const (
	Book           ContentType = "Book"
	EventFlyer     ContentType = "EventFlyer"
	PartialArticle ContentType = "PartialArticle"
	Clothing       ContentType = "Clothing"
	Product        ContentType = "Product"
	Generic        ContentType = "Generic"
)

// All lists every content type in declaration order.
var All = []ContentType{Book, EventFlyer, PartialArticle, Clothing, Product, Generic}

// Parse normalizes a free-form label (e.g. from a model reply) into the
// closed set. The second return is false for anything unrecognized.
func Parse(raw string) (ContentType, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	for _, ct := range All {
		if s == strings.ToLower(string(ct)) {
			return ct, true
		}
	}
	return Generic, false
}

// input is the lowercased view of the evidence that rules match against.
type input struct {
	tags []string
	text string
}

type rule struct {
	name  string
	label ContentType
	match func(input) bool
}

var (
	attributionRe = regexp.MustCompile(`by\s+\w`)
	timeOfDayRe   = regexp.MustCompile(`\b\d{1,2}:\d{2}(am|pm)?\b`)
	apparelTextRe = regexp.MustCompile(`graphic tee|t-shirt`)
)

// cascade is ordered most-specific first: explicit tags and the attribution
// pattern have low false-positive rates, while broad product tags trigger
// easily. A flyer carrying a brand tag must still classify as an event.
var cascade = []rule{
	{
		name:  "book",
		label: Book,
		match: func(in input) bool {
			return slices.Contains(in.tags, "book") || attributionRe.MatchString(in.text)
		},
	},
	{
		name:  "event-flyer",
		label: EventFlyer,
		match: func(in input) bool {
			return timeOfDayRe.MatchString(in.text) && strings.Contains(in.text, "tickets")
		},
	},
	{
		name:  "partial-article",
		label: PartialArticle,
		match: func(in input) bool {
			return len(in.text) > 300 && strings.Contains(in.text, "...")
		},
	},
	{
		name:  "clothing",
		label: Clothing,
		match: func(in input) bool {
			return slices.Contains(in.tags, "clothing") ||
				slices.Contains(in.tags, "apparel") ||
				apparelTextRe.MatchString(in.text)
		},
	},
	{
		name:  "product",
		label: Product,
		match: func(in input) bool {
			return slices.Contains(in.tags, "product") ||
				slices.Contains(in.tags, "label") ||
				slices.Contains(in.tags, "brand")
		},
	},
}

// Classify maps the deterministic evidence to exactly one content type. Pure
// function: no side effects, no network, identical inputs yield identical
// output.
func Classify(tags vision.Tags, ocrText string, _ meta.Capture) ContentType {
	in := input{
		tags: lowerAll(tags.Tags),
		text: strings.ToLower(ocrText),
	}
	for _, r := range cascade {
		if r.match(in) {
			return r.label
		}
	}
	return Generic
}

func lowerAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
