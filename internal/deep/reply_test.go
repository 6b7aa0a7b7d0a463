package deep

import (
	"errors"
	"testing"
)

func TestParseResult(t *testing.T) {
	t.Parallel()

	reply := `{
	  "content_type": "Book",
	  "intents": ["learn about book"],
	  "actions": ["View on Goodreads"],
	  "explanation": "Cover art with an author attribution."
	}`
	got, err := parseResult(reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ContentType != "Book" {
		t.Fatalf("unexpected content type %q", got.ContentType)
	}
	if len(got.Intents) != 1 || got.Intents[0] != "learn about book" {
		t.Fatalf("unexpected intents: %v", got.Intents)
	}
}

func TestParseResultRejectsBadReplies(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		reply string
	}{
		{"empty", ""},
		{"whitespace", "   \n"},
		{"not json", "Sure! Here is the analysis you asked for."},
		{"truncated json", `{"content_type": "Book", "intents": [`},
		{"missing required fields", `{"content_type": "Book"}`},
		{"wrong field type", `{"content_type": 7, "intents": [], "actions": [], "explanation": ""}`},
		{"array instead of object", `[1, 2, 3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := parseResult(tt.reply)
			if !errors.Is(err, ErrUnparsableReply) {
				t.Fatalf("expected ErrUnparsableReply, got %v", err)
			}
			if got != nil {
				t.Fatalf("expected nil result, got %+v", got)
			}
		})
	}
}

func TestParseHints(t *testing.T) {
	t.Parallel()

	reply := `{
	  "event": "Jazz Night",
	  "people": ["Miles"],
	  "products": [],
	  "websites": ["club.example"],
	  "places": ["Blue Note"],
	  "dates": ["2024-06-01"],
	  "prices": ["$25"]
	}`
	got, err := parseHints(reply)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Event != "Jazz Night" {
		t.Fatalf("unexpected event %q", got.Event)
	}
	if len(got.People) != 1 || got.People[0] != "Miles" {
		t.Fatalf("unexpected people: %v", got.People)
	}
	if len(got.Products) != 0 {
		t.Fatalf("unexpected products: %v", got.Products)
	}
}

// The hints schema has no required fields: a sparse reply is a valid "nothing
// found" answer.
func TestParseHintsAcceptsSparseReply(t *testing.T) {
	t.Parallel()

	got, err := parseHints(`{}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Event != "" || len(got.People) != 0 {
		t.Fatalf("expected zero-value hints, got %+v", got)
	}
}

func TestParseHintsRejectsWrongShape(t *testing.T) {
	t.Parallel()

	_, err := parseHints(`{"people": "Miles"}`)
	if !errors.Is(err, ErrUnparsableReply) {
		t.Fatalf("expected ErrUnparsableReply, got %v", err)
	}
}
