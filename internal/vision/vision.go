package vision

import (
	"context"
	"fmt"
)

// Tags is the tagging signal for one image. Empty lists mean the service saw
// nothing of that kind, not that tagging failed.
type Tags struct {
	Tags    []string
	Objects []string
	Brands  []string
	Caption string
}

// Empty reports whether the signal carries nothing usable.
func (t Tags) Empty() bool {
	return len(t.Tags) == 0 && len(t.Objects) == 0 && len(t.Brands) == 0 && t.Caption == ""
}

// Tagger analyzes a single image into tags, objects, brands and a caption.
type Tagger interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (Tags, error)
}

// Error is a terminal vision-stage failure, reported after the re-encode
// retry has also failed.
type Error struct {
	Err error
}

func (e *Error) Error() string {
	if e == nil || e.Err == nil {
		return "vision analysis failed"
	}
	return fmt.Sprintf("vision analysis failed: %v", e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
