package vision

import (
	"context"
	"fmt"
	"log"
)

// Reencoder rewrites image bytes into a format the tagging service accepts.
// Some services reject valid images over container/encoding quirks; a decode
// and re-encode round trip usually clears them.
type Reencoder interface {
	Reencode(image []byte, mimeType string) ([]byte, string, error)
}

// RetryTagger wraps a Tagger with a single re-encoded retry. The wrapped
// tagger is treated as idempotent, so the retry is safe.
type RetryTagger struct {
	Tagger    Tagger
	Reencoder Reencoder
	Logger    *log.Logger
}

// Analyze runs the underlying tagger, and on a first-attempt failure retries
// exactly once with re-encoded bytes. A second failure (or a re-encode
// failure) is terminal and returned as *Error.
func (r *RetryTagger) Analyze(ctx context.Context, image []byte, mimeType string) (Tags, error) {
	tags, err := r.Tagger.Analyze(ctx, image, mimeType)
	if err == nil {
		return tags, nil
	}
	if ctx.Err() != nil {
		return Tags{}, ctx.Err()
	}
	if r.Logger != nil {
		r.Logger.Printf("vision: first attempt failed, retrying with re-encoded image: %v", err)
	}

	if r.Reencoder == nil {
		return Tags{}, &Error{Err: err}
	}
	reencoded, newMIME, reErr := r.Reencoder.Reencode(image, mimeType)
	if reErr != nil {
		return Tags{}, &Error{Err: fmt.Errorf("re-encode after %v: %w", err, reErr)}
	}

	tags, err = r.Tagger.Analyze(ctx, reencoded, newMIME)
	if err != nil {
		return Tags{}, &Error{Err: fmt.Errorf("after re-encoded retry: %w", err)}
	}
	return tags, nil
}
