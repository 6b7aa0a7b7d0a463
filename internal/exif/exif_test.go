package exif

import (
	"context"
	"testing"
)

func TestExtractRejectsNonImageBytes(t *testing.T) {
	t.Parallel()

	_, err := Extractor{}.Extract(context.Background(), []byte("not an image"))
	if err == nil {
		t.Fatal("expected an error for bytes without an EXIF block")
	}
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	_, err := Extractor{}.Extract(context.Background(), nil)
	if err == nil {
		t.Fatal("expected an error for empty input")
	}
}
