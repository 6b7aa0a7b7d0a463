// Package reencode rewrites image bytes through a decode/encode round trip.
// The vision service occasionally rejects valid images over container quirks;
// a clean JPEG re-encode clears most of them.
package reencode

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/disintegration/imaging"
)

const jpegQuality = 95

// JPEG re-encodes the image as a fresh JPEG. Returns the new bytes and their
// MIME type.
type JPEG struct{}

// Reencode decodes the input (any format imaging understands, orientation
// corrected from EXIF) and encodes it as JPEG.
func (JPEG) Reencode(image []byte, _ string) ([]byte, string, error) {
	img, err := imaging.Decode(bytes.NewReader(image), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, "", fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), "image/jpeg", nil
}

// InferMIMEType maps a filename extension to a declared MIME type. Unknown
// extensions fall back to application/octet-stream, which the services accept
// as raw bytes.
func InferMIMEType(fileName string) string {
	lower := strings.ToLower(fileName)
	switch {
	case strings.HasSuffix(lower, ".jpg"), strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	case strings.HasSuffix(lower, ".heic"):
		return "image/heic"
	case strings.HasSuffix(lower, ".webp"):
		return "image/webp"
	default:
		return "application/octet-stream"
	}
}
