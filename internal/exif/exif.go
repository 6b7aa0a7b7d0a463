// Package exif extracts capture metadata from JPEG images.
package exif

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	goexif "github.com/rwcarlsen/goexif/exif"

	"github.com/snaplens/snaplens/internal/meta"
)

// Extractor reads EXIF capture metadata. Images without EXIF data yield an
// error; the pipeline folds that into the metadata-error flag and proceeds.
type Extractor struct{}

// Extract parses timestamp, camera fields and GPS out of the image bytes.
func (Extractor) Extract(_ context.Context, image []byte) (meta.Capture, error) {
	x, err := goexif.Decode(bytes.NewReader(image))
	if err != nil {
		return meta.Capture{}, fmt.Errorf("decode exif: %w", err)
	}

	var out meta.Capture
	if ts, err := x.DateTime(); err == nil {
		out.Timestamp = ts
	}
	out.CameraMake = stringField(x, goexif.Make)
	out.CameraModel = stringField(x, goexif.Model)

	if lat, lon, err := x.LatLong(); err == nil {
		out.HasGPS = true
		out.Latitude = lat
		out.Longitude = lon
	}
	return out, nil
}

func stringField(x *goexif.Exif, name goexif.FieldName) string {
	tag, err := x.Get(name)
	if err != nil {
		return ""
	}
	s, err := tag.StringVal()
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
