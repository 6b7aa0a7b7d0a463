// Package meta holds capture metadata extracted from the image file and the
// geolocation context derived from it.
package meta

import (
	"context"
	"time"
)

// Capture is the metadata embedded in an image at capture time. Every field
// is optional; a zero field means "not reported" and is never an error.
type Capture struct {
	Timestamp   time.Time
	CameraMake  string
	CameraModel string

	// GPS coordinates. Valid only when HasGPS is true.
	HasGPS    bool
	Latitude  float64
	Longitude float64
}

// Place is the human-readable geolocation context for a GPS coordinate.
// Either field may be empty; absence is not an error.
type Place struct {
	DisplayName string
	Business    string
}

// Extractor parses capture metadata out of raw image bytes.
type Extractor interface {
	Extract(ctx context.Context, image []byte) (Capture, error)
}

// Geocoder resolves a coordinate into a display label and a nearby business
// or amenity name.
type Geocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}
