package geocoder

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when the geocoder does not know the place
var ErrNotFound = errors.New("place not found")

// Place is a geocoded place name
type Place struct {
	Name string     `json:"place_name"`
	BBox [4]float64 `json:"bbox"` // west, south, east, north
}

// Geocoder converts a place name into a bounding box
type Geocoder interface {
	Geocode(ctx context.Context, place string) (*Place, error)
}

// NormalizeName returns the key of a place name (lowercase, single spaces)
func NormalizeName(place string) string {
	return strings.Join(strings.Fields(strings.ToLower(place)), " ")
}
