package aoi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/go-spatial/geom"
)

// Input is an area of interest as provided by a caller: either a box or a place name
type Input struct {
	box   []float64
	place string
}

// Box returns an Input from a bounding box
func Box(west, south, east, north float64) Input {
	return Input{box: []float64{west, south, east, north}}
}

// Place returns an Input from a place name
func Place(name string) Input {
	return Input{place: name}
}

// IsPlace returns true if the input must be geocoded
func (in Input) IsPlace() bool {
	return in.box == nil
}

func (in Input) String() string {
	if in.IsPlace() {
		return in.place
	}
	return fmt.Sprint(in.box)
}

// ParseInput parses the AOI argument of the command line:
// a JSON array [west, south, east, north], a GeoJSON geometry or a place name
func ParseInput(s string) (Input, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
		var in Input
		err := json.Unmarshal([]byte(s), &in)
		return in, err
	}
	return Place(s), nil
}

// UnmarshalJSON accepts an array of numbers, a string (place name) or a GeoJSON geometry (replaced by its envelope)
func (in *Input) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) > 0 && b[0] == '"':
		var place string
		if err := json.Unmarshal(b, &place); err != nil {
			return invalid("place name: %v", err)
		}
		*in = Place(place)
	case len(b) > 0 && b[0] == '{':
		g, err := service.UnmarshalGeometry(b)
		if err != nil {
			return invalid("geojson: %v", err)
		}
		ext, err := geom.NewExtentFromGeometry(g)
		if err != nil {
			return invalid("geojson extent: %v", err)
		}
		*in = Box(ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY())
	default:
		var box []float64
		if err := json.Unmarshal(b, &box); err != nil {
			return invalid("aoi must be a bbox [west, south, east, north] or a place name: %v", err)
		}
		*in = Input{box: box}
	}
	return nil
}

// MarshalJSON implements json.Marshaler
func (in Input) MarshalJSON() ([]byte, error) {
	if in.IsPlace() {
		return json.Marshal(in.place)
	}
	return json.Marshal(in.box)
}

// Normalizer converts inputs to validated AOIs
type Normalizer struct {
	Geocoder geocoder.Geocoder
}

// Normalize validates the box or geocodes the place name.
// It never returns a partially-valid AOI: any failure is an *ErrInvalidAOI.
func (n Normalizer) Normalize(ctx context.Context, in Input) (AOI, error) {
	if !in.IsPlace() {
		return FromSlice(in.box)
	}
	place := strings.TrimSpace(in.place)
	if place == "" {
		return AOI{}, invalid("empty place name")
	}
	if n.Geocoder == nil {
		return AOI{}, &ErrInvalidAOI{Place: place, Reason: "geocoding is not available"}
	}
	p, err := n.Geocoder.Geocode(ctx, place)
	if err != nil {
		reason := err.Error()
		if errors.Is(err, geocoder.ErrNotFound) {
			reason = "no match found"
		}
		return AOI{}, &ErrInvalidAOI{Place: place, Reason: reason}
	}
	a, err := New(p.BBox[0], p.BBox[1], p.BBox[2], p.BBox[3])
	if err != nil {
		var ierr *ErrInvalidAOI
		if errors.As(err, &ierr) {
			ierr.Place = place
		}
		return AOI{}, err
	}
	log.Logger(ctx).Sugar().Debugf("geocoded '%s' as '%s': %v", place, p.Name, a)
	return a, nil
}
