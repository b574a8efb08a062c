package aoi

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
)

// KmPerDegree is the length of one degree of latitude
const KmPerDegree = 111.32

// AOI is a validated bounding box in WGS84 degrees. It is immutable.
type AOI struct {
	west, south, east, north float64
}

// ErrInvalidAOI is returned when a bounding box is malformed or a place cannot be geocoded
type ErrInvalidAOI struct {
	Reason string
	Place  string // Set when the AOI was given as a place name
}

func (e *ErrInvalidAOI) Error() string {
	if e.Place != "" {
		return fmt.Sprintf("could not geocode '%s': %s. Try a more specific place name (e.g. 'Seattle, Washington') or provide a bbox [west, south, east, north]", e.Place, e.Reason)
	}
	return "invalid AOI: " + e.Reason
}

func invalid(format string, a ...interface{}) error {
	return &ErrInvalidAOI{Reason: fmt.Sprintf(format, a...)}
}

// New validates the bounding box
func New(west, south, east, north float64) (AOI, error) {
	for _, v := range []float64{west, south, east, north} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return AOI{}, invalid("bbox values must be finite numbers")
		}
	}
	if west >= east {
		return AOI{}, invalid("west must be less than east (got west=%g, east=%g)", west, east)
	}
	if south >= north {
		return AOI{}, invalid("south must be less than north (got south=%g, north=%g)", south, north)
	}
	if west < -180 || east > 180 {
		return AOI{}, invalid("longitude must be within [-180, 180]")
	}
	if south < -90 || north > 90 {
		return AOI{}, invalid("latitude must be within [-90, 90]")
	}
	return AOI{west: west, south: south, east: east, north: north}, nil
}

// FromSlice validates a bounding box given as [west, south, east, north]
func FromSlice(bbox []float64) (AOI, error) {
	if len(bbox) != 4 {
		return AOI{}, invalid("bbox must have exactly 4 values [west, south, east, north], got %d", len(bbox))
	}
	return New(bbox[0], bbox[1], bbox[2], bbox[3])
}

func (a AOI) West() float64  { return a.west }
func (a AOI) South() float64 { return a.south }
func (a AOI) East() float64  { return a.east }
func (a AOI) North() float64 { return a.north }

// BBox returns [west, south, east, north]
func (a AOI) BBox() []float64 {
	return []float64{a.west, a.south, a.east, a.north}
}

// IsZero returns true if the AOI has not been initialized
func (a AOI) IsZero() bool {
	return a == AOI{}
}

// AreaKm2 returns the approximate area of the box, correcting the width with the latitude of its center
func (a AOI) AreaKm2() float64 {
	return Area(a.west, a.south, a.east, a.north)
}

// Area computes the approximate area in km² of any box, without validation
func Area(west, south, east, north float64) float64 {
	centerLat := (south + north) / 2
	width := (east - west) * KmPerDegree * math.Cos(centerLat*math.Pi/180)
	height := (north - south) * KmPerDegree
	return math.Abs(width * height)
}

// Geometry returns the box as a polygon
func (a AOI) Geometry() geom.Polygon {
	return geom.Polygon{{
		{a.west, a.south}, {a.east, a.south}, {a.east, a.north}, {a.west, a.north}, {a.west, a.south},
	}}
}

// WKT returns the box as a WKT polygon
func (a AOI) WKT() string {
	return wkt.MustEncode(a.Geometry())
}

// Polygon returns the box as a geos geometry (for exact intersection tests)
func (a AOI) Polygon() (*geos.Geometry, error) {
	g, err := geos.FromWKT(a.WKT())
	if err != nil {
		return nil, fmt.Errorf("Polygon.FromWKT: %w", err)
	}
	return g, nil
}

func (a AOI) String() string {
	return fmt.Sprintf("[%g, %g, %g, %g]", a.west, a.south, a.east, a.north)
}

// MarshalJSON encodes the AOI as [west, south, east, north]
func (a AOI) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.BBox())
}

// UnmarshalJSON decodes and validates [west, south, east, north]
func (a *AOI) UnmarshalJSON(b []byte) error {
	var bbox []float64
	if err := json.Unmarshal(b, &bbox); err != nil {
		return invalid("bbox must be an array of 4 numbers: %v", err)
	}
	aoi, err := FromSlice(bbox)
	if err != nil {
		return err
	}
	*a = aoi
	return nil
}
