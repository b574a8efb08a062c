package raster

import (
	"context"
	"fmt"
	"math"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
)

// DataType of the pixels of the source
type DataType int

const (
	DTUnknown DataType = iota
	DTUint8
	DTInt8
	DTUint16
	DTInt16
	DTUint32
	DTInt32
	DTFloat32
	DTFloat64
)

// Size in bytes of a pixel
func (dt DataType) Size() int {
	switch dt {
	case DTUint8, DTInt8:
		return 1
	case DTUint16, DTInt16:
		return 2
	case DTUint32, DTInt32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	}
	return 0
}

// IsFloat returns true for floating point data types
func (dt DataType) IsFloat() bool {
	return dt == DTFloat32 || dt == DTFloat64
}

func (dt DataType) String() string {
	switch dt {
	case DTUint8:
		return "uint8"
	case DTInt8:
		return "int8"
	case DTUint16:
		return "uint16"
	case DTInt16:
		return "int16"
	case DTUint32:
		return "uint32"
	case DTInt32:
		return "int32"
	case DTFloat32:
		return "float32"
	case DTFloat64:
		return "float64"
	}
	return "unknown"
}

// Grid is a north-up pixel grid in geographic coordinates (EPSG:4326)
type Grid struct {
	Width, Height int
	// GeoTransform maps pixel corners to lon/lat: lon = GT[0] + col*GT[1], lat = GT[3] + row*GT[5]
	GeoTransform [6]float64
	DataType     DataType
	// NoData is the nodata value of the source, if any. In memory, nodata pixels are NaN.
	NoData *float64
}

// NewGrid returns the grid covering the AOI at the resolution (in degrees)
func NewGrid(a aoi.AOI, resolution float64) Grid {
	return Grid{
		Width:        gridSize(a.East()-a.West(), resolution),
		Height:       gridSize(a.North()-a.South(), resolution),
		GeoTransform: [6]float64{a.West(), resolution, 0, a.North(), 0, -resolution},
		DataType:     DTFloat32,
	}
}

func gridSize(extent, resolution float64) int {
	n := int(math.Ceil(extent/resolution - 1e-9))
	if n < 1 {
		return 1
	}
	return n
}

// Resolution is the size of a pixel in degrees
func (g Grid) Resolution() float64 {
	return g.GeoTransform[1]
}

// Bounds returns [west, south, east, north]
func (g Grid) Bounds() [4]float64 {
	return [4]float64{
		g.GeoTransform[0],
		g.GeoTransform[3] + float64(g.Height)*g.GeoTransform[5],
		g.GeoTransform[0] + float64(g.Width)*g.GeoTransform[1],
		g.GeoTransform[3],
	}
}

// PixelCenter returns the lon/lat of the center of the pixel
func (g Grid) PixelCenter(col, row int) (lon, lat float64) {
	return g.GeoTransform[0] + (float64(col)+0.5)*g.GeoTransform[1],
		g.GeoTransform[3] + (float64(row)+0.5)*g.GeoTransform[5]
}

// Band is a row-major array of Width*Height pixels. Nodata pixels are NaN.
type Band struct {
	Name string
	Data []float32
}

// Valid returns the number of valid pixels
func (b Band) Valid() int {
	n := 0
	for _, v := range b.Data {
		if !isNaN(v) {
			n++
		}
	}
	return n
}

func isNaN(v float32) bool {
	return v != v
}

// Result is the output of a pixel read: either a SingleBand or a MultiBand
type Result interface {
	Georef() Grid
	BandList() []Band
	result()
}

// SingleBand is a result with one band (elevation, classification...)
type SingleBand struct {
	Grid
	Band Band
}

// Georef implements Result
func (r *SingleBand) Georef() Grid { return r.Grid }

// BandList implements Result
func (r *SingleBand) BandList() []Band { return []Band{r.Band} }

func (r *SingleBand) result() {}

// MultiBand is a result with several bands (composites, radar polarisations...)
type MultiBand struct {
	Grid
	Bands []Band
}

// Georef implements Result
func (r *MultiBand) Georef() Grid { return r.Grid }

// BandList implements Result
func (r *MultiBand) BandList() []Band { return r.Bands }

func (r *MultiBand) result() {}

// NewResult returns a SingleBand if there is only one band, a MultiBand otherwise
func NewResult(g Grid, bands []Band) (Result, error) {
	if len(bands) == 0 {
		return nil, fmt.Errorf("NewResult: no band")
	}
	for _, b := range bands {
		if len(b.Data) != g.Width*g.Height {
			return nil, fmt.Errorf("NewResult: band %s has %d pixels, expected %dx%d", b.Name, len(b.Data), g.Width, g.Height)
		}
	}
	if len(bands) == 1 {
		return &SingleBand{Grid: g, Band: bands[0]}, nil
	}
	return &MultiBand{Grid: g, Bands: bands}, nil
}

// Reader reads the pixels of Cloud Optimized GeoTIFFs in a window, resampled on the grid of NewGrid(aoi, resolution)
type Reader interface {
	// Load composes one band per asset from the items sorted by decreasing date: the most recent valid pixel wins
	Load(ctx context.Context, items []catalog.Item, assets []string, a aoi.AOI, resolution float64) (Result, error)
	// WindowedRead reads all the bands of a single multi-band asset
	WindowedRead(ctx context.Context, href string, a aoi.AOI, resolution float64) (Result, error)
}
