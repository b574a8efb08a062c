package table

import (
	"context"
	"fmt"
	"sort"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
)

// GeometryColumn is the name of the WKB geometry column of the tables
const GeometryColumn = "geometry"

// Feature is a row of a table
type Feature struct {
	Geometry   []byte // WKB
	Properties map[string]interface{}
}

// Table is a set of features sharing the same columns (geometry excluded)
type Table struct {
	Columns  []string
	Features []Feature
}

// Len returns the number of features
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Features)
}

// Append the features of other, merging the columns
func (t *Table) Append(other *Table) {
	if other == nil {
		return
	}
	known := map[string]struct{}{}
	for _, c := range t.Columns {
		known[c] = struct{}{}
	}
	for _, c := range other.Columns {
		if _, ok := known[c]; !ok {
			t.Columns = append(t.Columns, c)
			known[c] = struct{}{}
		}
	}
	t.Features = append(t.Features, other.Features...)
}

// Truncate keeps the first n features (n <= 0: no limit)
func (t *Table) Truncate(n int) {
	if n > 0 && len(t.Features) > n {
		t.Features = t.Features[:n]
	}
}

// Summary describes the geometries of a table
type Summary struct {
	Count         int
	Bounds        *[4]float64 // west, south, east, north. Nil if there is no valid geometry
	GeometryTypes map[string]int
	Invalid       int // Features whose geometry cannot be decoded
}

// Summarize decodes every geometry to compute the summary
func (t *Table) Summarize() Summary {
	s := Summary{Count: t.Len(), GeometryTypes: map[string]int{}}
	var ext *geom.Extent
	for _, f := range t.Features {
		g, err := wkb.DecodeBytes(f.Geometry)
		if err != nil {
			s.Invalid++
			continue
		}
		s.GeometryTypes[TypeName(g)]++
		e, err := geom.NewExtentFromGeometry(g)
		if err != nil {
			continue
		}
		if ext == nil {
			ext = e
		} else {
			ext.Add(e)
		}
	}
	if ext != nil {
		s.Bounds = &[4]float64{ext.MinX(), ext.MinY(), ext.MaxX(), ext.MaxY()}
	}
	return s
}

// TypeName returns the OGC name of the geometry type
func TypeName(g geom.Geometry) string {
	switch g.(type) {
	case geom.Point, *geom.Point:
		return "Point"
	case geom.MultiPoint, *geom.MultiPoint:
		return "MultiPoint"
	case geom.LineString, *geom.LineString:
		return "LineString"
	case geom.MultiLineString, *geom.MultiLineString:
		return "MultiLineString"
	case geom.Polygon, *geom.Polygon:
		return "Polygon"
	case geom.MultiPolygon, *geom.MultiPolygon:
		return "MultiPolygon"
	case geom.Collection, *geom.Collection:
		return "GeometryCollection"
	}
	return fmt.Sprintf("%T", g)
}

// SortedTypes returns the geometry types by name
func (s Summary) SortedTypes() []string {
	types := make([]string, 0, len(s.GeometryTypes))
	for t := range s.GeometryTypes {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Source lists and reads the partitions of a partitioned table
type Source interface {
	// List returns the urls of the partition files under the prefix.
	// options are the storage options of the asset (account name, credential...)
	List(ctx context.Context, prefix string, options map[string]interface{}) ([]string, error)
	// Read returns the features of the partition file intersecting the AOI
	Read(ctx context.Context, url string, a aoi.AOI) (*Table, error)
}
