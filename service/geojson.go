package service

import (
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/geojson"
)

// UnmarshalGeometry decodes a GeoJSON geometry, feature or feature collection.
// Features are flattened into a collection of their geometries.
func UnmarshalGeometry(data []byte) (geom.Geometry, error) {
	var g geojson.Geometry
	if err := g.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	switch geo := g.Geometry.(type) {
	case geojson.FeatureCollection:
		var c geom.Collection
		for _, f := range geo.Features {
			c = appendGeometry(c, f.Geometry.Geometry)
		}
		return c, nil
	case geojson.Feature:
		return geo.Geometry.Geometry, nil
	default:
		return g.Geometry, nil
	}
}

func appendGeometry(c geom.Collection, g geom.Geometry) geom.Collection {
	switch g := g.(type) {
	case nil:
	case geom.Collection:
		for _, sub := range g.Geometries() {
			c = appendGeometry(c, sub)
		}
	default:
		c = append(c, g)
	}
	return c
}
