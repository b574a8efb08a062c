package cog

import (
	"fmt"
	"math"
)

// GeoKeys
const (
	keyModelType      = 1024
	keyRasterType     = 1025
	keyGeographicType = 2048
	keyProjectedType  = 3072

	modelProjected  = 1
	modelGeographic = 2
	rasterPixelIsPt = 2
)

// WGS84 ellipsoid. NAD83 (GRS80) differs by less than a millimeter at this scale.
const (
	semiMajor  = 6378137.0
	flattening = 1 / 298.257223563
	utmScale   = 0.9996
	falseEast  = 500000.0
	falseNorth = 10000000.0
	deg        = math.Pi / 180
)

// projection converts geographic coordinates to the coordinates of the raster
type projection interface {
	forward(lon, lat float64) (x, y float64)
	epsg() int
}

type geographic struct{ code int }

func (g geographic) forward(lon, lat float64) (float64, float64) { return lon, lat }
func (g geographic) epsg() int                                   { return g.code }

type webMercator struct{}

func (webMercator) forward(lon, lat float64) (float64, float64) {
	return semiMajor * lon * deg, semiMajor * math.Log(math.Tan(math.Pi/4+lat*deg/2))
}
func (webMercator) epsg() int { return 3857 }

type utm struct {
	code  int
	zone  int
	south bool
}

// forward is the series expansion of the transverse mercator projection (Snyder, Map Projections, p. 61)
func (u utm) forward(lon, lat float64) (float64, float64) {
	e2 := flattening * (2 - flattening)
	e4, e6 := e2*e2, e2*e2*e2
	ep2 := e2 / (1 - e2)
	lon0 := float64(u.zone*6-183) * deg
	phi, lam := lat*deg, lon*deg

	sin, cos, tan := math.Sin(phi), math.Cos(phi), math.Tan(phi)
	n := semiMajor / math.Sqrt(1-e2*sin*sin)
	t := tan * tan
	c := ep2 * cos * cos
	a := cos * (lam - lon0)
	m := semiMajor * ((1-e2/4-3*e4/64-5*e6/256)*phi -
		(3*e2/8+3*e4/32+45*e6/1024)*math.Sin(2*phi) +
		(15*e4/256+45*e6/1024)*math.Sin(4*phi) -
		(35*e6/3072)*math.Sin(6*phi))

	x := utmScale*n*(a+(1-t+c)*math.Pow(a, 3)/6+(5-18*t+t*t+72*c-58*ep2)*math.Pow(a, 5)/120) + falseEast
	y := utmScale * (m + n*tan*(a*a/2+(5-t+9*c+4*c*c)*math.Pow(a, 4)/24+(61-58*t+t*t+600*c-330*ep2)*math.Pow(a, 6)/720))
	if u.south {
		y += falseNorth
	}
	return x, y
}
func (u utm) epsg() int { return u.code }

// newProjection supports geographic WGS84/NAD83/ETRS89, the UTM zones of WGS84 and NAD83, and web mercator
func newProjection(code int) (projection, error) {
	switch {
	case code == 4326 || code == 4269 || code == 4258:
		return geographic{code: code}, nil
	case code == 3857 || code == 900913:
		return webMercator{}, nil
	case code >= 32601 && code <= 32660:
		return utm{code: code, zone: code - 32600}, nil
	case code >= 32701 && code <= 32760:
		return utm{code: code, zone: code - 32700, south: true}, nil
	case code >= 26901 && code <= 26923:
		return utm{code: code, zone: code - 26900}, nil
	}
	return nil, fmt.Errorf("unsupported CRS EPSG:%d", code)
}

// geoKeys parses the GeoKeyDirectory: key -> short value
func (h *header) geoKeys(d *ifd) map[int]int {
	keys := map[int]int{}
	f, ok := d.fields[tagGeoKeyDirectory]
	if !ok {
		return keys
	}
	dir := f.uints(h.bo)
	if len(dir) < 4 {
		return keys
	}
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		k := dir[4+4*i:]
		// Only the values stored in the directory itself (location 0)
		if k[1] == 0 {
			keys[int(k[0])] = int(k[3])
		}
	}
	return keys
}

// georef returns the projection and the geotransform of the full resolution image
func (h *header) georef(d *ifd) (projection, [6]float64, error) {
	var gt [6]float64
	keys := h.geoKeys(d)
	code := 0
	switch keys[keyModelType] {
	case modelProjected:
		code = keys[keyProjectedType]
	case modelGeographic:
		code = keys[keyGeographicType]
		if code == 0 || code == 32767 {
			code = 4326
		}
	default:
		if code = keys[keyProjectedType]; code == 0 {
			code = keys[keyGeographicType]
		}
	}
	if code == 0 {
		return nil, gt, fmt.Errorf("georef: missing CRS")
	}
	proj, err := newProjection(code)
	if err != nil {
		return nil, gt, fmt.Errorf("georef: %w", err)
	}

	if f, ok := d.fields[tagModelTransformation]; ok {
		m := f.floats(h.bo)
		if len(m) < 16 {
			return nil, gt, fmt.Errorf("georef: invalid ModelTransformation")
		}
		gt = [6]float64{m[3], m[0], m[1], m[7], m[4], m[5]}
	} else {
		scale := d.fields[tagModelPixelScale].floats(h.bo)
		tie := d.fields[tagModelTiepoint].floats(h.bo)
		if len(scale) < 2 || len(tie) < 6 {
			return nil, gt, fmt.Errorf("georef: missing ModelPixelScale or ModelTiepoint")
		}
		gt = [6]float64{tie[3] - tie[0]*scale[0], scale[0], 0, tie[4] + tie[1]*scale[1], 0, -scale[1]}
	}
	if gt[2] != 0 || gt[4] != 0 {
		return nil, gt, fmt.Errorf("georef: rotated rasters are not supported")
	}
	if keys[keyRasterType] == rasterPixelIsPt {
		gt[0] -= gt[1] / 2
		gt[3] -= gt[5] / 2
	}
	return proj, gt, nil
}
