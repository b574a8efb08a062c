package render

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
)

var (
	footprintColor  = color.RGBA{200, 30, 30, 255}
	backgroundColor = color.RGBA{245, 245, 245, 255}
)

// canvas projects geographic coordinates on an image covering the AOI
type canvas struct {
	img   *image.RGBA
	a     aoi.AOI
	sx    float64
	sy    float64
	drawn int
}

func newCanvas(a aoi.AOI, width int) *canvas {
	lat := (a.South() + a.North()) / 2
	w := (a.East() - a.West()) * math.Cos(lat*math.Pi/180)
	h := a.North() - a.South()
	height := int(math.Round(float64(width) * h / w))
	height = max(64, min(height, 4*width))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), &image.Uniform{backgroundColor}, image.Point{}, draw.Src)
	return &canvas{
		img: img,
		a:   a,
		sx:  float64(width-1) / (a.East() - a.West()),
		sy:  float64(height-1) / (a.North() - a.South()),
	}
}

func (c *canvas) pixel(p [2]float64) (int, int) {
	return int(math.Round((p[0] - c.a.West()) * c.sx)), int(math.Round((c.a.North() - p[1]) * c.sy))
}

// line draws a segment with the Bresenham algorithm, clipped to the image
func (c *canvas) line(p, q [2]float64) {
	x0, y0 := c.pixel(p)
	x1, y1 := c.pixel(q)
	dx, dy := abs(x1-x0), -abs(y1-y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	// Segments far outside the image are clipped by the loop bound
	for steps, e := 0, dx+dy; steps <= dx-dy; steps++ {
		if image.Pt(x0, y0).In(c.img.Rect) {
			c.img.SetRGBA(x0, y0, footprintColor)
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		if e2 := 2 * e; e2 >= dy {
			e += dy
			x0 += sx
		} else {
			e += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func (c *canvas) path(points [][2]float64, closed bool) {
	for i := 1; i < len(points); i++ {
		c.line(points[i-1], points[i])
	}
	if closed && len(points) > 2 {
		c.line(points[len(points)-1], points[0])
	}
}

func (c *canvas) point(p [2]float64) {
	x, y := c.pixel(p)
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			if image.Pt(x+dx, y+dy).In(c.img.Rect) {
				c.img.SetRGBA(x+dx, y+dy, footprintColor)
			}
		}
	}
}

func (c *canvas) geometry(g geom.Geometry) {
	c.drawn++
	switch t := g.(type) {
	case geom.Point:
		c.point(t)
	case geom.MultiPoint:
		for _, p := range t {
			c.point(p)
		}
	case geom.LineString:
		c.path(t, false)
	case geom.MultiLineString:
		for _, l := range t {
			c.path(l, false)
		}
	case geom.Polygon:
		for _, ring := range t {
			c.path(ring, true)
		}
	case geom.MultiPolygon:
		for _, poly := range t {
			for _, ring := range poly {
				c.path(ring, true)
			}
		}
	case geom.Collection:
		c.drawn--
		for _, sub := range t {
			c.geometry(sub)
		}
	default:
		c.drawn--
	}
}

// Footprints draws the outlines of the features over the AOI.
// It returns the number of drawn geometries.
func (r *Renderer) Footprints(t *table.Table, a aoi.AOI, path string) (int, error) {
	c := newCanvas(a, r.Width)
	for _, f := range t.Features {
		g, err := wkb.DecodeBytes(f.Geometry)
		if err != nil {
			continue
		}
		c.geometry(g)
	}
	if err := r.writeJPEG(path, c.img); err != nil {
		return 0, fmt.Errorf("Footprints.%w", err)
	}
	return c.drawn, nil
}
