package fetcher_test

import (
	"context"
	"sync"
	"testing"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// MokeCatalog implements catalog.Client and counts the calls
type MokeCatalog struct {
	mu       sync.Mutex
	items    []catalog.Item
	searches []catalog.SearchParams
	calls    int
}

// Search implements catalog.Client
func (c *MokeCatalog) Search(ctx context.Context, params catalog.SearchParams) ([]catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.searches = append(c.searches, params)
	return c.items, nil
}

// Sign implements catalog.Client
func (c *MokeCatalog) Sign(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return item, nil
}

// Collection implements catalog.Client
func (c *MokeCatalog) Collection(ctx context.Context, id string) (*catalog.Collection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return &catalog.Collection{ID: id}, nil
}

// MokeGeocoder implements geocoder.Geocoder
type MokeGeocoder struct {
	places map[string][4]float64
	calls  int
}

// Geocode implements geocoder.Geocoder
func (g *MokeGeocoder) Geocode(ctx context.Context, place string) (*geocoder.Place, error) {
	g.calls++
	bbox, ok := g.places[geocoder.NormalizeName(place)]
	if !ok {
		return nil, geocoder.ErrNotFound
	}
	return &geocoder.Place{Name: place, BBox: bbox}, nil
}

// MokePixels implements raster.Reader with a constant raster
type MokePixels struct {
	loads int
	value float32
}

func (p *MokePixels) constant(a aoi.AOI, resolution float64, names ...string) (raster.Result, error) {
	g := raster.NewGrid(a, resolution)
	var bands []raster.Band
	for _, name := range names {
		data := make([]float32, g.Width*g.Height)
		for i := range data {
			data[i] = p.value
		}
		bands = append(bands, raster.Band{Name: name, Data: data})
	}
	return raster.NewResult(g, bands)
}

// Load implements raster.Reader
func (p *MokePixels) Load(ctx context.Context, items []catalog.Item, assets []string, a aoi.AOI, resolution float64) (raster.Result, error) {
	p.loads++
	return p.constant(a, resolution, assets...)
}

// WindowedRead implements raster.Reader
func (p *MokePixels) WindowedRead(ctx context.Context, href string, a aoi.AOI, resolution float64) (raster.Result, error) {
	p.loads++
	return p.constant(a, resolution, "b1", "b2", "b3", "b4")
}

// MokeTables implements table.Source: one partition per listed prefix, one square per partition at the south-west corner of the AOI
type MokeTables struct {
	mu    sync.Mutex
	reads int
}

// List implements table.Source
func (t *MokeTables) List(ctx context.Context, prefix string, options map[string]interface{}) ([]string, error) {
	return []string{prefix + "/part-00000.parquet"}, nil
}

// Read implements table.Source
func (t *MokeTables) Read(ctx context.Context, url string, a aoi.AOI) (*table.Table, error) {
	t.mu.Lock()
	t.reads++
	t.mu.Unlock()
	x, y, size := a.West()+0.001, a.South()+0.001, 0.0005
	b, err := wkb.EncodeBytes(geom.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}})
	if err != nil {
		return nil, err
	}
	return &table.Table{
		Columns:  []string{"height"},
		Features: []table.Feature{{Geometry: b, Properties: map[string]interface{}{"height": 12.0}}},
	}, nil
}

func item(id string, assets ...string) catalog.Item {
	it := catalog.Item{ID: id, Assets: map[string]catalog.Asset{}}
	for _, a := range assets {
		it.Assets[a] = catalog.Asset{Href: "https://example.com/" + id + "/" + a, Roles: []string{"data"}}
	}
	return it
}

func TestFetcher(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Fetcher Suite")
}
