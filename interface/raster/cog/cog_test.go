package cog

import (
	"bytes"
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/interface/raster/geotiff"
)

// serveTIFFs serves the encoded results, one per path
func serveTIFFs(t *testing.T, results map[string]raster.Result) *httptest.Server {
	return httptest.NewServer(tiffHandler(t, results))
}

func tiffHandler(t *testing.T, results map[string]raster.Result) http.Handler {
	files := map[string][]byte{}
	for path, r := range results {
		var buf bytes.Buffer
		if err := geotiff.Encode(&buf, r); err != nil {
			t.Fatal(err)
		}
		files[path] = buf.Bytes()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, ok := files[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		http.ServeContent(w, r, r.URL.Path, time.Time{}, bytes.NewReader(b))
	})
}

func newResult(t *testing.T, a aoi.AOI, res float64, nbands int, value func(b, col, row int) float32) raster.Result {
	g := raster.NewGrid(a, res)
	g.DataType = raster.DTUint16
	nodata := 0.0
	g.NoData = &nodata
	var bands []raster.Band
	for b := 0; b < nbands; b++ {
		data := make([]float32, g.Width*g.Height)
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				data[row*g.Width+col] = value(b, col, row)
			}
		}
		bands = append(bands, raster.Band{Name: "b", Data: data})
	}
	r, err := raster.NewResult(g, bands)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func TestWindowedRead(t *testing.T) {
	a, _ := aoi.New(2, 48, 2.01, 48.01)
	src := newResult(t, a, 0.0005, 3, func(b, col, row int) float32 {
		return float32(1 + b*1000 + row*20 + col)
	})
	srv := serveTIFFs(t, map[string]raster.Result{"/rgb.tif": src})
	defer srv.Close()

	r, err := New(0)
	if err != nil {
		t.Fatal(err)
	}
	res, err := r.WindowedRead(context.Background(), srv.URL+"/rgb.tif?sig=secret", a, 0.0005)
	if err != nil {
		t.Fatal(err)
	}
	mb, ok := res.(*raster.MultiBand)
	if !ok || len(mb.Bands) != 3 {
		t.Fatalf("expected a MultiBand result, got %T", res)
	}
	if mb.Width != 20 || mb.Height != 20 || mb.DataType != raster.DTUint16 {
		t.Errorf("unexpected grid: %+v", mb.Grid)
	}
	for b, band := range mb.Bands {
		for i, v := range band.Data {
			if want := src.BandList()[b].Data[i]; v != want {
				t.Fatalf("band %d pixel %d: expected %g, got %g", b, i, want, v)
			}
		}
	}

	// Half of the window outside the raster, downsampled
	b, _ := aoi.New(2.00525, 48.00025, 2.01525, 48.01025)
	res, err = r.WindowedRead(context.Background(), srv.URL+"/rgb.tif", b, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	g, data := res.Georef(), res.BandList()[0].Data
	if g.Width != 10 || g.Height != 10 {
		t.Fatalf("unexpected size %dx%d", g.Width, g.Height)
	}
	if !math.IsNaN(float64(data[9])) || data[0] != float32(1+11) || data[4] != float32(1+19) {
		t.Errorf("unexpected values: %v", data[:10])
	}

	if _, err = r.WindowedRead(context.Background(), srv.URL+"/missing.tif", a, 0.001); err == nil {
		t.Errorf("expected an error")
	}
}

func TestLoad(t *testing.T) {
	a, _ := aoi.New(2, 48, 2.01, 48.01)
	// The most recent item has no data in its left half
	recent := newResult(t, a, 0.001, 1, func(b, col, row int) float32 {
		if col < 5 {
			return 0
		}
		return 100
	})
	older := newResult(t, a, 0.001, 1, func(b, col, row int) float32 { return 50 })
	srv := serveTIFFs(t, map[string]raster.Result{"/recent.tif": recent, "/older.tif": older})
	defer srv.Close()

	items := []catalog.Item{
		{ID: "recent", Assets: map[string]catalog.Asset{"red": {Href: srv.URL + "/recent.tif"}}},
		{ID: "no-red", Assets: map[string]catalog.Asset{}},
		{ID: "older", Assets: map[string]catalog.Asset{"red": {Href: srv.URL + "/older.tif"}}},
	}
	r, _ := New(16)
	res, err := r.Load(context.Background(), items, []string{"red"}, a, 0.001)
	if err != nil {
		t.Fatal(err)
	}
	sb, ok := res.(*raster.SingleBand)
	if !ok || sb.Band.Name != "red" {
		t.Fatalf("expected a SingleBand result, got %+v", res)
	}
	if sb.Band.Data[0] != 50 || sb.Band.Data[9] != 100 || sb.Band.Valid() != 100 {
		t.Errorf("unexpected composite: %v", sb.Band.Data[:10])
	}

	if _, err := r.Load(context.Background(), items, []string{"nir"}, a, 0.001); err == nil {
		t.Errorf("expected an error for a missing asset")
	}
}

func TestCanceledRead(t *testing.T) {
	a, _ := aoi.New(2, 48, 2.01, 48.01)
	handler := tiffHandler(t, map[string]raster.Result{"/b.tif": newResult(t, a, 0.001, 1, func(b, col, row int) float32 { return 7 })})
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		handler.ServeHTTP(w, r)
	}))
	defer srv.Close()

	r, _ := New(16)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.WindowedRead(ctx, srv.URL+"/b.tif", a, 0.001); err == nil {
		t.Fatalf("expected an error with a canceled context")
	}
	if n := requests.Load(); n != 0 {
		t.Errorf("expected no request with a canceled context, got %d", n)
	}

	// Header cached by a first read: the tiles of a new call are still bound to its context
	if _, err := r.WindowedRead(context.Background(), srv.URL+"/b.tif", a, 0.001); err != nil {
		t.Fatal(err)
	}
	before := requests.Load()
	if _, err := r.Load(ctx, []catalog.Item{{ID: "b", Assets: map[string]catalog.Asset{"b": {Href: srv.URL + "/b.tif"}}}}, []string{"b"}, a, 0.001); err == nil {
		t.Errorf("expected an error with a canceled context")
	}
	if n := requests.Load(); n != before {
		t.Errorf("expected no request with a canceled context, got %d", n-before)
	}
}

func TestProjections(t *testing.T) {
	tests := []struct {
		code     int
		lon, lat float64
		x, y     float64
	}{
		{4326, 2.35, 48.85, 2.35, 48.85},
		{32611, -117, 0, 500000, 0},
		{32611, -117, 45, 500000, 4982950.4},
		{32610, -122.3321, 47.6062, 550200.2, 5272748.6},
		{32733, 15, -10, 500000, 8894587.5},
		{26911, -117, 45, 500000, 4982950.4},
		{3857, 180, 0, 20037508.34, 0},
	}
	for _, tt := range tests {
		p, err := newProjection(tt.code)
		if err != nil {
			t.Fatal(err)
		}
		x, y := p.forward(tt.lon, tt.lat)
		if math.Abs(x-tt.x) > 1 || math.Abs(y-tt.y) > 1 {
			t.Errorf("EPSG:%d (%g,%g): expected (%.1f,%.1f), got (%.1f,%.1f)", tt.code, tt.lon, tt.lat, tt.x, tt.y, x, y)
		}
	}
	if _, err := newProjection(2154); err == nil {
		t.Errorf("expected an unsupported CRS")
	}
}

func TestContentRange(t *testing.T) {
	if s, err := contentRangeSize("bytes 0-99/12345"); err != nil || s != 12345 {
		t.Errorf("unexpected size %d (%v)", s, err)
	}
	if _, err := contentRangeSize("bytes 0-99/*"); err == nil {
		t.Errorf("expected an error")
	}
}
