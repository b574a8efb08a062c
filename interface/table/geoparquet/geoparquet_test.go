package geoparquet

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sort"
	"testing"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
)

func square(t *testing.T, x, y, size float64) []byte {
	b, err := wkb.EncodeBytes(geom.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func buildings(t *testing.T) *table.Table {
	return &table.Table{
		Columns: []string{"height", "name", "floors"},
		Features: []table.Feature{
			{Geometry: square(t, 2.001, 48.001, 0.001), Properties: map[string]interface{}{"height": 12.5, "name": "a", "floors": int64(3)}},
			{Geometry: square(t, 2.0095, 48.0095, 0.001), Properties: map[string]interface{}{"height": nil, "name": "b", "floors": int64(1)}},
			{Geometry: square(t, 3, 49, 0.001), Properties: map[string]interface{}{"height": 4.0, "name": "outside", "floors": nil}},
		},
	}
}

func TestWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "buildings.parquet")
	if err := WriteFile(path, buildings(t)); err != nil {
		t.Fatal(err)
	}

	all, err := ReadFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if all.Len() != 3 {
		t.Fatalf("expected 3 features, got %d", all.Len())
	}
	cols := append([]string(nil), all.Columns...)
	sort.Strings(cols)
	if len(cols) != 3 || cols[0] != "floors" || cols[1] != "height" || cols[2] != "name" {
		t.Errorf("unexpected columns %v", all.Columns)
	}
	f := all.Features[0]
	if f.Properties["height"] != 12.5 || f.Properties["name"] != "a" || f.Properties["floors"] != int64(3) {
		t.Errorf("unexpected properties %v", f.Properties)
	}
	if all.Features[1].Properties["height"] != nil {
		t.Errorf("expected a null height, got %v", all.Features[1].Properties["height"])
	}

	a, _ := aoi.New(2, 48, 2.01, 48.01)
	filtered, err := ReadFile(path, &a)
	if err != nil {
		t.Fatal(err)
	}
	if filtered.Len() != 2 {
		t.Fatalf("expected 2 features, got %d", filtered.Len())
	}
	s := filtered.Summarize()
	if s.GeometryTypes["Polygon"] != 2 || s.Bounds == nil {
		t.Fatalf("unexpected summary %+v", s)
	}
	if math.Abs(s.Bounds[0]-2.001) > 1e-9 || math.Abs(s.Bounds[3]-48.0105) > 1e-9 {
		t.Errorf("unexpected bounds %v", *s.Bounds)
	}
}

func TestRead(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFile(filepath.Join(dir, "part-0.parquet"), buildings(t)); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.FileServer(http.Dir(dir)))
	defer srv.Close()

	r := &Reader{Workdir: t.TempDir()}
	a, _ := aoi.New(2.9, 48.9, 3.1, 49.1)
	tbl, err := r.Read(context.Background(), srv.URL+"/part-0.parquet?sig=x", a)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 1 || tbl.Features[0].Properties["name"] != "outside" {
		t.Errorf("unexpected features %+v", tbl.Features)
	}
	if _, err := r.Read(context.Background(), srv.URL+"/missing.parquet", a); err == nil {
		t.Errorf("expected an error")
	}
}

func TestEmptyTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	if err := WriteFile(path, &table.Table{}); err != nil {
		t.Fatal(err)
	}
	tbl, err := ReadFile(path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Len() != 0 {
		t.Errorf("expected no feature")
	}
}
