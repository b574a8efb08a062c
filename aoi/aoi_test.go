package aoi_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
)

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		bbox []float64
		want string
	}{
		{[]float64{1, 2, 3}, "exactly 4 values"},
		{[]float64{10, 0, 10, 1}, "west must be less than east"},
		{[]float64{11, 0, 10, 1}, "west must be less than east"},
		{[]float64{0, 1, 1, 1}, "south must be less than north"},
		{[]float64{0, 2, 1, 1}, "south must be less than north"},
		{[]float64{-181, 0, 1, 1}, "longitude"},
		{[]float64{0, 0, 181, 1}, "longitude"},
		{[]float64{0, -91, 1, 1}, "latitude"},
		{[]float64{0, 0, 1, 91}, "latitude"},
		{[]float64{math.NaN(), 0, 1, 1}, "finite"},
	}
	for _, tt := range tests {
		_, err := aoi.FromSlice(tt.bbox)
		var ierr *aoi.ErrInvalidAOI
		if !errors.As(err, &ierr) {
			t.Errorf("%v: expected ErrInvalidAOI, got %v", tt.bbox, err)
			continue
		}
		if !strings.Contains(ierr.Reason, tt.want) {
			t.Errorf("%v: expected reason containing %q, got %q", tt.bbox, tt.want, ierr.Reason)
		}
	}
}

func TestOrderingAlwaysFails(t *testing.T) {
	for w := -180.0; w <= 180; w += 15 {
		for e := -180.0; e <= w; e += 15 {
			if _, err := aoi.New(w, 0, e, 1); err == nil {
				t.Fatalf("expected error for west=%g east=%g", w, e)
			}
		}
	}
	for s := -90.0; s <= 90; s += 10 {
		for n := -90.0; n <= s; n += 10 {
			if _, err := aoi.New(0, s, 1, n); err == nil {
				t.Fatalf("expected error for south=%g north=%g", s, n)
			}
		}
	}
}

func TestArea(t *testing.T) {
	a, err := aoi.New(-118.3, 34.0, -118.2, 34.1)
	if err != nil {
		t.Fatal(err)
	}
	// 0.1° x 0.1° at 34°N
	if area := a.AreaKm2(); math.Abs(area-102.7) > 0.5 {
		t.Errorf("unexpected area: %f", area)
	}

	// Invariant under longitude translation
	for _, dx := range []float64{-360, 360, 720} {
		if d := aoi.Area(-118.3+dx, 34.0, -118.2+dx, 34.1) - a.AreaKm2(); math.Abs(d) > 1e-9 {
			t.Errorf("area not invariant under translation by %g: %g", dx, d)
		}
	}

	// Monotonic with width and height
	prev := 0.0
	for d := 0.01; d < 5; d += 0.01 {
		area := aoi.Area(10, 40, 10+d, 41)
		if area <= prev {
			t.Fatalf("area not increasing with width at %g", d)
		}
		prev = area
	}
	prev = 0
	for d := 0.01; d < 5; d += 0.01 {
		area := aoi.Area(10, 40, 11, 40+d)
		if area <= prev {
			t.Fatalf("area not increasing with height at %g", d)
		}
		prev = area
	}
}

func TestGeometry(t *testing.T) {
	a, _ := aoi.New(0, 0, 1, 2)
	if wkt := a.WKT(); !strings.HasPrefix(wkt, "POLYGON") {
		t.Errorf("unexpected wkt: %s", wkt)
	}
	p, err := a.Polygon()
	if err != nil {
		t.Fatal(err)
	}
	area, err := p.Area()
	if err != nil {
		t.Fatal(err)
	}
	if area != 2 {
		t.Errorf("unexpected polygon area: %f", area)
	}
}

func TestJSON(t *testing.T) {
	var a aoi.AOI
	if err := json.Unmarshal([]byte("[-118.3, 34.0, -118.2, 34.1]"), &a); err != nil {
		t.Fatal(err)
	}
	b, _ := json.Marshal(a)
	if string(b) != "[-118.3,34,-118.2,34.1]" {
		t.Errorf("unexpected json: %s", b)
	}
	if err := json.Unmarshal([]byte("[1, 0, 0, 1]"), &a); err == nil {
		t.Errorf("expected an error")
	}
}

func TestParseInput(t *testing.T) {
	in, err := aoi.ParseInput("[-118.3, 34.0, -118.2, 34.1]")
	if err != nil || in.IsPlace() {
		t.Errorf("expected a box: %v %v", in, err)
	}
	in, err = aoi.ParseInput("Seattle, WA")
	if err != nil || !in.IsPlace() || in.String() != "Seattle, WA" {
		t.Errorf("expected a place: %v %v", in, err)
	}
	in, err = aoi.ParseInput(`{"type":"Polygon","coordinates":[[[1,2],[3,2],[3,4],[1,4],[1,2]]]}`)
	if err != nil || in.IsPlace() {
		t.Fatalf("expected a box: %v %v", in, err)
	}
	a, err := aoi.Normalizer{}.Normalize(context.Background(), in)
	if err != nil {
		t.Fatal(err)
	}
	if fmt.Sprint(a.BBox()) != "[1 2 3 4]" {
		t.Errorf("unexpected envelope: %v", a)
	}
	if _, err := aoi.ParseInput("[1, 2"); err == nil {
		t.Errorf("expected an error")
	}
}

type fakeGeocoder struct {
	calls int
	place *geocoder.Place
	err   error
}

func (g *fakeGeocoder) Geocode(ctx context.Context, place string) (*geocoder.Place, error) {
	g.calls++
	return g.place, g.err
}

func TestNormalize(t *testing.T) {
	ctx := context.Background()
	g := &fakeGeocoder{place: &geocoder.Place{Name: "Seattle", BBox: [4]float64{-122.46, 47.48, -122.22, 47.73}}}
	n := aoi.Normalizer{Geocoder: g}

	a, err := n.Normalize(ctx, aoi.Place("Seattle"))
	if err != nil {
		t.Fatal(err)
	}
	if a.West() != -122.46 || a.North() != 47.73 || g.calls != 1 {
		t.Errorf("unexpected aoi: %v (%d calls)", a, g.calls)
	}

	if _, err := n.Normalize(ctx, aoi.Box(0, 0, 1, 1)); err != nil || g.calls != 1 {
		t.Errorf("box must not be geocoded: %v (%d calls)", err, g.calls)
	}

	g.err = geocoder.ErrNotFound
	_, err = n.Normalize(ctx, aoi.Place("Nowhereland"))
	var ierr *aoi.ErrInvalidAOI
	if !errors.As(err, &ierr) || ierr.Place != "Nowhereland" {
		t.Fatalf("expected ErrInvalidAOI, got %v", err)
	}
	if !strings.Contains(err.Error(), "more specific place name") || !strings.Contains(err.Error(), "bbox") {
		t.Errorf("expected a remedy in %s", err.Error())
	}

	if _, err := (aoi.Normalizer{}).Normalize(ctx, aoi.Place("Seattle")); !errors.As(err, &ierr) {
		t.Errorf("expected ErrInvalidAOI, got %v", err)
	}
}
