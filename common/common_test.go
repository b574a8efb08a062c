package common

import (
	"encoding/json"
	"testing"
)

func TestFileNames(t *testing.T) {
	raw, vis := GridFileNames("esa-worldcover", -118.3, 34, -118.2, 34.1)
	if raw != "esa-worldcover_-118.3000_34.0000_-118.2000_34.1000.tif" || vis != "esa-worldcover_-118.3000_34.0000_-118.2000_34.1000_viz.jpg" {
		t.Errorf("unexpected grid names: %s %s", raw, vis)
	}
	raw, vis, anim := CubeFileNames("gridmet", -105, 39, -104, 40)
	if raw != "gridmet_-105.0000_39.0000_-104.0000_40.0000.zarr" || vis != "gridmet_-105.0000_39.0000_-104.0000_40.0000_viz.jpg" ||
		anim != "gridmet_-105.0000_39.0000_-104.0000_40.0000_animation.gif" {
		t.Errorf("unexpected cube names: %s %s %s", raw, vis, anim)
	}
	raw, vis = VectorFileNames("ms-buildings", -122.4, 47.5, -122.3, 47.6)
	if raw != "ms-buildings_-122.4000_47.5000_-122.3000_47.6000.parquet" {
		t.Errorf("unexpected vector name: %s", raw)
	}
	if vis != "ms-buildings_-122.4000_47.5000_-122.3000_47.6000_viz.jpg" {
		t.Errorf("unexpected vector visualization name: %s", vis)
	}

	// Two AOIs of the same collection
	a, _ := GridFileNames("esa-worldcover", -118.3, 34, -118.2, 34.1)
	b, _ := GridFileNames("esa-worldcover", -118.2, 34, -118.1, 34.1)
	if a == b {
		t.Errorf("distinct AOIs share the name %s", a)
	}
}

func TestEnums(t *testing.T) {
	b, err := json.Marshal(CategoryLandCover)
	if err != nil || string(b) != `"land_cover"` {
		t.Errorf("expected \"land_cover\", got %s (%v)", b, err)
	}
	var c Category
	if err := json.Unmarshal([]byte(`"climate"`), &c); err != nil || c != CategoryClimate {
		t.Errorf("expected climate, got %v (%v)", c, err)
	}
	if _, err := CategoryString("hyperspectral"); err == nil {
		t.Error("hyperspectral is not a category")
	}
	if s, err := ShapeTypeString("multidim"); err != nil || s != ShapeMultidim {
		t.Errorf("expected multidim, got %v (%v)", s, err)
	}
	if ShapeGrid.String() != "grid" || ShapeType(42).IsAShapeType() {
		t.Fail()
	}
}
