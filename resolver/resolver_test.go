package resolver_test

import (
	"errors"
	"reflect"
	"testing"

	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/resolver"
)

func suggestionIDs(m resolver.Match) []string {
	var ids []string
	for _, s := range m.Suggestions() {
		ids = append(ids, s.ID)
	}
	return ids
}

func TestResolve(t *testing.T) {
	reg := registry.Default()
	tests := []struct {
		query       string
		kind        resolver.Kind
		id          string
		suggestions []string
	}{
		{"sentinel-2 imagery", resolver.Resolved, "sentinel-2-l2a", nil},
		{"satellite imagery", resolver.Ambiguous, "", []string{"sentinel-2-l2a", "landsat-c2-l2", "naip"}},
		{"ambiguous: satellite data", resolver.Ambiguous, "", []string{"sentinel-2-l2a", "landsat-c2-l2", "sentinel-1-rtc"}},
		{"xyz123 nonsense", resolver.NotFound, "", nil},
		{"land cover", resolver.Resolved, "esa-worldcover", nil},
		{"  Land   COVER ", resolver.Resolved, "esa-worldcover", nil},
		{"land use", resolver.Resolved, "io-lulc-annual-v02", nil},
		{"building footprints", resolver.Resolved, "ms-buildings", nil},
		{"radar", resolver.Resolved, "sentinel-1-rtc", nil},
		{"elevation", resolver.Resolved, "cop-dem-glo-30", nil},
		{"naip aerial imagery", resolver.Resolved, "naip", nil},
		{"weather daily", resolver.Ambiguous, "", []string{"gridmet", "daymet-daily-na"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			m := resolver.Resolve(reg, tt.query)
			if m.Kind() != tt.kind {
				t.Fatalf("expected %v, got %v (%s %v)", tt.kind, m.Kind(), m.ID(), suggestionIDs(m))
			}
			if m.ID() != tt.id {
				t.Errorf("expected %s, got %s", tt.id, m.ID())
			}
			if tt.suggestions != nil && !reflect.DeepEqual(suggestionIDs(m), tt.suggestions) {
				t.Errorf("expected suggestions %v, got %v", tt.suggestions, suggestionIDs(m))
			}
			if len(m.Suggestions()) > 3 {
				t.Errorf("too many suggestions: %d", len(m.Suggestions()))
			}
		})
	}
}

func TestExactIDDominates(t *testing.T) {
	reg := registry.Default()
	for _, q := range []string{"sentinel-2-l2a optical", "cop-dem-glo-30 landsat", "naip elevation"} {
		m := resolver.Resolve(reg, q)
		if m.Kind() != resolver.Resolved {
			t.Fatalf("%s: expected resolved, got %v", q, m.Kind())
		}
		for _, e := range reg.Entries() {
			if len(q) >= len(e.ID) && q[:len(e.ID)] == e.ID && m.ID() != e.ID {
				t.Errorf("%s: expected %s, got %s", q, e.ID, m.ID())
			}
		}
	}
}

func TestErr(t *testing.T) {
	reg := registry.Default()
	if err := resolver.Resolve(reg, "sentinel-2").Err(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}

	var amb *resolver.ErrAmbiguous
	if err := resolver.Resolve(reg, "satellite").Err(); !errors.As(err, &amb) {
		t.Fatalf("expected ErrAmbiguous, got %v", err)
	}
	if amb.Query != "satellite" || amb.Suggestions[0].Name != "Sentinel-2 L2A" {
		t.Errorf("unexpected error: %+v", amb)
	}

	var nomatch *resolver.ErrNoMatch
	if err := resolver.Resolve(reg, "xyz123 nonsense").Err(); !errors.As(err, &nomatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
	if !reflect.DeepEqual(nomatch.Categories, reg.Categories()) {
		t.Errorf("unexpected categories: %v", nomatch.Categories)
	}
}

func TestTieBreakByRegistryOrder(t *testing.T) {
	reg, err := registry.New([]registry.Entry{
		{ID: "b", Keywords: []string{"forest"}, Shape: common.ShapeVector},
		{ID: "a", Keywords: []string{"forest"}, Shape: common.ShapeVector},
	}, registry.Tables{})
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		m := resolver.Resolve(reg, "forest")
		if !reflect.DeepEqual(suggestionIDs(m), []string{"b", "a"}) {
			t.Fatalf("unexpected suggestions: %v", suggestionIDs(m))
		}
	}
}

func TestLookup(t *testing.T) {
	reg := registry.Default()
	e, err := resolver.Lookup(reg, "ms-buildings")
	if err != nil || e.Shape != common.ShapeVector {
		t.Errorf("unexpected lookup: %v %v", e.Shape, err)
	}
	var nomatch *resolver.ErrNoMatch
	if _, err := resolver.Lookup(reg, "unknown"); !errors.As(err, &nomatch) {
		t.Errorf("expected ErrNoMatch, got %v", err)
	}
}
