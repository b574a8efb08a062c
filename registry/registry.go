package registry

import (
	"fmt"
	"slices"

	"github.com/airbusgeo/stac-fetcher/common"
)

// Visualization is the kind of rendering of a dataset
type Visualization string

const (
	VisualizationRGB        Visualization = "rgb"        // Composite of three bands
	VisualizationClassified Visualization = "classified" // Discrete class palette
	VisualizationTerrain    Visualization = "terrain"    // Continuous elevation colormap
	VisualizationHeatmap    Visualization = "heatmap"    // Spatial heatmap (+ animation over time)
	VisualizationFootprints Visualization = "footprints" // Vector features
)

// Coords are the names of the coordinates of a multidimensional dataset
type Coords struct {
	Time string `json:"time"`
	Lat  string `json:"lat"`
	Lon  string `json:"lon"`
}

// Entry describes one collection of the catalog
type Entry struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Keywords    []string         `json:"keywords"`
	Category    common.Category  `json:"category"`
	Shape       common.ShapeType `json:"shape_type"`

	// Grid only
	NativeResolution float64  `json:"native_resolution_deg,omitempty"`
	Bands            int      `json:"bands,omitempty"`
	BytesPerPixel    int      `json:"bytes_per_pixel,omitempty"`
	Assets           []string `json:"assets,omitempty"`          // One asset per band. Empty: every single-band data asset of the item
	MultiBandAsset   string   `json:"multiband_asset,omitempty"` // Single asset holding all the bands
	BandNames        []string `json:"band_names,omitempty"`      // Names of the bands of MultiBandAsset
	CloudCover       bool     `json:"cloud_cover,omitempty"`     // Items have an eo:cloud_cover property

	// Multidim only
	Variables []string `json:"variables,omitempty"` // Default variables
	Coords    Coords   `json:"coords,omitempty"`

	Visualization Visualization `json:"visualization"`
}

// Default size estimation constants
const (
	DefaultBands         = 3
	DefaultBytesPerPixel = 4
)

// BandCount returns the number of bands used to estimate the size of a download
func (e Entry) BandCount() int {
	if e.Bands > 0 {
		return e.Bands
	}
	return DefaultBands
}

// PixelBytes returns the number of bytes per pixel used to estimate the size of a download
func (e Entry) PixelBytes() int {
	if e.BytesPerPixel > 0 {
		return e.BytesPerPixel
	}
	return DefaultBytesPerPixel
}

func (e Entry) clone() Entry {
	e.Keywords = slices.Clone(e.Keywords)
	e.Assets = slices.Clone(e.Assets)
	e.BandNames = slices.Clone(e.BandNames)
	e.Variables = slices.Clone(e.Variables)
	return e
}

// Alias maps a simple keyword to a collection
type Alias struct {
	Keyword string `json:"keyword"`
	ID      string `json:"id"`
}

// AmbiguousKeyword is a generic term matching several collections
type AmbiguousKeyword struct {
	Keyword    string   `json:"keyword"`
	Candidates []string `json:"candidates"`
}

// Tables are the keyword tables used to resolve a query
type Tables struct {
	Aliases    []Alias            `json:"aliases"`
	Ambiguous  []AmbiguousKeyword `json:"ambiguous"`
	Categories []string           `json:"categories"` // Human description of the available categories
}

// Registry is the immutable table of the supported collections
type Registry struct {
	entries   []Entry
	index     map[string]int
	tables    Tables
	ambiguous map[string]struct{}
}

// New validates the entries and the tables and returns a Registry.
// Entries and tables are copied: the registry cannot be modified afterwards.
func New(entries []Entry, tables Tables) (*Registry, error) {
	r := &Registry{
		index:     map[string]int{},
		ambiguous: map[string]struct{}{},
	}
	for _, e := range entries {
		if e.ID == "" {
			return nil, fmt.Errorf("registry.New: entry without id")
		}
		if _, ok := r.index[e.ID]; ok {
			return nil, fmt.Errorf("registry.New: duplicated entry: %s", e.ID)
		}
		switch e.Shape {
		case common.ShapeGrid:
			if e.NativeResolution <= 0 {
				return nil, fmt.Errorf("registry.New[%s]: grid entry must have a positive native resolution", e.ID)
			}
		case common.ShapeVector, common.ShapeMultidim:
		default:
			return nil, fmt.Errorf("registry.New[%s]: unknown shape type: %v", e.ID, e.Shape)
		}
		r.index[e.ID] = len(r.entries)
		r.entries = append(r.entries, e.clone())
	}

	for _, a := range tables.Aliases {
		if _, ok := r.index[a.ID]; !ok {
			return nil, fmt.Errorf("registry.New: alias '%s' refers to an unknown entry: %s", a.Keyword, a.ID)
		}
		r.tables.Aliases = append(r.tables.Aliases, a)
	}
	for _, a := range tables.Ambiguous {
		for _, id := range a.Candidates {
			if _, ok := r.index[id]; !ok {
				return nil, fmt.Errorf("registry.New: ambiguous keyword '%s' refers to an unknown entry: %s", a.Keyword, id)
			}
		}
		r.tables.Ambiguous = append(r.tables.Ambiguous, AmbiguousKeyword{Keyword: a.Keyword, Candidates: slices.Clone(a.Candidates)})
		r.ambiguous[a.Keyword] = struct{}{}
	}
	r.tables.Categories = slices.Clone(tables.Categories)
	return r, nil
}

// Get returns the entry of the collection
func (r *Registry) Get(id string) (Entry, bool) {
	i, ok := r.index[id]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i].clone(), true
}

// Entries returns all the entries, in declaration order
func (r *Registry) Entries() []Entry {
	entries := make([]Entry, len(r.entries))
	for i, e := range r.entries {
		entries[i] = e.clone()
	}
	return entries
}

// Aliases returns the flat keyword table
func (r *Registry) Aliases() []Alias {
	return slices.Clone(r.tables.Aliases)
}

// Ambiguous returns the ambiguous keywords, in declaration order
func (r *Registry) Ambiguous() []AmbiguousKeyword {
	res := make([]AmbiguousKeyword, len(r.tables.Ambiguous))
	for i, a := range r.tables.Ambiguous {
		res[i] = AmbiguousKeyword{Keyword: a.Keyword, Candidates: slices.Clone(a.Candidates)}
	}
	return res
}

// IsAmbiguous returns true if the keyword is a generic term
func (r *Registry) IsAmbiguous(keyword string) bool {
	_, ok := r.ambiguous[keyword]
	return ok
}

// Categories returns the description of the available categories
func (r *Registry) Categories() []string {
	return slices.Clone(r.tables.Categories)
}
