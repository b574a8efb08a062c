package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/go-spatial/geom/encoding/geojson"
)

// Asset of a STAC item or collection
type Asset struct {
	Href  string   `json:"href"`
	Type  string   `json:"type,omitempty"`
	Title string   `json:"title,omitempty"`
	Roles []string `json:"roles,omitempty"`

	// Extension fields used to access the data
	TableStorageOptions  map[string]interface{} `json:"table:storage_options,omitempty"`
	XarrayStorageOptions map[string]interface{} `json:"xarray:storage_options,omitempty"`
	XarrayOpenKwargs     map[string]interface{} `json:"xarray:open_kwargs,omitempty"`
}

// HasRole returns true if the asset has the role
func (a Asset) HasRole(role string) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// Item is a STAC item
type Item struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	BBox       []float64              `json:"bbox,omitempty"`
	Geometry   *geojson.Geometry      `json:"geometry,omitempty"`
	Properties map[string]interface{} `json:"properties"`
	Assets     map[string]Asset       `json:"assets"`
}

// Datetime returns the datetime (or start_datetime) property of the item
func (i Item) Datetime() (time.Time, error) {
	for _, key := range []string{common.PropDatetime, common.PropStartDatetime} {
		if s, ok := i.Properties[key].(string); ok && s != "" {
			t, err := time.Parse(time.RFC3339Nano, s)
			if err != nil {
				return time.Time{}, fmt.Errorf("Datetime[%s]: %w", i.ID, err)
			}
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("Datetime[%s]: no datetime property", i.ID)
}

// CloudCover returns the eo:cloud_cover property of the item, if any
func (i Item) CloudCover() (float64, bool) {
	cc, ok := i.Properties[common.PropCloudCover].(float64)
	return cc, ok
}

// Collection is a STAC collection (only the collection-level assets are used)
type Collection struct {
	ID     string           `json:"id"`
	Title  string           `json:"title,omitempty"`
	Assets map[string]Asset `json:"assets"`
}

// SortBy is a sort criteria of a search
type SortBy struct {
	Field     string `json:"field"`
	Direction string `json:"direction"`
}

// Sort directions
const (
	Ascending  = "asc"
	Descending = "desc"
)

// SearchParams are the parameters of a STAC item search
type SearchParams struct {
	Collections []string                          `json:"collections"`
	BBox        []float64                         `json:"bbox,omitempty"`
	Datetime    string                            `json:"datetime,omitempty"`
	Query       map[string]map[string]interface{} `json:"query,omitempty"`
	Limit       int                               `json:"limit,omitempty"`
	SortBy      []SortBy                          `json:"sortby,omitempty"`
}

// AddQuery adds a property filter, e.g. AddQuery("eo:cloud_cover", "lt", 20)
func (p *SearchParams) AddQuery(property, op string, value interface{}) {
	if p.Query == nil {
		p.Query = map[string]map[string]interface{}{}
	}
	if p.Query[property] == nil {
		p.Query[property] = map[string]interface{}{}
	}
	p.Query[property][op] = value
}

// Client searches the catalog and signs the assets with short-lived credentials
type Client interface {
	// Search returns at most params.Limit items
	Search(ctx context.Context, params SearchParams) ([]Item, error)
	// Sign returns a copy of the item with signed assets
	Sign(ctx context.Context, item Item) (Item, error)
	// Collection returns the collection with signed collection-level assets
	Collection(ctx context.Context, id string) (*Collection, error)
}
