package dispatcher

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// ErrUnknownVariables is returned when requested variables are not in the store
type ErrUnknownVariables struct {
	Collection string
	Unknown    []string
	Available  []string
}

func (e *ErrUnknownVariables) Error() string {
	return fmt.Sprintf("variables %s not found in %s. Available variables: %s",
		strings.Join(e.Unknown, ", "), e.Collection, strings.Join(e.Available, ", "))
}

// Candidate names of the coordinates, after the ones of the registry
var (
	timeNames = []string{"time", "day"}
	latNames  = []string{"lat", "latitude", "y"}
	lonNames  = []string{"lon", "longitude", "x"}
)

// storeAsset returns the zarr asset of the collection, preferring https
func storeAsset(coll *catalog.Collection) (catalog.Asset, bool) {
	for _, key := range []string{common.AssetZarrHTTPS, common.AssetZarrABFS} {
		if asset, ok := coll.Assets[key]; ok {
			return asset, true
		}
	}
	return catalog.Asset{}, false
}

// storageOptions returns the storage options of a zarr asset
func storageOptions(asset catalog.Asset) map[string]interface{} {
	if asset.XarrayStorageOptions != nil {
		return asset.XarrayStorageOptions
	}
	if so, ok := asset.XarrayOpenKwargs["storage_options"].(map[string]interface{}); ok {
		return so
	}
	return nil
}

// coordName returns the first name of the list that is a coordinate of the store
func coordName(store zarr.Store, preferred string, names []string) string {
	if preferred != "" {
		if _, ok := store.Array(preferred); ok {
			return preferred
		}
	}
	for _, name := range names {
		if _, ok := store.Array(name); ok {
			return name
		}
	}
	return ""
}

// selectVariables returns the requested variables, failing on unknown ones,
// or the defaults of the registry present in the store, or all the variables.
func selectVariables(entry registry.Entry, store zarr.Store, requested []string) ([]string, error) {
	available := store.DataVariables()
	has := map[string]bool{}
	for _, v := range available {
		has[v] = true
	}
	if len(requested) > 0 {
		var unknown []string
		for _, v := range requested {
			if !has[v] {
				unknown = append(unknown, v)
			}
		}
		if len(unknown) > 0 {
			return nil, &ErrUnknownVariables{Collection: entry.ID, Unknown: unknown, Available: available}
		}
		return requested, nil
	}
	var vars []string
	for _, v := range entry.Variables {
		if has[v] {
			vars = append(vars, v)
		}
	}
	if len(vars) == 0 {
		vars = available
	}
	return vars, nil
}

// indexRange returns the smallest range of indices holding all the values in [min, max].
// It supports ascending and descending coordinates.
func indexRange(values []float64, min, max float64) zarr.Range {
	r := zarr.Range{Start: -1}
	for i, v := range values {
		if v >= min && v <= max {
			if r.Start < 0 {
				r.Start = i
			}
			r.Stop = i + 1
		}
	}
	if r.Start < 0 {
		return zarr.Range{}
	}
	return r
}

// timeRange returns the range of the time steps within the plan
func timeRange(coord *zarr.Variable, tr planner.TimeRange) zarr.Range {
	r := zarr.Range{Start: -1}
	for i, t := range coord.Times {
		if tr.Contains(t) {
			if r.Start < 0 {
				r.Start = i
			}
			r.Stop = i + 1
		}
	}
	if r.Start < 0 {
		return zarr.Range{}
	}
	return r
}

func (d *Dispatcher) fetchCube(ctx context.Context, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan, requested []string) (RawResult, error) {
	coll, err := d.Catalog.Collection(ctx, entry.ID)
	if err != nil {
		return nil, fmt.Errorf("fetchCube.%w", err)
	}
	asset, ok := storeAsset(coll)
	if !ok {
		return nil, fmt.Errorf("fetchCube: no zarr asset in collection %s", entry.ID)
	}
	store, err := d.Stores.Open(ctx, asset.Href, storageOptions(asset))
	if err != nil {
		return nil, fmt.Errorf("fetchCube.%w", err)
	}
	vars, err := selectVariables(entry, store, requested)
	if err != nil {
		return nil, err
	}

	coords := registry.Coords{
		Time: coordName(store, entry.Coords.Time, timeNames),
		Lat:  coordName(store, entry.Coords.Lat, latNames),
		Lon:  coordName(store, entry.Coords.Lon, lonNames),
	}
	sel := map[string]zarr.Range{}
	ds := &zarr.Dataset{}

	if coords.Time != "" {
		t, err := store.Read(ctx, coords.Time, nil)
		if err != nil {
			return nil, fmt.Errorf("fetchCube.%w", err)
		}
		if len(t.Dims) == 1 && t.Times != nil {
			sel[t.Dims[0]] = timeRange(t, plan.TimeRange)
		}
	}
	if coords.Lat != "" && coords.Lon != "" {
		lat, _ := store.Array(coords.Lat)
		lon, _ := store.Array(coords.Lon)
		if len(lat.Dims) == 1 && len(lon.Dims) == 1 {
			if err := d.spatialSelection(ctx, store, coords, a, sel); err != nil {
				return nil, fmt.Errorf("fetchCube.%w", err)
			}
		} else {
			log.Logger(ctx).Sugar().Debugf("%s: 2-D coordinates, spatial subset skipped", entry.ID)
		}
	}

	for _, name := range []string{coords.Time, coords.Lat, coords.Lon} {
		if name == "" {
			continue
		}
		c, err := store.Read(ctx, name, sel)
		if err != nil {
			return nil, fmt.Errorf("fetchCube.%w", err)
		}
		ds.Coords = append(ds.Coords, c)
	}
	for _, name := range vars {
		v, err := store.Read(ctx, name, sel)
		if err != nil {
			return nil, fmt.Errorf("fetchCube.%w", err)
		}
		ds.Variables = append(ds.Variables, v)
	}
	if ds.Empty() {
		return nil, noData(plan)
	}
	log.Logger(ctx).Sugar().Debugf("%s: %v read with sizes %v", entry.ID, vars, ds.Sizes())
	return &Cube{Dataset: ds, Coords: coords}, nil
}

// spatialSelection adds the ranges of the 1-D lat/lon coordinates within the AOI to sel
func (d *Dispatcher) spatialSelection(ctx context.Context, store zarr.Store, coords registry.Coords, a aoi.AOI, sel map[string]zarr.Range) error {
	lat, err := store.Read(ctx, coords.Lat, nil)
	if err != nil {
		return fmt.Errorf("spatialSelection.%w", err)
	}
	lon, err := store.Read(ctx, coords.Lon, nil)
	if err != nil {
		return fmt.Errorf("spatialSelection.%w", err)
	}
	sel[lat.Dims[0]] = indexRange(lat.Data, a.South(), a.North())
	sel[lon.Dims[0]] = indexRange(normalizeLon(lon.Data), a.West(), a.East())
	return nil
}

// normalizeLon converts 0..360 longitudes to -180..180
func normalizeLon(lons []float64) []float64 {
	max := math.Inf(-1)
	for _, v := range lons {
		max = math.Max(max, v)
	}
	if max <= 180 {
		return lons
	}
	out := make([]float64, len(lons))
	for i, v := range lons {
		if v > 180 {
			v -= 360
		}
		out[i] = v
	}
	return out
}
