package dispatcher

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// searchParams returns the item search of a grid plan: most recent first
func searchParams(entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan) catalog.SearchParams {
	params := catalog.SearchParams{
		Collections: []string{entry.ID},
		BBox:        a.BBox(),
		Datetime:    plan.TimeRange.Datetime(),
		Limit:       plan.SearchLimit,
		SortBy:      []catalog.SortBy{{Field: common.PropDatetime, Direction: catalog.Descending}},
	}
	if plan.MaxCloudCover != nil {
		params.AddQuery(common.PropCloudCover, "lt", *plan.MaxCloudCover)
	}
	return params
}

// dataAssets returns the keys of the single-band GeoTIFF data assets of the item
func dataAssets(item catalog.Item) []string {
	var keys []string
	for key, asset := range item.Assets {
		if asset.HasRole("data") && (asset.Type == "" || strings.Contains(asset.Type, "tiff")) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if len(keys) == 0 {
		if _, ok := item.Assets[common.AssetData]; ok {
			keys = []string{common.AssetData}
		}
	}
	return keys
}

func (d *Dispatcher) fetchGrid(ctx context.Context, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan) (RawResult, error) {
	items, err := d.Catalog.Search(ctx, searchParams(entry, a, plan))
	if err != nil {
		return nil, fmt.Errorf("fetchGrid.%w", err)
	}
	if len(items) == 0 {
		log.Logger(ctx).Sugar().Debugf("no item for %s in %s", entry.ID, plan.TimeRange)
		return nil, noData(plan)
	}
	log.Logger(ctx).Sugar().Debugf("%d items found, resolution %g", len(items), plan.Resolution)
	if items, err = d.sign(ctx, items); err != nil {
		return nil, fmt.Errorf("fetchGrid.%w", err)
	}

	var res raster.Result
	if entry.MultiBandAsset != "" {
		res, err = d.readMultiBand(ctx, entry, items, a, plan.Resolution)
	} else {
		assets := entry.Assets
		if len(assets) == 0 {
			assets = dataAssets(items[0])
		}
		if len(assets) == 0 {
			return nil, fmt.Errorf("fetchGrid: no data asset in item %s", items[0].ID)
		}
		res, err = d.Pixels.Load(ctx, items, assets, a, plan.Resolution)
	}
	if err != nil {
		return nil, fmt.Errorf("fetchGrid.%w", err)
	}
	return &Grid{Raster: res, Items: items}, nil
}

// sign returns a signed copy of the items: blob assets are not readable without a token
func (d *Dispatcher) sign(ctx context.Context, items []catalog.Item) ([]catalog.Item, error) {
	signed := make([]catalog.Item, len(items))
	for i, item := range items {
		var err error
		if signed[i], err = d.Catalog.Sign(ctx, item); err != nil {
			return nil, fmt.Errorf("sign.%w", err)
		}
	}
	return signed, nil
}

// readMultiBand reads the multi-band asset of the most recent item holding it
func (d *Dispatcher) readMultiBand(ctx context.Context, entry registry.Entry, items []catalog.Item, a aoi.AOI, resolution float64) (raster.Result, error) {
	for _, item := range items {
		asset, ok := item.Assets[entry.MultiBandAsset]
		if !ok {
			continue
		}
		res, err := d.Pixels.WindowedRead(ctx, asset.Href, a, resolution)
		if err != nil {
			return nil, fmt.Errorf("readMultiBand[%s].%w", item.ID, err)
		}
		bands := res.BandList()
		for i := range bands {
			if i < len(entry.BandNames) {
				bands[i].Name = entry.BandNames[i]
			}
		}
		return raster.NewResult(res.Georef(), bands)
	}
	return nil, fmt.Errorf("readMultiBand: no item with asset %s", entry.MultiBandAsset)
}
