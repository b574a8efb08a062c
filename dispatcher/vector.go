package dispatcher

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"golang.org/x/sync/errgroup"
)

// Regions of the building footprints
const (
	RegionUnitedStates = "United States"
	RegionCanada       = "Canada"
)

const maxMercatorLat = 85.05112878

// Region returns the region partition of the AOI, from its south-west corner ("" if unknown)
func Region(a aoi.AOI) string {
	w, s := a.West(), a.South()
	switch {
	case -125 <= w && w <= -66 && 24 <= s && s <= 50:
		return RegionUnitedStates
	case -141 <= w && w <= -52 && 41 <= s && s <= 84:
		return RegionCanada
	}
	return ""
}

// Quadkeys returns the quadkeys of the web-mercator tiles of the zoom level covering the AOI
func Quadkeys(a aoi.AOI, zoom int) []string {
	z := maptile.Zoom(zoom)
	clamp := func(lat float64) float64 {
		return math.Max(-maxMercatorLat, math.Min(maxMercatorLat, lat))
	}
	nw := maptile.At(orb.Point{a.West(), clamp(a.North())}, z)
	// Nudge the east and south edges inside the AOI so that a bound on a tile edge does not add a tile
	se := maptile.At(orb.Point{math.Nextafter(a.East(), a.West()), math.Nextafter(clamp(a.South()), a.North())}, z)

	var keys []string
	for y := nw.Y; y <= se.Y; y++ {
		for x := nw.X; x <= se.X; x++ {
			keys = append(keys, quadkey(maptile.New(x, y, z)))
		}
	}
	return keys
}

// quadkey formats the quadkey of a tile with its leading zeros
func quadkey(t maptile.Tile) string {
	qk := strconv.FormatUint(t.Quadkey(), 4)
	if n := int(t.Z) - len(qk); n > 0 {
		qk = strings.Repeat("0", n) + qk
	}
	return qk
}

func (d *Dispatcher) fetchTable(ctx context.Context, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan, limit int) (RawResult, error) {
	res := &Table{Region: Region(a)}

	var files []string
	if res.Region != "" {
		params := catalog.SearchParams{Collections: []string{entry.ID}, BBox: a.BBox(), Limit: 1}
		params.AddQuery(common.PropBuildingsRegion, "eq", res.Region)
		items, err := d.Catalog.Search(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("fetchTable.%w", err)
		}
		if len(items) == 0 {
			return nil, noData(plan)
		}
		if files, err = d.quadkeyPartitions(ctx, items[0], a); err != nil {
			return nil, fmt.Errorf("fetchTable.%w", err)
		}
	}
	if len(files) == 0 {
		var err error
		if files, err = d.itemPartitions(ctx, entry, a, plan); err != nil {
			return nil, fmt.Errorf("fetchTable.%w", err)
		}
	}
	if len(files) == 0 {
		return nil, noData(plan)
	}

	res.Table = d.readPartitions(ctx, files, a, res)
	if res.Degraded() {
		log.Logger(ctx).Sugar().Warnf("%d/%d partitions failed: %v", res.FailedPartitions, res.Partitions, res.Err())
	}
	if res.Table.Len() == 0 {
		if res.FailedPartitions == 0 {
			return nil, noData(plan)
		}
		return nil, &ErrNoData{
			Collection:       entry.ID,
			Message:          fmt.Sprintf("No %s features could be read in this area: %d of %d partitions failed. Retry later or try a different area.", entry.ID, res.FailedPartitions, res.Partitions),
			FailedPartitions: res.FailedPartitions,
		}
	}
	res.Table.Truncate(limit)
	log.Logger(ctx).Sugar().Debugf("%d features read from %d partitions", res.Table.Len(), res.Partitions)
	return res, nil
}

// quadkeyPartitions lists the parquet files of the quadkey partitions of the region covering the AOI.
// Missing partitions are skipped: the dataset is sparse.
func (d *Dispatcher) quadkeyPartitions(ctx context.Context, item catalog.Item, a aoi.AOI) ([]string, error) {
	item, err := d.Catalog.Sign(ctx, item)
	if err != nil {
		return nil, fmt.Errorf("quadkeyPartitions.%w", err)
	}
	asset, ok := item.Assets[common.AssetData]
	if !ok {
		return nil, nil
	}
	var files []string
	for _, qk := range Quadkeys(a, d.zoom()) {
		parts, err := d.Tables.List(ctx, partitionURL(asset.Href, "quadkey="+qk), asset.TableStorageOptions)
		if err != nil {
			log.Logger(ctx).Sugar().Debugf("partition quadkey=%s skipped: %v", qk, err)
			continue
		}
		files = append(files, parts...)
	}
	return files, nil
}

// partitionURL appends the partition to the path of the href, keeping its query (signature)
func partitionURL(href, partition string) string {
	p, query, signed := strings.Cut(href, "?")
	p = strings.TrimSuffix(p, "/") + "/" + partition
	if signed {
		return p + "?" + query
	}
	return p
}

// itemPartitions lists the parquet files of the data assets of the items intersecting the AOI
func (d *Dispatcher) itemPartitions(ctx context.Context, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan) ([]string, error) {
	items, err := d.Catalog.Search(ctx, catalog.SearchParams{Collections: []string{entry.ID}, BBox: a.BBox(), Limit: plan.SearchLimit})
	if err != nil {
		return nil, fmt.Errorf("itemPartitions.%w", err)
	}
	var files []string
	for _, item := range items {
		if item, err = d.Catalog.Sign(ctx, item); err != nil {
			return nil, fmt.Errorf("itemPartitions.%w", err)
		}
		asset, ok := item.Assets[common.AssetData]
		if !ok {
			continue
		}
		parts, err := d.Tables.List(ctx, asset.Href, asset.TableStorageOptions)
		if err != nil {
			log.Logger(ctx).Sugar().Debugf("item %s skipped: %v", item.ID, err)
			continue
		}
		files = append(files, parts...)
	}
	return files, nil
}

// readPartitions reads the files in parallel. A failed read does not cancel the others:
// it is recorded in the diagnostics of the result.
func (d *Dispatcher) readPartitions(ctx context.Context, files []string, a aoi.AOI, res *Table) *table.Table {
	tables := make([]*table.Table, len(files))
	var mu sync.Mutex
	wg := errgroup.Group{}
	wg.SetLimit(d.workers())
	for i, file := range files {
		i, file := i, file
		wg.Go(func() error {
			t, err := d.Tables.Read(ctx, file, a)
			if err != nil {
				mu.Lock()
				res.FailedPartitions++
				res.Diagnostics = append(res.Diagnostics, fmt.Errorf("partition %d: %w", i, err))
				mu.Unlock()
				return nil
			}
			tables[i] = t
			return nil
		})
	}
	_ = wg.Wait()

	res.Partitions = len(files)
	union := &table.Table{}
	for _, t := range tables {
		union.Append(t)
	}
	return union
}
