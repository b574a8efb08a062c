package cog

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"

	"github.com/airbusgeo/osio"
	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCachedTiles   = 1024
	defaultCachedHeaders = 128
)

// file is an opened GeoTIFF
type file struct {
	header *header
	r      io.ReaderAt
	key    string // url without credentials
	levels []int  // Indices of the usable images, full resolution first
	proj   projection
	gt     [6]float64
	noData *float64
}

// Reader reads Cloud Optimized GeoTIFF over HTTP. It implements raster.Reader.
// Headers and decoded tiles are cached by LRUs, blocks by an osio adapter for the duration of a call.
type Reader struct {
	client *http.Client
	tiles  *lru.Cache[string, []float64]
	files  *lru.Cache[string, *file]
}

// New returns a reader caching cachedTiles decoded tiles (default if 0)
func New(cachedTiles int) (*Reader, error) {
	if cachedTiles <= 0 {
		cachedTiles = defaultCachedTiles
	}
	tiles, err := lru.New[string, []float64](cachedTiles)
	if err != nil {
		return nil, fmt.Errorf("New.lru: %w", err)
	}
	files, err := lru.New[string, *file](defaultCachedHeaders)
	if err != nil {
		return nil, fmt.Errorf("New.lru: %w", err)
	}
	return &Reader{client: service.HTTPClient, tiles: tiles, files: files}, nil
}

// adapter returns a block cache whose range requests are canceled with ctx
func (r *Reader) adapter(ctx context.Context) (*osio.Adapter, error) {
	adapter, err := osio.NewAdapter(httpStreamer{ctx: ctx, client: r.client})
	if err != nil {
		return nil, fmt.Errorf("adapter.NewAdapter: %w", err)
	}
	return adapter, nil
}

// open returns the file bound to the adapter. Only the parsed header is shared between calls.
func (r *Reader) open(adapter *osio.Adapter, href string) (*file, error) {
	rd, err := adapter.Reader(href)
	if err != nil {
		return nil, fmt.Errorf("open(%s): %w", service.RedactURL(href), err)
	}
	if cached, ok := r.files.Get(href); ok {
		f := *cached
		f.r = rd
		return &f, nil
	}
	h, err := parseHeader(rd)
	if err != nil {
		return nil, fmt.Errorf("open(%s).%w", service.RedactURL(href), err)
	}
	f := &file{header: h, r: rd, key: service.RedactURL(href)}
	full := h.ifds[0]
	if full.dataType() == raster.DTUnknown {
		return nil, fmt.Errorf("open(%s): unsupported sample format %d/%d bits", f.key, full.sampleFormat, full.bitsPerSample)
	}
	if f.proj, f.gt, err = h.georef(full); err != nil {
		return nil, fmt.Errorf("open(%s).%w", f.key, err)
	}
	f.noData = h.noData(full)
	f.levels = []int{0}
	for i, d := range h.ifds[1:] {
		// Overviews only (reduced resolution without mask bit), sharing the layout of the full resolution image
		if d.subfileType&1 == 1 && d.subfileType&4 == 0 && d.samples == full.samples && d.dataType() == full.dataType() {
			f.levels = append(f.levels, i+1)
		}
	}
	cached := *f
	cached.r = nil
	r.files.Add(href, &cached)
	return f, nil
}

// levelGeoTransform returns the geotransform of an overview
func (f *file) levelGeoTransform(level int) [6]float64 {
	full, d := f.header.ifds[0], f.header.ifds[f.levels[level]]
	gt := f.gt
	gt[1] *= float64(full.width) / float64(d.width)
	gt[5] *= float64(full.height) / float64(d.height)
	return gt
}

// level returns the coarsest overview whose pixels are not larger than the pixels of the target grid
func (f *file) level(g raster.Grid) int {
	lon, lat := g.PixelCenter(g.Width/2, g.Height/2)
	res := g.Resolution()
	x0, y0 := f.proj.forward(lon, lat)
	x1, _ := f.proj.forward(lon+res, lat)
	_, y1 := f.proj.forward(lon, lat+res)
	target := math.Min(math.Abs(x1-x0), math.Abs(y1-y0))

	best := 0
	for l := range f.levels {
		gt := f.levelGeoTransform(l)
		if math.Abs(gt[1]) <= target*1.001 && math.Abs(gt[5]) <= target*1.001 {
			best = l
		}
	}
	return best
}

// tile returns the decoded samples of a tile, from the cache if possible
func (r *Reader) tile(f *file, level, plane, tx, ty int) ([]float64, error) {
	key := fmt.Sprintf("%s#%d/%d/%d/%d", f.key, level, plane, tx, ty)
	if t, ok := r.tiles.Get(key); ok {
		return t, nil
	}
	d := f.header.ifds[f.levels[level]]
	idx := plane*d.tilesAcross()*d.tilesDown() + ty*d.tilesAcross() + tx
	var samples []float64
	if d.counts[idx] == 0 {
		// Sparse tile
		samples = make([]float64, d.tileWidth*d.tileHeight*d.samplesPerChunk())
		for i := range samples {
			samples[i] = math.NaN()
		}
	} else {
		data, err := readAt(f.r, int64(d.offsets[idx]), int(d.counts[idx]))
		if err != nil {
			return nil, fmt.Errorf("tile(%d,%d): %w", tx, ty, err)
		}
		if samples, err = f.header.decodeTile(d, data); err != nil {
			return nil, fmt.Errorf("tile(%d,%d).%w", tx, ty, err)
		}
	}
	r.tiles.Add(key, samples)
	return samples, nil
}

// read resamples (nearest neighbour) all the bands of the file on the grid
func (r *Reader) read(ctx context.Context, f *file, g raster.Grid) ([]raster.Band, error) {
	level := f.level(g)
	d := f.header.ifds[f.levels[level]]
	gt := f.levelGeoTransform(level)
	spc := d.samplesPerChunk()

	bands := make([]raster.Band, d.samples)
	for b := range bands {
		bands[b] = raster.Band{Name: fmt.Sprintf("band%d", b+1), Data: make([]float32, g.Width*g.Height)}
	}
	nan := float32(math.NaN())
	for row := 0; row < g.Height; row++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for col := 0; col < g.Width; col++ {
			i := row*g.Width + col
			lon, lat := g.PixelCenter(col, row)
			x, y := f.proj.forward(lon, lat)
			px := int(math.Floor((x - gt[0]) / gt[1]))
			py := int(math.Floor((y - gt[3]) / gt[5]))
			if px < 0 || py < 0 || px >= d.width || py >= d.height {
				for b := range bands {
					bands[b].Data[i] = nan
				}
				continue
			}
			tx, ty := px/d.tileWidth, py/d.tileHeight
			off := (py%d.tileHeight)*d.tileWidth + px%d.tileWidth
			for b := range bands {
				plane, s := 0, off*spc+b
				if d.planar == 2 {
					plane, s = b, off
				}
				t, err := r.tile(f, level, plane, tx, ty)
				if err != nil {
					return nil, err
				}
				v := t[s]
				if f.noData != nil && v == *f.noData {
					bands[b].Data[i] = nan
				} else {
					bands[b].Data[i] = float32(v)
				}
			}
		}
	}
	return bands, nil
}

func (r *Reader) grid(f *file, a aoi.AOI, resolution float64) raster.Grid {
	g := raster.NewGrid(a, resolution)
	g.DataType = f.header.ifds[0].dataType()
	g.NoData = f.noData
	return g
}

// WindowedRead implements raster.Reader
func (r *Reader) WindowedRead(ctx context.Context, href string, a aoi.AOI, resolution float64) (raster.Result, error) {
	adapter, err := r.adapter(ctx)
	if err != nil {
		return nil, fmt.Errorf("WindowedRead.%w", err)
	}
	f, err := r.open(adapter, href)
	if err != nil {
		return nil, fmt.Errorf("WindowedRead.%w", err)
	}
	g := r.grid(f, a, resolution)
	bands, err := r.read(ctx, f, g)
	if err != nil {
		return nil, fmt.Errorf("WindowedRead(%s).%w", f.key, err)
	}
	log.Logger(ctx).Sugar().Debugf("read %s (EPSG:%d): %dx%d pixels, %d bands", f.key, f.proj.epsg(), g.Width, g.Height, len(bands))
	return raster.NewResult(g, bands)
}

// Load implements raster.Reader. Items must be sorted by decreasing date.
func (r *Reader) Load(ctx context.Context, items []catalog.Item, assets []string, a aoi.AOI, resolution float64) (raster.Result, error) {
	adapter, err := r.adapter(ctx)
	if err != nil {
		return nil, fmt.Errorf("Load.%w", err)
	}
	var grid *raster.Grid
	bands := make([]raster.Band, 0, len(assets))
	for _, key := range assets {
		var data []float32
		missing := 0
		for _, item := range items {
			asset, ok := item.Assets[key]
			if !ok {
				continue
			}
			f, err := r.open(adapter, asset.Href)
			if err != nil {
				return nil, fmt.Errorf("Load[%s/%s].%w", item.ID, key, err)
			}
			g := r.grid(f, a, resolution)
			b, err := r.read(ctx, f, g)
			if err != nil {
				return nil, fmt.Errorf("Load[%s/%s].%w", item.ID, key, err)
			}
			if grid == nil {
				grid = &g
			}
			if data == nil {
				data = b[0].Data
			} else {
				for i, v := range data {
					if v != v {
						data[i] = b[0].Data[i]
					}
				}
			}
			if missing = len(data) - (raster.Band{Data: data}).Valid(); missing == 0 {
				break
			}
		}
		if data == nil {
			return nil, fmt.Errorf("Load: no item has the asset %s", key)
		}
		log.Logger(ctx).Sugar().Debugf("load %s: %d/%d pixels without data", key, missing, len(data))
		bands = append(bands, raster.Band{Name: key, Data: data})
	}
	if grid == nil {
		return nil, fmt.Errorf("Load: no asset")
	}
	return raster.NewResult(*grid, bands)
}
