package packager

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/interface/raster/geotiff"
	"github.com/airbusgeo/stac-fetcher/interface/render"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/airbusgeo/stac-fetcher/interface/table/geoparquet"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// DownloadInfo summarizes the size of a grid or multidim download
type DownloadInfo struct {
	EstimatedSize string  `json:"estimated_size"`
	Dimensions    string  `json:"dimensions"`
	Resolution    float64 `json:"resolution_deg"`
}

// FetchResult is the outcome of a request
type FetchResult struct {
	RawPath           string                 `json:"raw"`
	VisualizationPath string                 `json:"visualization"`
	AnimationPath     string                 `json:"animation,omitempty"`
	DatasetID         string                 `json:"collection"`
	Metadata          map[string]interface{} `json:"metadata"`
	DownloadInfo      *DownloadInfo          `json:"download_info,omitempty"`
	Warnings          []string               `json:"warnings"`
}

// Packager writes the artifacts of a raw result and describes them
type Packager struct {
	Renderer *render.Renderer
	Workdir  string // Staging directory of the remote outputs
	S3       service.S3Options
}

// New returns a packager with the default renderer
func New(workdir string) *Packager {
	return &Packager{Renderer: render.New(), Workdir: workdir}
}

// Package writes the raw artifact and its visualization in outputDir (local path, gs:// or s3:// uri)
// and returns their paths with the metadata of the result.
func (p *Packager) Package(ctx context.Context, raw dispatcher.RawResult, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan, outputDir string) (*FetchResult, error) {
	storage, err := service.NewStorage(ctx, outputDir, p.Workdir, p.S3)
	if err != nil {
		return nil, fmt.Errorf("Package.%w", err)
	}
	res := &FetchResult{
		DatasetID: entry.ID,
		Metadata:  baseMetadata(entry, a, plan),
		Warnings:  append([]string{}, plan.Warnings...),
	}
	if plan.Size != nil {
		res.DownloadInfo = &DownloadInfo{
			EstimatedSize: plan.Size.Human,
			Dimensions:    fmt.Sprintf("%dx%d pixels", plan.Size.WidthPx, plan.Size.HeightPx),
			Resolution:    plan.Size.Resolution,
		}
		res.Metadata[common.MetaDownloadInfo] = res.DownloadInfo
	}

	dir := storage.LocalDir()
	var artifacts []*string
	switch r := raw.(type) {
	case *dispatcher.Grid:
		err = p.packageGrid(r, entry, a, dir, res)
		artifacts = []*string{&res.RawPath, &res.VisualizationPath}
	case *dispatcher.Cube:
		err = p.packageCube(r, entry, a, dir, res)
		artifacts = []*string{&res.RawPath, &res.VisualizationPath, &res.AnimationPath}
	case *dispatcher.Table:
		err = p.packageTable(r, entry, a, dir, res)
		artifacts = []*string{&res.RawPath, &res.VisualizationPath}
	default:
		err = fmt.Errorf("unsupported result %T", raw)
	}
	if err != nil {
		return nil, fmt.Errorf("Package.%w", err)
	}

	for _, path := range artifacts {
		if *path == "" {
			continue
		}
		if *path, err = storage.Save(ctx, *path); err != nil {
			return nil, fmt.Errorf("Package.%w", err)
		}
	}
	log.Logger(ctx).Sugar().Debugf("%s packaged in %s", entry.ID, res.RawPath)
	return res, nil
}

func baseMetadata(entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan) map[string]interface{} {
	md := map[string]interface{}{
		common.MetaCollection: entry.ID,
		common.MetaBBox:       a.BBox(),
		common.MetaCRS:        common.CRS,
	}
	if entry.Shape != common.ShapeVector {
		md[common.MetaDatetime] = plan.TimeRange.String()
	}
	if plan.Size != nil {
		md[common.MetaSizeEstimate] = plan.Size
	}
	return md
}

func (p *Packager) packageGrid(r *dispatcher.Grid, entry registry.Entry, a aoi.AOI, dir string, res *FetchResult) error {
	rawName, visName := common.GridFileNames(entry.ID, a.West(), a.South(), a.East(), a.North())
	res.RawPath, res.VisualizationPath = filepath.Join(dir, rawName), filepath.Join(dir, visName)
	if err := geotiff.Write(res.RawPath, r.Raster); err != nil {
		return fmt.Errorf("packageGrid.%w", err)
	}
	if err := p.Renderer.Raster(r.Raster, entry.Visualization, res.VisualizationPath); err != nil {
		return fmt.Errorf("packageGrid.%w", err)
	}

	g := r.Raster.Georef()
	var names []string
	for _, b := range r.Raster.BandList() {
		names = append(names, b.Name)
	}
	var items []string
	for _, it := range r.Items {
		items = append(items, it.ID)
	}
	bounds := g.Bounds()
	res.Metadata[common.MetaWidth] = g.Width
	res.Metadata[common.MetaHeight] = g.Height
	res.Metadata[common.MetaBands] = names
	res.Metadata[common.MetaResolution] = g.Resolution()
	res.Metadata[common.MetaBounds] = bounds[:]
	res.Metadata[common.MetaItems] = items
	return nil
}

// ranges of a 1-D coordinate
func coordRange(c *zarr.Variable) map[string]interface{} {
	if c == nil || len(c.Dims) != 1 {
		return nil
	}
	min, max, ok := c.MinMax()
	if !ok {
		return nil
	}
	return map[string]interface{}{"min": min, "max": max}
}

func (p *Packager) packageCube(r *dispatcher.Cube, entry registry.Entry, a aoi.AOI, dir string, res *FetchResult) error {
	ds := r.Dataset
	if ds.Empty() {
		return fmt.Errorf("packageCube: empty dataset")
	}
	rawName, visName, animName := common.CubeFileNames(entry.ID, a.West(), a.South(), a.East(), a.North())
	res.RawPath, res.VisualizationPath = filepath.Join(dir, rawName), filepath.Join(dir, visName)
	if err := os.RemoveAll(res.RawPath); err != nil {
		return fmt.Errorf("packageCube: %w", err)
	}
	if err := zarr.Write(res.RawPath, ds); err != nil {
		return fmt.Errorf("packageCube.%w", err)
	}

	lat := ds.Coord(r.Coords.Lat)
	flip := lat != nil && len(lat.Data) > 1 && len(lat.Dims) == 1 && lat.Data[0] < lat.Data[len(lat.Data)-1]
	animPath := filepath.Join(dir, animName)
	animated, err := p.Renderer.Cube(ds.Variables[0], flip, res.VisualizationPath, animPath)
	if err != nil {
		return fmt.Errorf("packageCube.%w", err)
	}
	if animated {
		res.AnimationPath = animPath
	}

	res.Metadata[common.MetaVariables] = ds.VariableNames()
	res.Metadata[common.MetaDimensions] = ds.Sizes()
	res.Metadata[common.MetaCoordinates] = ds.CoordNames()
	res.Metadata[common.MetaAnimation] = animated
	if t := ds.Coord(r.Coords.Time); t != nil && len(t.Times) > 0 {
		res.Metadata[common.MetaTimeRange] = map[string]interface{}{
			"start": t.Times[0].Format("2006-01-02"),
			"end":   t.Times[len(t.Times)-1].Format("2006-01-02"),
			"count": len(t.Times),
		}
	}
	if rg := coordRange(lat); rg != nil {
		res.Metadata[common.MetaLatRange] = rg
	}
	if rg := coordRange(ds.Coord(r.Coords.Lon)); rg != nil {
		res.Metadata[common.MetaLonRange] = rg
	}
	return nil
}

func (p *Packager) packageTable(r *dispatcher.Table, entry registry.Entry, a aoi.AOI, dir string, res *FetchResult) error {
	if r.Table.Len() == 0 {
		return &dispatcher.ErrNoData{Collection: entry.ID, Message: fmt.Sprintf("No geometries found for %s in the specified area", entry.ID)}
	}
	rawName, visName := common.VectorFileNames(entry.ID, a.West(), a.South(), a.East(), a.North())
	res.RawPath, res.VisualizationPath = filepath.Join(dir, rawName), filepath.Join(dir, visName)
	if err := geoparquet.WriteFile(res.RawPath, r.Table); err != nil {
		return fmt.Errorf("packageTable.%w", err)
	}
	if _, err := p.Renderer.Footprints(r.Table, a, res.VisualizationPath); err != nil {
		return fmt.Errorf("packageTable.%w", err)
	}

	sum := r.Table.Summarize()
	res.Metadata[common.MetaCount] = sum.Count
	res.Metadata[common.MetaColumns] = append(append([]string{}, r.Table.Columns...), table.GeometryColumn)
	res.Metadata[common.MetaGeometryTypes] = sum.GeometryTypes
	if sum.Bounds != nil {
		res.Metadata[common.MetaBounds] = sum.Bounds[:]
	}
	res.Metadata[common.MetaDegraded] = r.Degraded()
	res.Metadata[common.MetaFailedPartitions] = r.FailedPartitions
	if r.Degraded() {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%d of %d partitions could not be read: the result may be incomplete", r.FailedPartitions, r.Partitions))
	}
	return nil
}
