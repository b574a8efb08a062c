package fetcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/packager"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/resolver"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/google/uuid"
)

// DefaultMaxCloudCover is the maximum cloud cover (%) of optical scenes when not specified
const DefaultMaxCloudCover = 20

// DataRequest is the request of DownloadData
type DataRequest struct {
	Query         string    `json:"query"`
	AOI           aoi.Input `json:"aoi"`
	TimeRange     *string   `json:"time_range,omitempty"`
	OutputDir     string    `json:"output_dir"`
	MaxCloudCover *int      `json:"max_cloud_cover,omitempty"` // Default: DefaultMaxCloudCover
	Variables     []string  `json:"variables,omitempty"`       // Multidim collections only
}

// GeometriesRequest is the request of DownloadGeometries
type GeometriesRequest struct {
	Collection string    `json:"collection"`
	AOI        aoi.Input `json:"aoi"`
	OutputDir  string    `json:"output_dir"`
	Limit      int       `json:"limit,omitempty"` // Maximum number of features (0: no limit)
}

// Fetcher chains the stages of a request: resolution, normalization of the AOI,
// planning, retrieval and packaging.
type Fetcher struct {
	Registry   *registry.Registry
	Normalizer aoi.Normalizer
	Planner    *planner.Planner
	Dispatcher *dispatcher.Dispatcher
	Packager   *packager.Packager
	Metrics    *Metrics // Optional
}

// DownloadData downloads the data of the collection matching the query in the AOI
func (f *Fetcher) DownloadData(ctx context.Context, req DataRequest) (res *packager.FetchResult, err error) {
	start := time.Now()
	var shape string
	defer func() { f.Metrics.observe(OpDownloadData, shape, outcome(err), start) }()

	ctx = log.With(ctx, "request", uuid.New().String())
	if req.Query == "" {
		return nil, &ErrInvalidRequest{Reason: "missing query"}
	}

	// Resolution first: an ambiguous query must not trigger any remote call
	m := resolver.Resolve(f.Registry, req.Query)
	if err := m.Err(); err != nil {
		return nil, err
	}
	entry, err := resolver.Lookup(f.Registry, m.ID())
	if err != nil {
		return nil, fmt.Errorf("DownloadData.%w", err)
	}
	if entry.Shape == common.ShapeVector {
		return nil, &dispatcher.ErrUnsupportedShape{Collection: entry.ID, Shape: entry.Shape}
	}
	shape = entry.Shape.String()
	log.Logger(ctx).Sugar().Debugf("query '%s' resolved to %s", req.Query, entry.ID)

	cc := DefaultMaxCloudCover
	if req.MaxCloudCover != nil {
		cc = *req.MaxCloudCover
	}
	return f.download(ctx, entry, req.AOI, req.TimeRange, cc, req.OutputDir, dispatcher.WithVariables(req.Variables...))
}

// DownloadGeometries downloads the features of the vector collection intersecting the AOI
func (f *Fetcher) DownloadGeometries(ctx context.Context, req GeometriesRequest) (res *packager.FetchResult, err error) {
	start := time.Now()
	var shape string
	defer func() { f.Metrics.observe(OpDownloadGeometries, shape, outcome(err), start) }()

	ctx = log.With(ctx, "request", uuid.New().String())
	if req.Collection == "" {
		return nil, &ErrInvalidRequest{Reason: "missing collection"}
	}
	entry, err := resolver.Lookup(f.Registry, req.Collection)
	if err != nil {
		return nil, err
	}
	if entry.Shape != common.ShapeVector {
		return nil, &dispatcher.ErrUnsupportedShape{Collection: entry.ID, Shape: entry.Shape}
	}
	shape = entry.Shape.String()
	return f.download(ctx, entry, req.AOI, nil, DefaultMaxCloudCover, req.OutputDir, dispatcher.WithLimit(req.Limit))
}

func (f *Fetcher) download(ctx context.Context, entry registry.Entry, in aoi.Input, timeRange *string, maxCloudCover int,
	outputDir string, opts ...dispatcher.Option) (*packager.FetchResult, error) {
	a, err := f.Normalizer.Normalize(ctx, in)
	if err != nil {
		return nil, err
	}
	plan, err := f.Planner.Plan(entry, a, timeRange, maxCloudCover)
	if err != nil {
		return nil, err
	}
	log.Logger(ctx).Sugar().Debugf("plan %s: %.1f km², %s, limit %d, resolution %g", entry.ID, plan.AreaKm2, plan.TimeRange, plan.SearchLimit, plan.Resolution)

	raw, err := f.Dispatcher.Fetch(ctx, entry, a, plan, opts...)
	if err != nil {
		var noData *dispatcher.ErrNoData
		if errors.As(err, &noData) {
			f.Metrics.partitionsFailed(entry.ID, noData.FailedPartitions)
		}
		return nil, err
	}
	if t, ok := raw.(*dispatcher.Table); ok {
		f.Metrics.partitionsFailed(entry.ID, t.FailedPartitions)
	}
	return f.Packager.Package(ctx, raw, entry, a, plan, outputDir)
}
