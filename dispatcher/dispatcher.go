package dispatcher

import (
	"context"
	"fmt"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// Defaults of the vector strategy
const (
	DefaultWorkers     = 8
	DefaultQuadkeyZoom = 9
)

// ErrNoData is returned when the catalog or the store has nothing for the request
type ErrNoData struct {
	Collection       string
	Message          string
	Suggestion       *planner.Suggestion // Only when the default time window was used
	FailedPartitions int                 // Vector only: partitions that could not be read
}

func (e *ErrNoData) Error() string {
	return e.Message
}

func noData(plan *planner.FetchPlan) error {
	return &ErrNoData{Collection: plan.Collection, Message: plan.NoDataMessage(), Suggestion: plan.NoDataSuggestion()}
}

// ErrUnsupportedShape is returned when no strategy is configured for the shape of a collection
type ErrUnsupportedShape struct {
	Collection string
	Shape      common.ShapeType
}

func (e *ErrUnsupportedShape) Error() string {
	return fmt.Sprintf("unsupported dataset shape %q for collection %s", e.Shape, e.Collection)
}

// RawResult is the in-memory result of a retrieval: *Grid, *Table or *Cube
type RawResult interface {
	Shape() common.ShapeType
	raw()
}

// Grid is the result of the grid strategy
type Grid struct {
	Raster raster.Result
	Items  []catalog.Item // Items returned by the search, most recent first
}

// Shape implements RawResult
func (*Grid) Shape() common.ShapeType { return common.ShapeGrid }
func (*Grid) raw()                    {}

// Table is the result of the vector strategy
type Table struct {
	Table            *table.Table
	Region           string
	Partitions       int     // Number of partitions read
	FailedPartitions int     // Number of partitions that could not be read
	Diagnostics      []error // One per failed partition
}

// Shape implements RawResult
func (*Table) Shape() common.ShapeType { return common.ShapeVector }
func (*Table) raw()                    {}

// Degraded returns true if some partitions could not be read
func (t *Table) Degraded() bool {
	return t.FailedPartitions > 0
}

// Err merges the diagnostics of the failed partitions (nil if none failed)
func (t *Table) Err() error {
	return service.MergeErrors(true, nil, t.Diagnostics...)
}

// Cube is the result of the multidim strategy
type Cube struct {
	Dataset *zarr.Dataset
	Coords  registry.Coords // Names of the coordinates actually found in the store
}

// Shape implements RawResult
func (*Cube) Shape() common.ShapeType { return common.ShapeMultidim }
func (*Cube) raw()                    {}

// Dispatcher retrieves the data of a plan with the strategy of the shape of the collection.
// A nil collaborator disables the corresponding strategy.
type Dispatcher struct {
	Catalog     catalog.Client
	Pixels      raster.Reader // grid
	Tables      table.Source  // vector
	Stores      zarr.Opener   // multidim
	Workers     int           // Parallel partition reads (vector)
	QuadkeyZoom int           // Zoom level of the partitions (vector)
}

type options struct {
	variables []string
	limit     int
}

// Option of a Fetch
type Option func(*options)

// WithVariables selects the variables of a multidimensional dataset
func WithVariables(variables ...string) Option {
	return func(o *options) { o.variables = variables }
}

// WithLimit limits the number of features of a vector dataset (n <= 0: no limit)
func WithLimit(n int) Option {
	return func(o *options) { o.limit = n }
}

func (d *Dispatcher) workers() int {
	if d.Workers > 0 {
		return d.Workers
	}
	return DefaultWorkers
}

func (d *Dispatcher) zoom() int {
	if d.QuadkeyZoom > 0 {
		return d.QuadkeyZoom
	}
	return DefaultQuadkeyZoom
}

// Fetch retrieves the data of the entry in the AOI following the plan
func (d *Dispatcher) Fetch(ctx context.Context, entry registry.Entry, a aoi.AOI, plan *planner.FetchPlan, opts ...Option) (RawResult, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	unsupported := &ErrUnsupportedShape{Collection: entry.ID, Shape: entry.Shape}
	if d.Catalog == nil {
		return nil, unsupported
	}
	ctx = log.With(ctx, "collection", entry.ID)
	log.Logger(ctx).Sugar().Debugf("fetching %s (%s) in %s", entry.ID, entry.Shape, a)

	switch entry.Shape {
	case common.ShapeGrid:
		if d.Pixels != nil {
			return d.fetchGrid(ctx, entry, a, plan)
		}
	case common.ShapeVector:
		if d.Tables != nil {
			return d.fetchTable(ctx, entry, a, plan, o.limit)
		}
	case common.ShapeMultidim:
		if d.Stores != nil {
			return d.fetchCube(ctx, entry, a, plan, o.variables)
		}
	}
	return nil, unsupported
}
