package geoparquet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/airbusgeo/stac-fetcher/interface/table/blob"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/cavaliercoder/grab"
	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/paulsmith/gogeos/geos"
)

const (
	// MetadataKey is the key of the GeoParquet metadata in the footer of the file
	MetadataKey = "geo"
	extension   = ".parquet"
	batchSize   = 256
)

// Metadata is the GeoParquet file metadata
type Metadata struct {
	Version       string                    `json:"version"`
	PrimaryColumn string                    `json:"primary_column"`
	Columns       map[string]ColumnMetadata `json:"columns"`
}

// ColumnMetadata describes a geometry column
type ColumnMetadata struct {
	Encoding      string    `json:"encoding"`
	GeometryTypes []string  `json:"geometry_types"`
	BBox          []float64 `json:"bbox,omitempty"`
}

// Reader downloads partition files and reads their features.
// It implements table.Source with the blob Lister.
type Reader struct {
	Lister  *blob.Lister
	Workdir string // Temporary files are downloaded here (default: os.TempDir())
}

// NewReader returns a reader listing Azure Blob Storage containers
func NewReader(workdir string) *Reader {
	return &Reader{Lister: blob.New(), Workdir: workdir}
}

// List implements table.Source
func (r *Reader) List(ctx context.Context, prefix string, options map[string]interface{}) ([]string, error) {
	files, err := r.Lister.Files(ctx, prefix, options, extension)
	if err != nil {
		return nil, fmt.Errorf("List.%w", err)
	}
	return files, nil
}

// Read implements table.Source: the file is downloaded in the workdir, read and removed.
func (r *Reader) Read(ctx context.Context, url string, a aoi.AOI) (*table.Table, error) {
	workdir := r.Workdir
	if workdir == "" {
		workdir = os.TempDir()
	}
	local := filepath.Join(workdir, uuid.New().String()+extension)
	defer os.Remove(local)
	if err := download(ctx, url, local); err != nil {
		return nil, fmt.Errorf("Read.%w", err)
	}
	t, err := ReadFile(local, &a)
	if err != nil {
		return nil, fmt.Errorf("Read(%s).%w", service.RedactURL(url), err)
	}
	log.Logger(ctx).Sugar().Debugf("read %d features from %s", t.Len(), service.RedactURL(url))
	return t, nil
}

func download(ctx context.Context, url, local string) error {
	req, err := grab.NewRequest(local, url)
	if err != nil {
		return fmt.Errorf("download.NewRequest: %w", err)
	}
	req = req.WithContext(ctx)
	client := grab.NewClient()
	client.UserAgent = service.UserAgent
	resp := client.Do(req)
	if err := resp.Err(); err != nil {
		err = fmt.Errorf("download[%s]: %w", service.RedactURL(url), err)
		if resp.HTTPResponse == nil || service.TemporaryStatus(resp.HTTPResponse.StatusCode) {
			return service.MakeTemporary(err)
		}
		return err
	}
	return nil
}

// ReadFile reads the features of a GeoParquet file.
// If filter is not nil, only the features intersecting the AOI are returned.
func ReadFile(path string, filter *aoi.AOI) (*table.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadFile: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("ReadFile.Stat: %w", err)
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("ReadFile.OpenFile: %w", err)
	}

	geomColumn := table.GeometryColumn
	if s, ok := pf.Lookup(MetadataKey); ok {
		var md Metadata
		if err := json.Unmarshal([]byte(s), &md); err == nil && md.PrimaryColumn != "" {
			geomColumn = md.PrimaryColumn
		}
	}
	var names []string
	for _, col := range pf.Schema().Columns() {
		names = append(names, strings.Join(col, "."))
	}
	t := &table.Table{}
	geomIdx := -1
	for i, n := range names {
		if n == geomColumn {
			geomIdx = i
		} else {
			t.Columns = append(t.Columns, n)
		}
	}
	if geomIdx < 0 {
		return nil, fmt.Errorf("ReadFile: no geometry column %q", geomColumn)
	}

	var paoi *geos.PGeometry
	if filter != nil {
		poly, err := filter.Polygon()
		if err != nil {
			return nil, fmt.Errorf("ReadFile.%w", err)
		}
		paoi = poly.Prepare()
		defer runtime.KeepAlive(poly)
	}

	buf := make([]parquet.Row, batchSize)
	for _, rg := range pf.RowGroups() {
		rows := rg.Rows()
		for {
			n, err := rows.ReadRows(buf)
			for _, row := range buf[:n] {
				feature := toFeature(row, names, geomIdx)
				if paoi != nil && !intersects(paoi, feature.Geometry) {
					continue
				}
				t.Features = append(t.Features, feature)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				rows.Close()
				return nil, fmt.Errorf("ReadFile.ReadRows: %w", err)
			}
		}
		rows.Close()
	}
	return t, nil
}

func toFeature(row parquet.Row, names []string, geomIdx int) table.Feature {
	f := table.Feature{Properties: make(map[string]interface{}, len(names)-1)}
	for i, n := range names {
		if i != geomIdx {
			f.Properties[n] = nil
		}
	}
	for _, v := range row {
		col := v.Column()
		if col < 0 || col >= len(names) || v.IsNull() {
			continue
		}
		if col == geomIdx {
			f.Geometry = append([]byte(nil), v.ByteArray()...)
			continue
		}
		f.Properties[names[col]] = goValue(v)
	}
	return f
}

func goValue(v parquet.Value) interface{} {
	switch v.Kind() {
	case parquet.Boolean:
		return v.Boolean()
	case parquet.Int32:
		return int64(v.Int32())
	case parquet.Int64:
		return v.Int64()
	case parquet.Float:
		return float64(v.Float())
	case parquet.Double:
		return v.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(v.ByteArray())
	}
	return v.String()
}

// intersects returns false for invalid geometries
func intersects(paoi *geos.PGeometry, wkb []byte) bool {
	if len(wkb) == 0 {
		return false
	}
	g, err := geos.FromWKB(wkb)
	if err != nil {
		return false
	}
	ok, err := paoi.Intersects(g)
	return err == nil && ok
}
