package geoparquet

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/airbusgeo/stac-fetcher/interface/table"
	"github.com/parquet-go/parquet-go"
)

// kind of a property column
type kind int

const (
	kindString kind = iota
	kindDouble
	kindInt64
	kindBoolean
)

// columnKinds infers the type of the columns from the first non-nil value.
// Columns without any value are strings.
func columnKinds(t *table.Table) map[string]kind {
	kinds := map[string]kind{}
	for _, c := range t.Columns {
		kinds[c] = kindString
	features:
		for _, f := range t.Features {
			switch f.Properties[c].(type) {
			case nil:
				continue
			case float64, float32:
				kinds[c] = kindDouble
			case int, int32, int64, uint8, uint16, uint32:
				kinds[c] = kindInt64
			case bool:
				kinds[c] = kindBoolean
			}
			break features
		}
	}
	return kinds
}

func node(k kind) parquet.Node {
	switch k {
	case kindDouble:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType))
	case kindInt64:
		return parquet.Optional(parquet.Int(64))
	case kindBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType))
	}
	return parquet.Optional(parquet.String())
}

func value(k kind, v interface{}) parquet.Value {
	switch k {
	case kindDouble:
		switch n := v.(type) {
		case float64:
			return parquet.DoubleValue(n)
		case float32:
			return parquet.DoubleValue(float64(n))
		}
	case kindInt64:
		switch n := v.(type) {
		case int:
			return parquet.Int64Value(int64(n))
		case int32:
			return parquet.Int64Value(int64(n))
		case int64:
			return parquet.Int64Value(n)
		case uint8:
			return parquet.Int64Value(int64(n))
		case uint16:
			return parquet.Int64Value(int64(n))
		case uint32:
			return parquet.Int64Value(int64(n))
		}
	case kindBoolean:
		if b, ok := v.(bool); ok {
			return parquet.BooleanValue(b)
		}
	default:
		switch s := v.(type) {
		case string:
			return parquet.ByteArrayValue([]byte(s))
		case []byte:
			return parquet.ByteArrayValue(s)
		default:
			b, err := json.Marshal(s)
			if err == nil {
				return parquet.ByteArrayValue(b)
			}
		}
	}
	// Value of unexpected type
	return parquet.NullValue()
}

// geoMetadata returns the GeoParquet metadata of the table
func geoMetadata(t *table.Table) (string, error) {
	s := t.Summarize()
	types := s.SortedTypes()
	if types == nil {
		types = []string{}
	}
	col := ColumnMetadata{Encoding: "WKB", GeometryTypes: types}
	if s.Bounds != nil {
		col.BBox = s.Bounds[:]
	}
	b, err := json.Marshal(Metadata{
		Version:       "1.0.0",
		PrimaryColumn: table.GeometryColumn,
		Columns:       map[string]ColumnMetadata{table.GeometryColumn: col},
	})
	return string(b), err
}

// WriteFile writes the table as a GeoParquet file (WKB geometries in EPSG:4326)
func WriteFile(path string, t *table.Table) error {
	kinds := columnKinds(t)
	group := parquet.Group{table.GeometryColumn: parquet.Optional(parquet.Leaf(parquet.ByteArrayType))}
	for c, k := range kinds {
		group[c] = node(k)
	}
	schema := parquet.NewSchema("feature", group)
	index := map[string]int{}
	for i, col := range schema.Columns() {
		index[col[0]] = i
	}
	if len(index) != len(group) {
		return fmt.Errorf("WriteFile: unsupported column names")
	}
	md, err := geoMetadata(t)
	if err != nil {
		return fmt.Errorf("WriteFile.geoMetadata: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	w := parquet.NewWriter(f, schema, parquet.KeyValueMetadata(MetadataKey, md))
	columns := make([]string, len(index))
	for c, i := range index {
		columns[i] = c
	}
	rows := make([]parquet.Row, 0, batchSize)
	flush := func() error {
		if _, err := w.WriteRows(rows); err != nil {
			return err
		}
		rows = rows[:0]
		return nil
	}
	for _, feat := range t.Features {
		row := make(parquet.Row, len(columns))
		for i, c := range columns {
			var v parquet.Value
			if c == table.GeometryColumn {
				v = parquet.NullValue()
				if len(feat.Geometry) > 0 {
					v = parquet.ByteArrayValue(feat.Geometry)
				}
			} else if p := feat.Properties[c]; p != nil {
				v = value(kinds[c], p)
			}
			def := 1
			if v.IsNull() {
				def = 0
			}
			row[i] = v.Level(0, def, i)
		}
		if rows = append(rows, row); len(rows) == batchSize {
			if err := flush(); err != nil {
				f.Close()
				return fmt.Errorf("WriteFile.WriteRows: %w", err)
			}
		}
	}
	if err := flush(); err != nil {
		f.Close()
		return fmt.Errorf("WriteFile.WriteRows: %w", err)
	}
	if err := w.Close(); err != nil {
		f.Close()
		return fmt.Errorf("WriteFile.Close: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("WriteFile: %w", err)
	}
	return nil
}
