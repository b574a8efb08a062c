package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Attributes describing packed values. Written values are unpacked.
var packingAttrs = map[string]struct{}{
	"scale_factor": {}, "add_offset": {}, "_FillValue": {}, "missing_value": {}, dimensionsAttr: {},
}

var writeCompressor = Codec{"id": "zstd", "level": float64(3)}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Write writes the dataset as a consolidated zarr v2 store in the directory dir.
// Coordinates are written as float64, data variables as float32, each array in a single zstd chunk.
func Write(dir string, ds *Dataset) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	group := map[string]interface{}{"zarr_format": 2}
	attrs := ds.Attrs
	if attrs == nil {
		attrs = map[string]interface{}{}
	}
	metadata := map[string]interface{}{".zgroup": group, ".zattrs": attrs}
	if err := writeJSON(filepath.Join(dir, ".zgroup"), group); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	if err := writeJSON(filepath.Join(dir, ".zattrs"), attrs); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	for _, arr := range []struct {
		vars []*Variable
		dt   dtype
	}{
		{ds.Coords, dtype{order: binary.LittleEndian, kind: 'f', size: 8}},
		{ds.Variables, dtype{order: binary.LittleEndian, kind: 'f', size: 4}},
	} {
		for _, v := range arr.vars {
			meta, vattrs, err := writeArray(dir, v, arr.dt)
			if err != nil {
				return fmt.Errorf("Write[%s].%w", v.Name, err)
			}
			metadata[v.Name+"/.zarray"] = meta
			metadata[v.Name+"/.zattrs"] = vattrs
		}
	}
	if err := writeJSON(filepath.Join(dir, metadataKey), map[string]interface{}{
		"metadata":                 metadata,
		"zarr_consolidated_format": 1,
	}); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}

func writeArray(dir string, v *Variable, dt dtype) (arrayMeta, map[string]interface{}, error) {
	chunks := make([]int, len(v.Shape))
	for i, s := range v.Shape {
		chunks[i] = max(s, 1)
	}
	meta := arrayMeta{
		ZarrFormat: 2,
		Shape:      v.Shape,
		Chunks:     chunks,
		DType:      dt.String(),
		Compressor: writeCompressor,
		FillValue:  json.RawMessage(`"NaN"`),
		Order:      "C",
	}
	attrs := map[string]interface{}{}
	for k, val := range v.Attrs {
		if _, ok := packingAttrs[k]; !ok {
			attrs[k] = val
		}
	}
	attrs[dimensionsAttr] = v.Dims

	adir := filepath.Join(dir, v.Name)
	if err := os.MkdirAll(adir, 0755); err != nil {
		return meta, nil, fmt.Errorf("writeArray: %w", err)
	}
	if err := writeJSON(filepath.Join(adir, ".zarray"), meta); err != nil {
		return meta, nil, fmt.Errorf("writeArray: %w", err)
	}
	if err := writeJSON(filepath.Join(adir, ".zattrs"), attrs); err != nil {
		return meta, nil, fmt.Errorf("writeArray: %w", err)
	}
	if len(v.Data) == 0 {
		return meta, attrs, nil
	}
	raw := make([]byte, len(v.Data)*dt.size)
	for i, x := range v.Data {
		dt.put(raw[i*dt.size:], x)
	}
	data, err := writeCompressor.encode(raw)
	if err != nil {
		return meta, nil, fmt.Errorf("writeArray: %w", err)
	}
	a := array{meta: meta}
	key := a.chunkKey(make([]int, len(v.Shape)))
	if err := os.WriteFile(filepath.Join(adir, key), data, 0644); err != nil {
		return meta, nil, fmt.Errorf("writeArray: %w", err)
	}
	return meta, attrs, nil
}
