package zarr

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const dimensionsAttr = "_ARRAY_DIMENSIONS"

// arrayMeta is the content of a .zarray (zarr v2)
type arrayMeta struct {
	ZarrFormat int             `json:"zarr_format"`
	Shape      []int           `json:"shape"`
	Chunks     []int           `json:"chunks"`
	DType      string          `json:"dtype"`
	Compressor Codec           `json:"compressor"`
	FillValue  json.RawMessage `json:"fill_value"`
	Order      string          `json:"order"`
	Filters    []Codec         `json:"filters"`
	Separator  string          `json:"dimension_separator,omitempty"`
}

// dtype is a numpy type string, e.g. "<f4"
type dtype struct {
	order binary.ByteOrder
	kind  byte // 'f', 'i', 'u', 'b'
	size  int
}

func parseDType(s string) (dtype, error) {
	if len(s) < 3 {
		return dtype{}, fmt.Errorf("unsupported dtype %q", s)
	}
	dt := dtype{order: binary.LittleEndian, kind: s[1]}
	if s[0] == '>' {
		dt.order = binary.BigEndian
	}
	size, err := strconv.Atoi(s[2:])
	if err != nil {
		return dtype{}, fmt.Errorf("unsupported dtype %q", s)
	}
	dt.size = size
	switch {
	case dt.kind == 'f' && (size == 4 || size == 8),
		(dt.kind == 'i' || dt.kind == 'u') && (size == 1 || size == 2 || size == 4 || size == 8),
		dt.kind == 'b' && size == 1:
		return dt, nil
	}
	return dtype{}, fmt.Errorf("unsupported dtype %q", s)
}

func (dt dtype) String() string {
	o := "<"
	if dt.order == binary.BigEndian {
		o = ">"
	}
	if dt.size == 1 {
		o = "|"
	}
	return fmt.Sprintf("%s%c%d", o, dt.kind, dt.size)
}

func (dt dtype) get(b []byte) float64 {
	switch dt.kind {
	case 'f':
		if dt.size == 4 {
			return float64(math.Float32frombits(dt.order.Uint32(b)))
		}
		return math.Float64frombits(dt.order.Uint64(b))
	case 'i':
		switch dt.size {
		case 1:
			return float64(int8(b[0]))
		case 2:
			return float64(int16(dt.order.Uint16(b)))
		case 4:
			return float64(int32(dt.order.Uint32(b)))
		}
		return float64(int64(dt.order.Uint64(b)))
	}
	switch dt.size {
	case 1:
		return float64(b[0])
	case 2:
		return float64(dt.order.Uint16(b))
	case 4:
		return float64(dt.order.Uint32(b))
	}
	return float64(dt.order.Uint64(b))
}

func (dt dtype) put(b []byte, v float64) {
	switch dt.kind {
	case 'f':
		if dt.size == 4 {
			dt.order.PutUint32(b, math.Float32bits(float32(v)))
		} else {
			dt.order.PutUint64(b, math.Float64bits(v))
		}
		return
	case 'i':
		switch dt.size {
		case 1:
			b[0] = byte(int8(v))
		case 2:
			dt.order.PutUint16(b, uint16(int16(v)))
		case 4:
			dt.order.PutUint32(b, uint32(int32(v)))
		default:
			dt.order.PutUint64(b, uint64(int64(v)))
		}
		return
	}
	switch dt.size {
	case 1:
		b[0] = byte(v)
	case 2:
		dt.order.PutUint16(b, uint16(v))
	case 4:
		dt.order.PutUint32(b, uint32(v))
	default:
		dt.order.PutUint64(b, uint64(v))
	}
}

// array is an array of a store
type array struct {
	name  string
	meta  arrayMeta
	dt    dtype
	attrs map[string]interface{}
	dims  []string
	fill  *float64
}

func newArray(name string, meta arrayMeta, attrs map[string]interface{}) (*array, error) {
	if meta.ZarrFormat != 0 && meta.ZarrFormat != 2 {
		return nil, fmt.Errorf("%s: unsupported zarr format %d", name, meta.ZarrFormat)
	}
	if meta.Order == "F" {
		return nil, fmt.Errorf("%s: fortran order is not supported", name)
	}
	if len(meta.Filters) > 0 {
		return nil, fmt.Errorf("%s: filters are not supported", name)
	}
	if len(meta.Chunks) != len(meta.Shape) {
		return nil, fmt.Errorf("%s: chunks and shape differ in length", name)
	}
	dt, err := parseDType(meta.DType)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	a := &array{name: name, meta: meta, dt: dt, attrs: attrs}
	if a.attrs == nil {
		a.attrs = map[string]interface{}{}
	}
	if dims, ok := a.attrs[dimensionsAttr].([]interface{}); ok && len(dims) == len(meta.Shape) {
		for _, d := range dims {
			s, _ := d.(string)
			a.dims = append(a.dims, s)
		}
	} else {
		for i := range meta.Shape {
			a.dims = append(a.dims, fmt.Sprintf("dim_%d", i))
		}
	}
	a.fill = parseFill(meta.FillValue)
	return a, nil
}

// parseFill decodes a fill value: number, "NaN", "Infinity", "-Infinity" or null
func parseFill(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var v float64
	if err := json.Unmarshal(raw, &v); err == nil {
		return &v
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	switch s {
	case "NaN":
		v = math.NaN()
	case "Infinity":
		v = math.Inf(1)
	case "-Infinity":
		v = math.Inf(-1)
	default:
		return nil
	}
	return &v
}

// chunkKey returns the key of the chunk at the chunk indices
func (a *array) chunkKey(idx []int) string {
	sep := a.meta.Separator
	if sep == "" {
		sep = "."
	}
	if len(idx) == 0 {
		return "0"
	}
	parts := make([]string, len(idx))
	for i, v := range idx {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, sep)
}

func (a *array) chunkLen() int {
	n := 1
	for _, c := range a.meta.Chunks {
		n *= c
	}
	return n
}

// decodeChunk returns the values of a chunk (raw, before the CF decoding)
func (a *array) decodeChunk(data []byte) ([]float64, error) {
	n := a.chunkLen()
	raw, err := a.meta.Compressor.decode(data, n*a.dt.size)
	if err != nil {
		return nil, fmt.Errorf("decodeChunk: %w", err)
	}
	if len(raw) < n*a.dt.size {
		return nil, fmt.Errorf("decodeChunk: expecting %d bytes, got %d", n*a.dt.size, len(raw))
	}
	values := make([]float64, n)
	for i := range values {
		values[i] = a.dt.get(raw[i*a.dt.size:])
	}
	return values, nil
}

// fillChunk returns a chunk of missing values
func (a *array) fillChunk() []float64 {
	v := math.NaN()
	if a.fill != nil {
		v = *a.fill
	}
	values := make([]float64, a.chunkLen())
	for i := range values {
		values[i] = v
	}
	return values
}

func attrFloat(attrs map[string]interface{}, key string) (float64, bool) {
	switch v := attrs[key].(type) {
	case float64:
		return v, true
	case []interface{}:
		if len(v) > 0 {
			f, ok := v[0].(float64)
			return f, ok
		}
	}
	return 0, false
}

// unpack masks the missing values and applies scale_factor/add_offset (CF conventions)
func (a *array) unpack(values []float64) {
	var missing []float64
	if a.fill != nil {
		missing = append(missing, *a.fill)
	}
	for _, key := range []string{"_FillValue", "missing_value"} {
		if v, ok := attrFloat(a.attrs, key); ok {
			missing = append(missing, v)
		}
	}
	scale, hasScale := attrFloat(a.attrs, "scale_factor")
	offset, hasOffset := attrFloat(a.attrs, "add_offset")
	for i, v := range values {
		for _, m := range missing {
			if v == m {
				v = math.NaN()
				break
			}
		}
		if hasScale {
			v *= scale
		}
		if hasOffset {
			v += offset
		}
		values[i] = v
	}
}
