package cog

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/image/tiff/lzw"
)

// TIFF tags
const (
	tagNewSubfileType      = 254
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfiguration = 284
	tagPredictor           = 317
	tagTileWidth           = 322
	tagTileLength          = 323
	tagTileOffsets         = 324
	tagTileByteCounts      = 325
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGDALNoData          = 42113
)

// Compressions
const (
	compressionNone    = 1
	compressionLZW     = 5
	compressionDeflate = 8
	compressionAdobe   = 32946
	compressionZSTD    = 50000
)

// Predictors
const (
	predictorNone       = 1
	predictorHorizontal = 2
	predictorFloat      = 3
)

// Sample formats
const (
	sampleUint  = 1
	sampleInt   = 2
	sampleFloat = 3
)

// Field types
const (
	typeByte      = 1
	typeASCII     = 2
	typeShort     = 3
	typeLong      = 4
	typeRational  = 5
	typeSByte     = 6
	typeUndefined = 7
	typeSShort    = 8
	typeSLong     = 9
	typeSRational = 10
	typeFloat     = 11
	typeDouble    = 12
	typeLong8     = 16
	typeSLong8    = 17
	typeIFD8      = 18
)

var typeSizes = map[uint16]int{
	typeByte: 1, typeASCII: 1, typeShort: 2, typeLong: 4, typeRational: 8,
	typeSByte: 1, typeUndefined: 1, typeSShort: 2, typeSLong: 4, typeSRational: 8,
	typeFloat: 4, typeDouble: 8, typeLong8: 8, typeSLong8: 8, typeIFD8: 8,
}

// maxIFDs bounds the number of parsed IFDs (full resolution, overviews and masks)
const maxIFDs = 64

type field struct {
	typ   uint16
	count uint64
	raw   []byte
}

func (f field) uints(bo binary.ByteOrder) []uint64 {
	vals := make([]uint64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case typeByte, typeUndefined:
			vals = append(vals, uint64(f.raw[i]))
		case typeShort:
			vals = append(vals, uint64(bo.Uint16(f.raw[2*i:])))
		case typeLong:
			vals = append(vals, uint64(bo.Uint32(f.raw[4*i:])))
		case typeLong8, typeIFD8:
			vals = append(vals, bo.Uint64(f.raw[8*i:]))
		}
	}
	return vals
}

func (f field) floats(bo binary.ByteOrder) []float64 {
	vals := make([]float64, 0, f.count)
	for i := 0; i < int(f.count); i++ {
		switch f.typ {
		case typeDouble:
			vals = append(vals, math.Float64frombits(bo.Uint64(f.raw[8*i:])))
		case typeFloat:
			vals = append(vals, float64(math.Float32frombits(bo.Uint32(f.raw[4*i:]))))
		}
	}
	return vals
}

func (f field) ascii() string {
	return strings.TrimRight(string(f.raw), "\x00 ")
}

// ifd is an image of the file: full resolution, overview or mask
type ifd struct {
	width, height          int
	tileWidth, tileHeight  int
	bitsPerSample, samples int
	sampleFormat           int
	compression, predictor int
	planar                 int
	subfileType            int
	offsets, counts        []uint64

	fields map[uint16]field
}

func (d *ifd) tilesAcross() int {
	return (d.width + d.tileWidth - 1) / d.tileWidth
}

func (d *ifd) tilesDown() int {
	return (d.height + d.tileHeight - 1) / d.tileHeight
}

// samplesPerChunk is the number of samples of each pixel of a tile
func (d *ifd) samplesPerChunk() int {
	if d.planar == 2 {
		return 1
	}
	return d.samples
}

func (d *ifd) dataType() raster.DataType {
	switch {
	case d.sampleFormat == sampleUint && d.bitsPerSample == 8:
		return raster.DTUint8
	case d.sampleFormat == sampleInt && d.bitsPerSample == 8:
		return raster.DTInt8
	case d.sampleFormat == sampleUint && d.bitsPerSample == 16:
		return raster.DTUint16
	case d.sampleFormat == sampleInt && d.bitsPerSample == 16:
		return raster.DTInt16
	case d.sampleFormat == sampleUint && d.bitsPerSample == 32:
		return raster.DTUint32
	case d.sampleFormat == sampleInt && d.bitsPerSample == 32:
		return raster.DTInt32
	case d.sampleFormat == sampleFloat && d.bitsPerSample == 32:
		return raster.DTFloat32
	case d.sampleFormat == sampleFloat && d.bitsPerSample == 64:
		return raster.DTFloat64
	}
	return raster.DTUnknown
}

// header is the parsed structure of a TIFF file
type header struct {
	bo   binary.ByteOrder
	big  bool
	ifds []*ifd
}

func readAt(r io.ReaderAt, off int64, n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := r.ReadAt(b, off); err != nil && err != io.EOF {
		return nil, err
	}
	return b, nil
}

func parseHeader(r io.ReaderAt) (*header, error) {
	b, err := readAt(r, 0, 16)
	if err != nil {
		return nil, fmt.Errorf("parseHeader: %w", err)
	}
	h := &header{}
	switch string(b[:2]) {
	case "II":
		h.bo = binary.LittleEndian
	case "MM":
		h.bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("parseHeader: not a TIFF file")
	}
	var next uint64
	switch h.bo.Uint16(b[2:]) {
	case 42:
		next = uint64(h.bo.Uint32(b[4:]))
	case 43:
		h.big = true
		next = h.bo.Uint64(b[8:])
	default:
		return nil, fmt.Errorf("parseHeader: invalid TIFF version")
	}
	for next != 0 && len(h.ifds) < maxIFDs {
		d, n, err := h.readIFD(r, int64(next))
		if err != nil {
			if len(h.ifds) > 0 {
				// Unsupported overviews or masks are ignored
				break
			}
			return nil, fmt.Errorf("parseHeader.%w", err)
		}
		h.ifds = append(h.ifds, d)
		next = n
	}
	if len(h.ifds) == 0 {
		return nil, fmt.Errorf("parseHeader: no image")
	}
	return h, nil
}

func (h *header) readIFD(r io.ReaderAt, off int64) (*ifd, uint64, error) {
	entrySize, countSize, inline := 12, 2, 4
	if h.big {
		entrySize, countSize, inline = 20, 8, 8
	}
	b, err := readAt(r, off, countSize)
	if err != nil {
		return nil, 0, fmt.Errorf("readIFD: %w", err)
	}
	var n int
	if h.big {
		n = int(h.bo.Uint64(b))
	} else {
		n = int(h.bo.Uint16(b))
	}
	if b, err = readAt(r, off+int64(countSize), n*entrySize+inline); err != nil {
		return nil, 0, fmt.Errorf("readIFD: %w", err)
	}
	fields := make(map[uint16]field, n)
	for i := 0; i < n; i++ {
		e := b[i*entrySize:]
		tag, typ := h.bo.Uint16(e), h.bo.Uint16(e[2:])
		size, ok := typeSizes[typ]
		if !ok {
			continue
		}
		var count uint64
		var value []byte
		if h.big {
			count, value = h.bo.Uint64(e[4:]), e[12:20]
		} else {
			count, value = uint64(h.bo.Uint32(e[4:])), e[8:12]
		}
		total := int(count) * size
		f := field{typ: typ, count: count}
		if total <= inline {
			f.raw = append([]byte(nil), value[:total]...)
		} else {
			var valOff int64
			if h.big {
				valOff = int64(h.bo.Uint64(value))
			} else {
				valOff = int64(h.bo.Uint32(value))
			}
			if f.raw, err = readAt(r, valOff, total); err != nil {
				return nil, 0, fmt.Errorf("readIFD[%d]: %w", tag, err)
			}
		}
		fields[tag] = f
	}
	var next uint64
	if h.big {
		next = h.bo.Uint64(b[n*entrySize:])
	} else {
		next = uint64(h.bo.Uint32(b[n*entrySize:]))
	}
	d, err := h.newIFD(fields)
	if err != nil {
		return nil, 0, fmt.Errorf("readIFD.%w", err)
	}
	return d, next, nil
}

func (h *header) uintTag(fields map[uint16]field, tag uint16, def int) int {
	if f, ok := fields[tag]; ok {
		if v := f.uints(h.bo); len(v) > 0 {
			return int(v[0])
		}
	}
	return def
}

func (h *header) newIFD(fields map[uint16]field) (*ifd, error) {
	d := &ifd{
		width:         h.uintTag(fields, tagImageWidth, 0),
		height:        h.uintTag(fields, tagImageLength, 0),
		bitsPerSample: h.uintTag(fields, tagBitsPerSample, 1),
		samples:       h.uintTag(fields, tagSamplesPerPixel, 1),
		sampleFormat:  h.uintTag(fields, tagSampleFormat, sampleUint),
		compression:   h.uintTag(fields, tagCompression, compressionNone),
		predictor:     h.uintTag(fields, tagPredictor, predictorNone),
		planar:        h.uintTag(fields, tagPlanarConfiguration, 1),
		subfileType:   h.uintTag(fields, tagNewSubfileType, 0),
		fields:        fields,
	}
	if d.width == 0 || d.height == 0 {
		return nil, fmt.Errorf("newIFD: missing image size")
	}
	if _, ok := fields[tagTileWidth]; ok {
		d.tileWidth = h.uintTag(fields, tagTileWidth, 0)
		d.tileHeight = h.uintTag(fields, tagTileLength, 0)
		d.offsets = fields[tagTileOffsets].uints(h.bo)
		d.counts = fields[tagTileByteCounts].uints(h.bo)
	} else {
		d.tileWidth = d.width
		d.tileHeight = h.uintTag(fields, tagRowsPerStrip, d.height)
		if d.tileHeight > d.height {
			d.tileHeight = d.height
		}
		d.offsets = fields[tagStripOffsets].uints(h.bo)
		d.counts = fields[tagStripByteCounts].uints(h.bo)
	}
	if d.tileWidth == 0 || d.tileHeight == 0 {
		return nil, fmt.Errorf("newIFD: invalid tile size")
	}
	planes := 1
	if d.planar == 2 {
		planes = d.samples
	}
	if expected := d.tilesAcross() * d.tilesDown() * planes; len(d.offsets) < expected || len(d.counts) < expected {
		return nil, fmt.Errorf("newIFD: expected %d tiles, got %d offsets", expected, len(d.offsets))
	}
	return d, nil
}

// noData returns the GDAL nodata value of the ifd
func (h *header) noData(d *ifd) *float64 {
	f, ok := d.fields[tagGDALNoData]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(f.ascii()), 64)
	if err != nil {
		return nil
	}
	return &v
}

// decompress the raw bytes of a tile
func decompress(compression int, data []byte) ([]byte, error) {
	switch compression {
	case compressionNone:
		return data, nil
	case compressionLZW:
		r := lzw.NewReader(bytes.NewReader(data), lzw.MSB, 8)
		defer r.Close()
		return io.ReadAll(r)
	case compressionDeflate, compressionAdobe:
		r, err := zlib.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case compressionZSTD:
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(data, nil)
	}
	return nil, fmt.Errorf("unsupported compression %d", compression)
}

// decodeTile decompresses the tile and returns its samples (tileWidth*tileHeight*samplesPerChunk).
// Missing rows of a truncated strip are NaN.
func (h *header) decodeTile(d *ifd, data []byte) ([]float64, error) {
	buf, err := decompress(d.compression, data)
	if err != nil {
		return nil, fmt.Errorf("decodeTile: %w", err)
	}
	spc := d.samplesPerChunk()
	bps := d.bitsPerSample / 8
	if bps == 0 || d.dataType() == raster.DTUnknown {
		return nil, fmt.Errorf("decodeTile: unsupported sample format %d/%d bits", d.sampleFormat, d.bitsPerSample)
	}
	rowBytes := d.tileWidth * spc * bps
	rows := len(buf) / rowBytes
	if rows > d.tileHeight {
		rows = d.tileHeight
	}
	for y := 0; y < rows; y++ {
		row := buf[y*rowBytes : (y+1)*rowBytes]
		switch d.predictor {
		case predictorHorizontal:
			h.undoHorizontal(row, spc, bps)
		case predictorFloat:
			undoFloat(row, spc, bps, h.bo)
		}
	}

	out := make([]float64, d.tileWidth*d.tileHeight*spc)
	n := rows * d.tileWidth * spc
	for i := 0; i < n; i++ {
		out[i] = h.sample(d, buf[i*bps:])
	}
	for i := n; i < len(out); i++ {
		out[i] = math.NaN()
	}
	return out, nil
}

func (h *header) undoHorizontal(row []byte, spc, bps int) {
	switch bps {
	case 1:
		for i := spc; i < len(row); i++ {
			row[i] += row[i-spc]
		}
	case 2:
		for i := spc * 2; i < len(row); i += 2 {
			h.bo.PutUint16(row[i:], h.bo.Uint16(row[i:])+h.bo.Uint16(row[i-2*spc:]))
		}
	case 4:
		for i := spc * 4; i < len(row); i += 4 {
			h.bo.PutUint32(row[i:], h.bo.Uint32(row[i:])+h.bo.Uint32(row[i-4*spc:]))
		}
	case 8:
		for i := spc * 8; i < len(row); i += 8 {
			h.bo.PutUint64(row[i:], h.bo.Uint64(row[i:])+h.bo.Uint64(row[i-8*spc:]))
		}
	}
}

// undoFloat reverts the floating point predictor: bytes are differenced then grouped by significance
func undoFloat(row []byte, spc, bps int, bo binary.ByteOrder) {
	for i := spc; i < len(row); i++ {
		row[i] += row[i-spc]
	}
	n := len(row) / bps
	tmp := append([]byte(nil), row...)
	for i := 0; i < n; i++ {
		for b := 0; b < bps; b++ {
			// tmp holds the most significant bytes first
			if bo == binary.BigEndian {
				row[i*bps+b] = tmp[b*n+i]
			} else {
				row[i*bps+b] = tmp[(bps-b-1)*n+i]
			}
		}
	}
}

func (h *header) sample(d *ifd, b []byte) float64 {
	switch d.dataType() {
	case raster.DTUint8:
		return float64(b[0])
	case raster.DTInt8:
		return float64(int8(b[0]))
	case raster.DTUint16:
		return float64(h.bo.Uint16(b))
	case raster.DTInt16:
		return float64(int16(h.bo.Uint16(b)))
	case raster.DTUint32:
		return float64(h.bo.Uint32(b))
	case raster.DTInt32:
		return float64(int32(h.bo.Uint32(b)))
	case raster.DTFloat32:
		return float64(math.Float32frombits(h.bo.Uint32(b)))
	case raster.DTFloat64:
		return math.Float64frombits(h.bo.Uint64(b))
	}
	return math.NaN()
}
