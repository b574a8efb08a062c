package geotiff

import (
	"bufio"
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"html"
	"io"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/raster"
)

const rowsPerStrip = 16

// TIFF field types
const (
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12
)

type entry struct {
	tag   uint16
	typ   uint16
	count int
	data  []byte
}

var bo = binary.LittleEndian

func shorts(tag uint16, vals ...int) entry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		bo.PutUint16(b[2*i:], uint16(v))
	}
	return entry{tag: tag, typ: typeShort, count: len(vals), data: b}
}

func longs(tag uint16, vals ...int) entry {
	b := make([]byte, 4*len(vals))
	for i, v := range vals {
		bo.PutUint32(b[4*i:], uint32(v))
	}
	return entry{tag: tag, typ: typeLong, count: len(vals), data: b}
}

func doubles(tag uint16, vals ...float64) entry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		bo.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return entry{tag: tag, typ: typeDouble, count: len(vals), data: b}
}

func ascii(tag uint16, s string) entry {
	return entry{tag: tag, typ: typeASCII, count: len(s) + 1, data: append([]byte(s), 0)}
}

// sampleFormat returns the TIFF SampleFormat of the data type
func sampleFormat(dt raster.DataType) int {
	switch dt {
	case raster.DTInt8, raster.DTInt16, raster.DTInt32:
		return 2
	case raster.DTFloat32, raster.DTFloat64:
		return 3
	}
	return 1
}

func putSample(b []byte, dt raster.DataType, v float64) {
	switch dt {
	case raster.DTUint8, raster.DTInt8:
		b[0] = byte(int64(v))
	case raster.DTUint16, raster.DTInt16:
		bo.PutUint16(b, uint16(int64(v)))
	case raster.DTUint32, raster.DTInt32:
		bo.PutUint32(b, uint32(int64(v)))
	case raster.DTFloat32:
		bo.PutUint32(b, math.Float32bits(float32(v)))
	case raster.DTFloat64:
		bo.PutUint64(b, math.Float64bits(v))
	}
}

// outputType returns the data type and the nodata value of the file.
// Integer types keep the nodata value of the source (0 by default), float types use NaN.
func outputType(g raster.Grid) (raster.DataType, float64) {
	dt := g.DataType
	if dt.Size() == 0 {
		dt = raster.DTFloat32
	}
	if dt.IsFloat() {
		return dt, math.NaN()
	}
	if g.NoData != nil {
		return dt, *g.NoData
	}
	return dt, 0
}

func metadata(bands []raster.Band) string {
	var sb strings.Builder
	sb.WriteString("<GDALMetadata>")
	for i, b := range bands {
		fmt.Fprintf(&sb, `<Item name="DESCRIPTION" sample="%d" role="description">%s</Item>`, i, html.EscapeString(b.Name))
	}
	sb.WriteString("</GDALMetadata>")
	return sb.String()
}

// Encode writes the result as a deflate-compressed, pixel-interleaved GeoTIFF in EPSG:4326
func Encode(w io.Writer, r raster.Result) error {
	g, bands := r.Georef(), r.BandList()
	dt, noData := outputType(g)
	spp, size := len(bands), dt.Size()

	// Strips
	var data bytes.Buffer
	var offsets, counts []int
	row := make([]byte, g.Width*spp*size)
	for y0 := 0; y0 < g.Height; y0 += rowsPerStrip {
		start := 8 + data.Len()
		zw := zlib.NewWriter(&data)
		for y := y0; y < y0+rowsPerStrip && y < g.Height; y++ {
			for x := 0; x < g.Width; x++ {
				for b, band := range bands {
					v := float64(band.Data[y*g.Width+x])
					if math.IsNaN(v) {
						v = noData
					}
					putSample(row[(x*spp+b)*size:], dt, v)
				}
			}
			if _, err := zw.Write(row); err != nil {
				return fmt.Errorf("Encode: %w", err)
			}
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("Encode: %w", err)
		}
		offsets = append(offsets, start)
		counts = append(counts, 8+data.Len()-start)
	}

	bps, formats := make([]int, spp), make([]int, spp)
	for i := range bps {
		bps[i], formats[i] = size*8, sampleFormat(dt)
	}
	gt := g.GeoTransform
	entries := []entry{
		longs(256, g.Width),
		longs(257, g.Height),
		shorts(258, bps...),
		shorts(259, 8), // Deflate
		shorts(262, 1), // BlackIsZero
		longs(273, offsets...),
		shorts(277, spp),
		longs(278, rowsPerStrip),
		longs(279, counts...),
		shorts(284, 1), // Chunky
		shorts(339, formats...),
		doubles(33550, gt[1], -gt[5], 0),
		doubles(33922, 0, 0, 0, gt[0], gt[3], 0),
		// Geographic, PixelIsArea, WGS84
		shorts(34735, 1, 1, 0, 3, 1024, 0, 1, 2, 1025, 0, 1, 1, 2048, 0, 1, 4326),
		ascii(42112, metadata(bands)),
		ascii(42113, strconv.FormatFloat(noData, 'g', -1, 64)),
	}
	if spp > 1 {
		extra := make([]int, spp-1)
		entries = append(entries, shorts(338, extra...)) // Unspecified extra samples
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	// IFD after the strips (word aligned), out-of-line values after the IFD
	ifdOffset := 8 + data.Len()
	pad := ifdOffset % 2
	ifdOffset += pad
	valuesOffset := ifdOffset + 2 + 12*len(entries) + 4

	bw := bufio.NewWriter(w)
	header := make([]byte, 8)
	copy(header, "II")
	bo.PutUint16(header[2:], 42)
	bo.PutUint32(header[4:], uint32(ifdOffset))
	bw.Write(header)
	bw.Write(data.Bytes())
	bw.Write(make([]byte, pad))

	var values bytes.Buffer
	ifd := make([]byte, 2, 2+12*len(entries)+4)
	bo.PutUint16(ifd, uint16(len(entries)))
	for _, e := range entries {
		b := make([]byte, 12)
		bo.PutUint16(b, e.tag)
		bo.PutUint16(b[2:], e.typ)
		bo.PutUint32(b[4:], uint32(e.count))
		if len(e.data) <= 4 {
			copy(b[8:], e.data)
		} else {
			bo.PutUint32(b[8:], uint32(valuesOffset+values.Len()))
			values.Write(e.data)
			if values.Len()%2 == 1 {
				values.WriteByte(0)
			}
		}
		ifd = append(ifd, b...)
	}
	ifd = append(ifd, 0, 0, 0, 0) // Last IFD
	bw.Write(ifd)
	bw.Write(values.Bytes())
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("Encode: %w", err)
	}
	return nil
}

// Write the result in a GeoTIFF file
func Write(path string, r raster.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	if err := Encode(f, r); err != nil {
		f.Close()
		return fmt.Errorf("Write.%w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("Write: %w", err)
	}
	return nil
}
