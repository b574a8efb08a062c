package zarr

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4"
)

// Codec is the configuration of a numcodecs compressor, e.g. {"id": "blosc", "cname": "lz4", ...}
type Codec map[string]interface{}

// ID of the codec
func (c Codec) ID() string {
	id, _ := c["id"].(string)
	return id
}

func (c Codec) int(key string, def int) int {
	if v, ok := c[key].(float64); ok {
		return int(v)
	}
	return def
}

var (
	zstdDecoderOnce sync.Once
	zstdDecoder     *zstd.Decoder
	zstdDecoderErr  error
)

func decodeZstd(src []byte, size int) ([]byte, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil)
	})
	if zstdDecoderErr != nil {
		return nil, zstdDecoderErr
	}
	return zstdDecoder.DecodeAll(src, make([]byte, 0, size))
}

func encodeZstd(src []byte, level int) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(src, nil), nil
}

func decodeLZ4Block(src []byte, size int) ([]byte, error) {
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(src, dst)
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}

func inflate(r io.Reader, err error) ([]byte, error) {
	if err != nil {
		return nil, err
	}
	return io.ReadAll(r)
}

// decode decompresses a chunk of size bytes
func (c Codec) decode(src []byte, size int) ([]byte, error) {
	if c == nil {
		return src, nil
	}
	switch c.ID() {
	case "zlib":
		return inflate(zlib.NewReader(bytes.NewReader(src)))
	case "gzip":
		return inflate(gzip.NewReader(bytes.NewReader(src)))
	case "zstd":
		return decodeZstd(src, size)
	case "lz4":
		// numcodecs prepends the uncompressed size
		if len(src) < 4 {
			return nil, fmt.Errorf("lz4: truncated chunk")
		}
		return decodeLZ4Block(src[4:], int(binary.LittleEndian.Uint32(src)))
	case "blosc":
		return decodeBlosc(src)
	}
	return nil, fmt.Errorf("unsupported compressor %q", c.ID())
}

// encode compresses a chunk. Only zstd and no compression are supported.
func (c Codec) encode(src []byte) ([]byte, error) {
	switch c.ID() {
	case "":
		return src, nil
	case "zstd":
		return encodeZstd(src, c.int("level", 3))
	}
	return nil, fmt.Errorf("unsupported compressor %q", c.ID())
}

// Blosc header flags
const (
	bloscHeaderSize    = 16
	bloscDoShuffle     = 0x1
	bloscMemcpyed      = 0x2
	bloscDoBitShuffle  = 0x4
	bloscDontSplit     = 0x10
	bloscMaxSplits     = 16
	bloscMinBufferSize = 128
)

// Blosc internal compressors (flags >> 5)
const (
	bloscBloscLZ = 0
	bloscLZ4     = 1
	bloscSnappy  = 2
	bloscZlib    = 3
	bloscZstd    = 4
)

// decodeBlosc decompresses a blosc1 frame
func decodeBlosc(src []byte) ([]byte, error) {
	if len(src) < bloscHeaderSize {
		return nil, fmt.Errorf("blosc: truncated header")
	}
	flags, typesize := src[2], int(src[3])
	nbytes := int(binary.LittleEndian.Uint32(src[4:]))
	blocksize := int(binary.LittleEndian.Uint32(src[8:]))
	cbytes := int(binary.LittleEndian.Uint32(src[12:]))
	if cbytes > len(src) {
		return nil, fmt.Errorf("blosc: truncated frame (%d/%d bytes)", len(src), cbytes)
	}
	if flags&bloscMemcpyed != 0 {
		if bloscHeaderSize+nbytes > len(src) {
			return nil, fmt.Errorf("blosc: truncated frame")
		}
		return append([]byte(nil), src[bloscHeaderSize:bloscHeaderSize+nbytes]...), nil
	}
	if flags&bloscDoBitShuffle != 0 {
		return nil, fmt.Errorf("blosc: bit shuffle is not supported")
	}
	if nbytes == 0 {
		return []byte{}, nil
	}
	if blocksize <= 0 || typesize <= 0 {
		return nil, fmt.Errorf("blosc: invalid header")
	}
	compressor := int(flags >> 5)
	nblocks := (nbytes + blocksize - 1) / blocksize
	if bloscHeaderSize+4*nblocks > len(src) {
		return nil, fmt.Errorf("blosc: truncated block offsets")
	}
	dst := make([]byte, nbytes)
	block := make([]byte, blocksize)
	for b := 0; b < nblocks; b++ {
		bsize := blocksize
		leftover := b == nblocks-1 && nbytes%blocksize != 0
		if leftover {
			bsize = nbytes % blocksize
		}
		nsplits := 1
		if flags&bloscDontSplit == 0 && typesize <= bloscMaxSplits && blocksize/typesize >= bloscMinBufferSize && !leftover {
			nsplits = typesize
		}
		neblock := bsize / nsplits
		pos := int(binary.LittleEndian.Uint32(src[bloscHeaderSize+4*b:]))
		out := block[:0]
		for s := 0; s < nsplits; s++ {
			if pos+4 > len(src) {
				return nil, fmt.Errorf("blosc: truncated block %d", b)
			}
			csize := int(int32(binary.LittleEndian.Uint32(src[pos:])))
			pos += 4
			if csize < 0 || pos+csize > len(src) {
				return nil, fmt.Errorf("blosc: invalid stream size in block %d", b)
			}
			stream := src[pos : pos+csize]
			pos += csize
			if csize == neblock {
				out = append(out, stream...)
				continue
			}
			dec, err := bloscStream(compressor, stream, neblock)
			if err != nil {
				return nil, fmt.Errorf("blosc: block %d: %w", b, err)
			}
			if len(dec) != neblock {
				return nil, fmt.Errorf("blosc: block %d: expecting %d bytes, got %d", b, neblock, len(dec))
			}
			out = append(out, dec...)
		}
		if flags&bloscDoShuffle != 0 && typesize > 1 {
			unshuffle(dst[b*blocksize:b*blocksize+bsize], out, typesize)
		} else {
			copy(dst[b*blocksize:], out)
		}
	}
	return dst, nil
}

func bloscStream(compressor int, src []byte, size int) ([]byte, error) {
	switch compressor {
	case bloscLZ4:
		return decodeLZ4Block(src, size)
	case bloscSnappy:
		return snappy.Decode(nil, src)
	case bloscZlib:
		return inflate(zlib.NewReader(bytes.NewReader(src)))
	case bloscZstd:
		return decodeZstd(src, size)
	case bloscBloscLZ:
		return nil, fmt.Errorf("blosclz is not supported")
	}
	return nil, fmt.Errorf("unknown compressor %d", compressor)
}

// unshuffle reverses the byte shuffle: src holds the first byte of every element, then the second...
// Trailing bytes that do not form a whole element are not shuffled.
func unshuffle(dst, src []byte, typesize int) {
	n := len(src) / typesize
	for i := 0; i < n; i++ {
		for j := 0; j < typesize; j++ {
			dst[i*typesize+j] = src[j*n+i]
		}
	}
	copy(dst[n*typesize:], src[n*typesize:])
}
