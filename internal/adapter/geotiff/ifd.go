package geotiff

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/domain"
)

// TIFF and GeoTIFF tags read by this package.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagCompression     = 259
	tagPhotometric     = 262
	tagStripOffsets    = 273
	tagSamplesPerPixel = 277
	tagRowsPerStrip    = 278
	tagStripByteCounts = 279
	tagPlanarConfig    = 284
	tagPredictor       = 317
	tagTileWidth       = 322
	tagTileLength      = 323
	tagTileOffsets     = 324
	tagTileByteCounts  = 325
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoDoubleParams = 34736
	tagGeoASCIIParams  = 34737
	tagGDALMetadata    = 42112
	tagGDALNoData      = 42113
)

// Field types.
const (
	dtByte      = 1
	dtASCII     = 2
	dtShort     = 3
	dtLong      = 4
	dtRational  = 5
	dtSByte     = 6
	dtUndefined = 7
	dtSShort    = 8
	dtSLong     = 9
	dtSRational = 10
	dtFloat     = 11
	dtDouble    = 12
	dtLong8     = 16
	dtSLong8    = 17
	dtIFD8      = 18
)

func typeSize(dt uint16) int {
	switch dt {
	case dtByte, dtASCII, dtSByte, dtUndefined:
		return 1
	case dtShort, dtSShort:
		return 2
	case dtLong, dtSLong, dtFloat:
		return 4
	case dtRational, dtSRational, dtDouble, dtLong8, dtSLong8, dtIFD8:
		return 8
	default:
		return 0
	}
}

type field struct {
	typ   uint16
	count uint64
	data  []byte
}

// ifd is the first image file directory of a classic or BigTIFF file.
type ifd struct {
	bo     binary.ByteOrder
	fields map[uint16]field
}

func readIFD(r io.ReaderAt) (*ifd, error) {
	var head [16]byte
	if _, err := r.ReadAt(head[:8], 0); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	var bo binary.ByteOrder
	switch string(head[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, fmt.Errorf("not a tiff file: %w", domain.ErrUnsupportedFormat)
	}

	big := false
	var offset uint64
	switch bo.Uint16(head[2:4]) {
	case 42:
		offset = uint64(bo.Uint32(head[4:8]))
	case 43:
		big = true
		if _, err := r.ReadAt(head[8:16], 8); err != nil {
			return nil, fmt.Errorf("read bigtiff header: %w", err)
		}
		offset = bo.Uint64(head[8:16])
	default:
		return nil, fmt.Errorf("bad tiff magic: %w", domain.ErrUnsupportedFormat)
	}

	countSize, entrySize, inline := 2, 12, 4
	if big {
		countSize, entrySize, inline = 8, 20, 8
	}
	buf := make([]byte, countSize)
	if _, err := r.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("read ifd: %w", err)
	}
	var n uint64
	if big {
		n = bo.Uint64(buf)
	} else {
		n = uint64(bo.Uint16(buf))
	}
	entries := make([]byte, n*uint64(entrySize))
	if _, err := r.ReadAt(entries, int64(offset)+int64(countSize)); err != nil {
		return nil, fmt.Errorf("read ifd entries: %w", err)
	}

	d := &ifd{bo: bo, fields: make(map[uint16]field, n)}
	for i := uint64(0); i < n; i++ {
		e := entries[i*uint64(entrySize):]
		tag, typ := bo.Uint16(e[0:2]), bo.Uint16(e[2:4])
		var count uint64
		var value []byte
		if big {
			count, value = bo.Uint64(e[4:12]), e[12:20]
		} else {
			count, value = uint64(bo.Uint32(e[4:8])), e[8:12]
		}
		size := uint64(typeSize(typ)) * count
		if size == 0 {
			continue
		}
		var data []byte
		if size <= uint64(inline) {
			data = append([]byte(nil), value[:size]...)
		} else {
			var off uint64
			if big {
				off = bo.Uint64(value)
			} else {
				off = uint64(bo.Uint32(value))
			}
			data = make([]byte, size)
			if _, err := r.ReadAt(data, int64(off)); err != nil {
				return nil, fmt.Errorf("read tag %d: %w", tag, err)
			}
		}
		d.fields[tag] = field{typ: typ, count: count, data: data}
	}
	return d, nil
}

func (d *ifd) has(tag uint16) bool {
	_, ok := d.fields[tag]
	return ok
}

// uints decodes an integer field.
func (d *ifd) uints(tag uint16) []uint64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]uint64, f.count)
	for i := range out {
		switch f.typ {
		case dtByte, dtUndefined:
			out[i] = uint64(f.data[i])
		case dtShort, dtSShort:
			out[i] = uint64(d.bo.Uint16(f.data[2*i:]))
		case dtLong, dtSLong:
			out[i] = uint64(d.bo.Uint32(f.data[4*i:]))
		case dtLong8, dtSLong8, dtIFD8:
			out[i] = d.bo.Uint64(f.data[8*i:])
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) first(tag uint16, fallback int) int {
	v := d.uints(tag)
	if len(v) == 0 {
		return fallback
	}
	return int(v[0])
}

// floats decodes a floating point field.
func (d *ifd) floats(tag uint16) []float64 {
	f, ok := d.fields[tag]
	if !ok {
		return nil
	}
	out := make([]float64, f.count)
	for i := range out {
		switch f.typ {
		case dtFloat:
			out[i] = float64(math.Float32frombits(d.bo.Uint32(f.data[4*i:])))
		case dtDouble:
			out[i] = math.Float64frombits(d.bo.Uint64(f.data[8*i:]))
		default:
			return nil
		}
	}
	return out
}

func (d *ifd) ascii(tag uint16) string {
	f, ok := d.fields[tag]
	if !ok || f.typ != dtASCII {
		return ""
	}
	return strings.TrimRight(string(f.data), "\x00 ")
}
