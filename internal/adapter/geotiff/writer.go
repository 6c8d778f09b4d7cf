package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"slices"
	"sort"
	"strconv"

	"github.com/couchcryptid/geodata-etl/internal/spatial"
)

// WriteOptions controls the on-disk layout.
type WriteOptions struct {
	Deflate      bool
	RowsPerStrip int // 0 writes one strip
}

type outEntry struct {
	tag  uint16
	typ  uint16
	data []byte
}

// Write stores im as a little-endian float32 GeoTIFF. CRSs with a known EPSG
// code go into the GeoKeys; any other definition is written to a .prj
// sidecar.
func Write(path string, im *Image, opts WriteOptions) error {
	g := im.Grid
	if g.Width <= 0 || g.Height <= 0 || len(im.Data) != g.Size() {
		return fmt.Errorf("write geotiff %s: %d cells for a %dx%d grid", path, len(im.Data), g.Width, g.Height)
	}
	bo := binary.LittleEndian
	rps := opts.RowsPerStrip
	if rps <= 0 || rps > g.Height {
		rps = g.Height
	}

	var strips [][]byte
	for y0 := 0; y0 < g.Height; y0 += rps {
		rows := min(rps, g.Height-y0)
		raw := make([]byte, 4*rows*g.Width)
		for i := 0; i < rows*g.Width; i++ {
			bo.PutUint32(raw[4*i:], math.Float32bits(float32(im.Data[y0*g.Width+i])))
		}
		if opts.Deflate {
			var buf bytes.Buffer
			zw := zlib.NewWriter(&buf)
			if _, err := zw.Write(raw); err != nil {
				return fmt.Errorf("write geotiff %s: %w", path, err)
			}
			if err := zw.Close(); err != nil {
				return fmt.Errorf("write geotiff %s: %w", path, err)
			}
			raw = buf.Bytes()
		}
		strips = append(strips, raw)
	}

	compression := uint16(compNone)
	if opts.Deflate {
		compression = compDeflate
	}
	gt := g.GeoTransform
	entries := []outEntry{
		shortEntry(bo, tagImageWidth, uint16(g.Width)),
		shortEntry(bo, tagImageLength, uint16(g.Height)),
		shortEntry(bo, tagBitsPerSample, 32),
		shortEntry(bo, tagCompression, compression),
		shortEntry(bo, tagPhotometric, 1),
		shortEntry(bo, tagSamplesPerPixel, 1),
		shortEntry(bo, tagRowsPerStrip, uint16(rps)),
		shortEntry(bo, tagPlanarConfig, 1),
		shortEntry(bo, tagSampleFormat, formatFloat),
		doubleEntry(bo, tagModelPixelScale, gt[1], -gt[5], 0),
		doubleEntry(bo, tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0),
	}

	writePrj := false
	if g.CRS != "" {
		if keys, ok := geoKeyDirectory(g.CRS); ok {
			entries = append(entries, shortEntry(bo, tagGeoKeyDirectory, keys...))
		} else {
			writePrj = true
		}
	}
	if im.NoData != nil {
		entries = append(entries, asciiEntry(tagGDALNoData, strconv.FormatFloat(*im.NoData, 'g', -1, 64)))
	}
	if len(im.Metadata) > 0 {
		keys := make([]string, 0, len(im.Metadata))
		for k := range im.Metadata {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		entries = append(entries, asciiEntry(tagGDALMetadata, formatMetadata(im.Metadata, keys)))
	}

	// layout: header, strips, out-of-line tag data, IFD
	var body bytes.Buffer
	body.Write([]byte{'I', 'I', 42, 0, 0, 0, 0, 0})
	stripOffsets := make([]uint32, len(strips))
	stripCounts := make([]uint32, len(strips))
	for i, s := range strips {
		stripOffsets[i] = uint32(body.Len())
		stripCounts[i] = uint32(len(s))
		body.Write(s)
	}
	entries = append(entries,
		longEntry(bo, tagStripOffsets, stripOffsets...),
		longEntry(bo, tagStripByteCounts, stripCounts...),
	)
	sort.Slice(entries, func(i, j int) bool { return entries[i].tag < entries[j].tag })

	valueOffsets := make([]uint32, len(entries))
	for i, e := range entries {
		if len(e.data) > 4 {
			if body.Len()%2 == 1 {
				body.WriteByte(0)
			}
			valueOffsets[i] = uint32(body.Len())
			body.Write(e.data)
		}
	}
	if body.Len()%2 == 1 {
		body.WriteByte(0)
	}
	ifdOffset := uint32(body.Len())

	var entry [12]byte
	var count [2]byte
	bo.PutUint16(count[:], uint16(len(entries)))
	body.Write(count[:])
	for i, e := range entries {
		bo.PutUint16(entry[0:], e.tag)
		bo.PutUint16(entry[2:], e.typ)
		bo.PutUint32(entry[4:], uint32(len(e.data)/typeSize(e.typ)))
		clear(entry[8:])
		if len(e.data) > 4 {
			bo.PutUint32(entry[8:], valueOffsets[i])
		} else {
			copy(entry[8:], e.data)
		}
		body.Write(entry[:])
	}
	body.Write([]byte{0, 0, 0, 0})

	out := body.Bytes()
	bo.PutUint32(out[4:], ifdOffset)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write geotiff %s: %w", path, err)
	}
	if writePrj {
		if err := os.WriteFile(sidecar(path, ".prj"), []byte(g.CRS+"\n"), 0o644); err != nil {
			return fmt.Errorf("write geotiff %s: %w", path, err)
		}
	}
	return nil
}

// geoKeyDirectory encodes a CRS with a known EPSG code.
func geoKeyDirectory(crs string) ([]uint16, bool) {
	code, ok := spatial.EPSGCode(crs)
	if !ok || code > math.MaxUint16 {
		return nil, false
	}
	if crs == spatial.LongLat {
		return []uint16{
			1, 1, 0, 3,
			keyModelType, 0, 1, modelTypeGeographic,
			keyRasterType, 0, 1, 1,
			keyGeographicType, 0, 1, uint16(code),
		}, true
	}
	return []uint16{
		1, 1, 0, 3,
		keyModelType, 0, 1, modelTypeProjected,
		keyRasterType, 0, 1, 1,
		keyProjectedCSType, 0, 1, uint16(code),
	}, true
}

func shortEntry(bo binary.ByteOrder, tag uint16, v ...uint16) outEntry {
	b := make([]byte, 2*len(v))
	for i, x := range v {
		bo.PutUint16(b[2*i:], x)
	}
	return outEntry{tag: tag, typ: dtShort, data: b}
}

func longEntry(bo binary.ByteOrder, tag uint16, v ...uint32) outEntry {
	b := make([]byte, 4*len(v))
	for i, x := range v {
		bo.PutUint32(b[4*i:], x)
	}
	return outEntry{tag: tag, typ: dtLong, data: b}
}

func doubleEntry(bo binary.ByteOrder, tag uint16, v ...float64) outEntry {
	b := make([]byte, 8*len(v))
	for i, x := range v {
		bo.PutUint64(b[8*i:], math.Float64bits(x))
	}
	return outEntry{tag: tag, typ: dtDouble, data: b}
}

func asciiEntry(tag uint16, s string) outEntry {
	return outEntry{tag: tag, typ: dtASCII, data: append([]byte(s), 0)}
}
