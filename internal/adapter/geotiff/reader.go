// Package geotiff reads and writes single-band GeoTIFF rasters. Georeferencing
// comes from the GeoTIFF tags, falling back to .tfw and .prj sidecar files.
package geotiff

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"golang.org/x/image/tiff/lzw"
)

// Compression schemes.
const (
	compNone       = 1
	compLZW        = 5
	compDeflate    = 8
	compDeflateOld = 32946
)

// Sample formats.
const (
	formatUint  = 1
	formatInt   = 2
	formatFloat = 3
)

// Window selects a block of cells.
type Window struct {
	Col, Row      int
	Width, Height int
}

// Image is the first band of a GeoTIFF as float64 cells, row-major.
type Image struct {
	Grid     domain.Grid
	Data     []float64
	NoData   *float64
	Metadata map[string]string
}

// ScaleFactor returns the band scale stored in the GDAL metadata.
func (im *Image) ScaleFactor() (float64, bool) {
	s, ok := im.Metadata["scale_factor"]
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// File is an open GeoTIFF.
type File struct {
	path string
	f    *os.File
	bo   binary.ByteOrder

	width, height  int
	bits, format   int
	samples        int
	planar         int
	compression    int
	predictor      int
	chunkW, chunkH int
	offsets        []uint64
	counts         []uint64

	grid     domain.Grid
	noData   *float64
	metadata map[string]string
}

// Open parses the header and georeferencing of path. Pixels are decoded by
// Read.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open geotiff: %w", err)
	}
	gf, err := parse(path, f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open geotiff %s: %w", path, err)
	}
	return gf, nil
}

func parse(path string, f *os.File) (*File, error) {
	d, err := readIFD(f)
	if err != nil {
		return nil, err
	}
	gf := &File{
		path:        path,
		f:           f,
		bo:          d.bo,
		width:       d.first(tagImageWidth, 0),
		height:      d.first(tagImageLength, 0),
		bits:        d.first(tagBitsPerSample, 1),
		format:      d.first(tagSampleFormat, formatUint),
		samples:     d.first(tagSamplesPerPixel, 1),
		planar:      d.first(tagPlanarConfig, 1),
		compression: d.first(tagCompression, compNone),
		predictor:   d.first(tagPredictor, 1),
	}
	if gf.width <= 0 || gf.height <= 0 {
		return nil, fmt.Errorf("missing image dimensions: %w", domain.ErrUnsupportedFormat)
	}
	switch gf.bits {
	case 8, 16, 32, 64:
	default:
		return nil, fmt.Errorf("%d bits per sample: %w", gf.bits, domain.ErrUnsupportedFormat)
	}
	if gf.format == formatFloat && gf.bits < 32 {
		return nil, fmt.Errorf("%d-bit float samples: %w", gf.bits, domain.ErrUnsupportedFormat)
	}
	switch gf.compression {
	case compNone, compLZW, compDeflate, compDeflateOld:
	default:
		return nil, fmt.Errorf("compression %d: %w", gf.compression, domain.ErrUnsupportedFormat)
	}
	if gf.predictor != 1 && (gf.predictor != 2 || gf.format == formatFloat) {
		return nil, fmt.Errorf("predictor %d: %w", gf.predictor, domain.ErrUnsupportedFormat)
	}

	if d.has(tagTileWidth) {
		gf.chunkW, gf.chunkH = d.first(tagTileWidth, 0), d.first(tagTileLength, 0)
		gf.offsets, gf.counts = d.uints(tagTileOffsets), d.uints(tagTileByteCounts)
	} else {
		gf.chunkW, gf.chunkH = gf.width, d.first(tagRowsPerStrip, gf.height)
		gf.offsets, gf.counts = d.uints(tagStripOffsets), d.uints(tagStripByteCounts)
	}
	if gf.chunkW <= 0 || gf.chunkH <= 0 || len(gf.offsets) == 0 || len(gf.offsets) != len(gf.counts) {
		return nil, fmt.Errorf("bad strip or tile layout: %w", domain.ErrUnsupportedFormat)
	}
	gf.chunkH = min(gf.chunkH, gf.height)
	if len(gf.offsets) < gf.across()*gf.down() {
		return nil, fmt.Errorf("image has %d chunks, want %d: %w", len(gf.offsets), gf.across()*gf.down(), domain.ErrUnsupportedFormat)
	}

	keys := parseGeoKeys(d)
	gt, ok := geoTransform(d, keys)
	if !ok {
		if gt, ok, err = readWorldFile(path); err != nil {
			return nil, err
		}
	}
	if !ok {
		gt = [6]float64{0, 1, 0, 0, 0, -1}
	}
	crs := keys.crs()
	if crs == "" {
		if crs, err = readPrj(path); err != nil {
			return nil, err
		}
	}
	gf.grid = domain.Grid{Width: gf.width, Height: gf.height, GeoTransform: gt, CRS: crs}

	if s := d.ascii(tagGDALNoData); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parse nodata %q: %w", s, err)
		}
		gf.noData = &v
	}
	if gf.metadata, err = parseMetadata(d.ascii(tagGDALMetadata)); err != nil {
		return nil, err
	}
	return gf, nil
}

// Grid is the georeferencing of the whole image. CRS is empty when neither
// the GeoKeys nor a .prj sidecar define one.
func (f *File) Grid() domain.Grid {
	return f.grid
}

// Close releases the file handle.
func (f *File) Close() error {
	return f.f.Close()
}

func (f *File) across() int { return (f.width + f.chunkW - 1) / f.chunkW }
func (f *File) down() int   { return (f.height + f.chunkH - 1) / f.chunkH }

// Read decodes band 1 inside win, or the whole image when win is nil. Only
// the strips or tiles intersecting the window are decompressed.
func (f *File) Read(win *Window) (*Image, error) {
	w := Window{Width: f.width, Height: f.height}
	if win != nil {
		w = *win
	}
	if w.Col < 0 || w.Row < 0 || w.Width <= 0 || w.Height <= 0 ||
		w.Col+w.Width > f.width || w.Row+w.Height > f.height {
		return nil, fmt.Errorf("read %s: window %+v outside %dx%d image", f.path, w, f.width, f.height)
	}

	data := make([]float64, w.Width*w.Height)
	for i := range data {
		data[i] = math.NaN()
	}
	across := f.across()
	stride := f.samples
	if f.planar == 2 {
		stride = 1
	}
	for c := 0; c < across*f.down(); c++ {
		x0, y0 := (c%across)*f.chunkW, (c/across)*f.chunkH
		if x0 >= w.Col+w.Width || x0+f.chunkW <= w.Col || y0 >= w.Row+w.Height || y0+f.chunkH <= w.Row {
			continue
		}
		buf, err := f.chunk(c, stride)
		if err != nil {
			return nil, fmt.Errorf("read %s: chunk %d: %w", f.path, c, err)
		}
		rowBytes := f.chunkW * stride * f.bits / 8
		rows := min(f.chunkH, len(buf)/rowBytes)
		for y := max(y0, w.Row); y < min(y0+rows, w.Row+w.Height); y++ {
			for x := max(x0, w.Col); x < min(x0+f.chunkW, w.Col+w.Width); x++ {
				idx := ((y-y0)*f.chunkW + (x - x0)) * stride
				data[(y-w.Row)*w.Width+(x-w.Col)] = f.sample(buf, idx)
			}
		}
	}

	im := &Image{
		Grid:     f.grid.Window(w.Col, w.Row, w.Width, w.Height),
		Data:     data,
		Metadata: f.metadata,
	}
	if f.noData != nil {
		nd := *f.noData
		im.NoData = &nd
	}
	return im, nil
}

// ReadFile opens path, reads win (nil for all cells) and closes the file.
func ReadFile(path string, win *Window) (*Image, error) {
	f, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return f.Read(win)
}

// chunk returns the decompressed bytes of strip or tile c with the
// horizontal predictor undone.
func (f *File) chunk(c, stride int) ([]byte, error) {
	raw := make([]byte, f.counts[c])
	if _, err := f.f.ReadAt(raw, int64(f.offsets[c])); err != nil && err != io.EOF {
		return nil, err
	}
	var buf []byte
	switch f.compression {
	case compNone:
		buf = raw
	case compLZW:
		r := lzw.NewReader(bytes.NewReader(raw), lzw.MSB, 8)
		defer r.Close()
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("lzw: %w", err)
		}
		buf = b
	case compDeflate, compDeflateOld:
		r, err := zlib.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		defer r.Close()
		if buf, err = io.ReadAll(r); err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
	}
	if f.predictor == 2 {
		f.undoPredictor(buf, stride)
	}
	return buf, nil
}

// undoPredictor reverses horizontal differencing row by row.
func (f *File) undoPredictor(buf []byte, stride int) {
	size := f.bits / 8
	rowBytes := f.chunkW * stride * size
	for start := 0; start+rowBytes <= len(buf); start += rowBytes {
		row := buf[start : start+rowBytes]
		for i := stride * size; i < len(row); i += size {
			prev := i - stride*size
			switch size {
			case 1:
				row[i] += row[prev]
			case 2:
				f.bo.PutUint16(row[i:], f.bo.Uint16(row[i:])+f.bo.Uint16(row[prev:]))
			case 4:
				f.bo.PutUint32(row[i:], f.bo.Uint32(row[i:])+f.bo.Uint32(row[prev:]))
			case 8:
				f.bo.PutUint64(row[i:], f.bo.Uint64(row[i:])+f.bo.Uint64(row[prev:]))
			}
		}
	}
}

// sample converts sample idx of buf to float64.
func (f *File) sample(buf []byte, idx int) float64 {
	switch f.bits {
	case 8:
		if f.format == formatInt {
			return float64(int8(buf[idx]))
		}
		return float64(buf[idx])
	case 16:
		v := f.bo.Uint16(buf[2*idx:])
		if f.format == formatInt {
			return float64(int16(v))
		}
		return float64(v)
	case 32:
		v := f.bo.Uint32(buf[4*idx:])
		switch f.format {
		case formatFloat:
			return float64(math.Float32frombits(v))
		case formatInt:
			return float64(int32(v))
		}
		return float64(v)
	default:
		v := f.bo.Uint64(buf[8*idx:])
		switch f.format {
		case formatFloat:
			return math.Float64frombits(v)
		case formatInt:
			return float64(int64(v))
		}
		return float64(v)
	}
}
