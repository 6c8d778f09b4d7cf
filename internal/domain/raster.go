package domain

import (
	"math"
	"slices"
	"time"

	"github.com/ctessum/geom"
)

// Grid describes the georeferencing of a north-up raster. GeoTransform uses
// the GDAL ordering: origin x, pixel width, row rotation, origin y, column
// rotation, pixel height (negative for north-up). Rotation terms are
// expected to be zero.
type Grid struct {
	Width        int
	Height       int
	GeoTransform [6]float64
	CRS          string
}

// NewGrid builds a north-up grid from its upper-left corner and cell size.
func NewGrid(width, height int, originX, originY, cellWidth, cellHeight float64, crs string) Grid {
	return Grid{
		Width:        width,
		Height:       height,
		GeoTransform: [6]float64{originX, cellWidth, 0, originY, 0, -math.Abs(cellHeight)},
		CRS:          crs,
	}
}

// Size is the number of cells in one slice.
func (g Grid) Size() int {
	return g.Width * g.Height
}

// CellCenter returns the map coordinates of the centre of cell (col, row).
func (g Grid) CellCenter(col, row int) (x, y float64) {
	gt := g.GeoTransform
	cx, cy := float64(col)+0.5, float64(row)+0.5
	return gt[0] + cx*gt[1] + cy*gt[2], gt[3] + cx*gt[4] + cy*gt[5]
}

// PixelAt converts map coordinates to fractional pixel coordinates, where
// (0, 0) is the upper-left corner of the first cell.
func (g Grid) PixelAt(x, y float64) (col, row float64) {
	gt := g.GeoTransform
	return (x - gt[0]) / gt[1], (y - gt[3]) / gt[5]
}

// Bounds returns the outer edges of the grid in map coordinates.
func (g Grid) Bounds() *geom.Bounds {
	gt := g.GeoTransform
	x0, y0 := gt[0], gt[3]
	x1, y1 := gt[0]+float64(g.Width)*gt[1], gt[3]+float64(g.Height)*gt[5]
	return &geom.Bounds{
		Min: geom.Point{X: math.Min(x0, x1), Y: math.Min(y0, y1)},
		Max: geom.Point{X: math.Max(x0, x1), Y: math.Max(y0, y1)},
	}
}

// Window returns the grid covering cols [col0, col0+w) and rows [row0, row0+h).
func (g Grid) Window(col0, row0, w, h int) Grid {
	gt := g.GeoTransform
	out := g
	out.Width, out.Height = w, h
	out.GeoTransform[0] = gt[0] + float64(col0)*gt[1] + float64(row0)*gt[2]
	out.GeoTransform[3] = gt[3] + float64(col0)*gt[4] + float64(row0)*gt[5]
	return out
}

// SameGeometry reports whether two grids share shape and cell alignment.
func (g Grid) SameGeometry(o Grid) bool {
	if g.Width != o.Width || g.Height != o.Height {
		return false
	}
	for i := range g.GeoTransform {
		if math.Abs(g.GeoTransform[i]-o.GeoTransform[i]) > 1e-9*math.Max(1, math.Abs(g.GeoTransform[i])) {
			return false
		}
	}
	return true
}

// Slice is one time step of a raster, stored row-major with NaN as the
// missing-value marker.
type Slice struct {
	Time TimeValue
	Data []float64
}

// Attrs is the provenance carried by rasters and tables.
type Attrs struct {
	Source      Source
	SubSource   string
	Provinces   []string
	VarName     string
	Units       string
	ScaleFactor float64
	RetrievedAt time.Time
}

// Raster is a labeled stack of grids sharing one georeferencing.
type Raster struct {
	Grid   Grid
	XDim   string
	YDim   string
	Slices []Slice
	NoData *float64
	Attrs  Attrs
}

// Default spatial dimension names.
const (
	DimX = "x"
	DimY = "y"
)

// Empty reports whether the raster holds no cells.
func (r *Raster) Empty() bool {
	return r == nil || r.Grid.Width == 0 || r.Grid.Height == 0 || len(r.Slices) == 0
}

// At returns the value of cell (col, row) in slice t.
func (r *Raster) At(t, col, row int) float64 {
	return r.Slices[t].Data[row*r.Grid.Width+col]
}

// Clone returns a deep copy.
func (r *Raster) Clone() *Raster {
	out := *r
	out.Slices = make([]Slice, len(r.Slices))
	for i, s := range r.Slices {
		out.Slices[i] = Slice{Time: s.Time, Data: slices.Clone(s.Data)}
	}
	if r.NoData != nil {
		nd := *r.NoData
		out.NoData = &nd
	}
	out.Attrs.Provinces = slices.Clone(r.Attrs.Provinces)
	return &out
}

// SliceAt returns the index of the slice tagged with t, or -1.
func (r *Raster) SliceAt(t TimeValue) int {
	for i, s := range r.Slices {
		if s.Time.Equal(t) {
			return i
		}
	}
	return -1
}

// Times lists the time coordinate of every slice in order.
func (r *Raster) Times() []TimeValue {
	out := make([]TimeValue, len(r.Slices))
	for i, s := range r.Slices {
		out[i] = s.Time
	}
	return out
}

// SortByTime orders slices by their time key. The sort is stable so slices
// sharing a key keep their relative order.
func (r *Raster) SortByTime() {
	slices.SortStableFunc(r.Slices, func(a, b Slice) int {
		switch ka, kb := a.Time.Key(), b.Time.Key(); {
		case ka < kb:
			return -1
		case ka > kb:
			return 1
		default:
			return 0
		}
	})
}

// Scale multiplies every cell by factor and records it in the attributes.
func (r *Raster) Scale(factor float64) {
	for _, s := range r.Slices {
		for i, v := range s.Data {
			s.Data[i] = v * factor
		}
	}
	r.Attrs.ScaleFactor = factor
}

// MaskNoData replaces cells equal to the nodata sentinel with NaN and clears
// the sentinel.
func (r *Raster) MaskNoData() {
	if r.NoData == nil {
		return
	}
	nd := *r.NoData
	for _, s := range r.Slices {
		for i, v := range s.Data {
			if v == nd {
				s.Data[i] = math.NaN()
			}
		}
	}
	r.NoData = nil
}

// ValidValues returns the non-missing cells of slice t.
func (r *Raster) ValidValues(t int) []float64 {
	out := make([]float64, 0, len(r.Slices[t].Data))
	for _, v := range r.Slices[t].Data {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// NewSlice allocates a slice for grid g filled with NaN.
func NewSlice(g Grid, t TimeValue) Slice {
	data := make([]float64, g.Size())
	for i := range data {
		data[i] = math.NaN()
	}
	return Slice{Time: t, Data: data}
}
