package spatial

import (
	"fmt"
	"math"

	"github.com/couchcryptid/geodata-etl/internal/domain"
)

// Resampling selects how source cells are sampled at reference cell centres.
type Resampling int

const (
	// ResampleNearest copies the source cell containing the sample point.
	ResampleNearest Resampling = iota
	// ResampleBilinear interpolates between the four surrounding cell
	// centres and falls back to nearest when any of them is missing.
	ResampleBilinear
)

func (m Resampling) String() string {
	if m == ResampleBilinear {
		return "bilinear"
	}
	return "nearest"
}

// ResamplingFor picks nearest for categorical sources and bilinear otherwise.
func ResamplingFor(src domain.Source) Resampling {
	if src.Categorical() {
		return ResampleNearest
	}
	return ResampleBilinear
}

// ReprojectMatch assigns refCRS to ref and srcCRS to src, then resamples src
// onto ref's grid and renames its spatial dimensions to ref's. Neither input
// is modified. When no reference cell falls on the source grid the second
// result is an empty raster and the error is nil.
func ReprojectMatch(ref, src *domain.Raster, refCRS, srcCRS string, method Resampling) (*domain.Raster, *domain.Raster, error) {
	if refCRS == "" || srcCRS == "" {
		return nil, nil, fmt.Errorf("reproject match: %w", domain.ErrMissingCRS)
	}
	refOut := ref.Clone()
	refOut.Grid.CRS = refCRS
	srcGrid := src.Grid
	srcGrid.CRS = srcCRS

	t, err := Transformer(refCRS, srcCRS)
	if err != nil {
		return nil, nil, fmt.Errorf("reproject match: %w", err)
	}

	target := refOut.Grid
	cols := make([]float64, target.Size())
	rows := make([]float64, target.Size())
	overlap := false
	for row := 0; row < target.Height; row++ {
		for col := 0; col < target.Width; col++ {
			i := row*target.Width + col
			x, y := target.CellCenter(col, row)
			sx, sy, err := t(x, y)
			if err != nil || math.IsNaN(sx) || math.IsNaN(sy) {
				cols[i], rows[i] = math.NaN(), math.NaN()
				continue
			}
			cols[i], rows[i] = srcGrid.PixelAt(sx, sy)
			if inside(srcGrid, cols[i], rows[i]) {
				overlap = true
			}
		}
	}

	out := &domain.Raster{
		Grid:  target,
		XDim:  refOut.XDim,
		YDim:  refOut.YDim,
		Attrs: src.Attrs,
	}
	if src.NoData != nil {
		nd := *src.NoData
		out.NoData = &nd
	}
	if !overlap {
		out.Grid = domain.Grid{CRS: refCRS}
		return refOut, out, nil
	}

	out.Slices = make([]domain.Slice, len(src.Slices))
	for s, slice := range src.Slices {
		sampler := gridSampler{grid: srcGrid, data: slice.Data, noData: src.NoData}
		data := make([]float64, target.Size())
		for i := range data {
			if method == ResampleBilinear {
				data[i] = sampler.bilinear(cols[i], rows[i])
			} else {
				data[i] = sampler.nearest(cols[i], rows[i])
			}
		}
		out.Slices[s] = domain.Slice{Time: slice.Time, Data: data}
	}
	return refOut, out, nil
}

func inside(g domain.Grid, col, row float64) bool {
	return col >= 0 && row >= 0 && col < float64(g.Width) && row < float64(g.Height)
}

type gridSampler struct {
	grid   domain.Grid
	data   []float64
	noData *float64
}

func (s gridSampler) at(col, row int) float64 {
	return s.data[row*s.grid.Width+col]
}

func (s gridSampler) missing(v float64) bool {
	return math.IsNaN(v) || (s.noData != nil && v == *s.noData)
}

func (s gridSampler) nearest(col, row float64) float64 {
	if math.IsNaN(col) || !inside(s.grid, col, row) {
		return math.NaN()
	}
	return s.at(int(col), int(row))
}

func (s gridSampler) bilinear(col, row float64) float64 {
	if math.IsNaN(col) || !inside(s.grid, col, row) {
		return math.NaN()
	}
	// shift to cell-centre coordinates
	u, v := col-0.5, row-0.5
	c0, r0 := int(math.Floor(u)), int(math.Floor(v))
	fx, fy := u-float64(c0), v-float64(r0)
	c1, r1 := c0+1, r0+1
	c0, c1 = clampIndex(c0, s.grid.Width), clampIndex(c1, s.grid.Width)
	r0, r1 = clampIndex(r0, s.grid.Height), clampIndex(r1, s.grid.Height)

	v00, v10 := s.at(c0, r0), s.at(c1, r0)
	v01, v11 := s.at(c0, r1), s.at(c1, r1)
	if s.missing(v00) || s.missing(v10) || s.missing(v01) || s.missing(v11) {
		return s.nearest(col, row)
	}
	top := v00*(1-fx) + v10*fx
	bottom := v01*(1-fx) + v11*fx
	return top*(1-fy) + bottom*fy
}

func clampIndex(i, n int) int {
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
