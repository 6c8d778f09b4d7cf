package spatial

import (
	"fmt"
	"math"
	"slices"
	"sort"

	"github.com/couchcryptid/geodata-etl/internal/domain"
)

// Concat stacks rasters sharing one grid along time. Slices are ordered by
// their time key; slices with equal keys keep their input order.
func Concat(parts ...*domain.Raster) (*domain.Raster, error) {
	if len(parts) == 0 {
		return nil, fmt.Errorf("concat: %w", domain.ErrNoFiles)
	}
	out := parts[0].Clone()
	for _, p := range parts[1:] {
		if !p.Grid.SameGeometry(out.Grid) {
			return nil, fmt.Errorf("concat: %dx%d grid does not match %dx%d: %w",
				p.Grid.Width, p.Grid.Height, out.Grid.Width, out.Grid.Height, domain.ErrGridMismatch)
		}
		out.Slices = append(out.Slices, p.Clone().Slices...)
	}
	out.SortByTime()
	return out, nil
}

// Seam joins two vertically adjacent tiles of one province. Rows [0, Row)
// of the merged grid come from the upper tile and rows [Row, Limit) from the
// lower tile.
type Seam struct {
	Row   int
	Limit int
}

// MergeSeam merges two clipped tiles that share cell size and alignment.
// The merged grid spans both tiles horizontally and is cut at Limit rows.
// Time steps present in only one tile are kept; the other tile's rows stay
// NaN there.
func MergeSeam(upper, lower *domain.Raster, seam Seam) (*domain.Raster, error) {
	if seam.Row < 0 || seam.Limit <= seam.Row {
		return nil, fmt.Errorf("merge seam: invalid seam %d of %d", seam.Row, seam.Limit)
	}
	if upper.Grid.CRS != lower.Grid.CRS {
		return nil, fmt.Errorf("merge seam: crs differs: %w", domain.ErrGridMismatch)
	}
	ug, lg := upper.Grid.GeoTransform, lower.Grid.GeoTransform
	if !nearlyEqual(ug[1], lg[1]) || !nearlyEqual(ug[5], lg[5]) {
		return nil, fmt.Errorf("merge seam: cell size differs: %w", domain.ErrGridMismatch)
	}

	ub, lb := upper.Grid.Bounds(), lower.Grid.Bounds()
	minX, maxX := math.Min(ub.Min.X, lb.Min.X), math.Max(ub.Max.X, lb.Max.X)
	maxY, minY := math.Max(ub.Max.Y, lb.Max.Y), math.Min(ub.Min.Y, lb.Min.Y)
	width := int(math.Round((maxX - minX) / ug[1]))
	height := min(int(math.Round((maxY-minY)/-ug[5])), seam.Limit)
	grid := domain.NewGrid(width, height, minX, maxY, ug[1], ug[5], upper.Grid.CRS)

	uOff, err := offset(grid, upper.Grid)
	if err != nil {
		return nil, err
	}
	lOff, err := offset(grid, lower.Grid)
	if err != nil {
		return nil, err
	}

	out := &domain.Raster{
		Grid:  grid,
		XDim:  upper.XDim,
		YDim:  upper.YDim,
		Attrs: upper.Attrs,
	}
	out.Attrs.Provinces = mergeNames(upper.Attrs.Provinces, lower.Attrs.Provinces)
	if upper.NoData != nil {
		nd := *upper.NoData
		out.NoData = &nd
	}

	for _, t := range unionTimes(upper, lower) {
		slice := domain.NewSlice(grid, t)
		if i := upper.SliceAt(t); i >= 0 {
			paste(slice.Data, grid, upper, i, uOff, 0, min(seam.Row, height))
		}
		if i := lower.SliceAt(t); i >= 0 {
			paste(slice.Data, grid, lower, i, lOff, seam.Row, height)
		}
		out.Slices = append(out.Slices, slice)
	}
	return out, nil
}

type gridOffset struct{ col, row int }

// offset locates the upper-left cell of g inside the merged grid.
func offset(merged, g domain.Grid) (gridOffset, error) {
	c, r := merged.PixelAt(g.GeoTransform[0], g.GeoTransform[3])
	col, row := math.Round(c), math.Round(r)
	if math.Abs(c-col) > 1e-6 || math.Abs(r-row) > 1e-6 {
		return gridOffset{}, fmt.Errorf("merge seam: tiles are not cell aligned: %w", domain.ErrGridMismatch)
	}
	return gridOffset{col: int(col), row: int(row)}, nil
}

// paste copies slice t of src into dst for merged rows [rowFrom, rowTo).
func paste(dst []float64, merged domain.Grid, src *domain.Raster, t int, off gridOffset, rowFrom, rowTo int) {
	data := src.Slices[t].Data
	for row := rowFrom; row < rowTo; row++ {
		srow := row - off.row
		if srow < 0 || srow >= src.Grid.Height {
			continue
		}
		for col := 0; col < merged.Width; col++ {
			scol := col - off.col
			if scol < 0 || scol >= src.Grid.Width {
				continue
			}
			dst[row*merged.Width+col] = data[srow*src.Grid.Width+scol]
		}
	}
}

func unionTimes(a, b *domain.Raster) []domain.TimeValue {
	seen := make(map[int64]bool)
	var out []domain.TimeValue
	for _, r := range []*domain.Raster{a, b} {
		for _, s := range r.Slices {
			if k := s.Time.Key(); !seen[k] {
				seen[k] = true
				out = append(out, s.Time)
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

func mergeNames(a, b []string) []string {
	out := append([]string(nil), a...)
	for _, n := range b {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out
}

func nearlyEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(a))
}
