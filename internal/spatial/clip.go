package spatial

import (
	"fmt"
	"math"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/geom"
)

// Clip restricts r to boundary b. The result covers the cells overlapping
// the polygon's bounding box, snapped outward to whole cells (see
// CellWindow); cells whose centre lies inside the polygon or
// that any polygon edge passes through are kept, all others become NaN.
// Both the raster and the boundary must carry an explicit CRS; the boundary
// is reprojected into the raster's CRS.
func Clip(r *domain.Raster, b domain.Boundary) (*domain.Raster, error) {
	if r.Grid.CRS == "" || b.CRS == "" {
		return nil, fmt.Errorf("clip to %q: %w", b.Name, domain.ErrMissingCRS)
	}
	shape, err := ToCRS(b.Shape, b.CRS, r.Grid.CRS)
	if err != nil {
		return nil, fmt.Errorf("clip to %q: %w", b.Name, err)
	}

	col0, row0, w, h, ok := CellWindow(r.Grid, shape.Bounds())
	if !ok {
		return nil, fmt.Errorf("clip to %q: %w", b.Name, domain.ErrNoDataInBounds)
	}
	grid := r.Grid.Window(col0, row0, w, h)
	mask := touchMask(grid, shape.Polygons())

	out := &domain.Raster{
		Grid:   grid,
		XDim:   r.XDim,
		YDim:   r.YDim,
		NoData: r.NoData,
		Attrs:  r.Attrs,
		Slices: make([]domain.Slice, len(r.Slices)),
	}
	out.Attrs.Provinces = []string{b.Name}
	kept := false
	for t, s := range r.Slices {
		data := make([]float64, w*h)
		for row := 0; row < h; row++ {
			src := s.Data[(row0+row)*r.Grid.Width+col0:]
			for col := 0; col < w; col++ {
				i := row*w + col
				if mask[i] {
					data[i] = src[col]
					kept = true
				} else {
					data[i] = math.NaN()
				}
			}
		}
		out.Slices[t] = domain.Slice{Time: s.Time, Data: data}
	}
	if !kept && len(r.Slices) > 0 {
		return nil, fmt.Errorf("clip to %q: %w", b.Name, domain.ErrNoDataInBounds)
	}
	if out.NoData != nil {
		nd := *out.NoData
		out.NoData = &nd
	}
	return out, nil
}

// CellWindow returns the cell range of g overlapping bounds, clamped to the
// grid. The window is snapped outward to whole cells: it is the smallest
// cell-aligned range containing bounds, so its edges lie on or less than one
// cell outside them. Bounds within pixelEps of a cell edge snap to that
// edge. ok is false when nothing overlaps.
func CellWindow(g domain.Grid, bounds *geom.Bounds) (col0, row0, w, h int, ok bool) {
	c0, r0 := g.PixelAt(bounds.Min.X, bounds.Max.Y)
	c1, r1 := g.PixelAt(bounds.Max.X, bounds.Min.Y)
	colMin := int(math.Floor(snapPixel(math.Min(c0, c1))))
	colMax := int(math.Ceil(snapPixel(math.Max(c0, c1))))
	rowMin := int(math.Floor(snapPixel(math.Min(r0, r1))))
	rowMax := int(math.Ceil(snapPixel(math.Max(r0, r1))))
	if colMax == colMin {
		colMax++
	}
	if rowMax == rowMin {
		rowMax++
	}
	colMin, rowMin = max(colMin, 0), max(rowMin, 0)
	colMax, rowMax = min(colMax, g.Width), min(rowMax, g.Height)
	if colMin >= colMax || rowMin >= rowMax {
		return 0, 0, 0, 0, false
	}
	return colMin, rowMin, colMax - colMin, rowMax - rowMin, true
}

// pixelEps absorbs round-off from reprojection and cell-size division.
const pixelEps = 1e-6

func snapPixel(v float64) float64 {
	if r := math.Round(v); math.Abs(v-r) < pixelEps {
		return r
	}
	return v
}

// touchMask marks the cells of g that are inside polys or crossed by any of
// their edges.
func touchMask(g domain.Grid, polys []geom.Polygon) []bool {
	mask := make([]bool, g.Size())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			x, y := g.CellCenter(col, row)
			if containsPoint(polys, x, y) {
				mask[row*g.Width+col] = true
			}
		}
	}
	mark := func(col, row int) {
		if col >= 0 && col < g.Width && row >= 0 && row < g.Height {
			mask[row*g.Width+col] = true
		}
	}
	for _, poly := range polys {
		for _, ring := range poly {
			for i := range ring {
				next := ring[(i+1)%len(ring)]
				x0, y0 := g.PixelAt(ring[i].X, ring[i].Y)
				x1, y1 := g.PixelAt(next.X, next.Y)
				traceSegment(x0, y0, x1, y1, mark)
			}
		}
	}
	return mask
}

// Contains reports whether (x, y) lies inside g.
func Contains(g geom.Polygonal, x, y float64) bool {
	return containsPoint(g.Polygons(), x, y)
}

// containsPoint applies the even-odd rule across every ring, so holes and
// multi-part polygons need no special casing.
func containsPoint(polys []geom.Polygon, x, y float64) bool {
	inside := false
	for _, poly := range polys {
		for _, ring := range poly {
			if ringCrossings(ring, x, y)%2 == 1 {
				inside = !inside
			}
		}
	}
	return inside
}

func ringCrossings(ring geom.Path, x, y float64) int {
	n := len(ring)
	crossings := 0
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].X, ring[i].Y
		xj, yj := ring[j].X, ring[j].Y
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			crossings++
		}
	}
	return crossings
}

// traceSegment visits every cell a segment passes through, in pixel
// coordinates, using a grid traversal that never skips diagonal neighbours.
func traceSegment(x0, y0, x1, y1 float64, visit func(col, row int)) {
	col, row := int(math.Floor(x0)), int(math.Floor(y0))
	endCol, endRow := int(math.Floor(x1)), int(math.Floor(y1))
	dx, dy := x1-x0, y1-y0

	stepCol, tMaxX, tDeltaX := axisStep(x0, dx)
	stepRow, tMaxY, tDeltaY := axisStep(y0, dy)

	visit(col, row)
	steps := abs(endCol-col) + abs(endRow-row)
	for n := 0; n < steps && (col != endCol || row != endRow); n++ {
		if tMaxX < tMaxY {
			col += stepCol
			tMaxX += tDeltaX
		} else {
			row += stepRow
			tMaxY += tDeltaY
		}
		visit(col, row)
	}
}

// axisStep returns the step direction, the parametric distance to the first
// cell boundary and the distance between boundaries along one axis.
func axisStep(p, d float64) (step int, tMax, tDelta float64) {
	switch {
	case d > 0:
		return 1, (math.Floor(p) + 1 - p) / d, 1 / d
	case d < 0:
		return -1, (p - math.Floor(p)) / -d, 1 / -d
	default:
		return 0, math.Inf(1), math.Inf(1)
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
