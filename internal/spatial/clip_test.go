package spatial

import (
	"math"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const earthRadiusM = 6378137.0

// lonLatRaster covers lon 25..35, lat 35..45 with 0.1 degree cells; each
// cell holds col + 1000*row.
func lonLatRaster(times ...domain.TimeValue) *domain.Raster {
	g := domain.NewGrid(100, 100, 25, 45, 0.1, 0.1, LongLat)
	r := &domain.Raster{Grid: g, XDim: domain.DimX, YDim: domain.DimY}
	for _, t := range times {
		s := domain.NewSlice(g, t)
		for row := 0; row < g.Height; row++ {
			for col := 0; col < g.Width; col++ {
				s.Data[row*g.Width+col] = float64(col + 1000*row)
			}
		}
		r.Slices = append(r.Slices, s)
	}
	return r
}

func rect(x0, y0, x1, y1 float64) geom.Path {
	return geom.Path{{X: x0, Y: y0}, {X: x1, Y: y0}, {X: x1, Y: y1}, {X: x0, Y: y1}, {X: x0, Y: y0}}
}

func mercator(p geom.Point) geom.Point {
	return geom.Point{
		X: earthRadiusM * p.X * math.Pi / 180,
		Y: earthRadiusM * math.Log(math.Tan(math.Pi/4+p.Y*math.Pi/360)),
	}
}

func assertBounds(t *testing.T, want, got *geom.Bounds) {
	t.Helper()
	assert.InDelta(t, want.Min.X, got.Min.X, 1e-9, "min x")
	assert.InDelta(t, want.Min.Y, got.Min.Y, 1e-9, "min y")
	assert.InDelta(t, want.Max.X, got.Max.X, 1e-9, "max x")
	assert.InDelta(t, want.Max.Y, got.Max.Y, 1e-9, "max y")
}

func TestCellWindow(t *testing.T) {
	g := lonLatRaster().Grid
	tests := []struct {
		name             string
		bounds           *geom.Bounds
		col0, row0, w, h int
		ok               bool
	}{
		{"on cell edges", geom.Polygon{rect(27, 37, 29, 39)}.Bounds(), 20, 60, 20, 20, true},
		{"snapped outward", geom.Polygon{rect(27.05, 37.05, 28.95, 38.95)}.Bounds(), 20, 60, 20, 20, true},
		{"round-off absorbed", geom.Polygon{rect(27+1e-12, 37-1e-12, 29-1e-12, 39+1e-12)}.Bounds(), 20, 60, 20, 20, true},
		{"thinner than a cell", geom.Polygon{rect(30.01, 40.01, 30.02, 40.02)}.Bounds(), 50, 49, 1, 1, true},
		{"clamped to grid", geom.Polygon{rect(20, 30, 26, 36)}.Bounds(), 0, 90, 10, 10, true},
		{"outside", geom.Polygon{rect(100, 10, 101, 11)}.Bounds(), 0, 0, 0, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			col0, row0, w, h, ok := CellWindow(g, tt.bounds)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, []int{tt.col0, tt.row0, tt.w, tt.h}, []int{col0, row0, w, h})
		})
	}
}

func TestClip_BoundsAndHoles(t *testing.T) {
	r := lonLatRaster(domain.YearOf(2011), domain.YearOf(2012))
	b := domain.Boundary{
		Name:  "istanbul",
		Shape: geom.Polygon{rect(27, 37, 29, 39), rect(27.75, 37.75, 28.25, 38.25)},
		CRS:   LongLat,
	}

	out, err := Clip(r, b)
	require.NoError(t, err)
	require.Len(t, out.Slices, 2)
	assert.Equal(t, r.Grid.Window(20, 60, 20, 20), out.Grid)
	assertBounds(t, b.Bounds(), out.Grid.Bounds())
	assert.Equal(t, []string{"istanbul"}, out.Attrs.Provinces)

	value := func(lon, lat float64) float64 {
		col, row := out.Grid.PixelAt(lon, lat)
		return out.At(0, int(col), int(row))
	}
	// inside the shell
	assert.False(t, math.IsNaN(value(27.35, 37.35)))
	// inside the hole, away from its edges
	assert.True(t, math.IsNaN(value(28.05, 37.95)))
	// crossed by the hole's edge
	assert.False(t, math.IsNaN(value(27.75, 38.05)))

	col, row := r.Grid.PixelAt(27.35, 37.35)
	assert.Equal(t, r.At(0, int(col), int(row)), value(27.35, 37.35), "values are copied unchanged")
}

func TestClip_AllTouched(t *testing.T) {
	r := lonLatRaster(domain.YearOf(2011))
	// a sliver thinner than a cell still keeps the cells it crosses
	b := domain.Boundary{Name: "sliver", Shape: geom.Polygon{rect(30.01, 40.01, 30.99, 40.03)}, CRS: LongLat}

	out, err := Clip(r, b)
	require.NoError(t, err)
	assert.NotEmpty(t, out.ValidValues(0))
}

func TestClip_ReprojectsBoundary(t *testing.T) {
	r := lonLatRaster(domain.YearOf(2011))
	shell := rect(30, 40, 31, 41)
	merc := make(geom.Path, len(shell))
	for i, p := range shell {
		merc[i] = mercator(p)
	}
	b := domain.Boundary{Name: "ankara", Shape: geom.Polygon{merc}, CRS: WebMercator}

	out, err := Clip(r, b)
	require.NoError(t, err)
	assert.Equal(t, r.Grid.Window(50, 40, 10, 10), out.Grid)
	assertBounds(t, geom.Polygon{shell}.Bounds(), out.Grid.Bounds())
	assert.Equal(t, LongLat, out.Grid.CRS)
}

func TestClip_Errors(t *testing.T) {
	r := lonLatRaster(domain.YearOf(2011))

	_, err := Clip(r, domain.Boundary{Name: "x", Shape: geom.Polygon{rect(27, 37, 29, 39)}})
	assert.ErrorIs(t, err, domain.ErrMissingCRS)

	noCRS := r.Clone()
	noCRS.Grid.CRS = ""
	_, err = Clip(noCRS, domain.Boundary{Name: "x", Shape: geom.Polygon{rect(27, 37, 29, 39)}, CRS: LongLat})
	assert.ErrorIs(t, err, domain.ErrMissingCRS)

	_, err = Clip(r, domain.Boundary{Name: "far", Shape: geom.Polygon{rect(100, 10, 101, 11)}, CRS: LongLat})
	assert.ErrorIs(t, err, domain.ErrNoDataInBounds)
}

func TestClip_KeepsNoDataSentinel(t *testing.T) {
	r := lonLatRaster(domain.YearOf(2011))
	nd := -3000.0
	r.NoData = &nd

	out, err := Clip(r, domain.Boundary{Name: "x", Shape: geom.Polygon{rect(27, 37, 29, 39)}, CRS: LongLat})
	require.NoError(t, err)
	require.NotNil(t, out.NoData)
	assert.Equal(t, nd, *out.NoData)
	*out.NoData = 0
	assert.Equal(t, -3000.0, *r.NoData, "sentinel is not shared")
}

func TestAreaKm2(t *testing.T) {
	square := domain.Boundary{Name: "eq", Shape: geom.Polygon{rect(0, 0, 1, 1)}, CRS: LongLat}
	got, err := AreaKm2(square)
	require.NoError(t, err)
	// one degree at the equator is about 111.195 km
	assert.InEpsilon(t, 111.195*111.195, got, 1e-3)

	reversed := geom.Path{{X: 0, Y: 0}, {X: 0, Y: 1}, {X: 1, Y: 1}, {X: 1, Y: 0}, {X: 0, Y: 0}}
	got2, err := AreaKm2(domain.Boundary{Name: "cw", Shape: geom.Polygon{reversed}, CRS: LongLat})
	require.NoError(t, err)
	assert.InEpsilon(t, got, got2, 1e-9, "winding does not matter")

	holed := domain.Boundary{Name: "holed", Shape: geom.Polygon{rect(0, 0, 1, 1), rect(0, 0, 0.5, 1)}, CRS: LongLat}
	got3, err := AreaKm2(holed)
	require.NoError(t, err)
	assert.InEpsilon(t, got/2, got3, 1e-3)

	_, err = AreaKm2(domain.Boundary{Name: "x", Shape: geom.Polygon{rect(0, 0, 1, 1)}})
	assert.ErrorIs(t, err, domain.ErrMissingCRS)
}
