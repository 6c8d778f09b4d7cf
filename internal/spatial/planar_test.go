package spatial

import (
	"math"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	modisRadius   = 6371007.181
	modisTileSize = modisRadius * math.Pi / 18 // 10 degrees of latitude
)

// sinusoidalTile is MODIS tile h20v04 resampled to 100x100 cells; each cell
// holds col + 1000*row.
func sinusoidalTile() *domain.Raster {
	originX := -modisRadius*math.Pi + 20*modisTileSize
	originY := modisRadius*math.Pi/2 - 4*modisTileSize
	cell := modisTileSize / 100
	g := domain.NewGrid(100, 100, originX, originY, cell, cell, MODISSinusoidal)
	s := domain.NewSlice(g, domain.YearOf(2011))
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			s.Data[row*g.Width+col] = float64(col + 1000*row)
		}
	}
	return &domain.Raster{Grid: g, XDim: domain.DimX, YDim: domain.DimY, Slices: []domain.Slice{s}}
}

func transform(t *testing.T, from, to string, x, y float64) (float64, float64) {
	t.Helper()
	tr, err := Transformer(from, to)
	require.NoError(t, err)
	ox, oy, err := tr(x, y)
	require.NoError(t, err)
	return ox, oy
}

func TestTransformer_Sinusoidal(t *testing.T) {
	x, y := transform(t, LongLat, MODISSinusoidal, 30, 41)
	assert.InDelta(t, 2517599.130, x, 1e-3)
	assert.InDelta(t, 4558997.131, y, 1e-3)

	// upper-left corner of tile h20v04
	lon, lat := transform(t, MODISSinusoidal, LongLat, 2223901.039533049, 5559752.598832616)
	assert.InDelta(t, 31.114476537, lon, 1e-9)
	assert.InDelta(t, 50.0, lat, 1e-9)

	for _, p := range [][2]float64{{0, 0}, {-120.5, -33.25}, {179.9, 89.5}} {
		x, y := transform(t, LongLat, MODISSinusoidal, p[0], p[1])
		lon, lat := transform(t, MODISSinusoidal, LongLat, x, y)
		assert.InDelta(t, p[0], lon, 1e-9)
		assert.InDelta(t, p[1], lat, 1e-9)
	}
}

func TestTransformer_LAEAEurope(t *testing.T) {
	laea, ok := FromEPSG(3035)
	require.True(t, ok)

	// EPSG guidance note 7-2 worked example
	x, y := transform(t, LongLat, laea, 5, 50)
	assert.InDelta(t, 3962799.45, x, 0.01)
	assert.InDelta(t, 2999718.85, y, 0.01)

	x, y = transform(t, LongLat, laea, 10, 52)
	assert.InDelta(t, 4321000.0, x, 1e-6)
	assert.InDelta(t, 3210000.0, y, 1e-6)

	lon, lat := transform(t, laea, LongLat, 4321000, 3210000)
	assert.InDelta(t, 10.0, lon, 1e-9)
	assert.InDelta(t, 52.0, lat, 1e-7)

	for _, p := range [][2]float64{{5, 50}, {29, 41}, {-9, 38.7}, {26, 70}} {
		x, y := transform(t, LongLat, laea, p[0], p[1])
		lon, lat := transform(t, laea, LongLat, x, y)
		assert.InDelta(t, p[0], lon, 1e-7)
		assert.InDelta(t, p[1], lat, 1e-7)
	}
}

func TestTransformer_Mollweide(t *testing.T) {
	moll, ok := FromEPSG(54009)
	require.True(t, ok)

	x, y := transform(t, LongLat, moll, 0, 90)
	assert.InDelta(t, 0.0, x, 1e-6)
	assert.InDelta(t, 6378137*math.Sqrt2, y, 1e-3)

	x, y = transform(t, LongLat, moll, 180, 0)
	assert.InDelta(t, 6378137*2*math.Sqrt2, x, 1e-3)
	assert.InDelta(t, 0.0, y, 1e-6)

	for _, p := range [][2]float64{{29, 41}, {-70, -45}, {120, 80}} {
		x, y := transform(t, LongLat, moll, p[0], p[1])
		lon, lat := transform(t, moll, LongLat, x, y)
		assert.InDelta(t, p[0], lon, 1e-9)
		assert.InDelta(t, p[1], lat, 1e-9)
	}
}

func TestTransformer_NativeToLibrary(t *testing.T) {
	x, y := transform(t, LongLat, MODISSinusoidal, 29, 41)
	mx, my := transform(t, MODISSinusoidal, WebMercator, x, y)
	want := mercator(geom.Point{X: 29, Y: 41})
	assert.InDelta(t, want.X, mx, 1e-3)
	assert.InDelta(t, want.Y, my, 1e-3)
}

func TestTransformer_EquivalentDefinitions(t *testing.T) {
	// same system spelled differently; the library reports no transform
	x, y := transform(t, LongLat, "+proj=longlat  +datum=WGS84 +no_defs", 29, 41)
	assert.InDelta(t, 29.0, x, 1e-12)
	assert.InDelta(t, 41.0, y, 1e-12)
}

func TestTransformer_OutsideDomain(t *testing.T) {
	tr, err := Transformer(MODISSinusoidal, LongLat)
	require.NoError(t, err)
	_, _, err = tr(2.1e7, 0)
	assert.ErrorIs(t, err, ErrOutsideProjection)
	_, _, err = tr(0, 1.1e7)
	assert.ErrorIs(t, err, ErrOutsideProjection)
}

func TestTransformer_BadParameters(t *testing.T) {
	_, err := Transformer(LongLat, "+proj=sinu +lon_0=0 +R=abc +units=m")
	assert.Error(t, err)
	_, err = Transformer(LongLat, "+proj=laea +lat_0=52 +lon_0=10 +ellps=intl")
	assert.Error(t, err)
}

func TestClip_SinusoidalRasterLonLatBoundary(t *testing.T) {
	r := sinusoidalTile()
	b := domain.Boundary{Name: "istanbul", Shape: geom.Polygon{rect(28, 41, 30, 43)}, CRS: LongLat}

	out, err := Clip(r, b)
	require.NoError(t, err)
	assert.Equal(t, MODISSinusoidal, out.Grid.CRS)
	assert.NotEmpty(t, out.ValidValues(0))

	// the window covers the projected polygon
	shape, err := ToCRS(b.Shape, LongLat, MODISSinusoidal)
	require.NoError(t, err)
	pb, gb := shape.Bounds(), out.Grid.Bounds()
	assert.LessOrEqual(t, gb.Min.X, pb.Min.X)
	assert.LessOrEqual(t, gb.Min.Y, pb.Min.Y)
	assert.GreaterOrEqual(t, gb.Max.X, pb.Max.X)
	assert.GreaterOrEqual(t, gb.Max.Y, pb.Max.Y)

	// inside the province: the source cell value is kept
	x, y := transform(t, LongLat, MODISSinusoidal, 29, 42)
	srcCol, srcRow := r.Grid.PixelAt(x, y)
	outCol, outRow := out.Grid.PixelAt(x, y)
	assert.Equal(t, r.At(0, int(srcCol), int(srcRow)), out.At(0, int(outCol), int(outRow)))

	// the north-east bbox corner lies east of lon 30 on the sinusoid
	assert.True(t, math.IsNaN(out.At(0, out.Grid.Width-1, 0)))
}

func TestReprojectMatch_SinusoidalOntoLongLat(t *testing.T) {
	src := sinusoidalTile()
	ref := &domain.Raster{Grid: domain.NewGrid(20, 20, 28, 43, 0.1, 0.1, LongLat), XDim: "lon", YDim: "lat"}
	ref.Slices = []domain.Slice{domain.NewSlice(ref.Grid, domain.YearOf(2018))}

	_, got, err := ReprojectMatch(ref, src, LongLat, MODISSinusoidal, ResampleNearest)
	require.NoError(t, err)
	require.False(t, got.Empty())
	assert.Equal(t, ref.Grid.Width, got.Grid.Width)
	assert.Equal(t, "lon", got.XDim)

	for _, cell := range [][2]int{{0, 0}, {7, 12}, {19, 19}} {
		lon, lat := ref.Grid.CellCenter(cell[0], cell[1])
		x, y := transform(t, LongLat, MODISSinusoidal, lon, lat)
		col, row := src.Grid.PixelAt(x, y)
		assert.Equal(t, src.At(0, int(col), int(row)), got.At(0, cell[0], cell[1]))
	}
}
