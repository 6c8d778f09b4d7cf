package spatial

import (
	"math"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mercatorRef is a 50x50 Web Mercator grid spanning lon 27..29, lat 38..40
// horizontally with square cells.
func mercatorRef() *domain.Raster {
	ul := mercator(geom.Point{X: 27, Y: 40})
	lr := mercator(geom.Point{X: 29, Y: 38})
	cell := (lr.X - ul.X) / 50
	g := domain.NewGrid(50, 50, ul.X, ul.Y, cell, cell, "")
	r := &domain.Raster{Grid: g, XDim: "lon", YDim: "lat"}
	r.Slices = []domain.Slice{domain.NewSlice(g, domain.YearOf(2018))}
	return r
}

// lonField holds each cell's centre longitude.
func lonField() *domain.Raster {
	r := lonLatRaster(domain.YearOf(2011), domain.YearOf(2012))
	for _, s := range r.Slices {
		for row := 0; row < r.Grid.Height; row++ {
			for col := 0; col < r.Grid.Width; col++ {
				x, _ := r.Grid.CellCenter(col, row)
				s.Data[row*r.Grid.Width+col] = x
			}
		}
	}
	r.Grid.CRS = ""
	return r
}

func TestReprojectMatch_ShapeAndDims(t *testing.T) {
	ref := mercatorRef()
	src := lonField()

	refOut, srcOut, err := ReprojectMatch(ref, src, WebMercator, LongLat, ResampleBilinear)
	require.NoError(t, err)

	assert.Equal(t, 50, srcOut.Grid.Width)
	assert.Equal(t, 50, srcOut.Grid.Height)
	assert.Equal(t, "lon", srcOut.XDim)
	assert.Equal(t, "lat", srcOut.YDim)
	assert.Equal(t, WebMercator, srcOut.Grid.CRS)
	assert.Equal(t, WebMercator, refOut.Grid.CRS)
	assert.True(t, srcOut.Grid.SameGeometry(refOut.Grid))
	require.Len(t, srcOut.Slices, 2)
	assert.Equal(t, domain.YearOf(2011), srcOut.Slices[0].Time)

	assert.Empty(t, ref.Grid.CRS, "inputs are not modified")
	assert.Equal(t, 100, src.Grid.Width)
}

func TestReprojectMatch_Bilinear(t *testing.T) {
	ref := mercatorRef()
	_, out, err := ReprojectMatch(ref, lonField(), WebMercator, LongLat, ResampleBilinear)
	require.NoError(t, err)

	for _, cell := range [][2]int{{0, 0}, {25, 25}, {49, 10}} {
		x, _ := out.Grid.CellCenter(cell[0], cell[1])
		wantLon := x / earthRadiusM * 180 / math.Pi
		assert.InDelta(t, wantLon, out.At(0, cell[0], cell[1]), 1e-6, "cell %v", cell)
	}
}

func TestReprojectMatch_Nearest(t *testing.T) {
	ref := mercatorRef()
	src := lonLatRaster(domain.YearOf(2011))
	_, out, err := ReprojectMatch(ref, src, WebMercator, LongLat, ResampleNearest)
	require.NoError(t, err)

	for _, v := range out.Slices[0].Data {
		require.False(t, math.IsNaN(v))
		assert.Equal(t, math.Trunc(v), v, "nearest never blends codes")
	}
}

func TestReprojectMatch_BilinearFallsBackNearMissing(t *testing.T) {
	ref := mercatorRef()
	src := lonField()
	for i := range src.Slices[0].Data {
		if i%2 == 0 {
			src.Slices[0].Data[i] = math.NaN()
		}
	}
	_, out, err := ReprojectMatch(ref, src, WebMercator, LongLat, ResampleBilinear)
	require.NoError(t, err)

	x, _ := out.Grid.CellCenter(25, 25)
	v := out.At(0, 25, 25)
	if !math.IsNaN(v) {
		// a nearest sample is a source cell centre, within half a cell
		assert.InDelta(t, x/earthRadiusM*180/math.Pi, v, 0.05+1e-9)
	}
}

func TestReprojectMatch_NoOverlap(t *testing.T) {
	ref := mercatorRef()
	ul := mercator(geom.Point{X: 100, Y: 10})
	ref.Grid.GeoTransform[0], ref.Grid.GeoTransform[3] = ul.X, ul.Y

	_, out, err := ReprojectMatch(ref, lonField(), WebMercator, LongLat, ResampleNearest)
	require.NoError(t, err)
	assert.True(t, out.Empty())
}

func TestReprojectMatch_MissingCRS(t *testing.T) {
	_, _, err := ReprojectMatch(mercatorRef(), lonField(), "", LongLat, ResampleNearest)
	assert.ErrorIs(t, err, domain.ErrMissingCRS)
}

func TestResamplingFor(t *testing.T) {
	assert.Equal(t, ResampleNearest, ResamplingFor(domain.SourceCORINE))
	assert.Equal(t, ResampleBilinear, ResamplingFor(domain.SourceMODIS))
	assert.Equal(t, "bilinear", ResampleBilinear.String())
}
