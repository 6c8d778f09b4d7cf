package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrid_Geometry(t *testing.T) {
	g := NewGrid(4, 2, 100, 50, 10, 5, "+proj=longlat")

	x, y := g.CellCenter(0, 0)
	assert.Equal(t, 105.0, x)
	assert.Equal(t, 47.5, y)

	col, row := g.PixelAt(125, 45)
	assert.InDelta(t, 2.5, col, 1e-12)
	assert.InDelta(t, 1.0, row, 1e-12)

	b := g.Bounds()
	assert.Equal(t, 100.0, b.Min.X)
	assert.Equal(t, 40.0, b.Min.Y)
	assert.Equal(t, 140.0, b.Max.X)
	assert.Equal(t, 50.0, b.Max.Y)

	w := g.Window(1, 1, 2, 1)
	assert.Equal(t, [6]float64{110, 10, 0, 45, 0, -5}, w.GeoTransform)
	assert.Equal(t, 2, w.Width)
	assert.True(t, g.SameGeometry(g))
	assert.False(t, g.SameGeometry(w))
}

func TestRaster_SortByTime(t *testing.T) {
	r := codeRaster(
		[]TimeValue{YearOf(2018), YearOf(2006), YearOf(2012)},
		[]float64{18}, []float64{6}, []float64{12},
	)
	r.SortByTime()

	assert.Equal(t, []TimeValue{YearOf(2006), YearOf(2012), YearOf(2018)}, r.Times())
	assert.Equal(t, 6.0, r.At(0, 0, 0))
	assert.Equal(t, 1, r.SliceAt(YearOf(2012)))
	assert.Equal(t, -1, r.SliceAt(YearOf(2000)))
}

func TestRaster_MaskNoDataAndValidValues(t *testing.T) {
	nd := -128.0
	r := codeRaster([]TimeValue{YearOf(2012)}, []float64{1, -128, 3})
	r.NoData = &nd

	clone := r.Clone()
	r.MaskNoData()

	assert.Nil(t, r.NoData)
	assert.True(t, math.IsNaN(r.At(0, 1, 0)))
	assert.Equal(t, []float64{1, 3}, r.ValidValues(0))

	require.NotNil(t, clone.NoData)
	assert.Equal(t, -128.0, clone.At(0, 1, 0), "clone owns its data")
}

func TestRaster_Scale(t *testing.T) {
	r := codeRaster([]TimeValue{YearOf(2012)}, []float64{14000, 15000})
	r.Scale(0.02)

	assert.InDelta(t, 280.0, r.At(0, 0, 0), 1e-9)
	assert.InDelta(t, 300.0, r.At(0, 1, 0), 1e-9)
	assert.Equal(t, 0.02, r.Attrs.ScaleFactor)
}

func TestRaster_Empty(t *testing.T) {
	var nilRaster *Raster
	assert.True(t, nilRaster.Empty())
	assert.True(t, (&Raster{Grid: NewGrid(0, 0, 0, 0, 1, 1, "")}).Empty())
	assert.False(t, codeRaster([]TimeValue{YearOf(2012)}, []float64{1}).Empty())
}
