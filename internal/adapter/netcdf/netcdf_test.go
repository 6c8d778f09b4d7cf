package netcdf

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lstRaster() *domain.Raster {
	g := domain.NewGrid(4, 3, 2_200_000, 4_500_000, 1000, 1000, "")
	r := &domain.Raster{Grid: g, XDim: domain.DimX, YDim: domain.DimY}
	r.Attrs.Units = "K"
	for d, day := range []int{1, 32} {
		s := domain.NewSlice(g, domain.DateOf(time.Date(2011, 1, day, 0, 0, 0, 0, time.UTC)))
		for i := range s.Data {
			s.Data[i] = 280 + float64(d*100+i)
		}
		r.Slices = append(r.Slices, s)
	}
	r.Slices[1].Data[5] = math.NaN()
	return r
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "merged_2011_2018.nc")
	in := lstRaster()
	require.NoError(t, Write(path, in, "LST_Day_1km"))

	out, err := Read(path, "LST_Day_1km")
	require.NoError(t, err)

	assert.Equal(t, 4, out.Grid.Width)
	assert.Equal(t, 3, out.Grid.Height)
	for i := range in.Grid.GeoTransform {
		assert.InDelta(t, in.Grid.GeoTransform[i], out.Grid.GeoTransform[i], 1e-6)
	}
	assert.Empty(t, out.Grid.CRS)
	assert.Equal(t, "K", out.Attrs.Units)
	assert.Equal(t, "LST_Day_1km", out.Attrs.VarName)

	require.Len(t, out.Slices, 2)
	assert.True(t, out.Slices[0].Time.Equal(in.Slices[0].Time))
	assert.Equal(t, "2011-02-01", out.Slices[1].Time.Date.Format("2006-01-02"))
	assert.Equal(t, 380.0, out.At(1, 0, 0))
	assert.True(t, math.IsNaN(out.Slices[1].Data[5]))
}

func TestRead_MissingVariable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.nc")
	require.NoError(t, Write(path, lstRaster(), "LST_Day_1km"))

	_, err := Read(path, "LST_Night_1km")
	assert.Error(t, err)
}

func TestRead_UnsupportedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.hdf")
	require.NoError(t, os.WriteFile(path, []byte("\x0e\x03\x13\x01 hdf4 payload"), 0o644))

	_, err := Read(path, "LST_Day_1km")
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)
}

func TestParseTimeUnits(t *testing.T) {
	tests := []struct {
		units   string
		unit    time.Duration
		ref     string
		wantErr bool
	}{
		{"days since 2011-01-01", 24 * time.Hour, "2011-01-01T00:00:00Z", false},
		{"hours since 1970-01-01 00:00:00", time.Hour, "1970-01-01T00:00:00Z", false},
		{"seconds since 2000-1-1 12:00:00 UTC", time.Second, "2000-01-01T12:00:00Z", false},
		{"fortnights since 2011-01-01", 0, "", true},
		{"days", 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.units, func(t *testing.T) {
			unit, ref, err := parseTimeUnits(tt.units)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.unit, unit)
			assert.Equal(t, tt.ref, ref.Format(time.RFC3339))
		})
	}
}

func TestDecode_Packed(t *testing.T) {
	v := &variable{
		values: []float64{0, 15000, 7500},
		attrs:  map[string]any{"_FillValue": []int16{0}, "scale_factor": []float32{0.02}},
	}
	decode(v)
	assert.True(t, math.IsNaN(v.values[0]))
	assert.InDelta(t, 300.0, v.values[1], 1e-4)
	assert.InDelta(t, 150.0, v.values[2], 1e-4)
}
