package pipeline

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeCatalog(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()
	require.NoError(t, c.Validate())

	tiles, err := c.TilesFor("ankara")
	require.NoError(t, err)
	assert.Equal(t, []string{"h20v04", "h20v05"}, tiles)

	seam, err := c.SeamFor("ankara")
	require.NoError(t, err)
	assert.Equal(t, spatial.Seam{Row: 120, Limit: 284}, seam)

	spec, err := c.Spec(domain.SourceCORINE)
	require.NoError(t, err)
	assert.True(t, spec.MaskAfterClip)
	assert.Equal(t, WindowCells, spec.Window.Kind)

	_, err = c.Spec(domain.SourcePopulation)
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}

func TestCatalog_TilesFor_Unknown(t *testing.T) {
	_, err := DefaultCatalog().TilesFor("bursa")

	var notFound *domain.ProvinceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "bursa", notFound.Province)
}

func TestCatalog_TilesFor_ReturnsCopy(t *testing.T) {
	c := DefaultCatalog()
	tiles, err := c.TilesFor("ankara")
	require.NoError(t, err)
	tiles[0] = "h99v99"

	again, err := c.TilesFor("ankara")
	require.NoError(t, err)
	assert.Equal(t, "h20v04", again[0])
}

func TestLoadCatalog_EmptyPathIsDefault(t *testing.T) {
	c, err := LoadCatalog("")
	require.NoError(t, err)
	if diff := cmp.Diff(DefaultCatalog(), c); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadCatalog_Overlay(t *testing.T) {
	path := writeCatalog(t, `
modis_variable: LST_Night_1km
tiles:
  Bursa: [h20v04, h20v05]
  ankara: [h21v04]
seams:
  BURSA:
    row: 40
    limit: 90
sources:
  corine:
    epsg: 4326
    window:
      kind: cells
      col: 10
      row: 20
      width: 30
      height: 40
  ghs:
    window:
      kind: lonlat
      min_lon: 26
      min_lat: 36
      max_lon: 45
      max_lat: 42
`)
	c, err := LoadCatalog(path)
	require.NoError(t, err)

	assert.Equal(t, "LST_Night_1km", c.MODISVariable)
	assert.Equal(t, "merged_2011_2018.nc", c.MergedMODISFile)

	tiles, err := c.TilesFor("bursa")
	require.NoError(t, err)
	assert.Equal(t, []string{"h20v04", "h20v05"}, tiles)
	seam, err := c.SeamFor("bursa")
	require.NoError(t, err)
	assert.Equal(t, spatial.Seam{Row: 40, Limit: 90}, seam)

	tiles, err = c.TilesFor("ankara")
	require.NoError(t, err)
	assert.Equal(t, []string{"h21v04"}, tiles)
	istanbul, err := c.TilesFor("istanbul")
	require.NoError(t, err)
	assert.Equal(t, []string{"h20v04"}, istanbul)

	corine, err := c.Spec(domain.SourceCORINE)
	require.NoError(t, err)
	assert.Equal(t, spatial.LongLat, corine.CRS)
	assert.Equal(t, CellRange(10, 20, 30, 40), corine.Window)
	assert.True(t, corine.MaskAfterClip)

	ghs, err := c.Spec(domain.SourceGHS)
	require.NoError(t, err)
	assert.Equal(t, LonLatRange(26, 36, 45, 42), ghs.Window)
	wantCRS, _ := spatial.FromEPSG(54009)
	assert.Equal(t, wantCRS, ghs.CRS)
}

func TestLoadCatalog_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{
			name: "two tiles without seam",
			body: "tiles:\n  bursa: [h20v04, h20v05]\n",
		},
		{
			name: "three tiles",
			body: "tiles:\n  bursa: [h20v04, h20v05, h20v06]\n",
		},
		{
			name:    "unknown source",
			body:    "sources:\n  landsat:\n    epsg: 4326\n",
			wantErr: domain.ErrUnknownSource,
		},
		{
			name: "unknown window kind",
			body: "sources:\n  dmsp:\n    window:\n      kind: polygon\n",
		},
		{
			name:    "unknown epsg",
			body:    "sources:\n  dmsp:\n    epsg: 1234\n",
			wantErr: domain.ErrUnsupportedFormat,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadCatalog(writeCatalog(t, tt.body))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestLoadCatalog_MissingFile(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestWindow_Resolve(t *testing.T) {
	// 0.5° cells covering lon 24-36, lat 36-44.
	g := domain.NewGrid(24, 16, 24, 44, 0.5, 0.5, spatial.LongLat)

	t.Run("none reads everything", func(t *testing.T) {
		win, err := Window{}.resolve(g)
		require.NoError(t, err)
		assert.Nil(t, win)
	})

	t.Run("cells are clamped", func(t *testing.T) {
		win, err := CellRange(20, -2, 10, 6).resolve(g)
		require.NoError(t, err)
		assert.Equal(t, 20, win.Col)
		assert.Equal(t, 0, win.Row)
		assert.Equal(t, 4, win.Width)
		assert.Equal(t, 4, win.Height)
	})

	t.Run("cells outside", func(t *testing.T) {
		_, err := CellRange(48000, 31000, 8000, 9000).resolve(g)
		assert.ErrorIs(t, err, domain.ErrNoDataInBounds)
	})

	t.Run("lon lat bounds", func(t *testing.T) {
		win, err := LonLatRange(25, 37, 35, 42).resolve(g)
		require.NoError(t, err)
		assert.Equal(t, 2, win.Col)
		assert.Equal(t, 4, win.Row)
		assert.Equal(t, 20, win.Width)
		assert.Equal(t, 10, win.Height)
	})

	t.Run("lon lat outside", func(t *testing.T) {
		_, err := LonLatRange(100, 10, 110, 20).resolve(g)
		assert.ErrorIs(t, err, domain.ErrNoDataInBounds)
	})

	t.Run("lon lat needs crs", func(t *testing.T) {
		bare := g
		bare.CRS = ""
		_, err := LonLatRange(25, 37, 35, 42).resolve(bare)
		assert.True(t, errors.Is(err, domain.ErrMissingCRS))
	})
}
