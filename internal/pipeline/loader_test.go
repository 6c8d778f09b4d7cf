package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLoader(a *archive) *pipeline.Loader {
	return pipeline.NewLoader(a.layout.Root, a.catalog, 2, a.metrics, discardLogger())
}

func dmspDir(a *archive) string {
	return filepath.Join(a.layout.Root, domain.CommonArea, string(domain.SourceDMSP))
}

func TestLoader_LoadSeries_StacksByTime(t *testing.T) {
	a := newArchive(t)

	r, err := newLoader(a).LoadSeries(context.Background(), domain.SourceDMSP, domain.CommonArea, "")
	require.NoError(t, err)

	require.Len(t, r.Slices, 2)
	assert.Equal(t, domain.YearOf(2011), r.Slices[0].Time)
	assert.Equal(t, domain.YearOf(2012), r.Slices[1].Time)
	assert.InDelta(t, 10.0, r.At(0, 0, 0), 1e-9)
	assert.InDelta(t, 20.0, r.At(1, 0, 0), 1e-9)

	// The lon/lat window 25-35°E, 37-42°N of the 0.5° archive grid.
	assert.Equal(t, 20, r.Grid.Width)
	assert.Equal(t, 10, r.Grid.Height)
	assert.InDelta(t, 25.0, r.Grid.GeoTransform[0], 1e-9)
	assert.InDelta(t, 42.0, r.Grid.GeoTransform[3], 1e-9)
	assert.Equal(t, domain.SourceDMSP, r.Attrs.Source)

	assert.InDelta(t, 2.0, testutil.ToFloat64(a.metrics.TilesLoaded.WithLabelValues("dmsp")), 1e-9)
}

func TestLoader_Files_SkipsSidecars(t *testing.T) {
	a := newArchive(t)
	dir := dmspDir(a)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "F182011.v4c_web.stable_lights.avg_vis.prj"), []byte("GEOGCS[]"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "F182011.v4c_web.stable_lights.avg_vis.tif.aux.xml"), []byte("<x/>"), 0o644))

	files, err := newLoader(a).Files(domain.SourceDMSP, domain.CommonArea, "", "*")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "F182011.v4c_web.stable_lights.avg_vis.tif", filepath.Base(files[0]))
	assert.Equal(t, "F182012.v4c_web.stable_lights.avg_vis.tif", filepath.Base(files[1]))
}

func TestLoader_Files_TilePattern(t *testing.T) {
	a := newArchive(t)
	l := newLoader(a)

	upper, err := l.Files(domain.SourceMODIS, "ankara", "terra", "*h20v04*")
	require.NoError(t, err)
	assert.Len(t, upper, 1)

	istanbul, err := l.Files(domain.SourceMODIS, "istanbul", "terra", "*h20v04*")
	require.NoError(t, err)
	assert.Len(t, istanbul, 3)
}

func TestLoader_Files_NoMatch(t *testing.T) {
	a := newArchive(t)

	_, err := newLoader(a).Files(domain.SourceMODIS, "istanbul", "aqua", "*")
	assert.ErrorIs(t, err, domain.ErrNoFiles)
}

func TestLoader_MalformedName(t *testing.T) {
	a := newArchive(t)
	dir := dmspDir(a)
	data, err := os.ReadFile(filepath.Join(dir, "F182011.v4c_web.stable_lights.avg_vis.tif"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stable_lights.tif"), data, 0o644))

	_, err = newLoader(a).LoadSeries(context.Background(), domain.SourceDMSP, domain.CommonArea, "")

	var malformed *domain.MalformedFilenameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, "F", malformed.Marker)
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.metrics.TileErrors.WithLabelValues("dmsp")), 1e-9)
}

func TestLoader_Canceled(t *testing.T) {
	a := newArchive(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newLoader(a).LoadSeries(ctx, domain.SourceDMSP, domain.CommonArea, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoader_NonRasterSource(t *testing.T) {
	a := newArchive(t)

	_, err := newLoader(a).LoadFiles(context.Background(), domain.SourceStation, "", []string{"T.xlsx"})
	assert.ErrorIs(t, err, domain.ErrUnknownSource)
}
