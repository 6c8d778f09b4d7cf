// Package mockdata writes a small, self-consistent data archive: province
// boundaries, raster series for every source, the population and station
// workbooks, and a catalog matching the archive's grids. Values are
// constant per file so derived summaries are easy to predict.
package mockdata

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/adapter/excel"
	"github.com/couchcryptid/geodata-etl/internal/adapter/geotiff"
	"github.com/couchcryptid/geodata-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
)

// Archive grid: 0.5° cells covering lon 24-36, lat 36-44.
const (
	originLon = 24.0
	originLat = 44.0
	cellDeg   = 0.5
	gridCols  = 24
	gridRows  = 16
)

// CORINE nodata sentinel written into the land-cover files.
const CorineNoData = -128.0

// MODISScale is the scale factor stored in the MODIS tile metadata.
const MODISScale = 0.02

// MODISType is the platform directory of the MODIS tiles.
const MODISType = "terra"

// Layout locates the generated files.
type Layout struct {
	Root         string
	BoundaryFile string
	CatalogFile  string
}

// Write generates the archive under root.
func Write(root string) (*Layout, error) {
	l := &Layout{
		Root:         root,
		BoundaryFile: filepath.Join(root, "shapefiles", "provinces.geojson"),
		CatalogFile:  filepath.Join(root, "catalog.yaml"),
	}
	steps := []struct {
		name string
		fn   func(string) error
	}{
		{"boundaries", writeBoundaries},
		{"catalog", writeCatalog},
		{"dmsp", writeDMSP},
		{"corine", writeCORINE},
		{"ghs", writeGHS},
		{"modis", writeMODIS},
		{"merged modis", writeMergedMODIS},
		{"population", writePopulation},
		{"station", writeStation},
	}
	for _, s := range steps {
		if err := s.fn(root); err != nil {
			return nil, fmt.Errorf("mock %s: %w", s.name, err)
		}
	}
	return l, nil
}

func mkdir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// --- boundaries ---

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   map[string]any `json:"geometry"`
}

func box(minLon, minLat, maxLon, maxLat float64) [][][]float64 {
	return [][][]float64{{
		{minLon, minLat}, {maxLon, minLat}, {maxLon, maxLat}, {minLon, maxLat}, {minLon, minLat},
	}}
}

func writeBoundaries(root string) error {
	provinces := []struct {
		name                           string
		plate                          int
		minLon, minLat, maxLon, maxLat float64
	}{
		{"İSTANBUL", 34, 28, 40, 30, 42},
		{"ANKARA", 6, 32, 39, 34, 41},
	}
	fc := struct {
		Type     string    `json:"type"`
		Features []feature `json:"features"`
	}{Type: "FeatureCollection"}
	for _, p := range provinces {
		fc.Features = append(fc.Features, feature{
			Type:       "Feature",
			Properties: map[string]any{"IL": p.name, "PLAKA": p.plate},
			Geometry:   map[string]any{"type": "Polygon", "coordinates": box(p.minLon, p.minLat, p.maxLon, p.maxLat)},
		})
	}
	b, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return err
	}
	path := filepath.Join(root, "shapefiles", "provinces.geojson")
	if err := mkdir(path); err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// --- catalog ---

const catalogYAML = `# Catalog for the generated archive.
tiles:
  istanbul: [h20v04]
  ankara: [h20v04, h20v05]
seams:
  ankara:
    row: 2
    limit: 4
sources:
  corine:
    window:
      kind: none
  dmsp:
    window:
      kind: lonlat
      min_lon: 25
      min_lat: 37
      max_lon: 35
      max_lat: 42
`

func writeCatalog(root string) error {
	path := filepath.Join(root, "catalog.yaml")
	if err := mkdir(path); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(catalogYAML), 0o644)
}

// --- rasters ---

func archiveGrid(rows int, originY float64) domain.Grid {
	return domain.NewGrid(gridCols, rows, originLon, originY, cellDeg, cellDeg, spatial.LongLat)
}

func writeTIFF(path string, g domain.Grid, value func(col, row int) float64, noData *float64, md map[string]string) error {
	if err := mkdir(path); err != nil {
		return err
	}
	data := make([]float64, g.Size())
	for row := 0; row < g.Height; row++ {
		for col := 0; col < g.Width; col++ {
			data[row*g.Width+col] = value(col, row)
		}
	}
	im := &geotiff.Image{Grid: g, Data: data, NoData: noData, Metadata: md}
	return geotiff.Write(path, im, geotiff.WriteOptions{Deflate: true, RowsPerStrip: 4})
}

func constant(v float64) func(int, int) float64 {
	return func(int, int) float64 { return v }
}

// writeDMSP writes night lights of 10 (2011) and 20 (2012).
func writeDMSP(root string) error {
	for _, f := range []struct {
		name  string
		value float64
	}{
		{"F182011.v4c_web.stable_lights.avg_vis.tif", 10},
		{"F182012.v4c_web.stable_lights.avg_vis.tif", 20},
	} {
		path := filepath.Join(root, domain.CommonArea, string(domain.SourceDMSP), f.name)
		if err := writeTIFF(path, archiveGrid(gridRows, originLat), constant(f.value), nil, nil); err != nil {
			return err
		}
	}
	return nil
}

// writeCORINE writes two land-cover maps. Columns left of the urban edge
// are code 1 (urban), the rest code 12 (agriculture); cell (11, 5) is
// nodata. The urban edge is column 10 in 2012 and 11 in 2018.
func writeCORINE(root string) error {
	nd := CorineNoData
	for _, f := range []struct {
		name      string
		urbanEdge int
	}{
		{"CLC2012_V2020_20u1.tif", 10},
		{"CLC2018_V2020_20u1.tif", 11},
	} {
		edge := f.urbanEdge
		value := func(col, row int) float64 {
			switch {
			case col == 11 && row == 5:
				return CorineNoData
			case col < edge:
				return 1
			default:
				return 12
			}
		}
		path := filepath.Join(root, domain.CommonArea, string(domain.SourceCORINE), f.name)
		if err := writeTIFF(path, archiveGrid(gridRows, originLat), value, &nd, nil); err != nil {
			return err
		}
	}
	return nil
}

// writeGHS writes 100 people per cell for 2015.
func writeGHS(root string) error {
	path := filepath.Join(root, domain.CommonArea, string(domain.SourceGHS), "GHS_POP2015_54009_250.tif")
	return writeTIFF(path, archiveGrid(gridRows, originLat), constant(100), nil, nil)
}

// writeMODIS writes istanbul's single tile (raw 15000, 15100 and 15200 on
// three days) and ankara's two half-height tiles (raw 15000 north, 15500
// south).
func writeMODIS(root string) error {
	md := map[string]string{"scale_factor": fmt.Sprint(MODISScale)}
	half := gridRows / 2
	tiles := []struct {
		province, name string
		grid           domain.Grid
		raw            float64
	}{
		{"istanbul", "MOD11A1.A2011001.h20v04.006.tif", archiveGrid(gridRows, originLat), 15000},
		{"istanbul", "MOD11A1.A2011182.h20v04.006.tif", archiveGrid(gridRows, originLat), 15100},
		{"istanbul", "MOD11A1.A2012001.h20v04.006.tif", archiveGrid(gridRows, originLat), 15200},
		{"ankara", "MOD11A1.A2011001.h20v04.006.tif", archiveGrid(half, originLat), 15000},
		{"ankara", "MOD11A1.A2011001.h20v05.006.tif", archiveGrid(half, originLat-float64(half)*cellDeg), 15500},
	}
	for _, t := range tiles {
		path := filepath.Join(root, t.province, string(domain.SourceMODIS), MODISType, t.name)
		if err := writeTIFF(path, t.grid, constant(t.raw), nil, md); err != nil {
			return err
		}
	}
	return nil
}

// writeMergedMODIS writes istanbul's merged product on a 10 km sinusoidal
// grid: 300 K in mid 2011 and 305 K in mid 2012.
func writeMergedMODIS(root string) error {
	g := domain.NewGrid(50, 30, 2_200_000, 4_700_000, 10_000, 10_000, "")
	r := &domain.Raster{Grid: g, XDim: domain.DimX, YDim: domain.DimY}
	r.Attrs.Units = "K"
	for _, s := range []struct {
		at    time.Time
		value float64
	}{
		{time.Date(2011, time.July, 1, 0, 0, 0, 0, time.UTC), 300},
		{time.Date(2012, time.July, 1, 0, 0, 0, 0, time.UTC), 305},
	} {
		slice := domain.NewSlice(g, domain.DateOf(s.at))
		for i := range slice.Data {
			slice.Data[i] = s.value
		}
		r.Slices = append(r.Slices, slice)
	}
	path := filepath.Join(root, "istanbul", string(domain.SourceMODIS), MODISType, "merged_2011_2018.nc")
	if err := mkdir(path); err != nil {
		return err
	}
	return netcdf.Write(path, r, "LST_Day_1km")
}

// --- tables ---

func writePopulation(root string) error {
	t := &domain.Table{
		LabelColumns: []string{domain.ProvinceColumn},
		Columns:      []string{"2011", "2012"},
		Records: []domain.Record{
			{Labels: map[string]string{domain.ProvinceColumn: "Ä°stanbul"}, Values: []float64{13624240, 13854740}},
			{Labels: map[string]string{domain.ProvinceColumn: "Ankara"}, Values: []float64{4890893, 4965542}},
			{Labels: map[string]string{domain.ProvinceColumn: "İzmir"}, Values: []float64{3965232, 4005459}},
		},
	}
	path := filepath.Join(root, domain.CommonArea, string(domain.SourcePopulation), "population.xlsx")
	if err := mkdir(path); err != nil {
		return err
	}
	return excel.WriteTable(path, "Nufus", t)
}

// writeStation writes istanbul's temperature readings and station list.
// The 2010 row falls outside the default year range and the July 2012
// reading is the missing sentinel.
func writeStation(root string) error {
	obs := &domain.Table{Columns: []string{"Year", "Month", "Day", "Hour", "T"}}
	for _, row := range [][]float64{
		{2010, 12, 31, 12, 4.0},
		{2011, 1, 15, 12, 5.0},
		{2011, 7, 15, 12, 25.0},
		{2012, 1, 15, 12, 7.0},
		{2012, 7, 15, 12, excel.StationMissing},
	} {
		obs.Records = append(obs.Records, domain.Record{Labels: map[string]string{}, Values: row})
	}
	dir := filepath.Join(root, "istanbul", string(domain.SourceStation))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := excel.WriteTable(filepath.Join(dir, "T.xlsx"), "", obs); err != nil {
		return err
	}

	locations := &domain.Table{
		LabelColumns: []string{"Station"},
		Columns:      []string{"Lat", "Lon", "Height"},
		Records: []domain.Record{
			{Labels: map[string]string{"Station": "17060 Kireçburnu"}, Values: []float64{41.15, 29.05, 58}},
			{Labels: map[string]string{"Station": "17130 Ankara Bölge"}, Values: []float64{39.97, 32.86, 891}},
			{Labels: map[string]string{"Station": "17220 İzmir"}, Values: []float64{38.39, 27.08, math.NaN()}},
		},
	}
	return excel.WriteTable(filepath.Join(dir, "locations.xlsx"), "", locations)
}
