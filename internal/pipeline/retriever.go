package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/adapter/boundary"
	"github.com/couchcryptid/geodata-etl/internal/adapter/excel"
	"github.com/couchcryptid/geodata-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/geodata-etl/internal/config"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/observability"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
)

// Station workbook names inside {province}/station.
const (
	stationVariable  = "T"
	stationUnit      = "degC"
	stationFile      = stationVariable + ".xlsx"
	stationLocations = "locations.xlsx"
)

// Retriever returns per-province products: rasters clipped to the province
// polygon and tables filtered to its rows.
type Retriever struct {
	root         string
	boundaryFile string
	startYear    int
	endYear      int
	defaultScale float64

	catalog    *Catalog
	loader     *Loader
	boundaries *boundary.Cache
	norm       *domain.NameNormalizer
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewRetriever wires a Retriever over the storage root and boundary file
// named in cfg.
func NewRetriever(cfg *config.Config, catalog *Catalog, boundaries *boundary.Cache, norm *domain.NameNormalizer, metrics *observability.Metrics, logger *slog.Logger) *Retriever {
	return &Retriever{
		root:         cfg.DataRoot,
		boundaryFile: cfg.BoundaryFile,
		startYear:    cfg.StationStartYear,
		endYear:      cfg.StationEndYear,
		defaultScale: cfg.MODISScaleFactor,
		catalog:      catalog,
		loader:       NewLoader(cfg.DataRoot, catalog, cfg.LoadWorkers, metrics, logger),
		boundaries:   boundaries,
		norm:         norm,
		metrics:      metrics,
		logger:       logger,
	}
}

// observe records the duration and outcome of one retrieval.
func (r *Retriever) observe(src domain.Source, start time.Time, err error) {
	r.metrics.RetrievalDuration.WithLabelValues(string(src)).Observe(time.Since(start).Seconds())
	if err != nil {
		r.metrics.RetrievalErrors.WithLabelValues(string(src)).Inc()
	}
}

// Boundaries returns the current boundary collection.
func (r *Retriever) Boundaries() (*boundary.Collection, error) {
	return r.boundaries.Get(r.boundaryFile)
}

// Boundary returns the polygon of a province.
func (r *Retriever) Boundary(province string) (domain.Boundary, error) {
	col, err := r.Boundaries()
	if err != nil {
		return domain.Boundary{}, err
	}
	return col.Lookup(province)
}

// Clip restricts a raster to a province.
func (r *Retriever) Clip(rast *domain.Raster, province string) (*domain.Raster, error) {
	b, err := r.Boundary(province)
	if err != nil {
		return nil, err
	}
	return spatial.Clip(rast, b)
}

// Raster retrieves a raster source for a province. subSource is the MODIS
// platform (terra, aqua) and is ignored by the common sources.
func (r *Retriever) Raster(ctx context.Context, src domain.Source, province, subSource string) (*domain.Raster, error) {
	switch src {
	case domain.SourceMODIS:
		return r.MODIS(ctx, province, subSource)
	case domain.SourceDMSP:
		return r.DMSP(ctx, province)
	case domain.SourceCORINE:
		return r.CORINE(ctx, province)
	case domain.SourceGHS:
		return r.GHS(ctx, province)
	default:
		return nil, fmt.Errorf("%w: %q is not a raster source", domain.ErrUnknownSource, src)
	}
}

// DMSP retrieves the annual night-light composites of a province.
func (r *Retriever) DMSP(ctx context.Context, province string) (*domain.Raster, error) {
	return r.common(ctx, domain.SourceDMSP, province)
}

// CORINE retrieves the land-cover maps of a province with nodata as NaN.
func (r *Retriever) CORINE(ctx context.Context, province string) (*domain.Raster, error) {
	return r.common(ctx, domain.SourceCORINE, province)
}

// GHS retrieves the settlement population grids of a province with nodata
// as NaN.
func (r *Retriever) GHS(ctx context.Context, province string) (*domain.Raster, error) {
	return r.common(ctx, domain.SourceGHS, province)
}

// common loads a nationwide source and clips it to the province.
func (r *Retriever) common(ctx context.Context, src domain.Source, province string) (out *domain.Raster, err error) {
	defer func(start time.Time) { r.observe(src, start, err) }(time.Now())

	province = domain.NormalizeName(province)
	spec, err := r.catalog.Spec(src)
	if err != nil {
		return nil, err
	}
	if _, err := r.Boundary(province); err != nil {
		return nil, err
	}
	raw, err := r.loader.LoadSeries(ctx, src, domain.CommonArea, "")
	if err != nil {
		return nil, fmt.Errorf("retrieve %s for %s: %w", src, province, err)
	}
	out, err = r.Clip(raw, province)
	if err != nil {
		return nil, fmt.Errorf("retrieve %s for %s: %w", src, province, err)
	}
	if spec.MaskAfterClip {
		out.MaskNoData()
	}
	r.logger.Info("raster retrieved", "source", src, "province", province,
		"slices", len(out.Slices), "width", out.Grid.Width, "height", out.Grid.Height)
	return out, nil
}

// MODIS retrieves daily land-surface temperature for a province from the
// tiles the catalog lists for it. Each tile series is scaled and clipped on
// its own; two-tile provinces are then joined at the configured seam.
func (r *Retriever) MODIS(ctx context.Context, province, sourceType string) (out *domain.Raster, err error) {
	defer func(start time.Time) { r.observe(domain.SourceMODIS, start, err) }(time.Now())

	province = domain.NormalizeName(province)
	tiles, err := r.catalog.TilesFor(province)
	if err != nil {
		return nil, err
	}

	clipped := make([]*domain.Raster, len(tiles))
	for i, tile := range tiles {
		if clipped[i], err = r.modisTile(ctx, province, sourceType, tile); err != nil {
			return nil, fmt.Errorf("retrieve modis %s tile %s: %w", province, tile, err)
		}
	}

	switch len(clipped) {
	case 1:
		out = clipped[0]
	case 2:
		seam, err := r.catalog.SeamFor(province)
		if err != nil {
			return nil, err
		}
		if out, err = spatial.MergeSeam(clipped[0], clipped[1], seam); err != nil {
			return nil, fmt.Errorf("retrieve modis %s: %w", province, err)
		}
	default:
		return nil, fmt.Errorf("retrieve modis %s: %d tiles cannot be merged", province, len(clipped))
	}
	r.logger.Info("raster retrieved", "source", domain.SourceMODIS, "province", province,
		"tiles", len(tiles), "slices", len(out.Slices), "width", out.Grid.Width, "height", out.Grid.Height)
	return out, nil
}

func (r *Retriever) modisTile(ctx context.Context, province, sourceType, tile string) (*domain.Raster, error) {
	files, err := r.loader.Files(domain.SourceMODIS, province, sourceType, "*"+tile+"*")
	if err != nil {
		return nil, err
	}
	raw, err := r.loader.LoadFiles(ctx, domain.SourceMODIS, sourceType, files)
	if err != nil {
		return nil, err
	}
	factor := raw.Attrs.ScaleFactor
	if factor == 0 {
		factor = r.defaultScale
		r.logger.Debug("modis scale factor not in metadata, using default", "tile", tile, "scale_factor", factor)
	}
	if factor == 0 {
		return nil, domain.ErrMissingScaleFactor
	}
	raw.Scale(factor)
	raw.Attrs.VarName = r.catalog.MODISVariable
	return r.Clip(raw, province)
}

// MODISMerged opens the pre-merged MODIS product of a province and assigns
// the MODIS sinusoidal CRS, which the file does not record.
func (r *Retriever) MODISMerged(ctx context.Context, province, sourceType string) (out *domain.Raster, err error) {
	defer func(start time.Time) { r.observe(domain.SourceMODIS, start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	province = domain.NormalizeName(province)
	spec, err := r.catalog.Spec(domain.SourceMODIS)
	if err != nil {
		return nil, err
	}
	path := filepath.Join(r.root, province, string(domain.SourceMODIS), sourceType, r.catalog.MergedMODISFile)
	out, err = netcdf.Read(path, r.catalog.MODISVariable)
	if err != nil {
		return nil, fmt.Errorf("retrieve merged modis for %s: %w", province, err)
	}
	out.Grid.CRS = spec.CRS
	out.Attrs.Source = domain.SourceMODIS
	out.Attrs.SubSource = sourceType
	out.Attrs.Provinces = []string{province}
	out.Attrs.RetrievedAt = domain.Now()
	return out, nil
}

// AlignMODIS resamples the merged MODIS product of a province onto ref's
// grid. The second result is empty when the grids do not overlap.
func (r *Retriever) AlignMODIS(ctx context.Context, ref *domain.Raster, province, sourceType string) (*domain.Raster, *domain.Raster, error) {
	lst, err := r.MODISMerged(ctx, province, sourceType)
	if err != nil {
		return nil, nil, err
	}
	refOut, lstOut, err := spatial.ReprojectMatch(ref, lst, ref.Grid.CRS, lst.Grid.CRS, spatial.ResamplingFor(domain.SourceMODIS))
	if err != nil {
		return nil, nil, fmt.Errorf("align modis to %s grid: %w", ref.Attrs.Source, err)
	}
	if lstOut.Empty() {
		r.logger.Warn("modis does not overlap reference grid", "province", province, "reference", ref.Attrs.Source)
	}
	return refOut, lstOut, nil
}

// AlignMODISToLandUse retrieves the GHS grid and the merged MODIS product of
// a province and reprojects MODIS onto the GHS grid.
func (r *Retriever) AlignMODISToLandUse(ctx context.Context, province, sourceType string) (*domain.Raster, *domain.Raster, error) {
	lu, err := r.GHS(ctx, province)
	if err != nil {
		return nil, nil, err
	}
	return r.AlignMODIS(ctx, lu, province, sourceType)
}

// LoadTable retrieves a tabular source. Population accepts any number of
// provinces (none keeps every row); station data needs exactly one.
func (r *Retriever) LoadTable(ctx context.Context, src domain.Source, provinces ...string) (*domain.Table, error) {
	switch src {
	case domain.SourcePopulation:
		return r.Population(ctx, provinces...)
	case domain.SourceStation:
		if len(provinces) != 1 {
			return nil, fmt.Errorf("station data is per province, got %d provinces", len(provinces))
		}
		return r.Station(ctx, provinces[0])
	default:
		return nil, fmt.Errorf("%w: %q is not a tabular source", domain.ErrUnknownSource, src)
	}
}

// Population reads the population workbook and keeps the rows of the
// given provinces.
func (r *Retriever) Population(ctx context.Context, provinces ...string) (out *domain.Table, err error) {
	defer func(start time.Time) { r.observe(domain.SourcePopulation, start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := filepath.Join(r.root, domain.CommonArea, string(domain.SourcePopulation))
	files, err := filepath.Glob(filepath.Join(dir, "*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("list population files: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("population workbook in %s: %w", dir, domain.ErrNoFiles)
	}
	slices.Sort(files)

	t, err := excel.ReadPopulation(files[0], r.norm)
	if err != nil {
		return nil, err
	}
	if len(provinces) == 0 {
		return t, nil
	}
	names := make([]string, len(provinces))
	for i, p := range provinces {
		names[i] = domain.NormalizeName(p)
	}
	out = t.FilterLabel(domain.ProvinceColumn, names...)
	out.Attrs.Provinces = names
	return out, nil
}

// ProvinceNames lists the normalized provinces of the population workbook.
func (r *Retriever) ProvinceNames(ctx context.Context) ([]string, error) {
	t, err := r.Population(ctx)
	if err != nil {
		return nil, err
	}
	return t.UniqueLabels(domain.ProvinceColumn), nil
}

// Station reads the temperature observations of a province within the
// configured year range.
func (r *Retriever) Station(ctx context.Context, province string) (out *domain.Table, err error) {
	defer func(start time.Time) { r.observe(domain.SourceStation, start, err) }(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	province = domain.NormalizeName(province)
	path, err := r.stationPath(province, stationFile)
	if err != nil {
		return nil, err
	}
	out, err = excel.ReadStation(path, r.startYear, r.endYear)
	if err != nil {
		return nil, err
	}
	out.Attrs.VarName = stationVariable
	out.Attrs.Units = stationUnit
	out.Attrs.Provinces = []string{province}
	out.Attrs.RetrievedAt = domain.Now()
	return out, nil
}

// StationMetadata reads the station locations of a province. Stations with
// coordinates get a Province label naming the boundary that contains them,
// empty when none does.
func (r *Retriever) StationMetadata(ctx context.Context, province string) (*domain.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	province = domain.NormalizeName(province)
	path, err := r.stationPath(province, stationLocations)
	if err != nil {
		return nil, err
	}
	t, err := excel.ReadStationLocations(path)
	if err != nil {
		return nil, err
	}
	t.Attrs.Provinces = []string{province}

	lon, lat, ok := excel.LonLatColumns(t)
	if !ok {
		r.logger.Warn("station locations have no coordinate columns", "province", province, "path", path)
		return t, nil
	}
	col, err := r.Boundaries()
	if err != nil {
		return nil, err
	}
	if !slices.Contains(t.LabelColumns, domain.ProvinceColumn) {
		t.LabelColumns = append(t.LabelColumns, domain.ProvinceColumn)
	}
	for i := range t.Records {
		rec := &t.Records[i]
		name, found, err := col.Locate(rec.Values[lon], rec.Values[lat], spatial.LongLat)
		if err != nil {
			return nil, fmt.Errorf("locate station %d: %w", i, err)
		}
		if !found {
			name = ""
		}
		rec.Labels[domain.ProvinceColumn] = name
	}
	return t, nil
}

func (r *Retriever) stationPath(province, name string) (string, error) {
	path := filepath.Join(r.root, province, string(domain.SourceStation), name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%s for %s: %w", name, province, domain.ErrNoFiles)
		}
		return "", fmt.Errorf("station data for %s: %w", province, err)
	}
	return path, nil
}
