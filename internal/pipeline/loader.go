package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/couchcryptid/geodata-etl/internal/adapter/geotiff"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/observability"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
)

// rasterExtensions are the file types the loader opens. Sidecars (.prj,
// .tfw, .aux.xml) living next to the rasters are skipped.
var rasterExtensions = []string{".tif", ".tiff"}

// Loader reads time series of raster files from the storage root. Files are
// read on a bounded pool of workers and stacked in time order.
type Loader struct {
	root    string
	catalog *Catalog
	workers int
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLoader creates a Loader rooted at root.
func NewLoader(root string, catalog *Catalog, workers int, metrics *observability.Metrics, logger *slog.Logger) *Loader {
	if workers < 1 {
		workers = 1
	}
	return &Loader{
		root:    root,
		catalog: catalog,
		workers: workers,
		metrics: metrics,
		logger:  logger,
	}
}

// Files lists the rasters under {root}/{area}/{source}/{subSource}
// matching pattern, sorted by name. No match is ErrNoFiles.
func (l *Loader) Files(src domain.Source, area, subSource, pattern string) ([]string, error) {
	dir := filepath.Join(l.root, area, string(src))
	if subSource != "" {
		dir = filepath.Join(dir, subSource)
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, fmt.Errorf("list %s files: %w", src, err)
	}
	files := matches[:0]
	for _, m := range matches {
		if slices.Contains(rasterExtensions, strings.ToLower(filepath.Ext(m))) {
			files = append(files, m)
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s in %s: %w", pattern, dir, domain.ErrNoFiles)
	}
	slices.Sort(files)
	return files, nil
}

// LoadSeries reads every raster of a source for one area (a province or
// domain.CommonArea) into a single time-stacked raster.
func (l *Loader) LoadSeries(ctx context.Context, src domain.Source, area, subSource string) (*domain.Raster, error) {
	files, err := l.Files(src, area, subSource, "*")
	if err != nil {
		return nil, err
	}
	return l.LoadFiles(ctx, src, subSource, files)
}

// LoadFiles reads files in parallel and concatenates them on time. The
// reduction waits for every read, so the result does not depend on
// completion order.
func (l *Loader) LoadFiles(ctx context.Context, src domain.Source, subSource string, files []string) (*domain.Raster, error) {
	spec, err := l.catalog.Spec(src)
	if err != nil {
		return nil, err
	}

	parts := make([]*domain.Raster, len(files))
	errs := make([]error, len(files))
	sem := make(chan struct{}, l.workers)
	var wg sync.WaitGroup

	for i, path := range files {
		select {
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, path string) {
			defer wg.Done()
			defer func() { <-sem }()
			if ctx.Err() != nil {
				errs[i] = ctx.Err()
				return
			}
			parts[i], errs[i] = l.readTile(src, subSource, spec, path)
		}(i, path)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			l.metrics.TileErrors.WithLabelValues(string(src)).Inc()
			l.logger.Error("tile read failed", "source", src, "path", files[i], "error", err)
			return nil, err
		}
	}
	l.metrics.TilesLoaded.WithLabelValues(string(src)).Add(float64(len(parts)))

	out, err := spatial.Concat(parts...)
	if err != nil {
		return nil, fmt.Errorf("stack %s: %w", src, err)
	}
	l.logger.Debug("series loaded", "source", src, "files", len(files),
		"width", out.Grid.Width, "height", out.Grid.Height)
	return out, nil
}

// readTile reads one file as a single-slice raster tagged with the time
// parsed from its name.
func (l *Loader) readTile(src domain.Source, subSource string, spec SourceSpec, path string) (*domain.Raster, error) {
	tv, err := domain.ExtractTime(src, path)
	if err != nil {
		return nil, err
	}

	f, err := geotiff.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	grid := f.Grid()
	if grid.CRS == "" {
		grid.CRS = spec.CRS
	}
	win, err := spec.Window.resolve(grid)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	im, err := f.Read(win)
	if err != nil {
		return nil, err
	}
	if im.Grid.CRS == "" {
		im.Grid.CRS = spec.CRS
	}

	r := &domain.Raster{
		Grid:   im.Grid,
		XDim:   domain.DimX,
		YDim:   domain.DimY,
		Slices: []domain.Slice{{Time: tv, Data: im.Data}},
		NoData: im.NoData,
		Attrs: domain.Attrs{
			Source:      src,
			SubSource:   subSource,
			RetrievedAt: domain.Now(),
		},
	}
	if factor, ok := im.ScaleFactor(); ok {
		r.Attrs.ScaleFactor = factor
	}
	if !spec.MaskAfterClip {
		r.MaskNoData()
	}
	return r, nil
}
