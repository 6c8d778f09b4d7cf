package pipeline_test

import (
	"io"
	"log/slog"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/adapter/boundary"
	"github.com/couchcryptid/geodata-etl/internal/config"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/mockdata"
	"github.com/couchcryptid/geodata-etl/internal/observability"
	"github.com/couchcryptid/geodata-etl/internal/pipeline"
	"github.com/stretchr/testify/require"
)

// archive is a generated data tree with a retriever wired over it.
type archive struct {
	layout    *mockdata.Layout
	cfg       *config.Config
	catalog   *pipeline.Catalog
	metrics   *observability.Metrics
	retriever *pipeline.Retriever
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newArchive(t *testing.T) *archive {
	t.Helper()
	layout, err := mockdata.Write(t.TempDir())
	require.NoError(t, err)

	catalog, err := pipeline.LoadCatalog(layout.CatalogFile)
	require.NoError(t, err)

	cfg := &config.Config{
		DataRoot:          layout.Root,
		BoundaryFile:      layout.BoundaryFile,
		BoundaryNameField: "IL",
		BoundaryCacheSize: 2,
		CatalogFile:       layout.CatalogFile,
		LoadWorkers:       3,
		StationStartYear:  2011,
		StationEndYear:    2018,
		MODISScaleFactor:  0.02,
		BatchSize:         50,
	}
	metrics := observability.NewMetricsForTesting()
	norm := domain.NewNameNormalizer(nil)
	cache := boundary.NewCache(cfg.BoundaryNameField, norm, cfg.BoundaryCacheSize, metrics)

	return &archive{
		layout:    layout,
		cfg:       cfg,
		catalog:   catalog,
		metrics:   metrics,
		retriever: pipeline.NewRetriever(cfg, catalog, cache, norm, metrics, discardLogger()),
	}
}
