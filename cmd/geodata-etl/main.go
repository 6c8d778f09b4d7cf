// Command geodata-etl retrieves provincial raster and tabular products,
// summarizes them and writes the summaries to the configured sinks.
//
// Usage:
//
//	geodata-etl -provinces istanbul,ankara -sources modis,corine -heat-island
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/couchcryptid/geodata-etl/internal/adapter/boundary"
	httpadapter "github.com/couchcryptid/geodata-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/geodata-etl/internal/adapter/kafka"
	"github.com/couchcryptid/geodata-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/geodata-etl/internal/config"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/observability"
	"github.com/couchcryptid/geodata-etl/internal/pipeline"
	"github.com/joho/godotenv"
)

func main() {
	provinces := flag.String("provinces", "", "comma-separated provinces (default: every province in the population workbook)")
	sources := flag.String("sources", "", "comma-separated sources (default: all)")
	modisType := flag.String("modis-type", "terra", "MODIS platform directory (terra or aqua)")
	heatIsland := flag.Bool("heat-island", false, "compare MODIS temperature over urban and rural CORINE cells")
	plotDir := flag.String("plot-dir", "", "directory for annual metric charts")
	serve := flag.Bool("serve", false, "keep serving /status and /metrics after the run until interrupted")
	flag.Parse()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	srcs, err := parseSources(*sources)
	if err != nil {
		logger.Error("invalid -sources", "error", err)
		os.Exit(2)
	}

	catalog, err := pipeline.LoadCatalog(cfg.CatalogFile)
	if err != nil {
		logger.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	norm := domain.NewNameNormalizer(observability.NameRepairReporter(logger, metrics))
	boundaries := boundary.NewCache(cfg.BoundaryNameField, norm, cfg.BoundaryCacheSize, metrics)
	retriever := pipeline.NewRetriever(cfg, catalog, boundaries, norm, metrics, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sinks []pipeline.Sink
	var store *sqlite.Store
	if cfg.SQLitePath != "" {
		if store, err = sqlite.Open(ctx, cfg.SQLitePath, logger); err != nil {
			logger.Error("failed to open sqlite sink", "error", err)
			os.Exit(1)
		}
		sinks = append(sinks, pipeline.Sink{Name: "sqlite", Loader: store})
		logger.Info("sqlite sink enabled", "path", cfg.SQLitePath)
	}
	var writer *kafkaadapter.Writer
	if cfg.KafkaEnabled() {
		writer = kafkaadapter.NewWriter(cfg, logger)
		sinks = append(sinks, pipeline.Sink{Name: "kafka", Loader: writer})
		logger.Info("kafka sink enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaSinkTopic)
	}
	if len(sinks) == 0 {
		logger.Warn("no summary sink configured; set SQLITE_PATH or KAFKA_BROKERS")
	}

	p := pipeline.New(retriever, domain.DefaultClassIndex(), sinks, pipeline.Options{
		Provinces:  splitList(*provinces),
		Sources:    srcs,
		MODISType:  *modisType,
		HeatIsland: *heatIsland,
		PlotDir:    *plotDir,
		BatchSize:  cfg.BatchSize,
	}, logger, metrics)

	srv := startServer(cfg.HTTPAddr, p, logger)

	// Run the pipeline once.
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	var runErr error
	select {
	case runErr = <-done:
		if *serve && runErr == nil {
			logger.Info("run complete, serving until interrupted")
			<-ctx.Done()
		}
	case <-ctx.Done():
		runErr = <-done
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("pipeline error", "error", runErr)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	stopServer(shutdownCtx, srv, logger)
	if writer != nil {
		if err := writer.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Error("sqlite close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	if runErr != nil {
		os.Exit(1)
	}
}

// startServer serves health, status and metrics on addr in the background.
// An empty addr disables the server and returns nil.
func startServer(addr string, status httpadapter.StatusReporter, logger *slog.Logger) *httpadapter.Server {
	if addr == "" {
		logger.Info("http server disabled")
		return nil
	}
	srv := httpadapter.NewServer(addr, status, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	return srv
}

func stopServer(ctx context.Context, srv *httpadapter.Server, logger *slog.Logger) {
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseSources(s string) ([]domain.Source, error) {
	names := splitList(s)
	out := make([]domain.Source, 0, len(names))
	for _, name := range names {
		src, err := domain.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("parse sources: %w", err)
		}
		out = append(out, src)
	}
	return out, nil
}
