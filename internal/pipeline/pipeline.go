// Package pipeline retrieves provincial products, flattens them into summary
// records and loads the records into the configured sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/observability"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/google/uuid"
)

// BatchLoader writes multiple summary records to a destination.
type BatchLoader interface {
	LoadBatch(ctx context.Context, records []domain.SummaryRecord) error
}

// Sink is a named BatchLoader; the name labels its metrics.
type Sink struct {
	Name   string
	Loader BatchLoader
}

// AllSources lists every source in the order a run processes them.
var AllSources = []domain.Source{
	domain.SourcePopulation,
	domain.SourceStation,
	domain.SourceDMSP,
	domain.SourceCORINE,
	domain.SourceGHS,
	domain.SourceMODIS,
}

// Options selects what a run retrieves.
type Options struct {
	// Provinces to process; empty means every province in the population
	// workbook.
	Provinces []string
	Sources   []domain.Source
	// MODISType is the MODIS platform directory (terra or aqua).
	MODISType string
	// HeatIsland aligns the merged MODIS product to CORINE land use and
	// reports urban and rural temperatures.
	HeatIsland bool
	// PlotDir receives one PNG per annual metric when set.
	PlotDir   string
	BatchSize int
}

// Status describes the latest run.
type Status struct {
	RunID      string     `json:"run_id,omitempty"`
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Records    int        `json:"records"`
	Failures   []string   `json:"failures,omitempty"`
}

// Run states.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateDone     = "done"
	StateFailed   = "failed"
	StateCanceled = "canceled"
)

// Pipeline orchestrates the retrieve-summarize-load run.
type Pipeline struct {
	retriever *Retriever
	classes   *domain.ClassIndexTable
	sinks     []Sink
	opts      Options
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool

	mu     sync.Mutex
	status Status
}

// New creates a Pipeline over a retriever and any number of sinks.
func New(r *Retriever, classes *domain.ClassIndexTable, sinks []Sink, opts Options, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if len(opts.Sources) == 0 {
		opts.Sources = AllSources
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 50
	}
	return &Pipeline{
		retriever: r,
		classes:   classes,
		sinks:     sinks,
		opts:      opts,
		logger:    logger,
		metrics:   metrics,
		status:    Status{State: StateIdle},
	}
}

// CheckReadiness returns nil while the latest sink write succeeded, or an
// error when nothing has been loaded yet or a sink has since failed.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("pipeline has no successfully loaded summaries")
	}
	return nil
}

// Status returns a snapshot of the latest run.
func (p *Pipeline) Status() any {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.status
	s.Failures = slices.Clone(p.status.Failures)
	return s
}

// Run retrieves every selected source for every selected province. A
// failed retrieval is logged and the run moves on; the returned error joins
// every failure. Cancelling ctx stops the run between retrievals.
func (p *Pipeline) Run(ctx context.Context) error {
	runID := uuid.NewString()
	p.begin(runID)
	p.metrics.PipelineRunning.Set(1)
	defer p.metrics.PipelineRunning.Set(0)
	start := time.Now()
	defer func() { p.metrics.RunDuration.Observe(time.Since(start).Seconds()) }()

	provinces, err := p.provinces(ctx)
	if err != nil {
		p.finish(ctx, err)
		return err
	}
	p.logger.Info("pipeline started", "run_id", runID, "provinces", provinces,
		"sources", p.opts.Sources, "batch_size", p.opts.BatchSize)

	summarizer := NewSummarizer(runID, p.classes)
	var (
		errs []error
		all  []domain.SummaryRecord
	)
	for _, province := range provinces {
		for _, src := range p.opts.Sources {
			if ctx.Err() != nil {
				p.logger.Info("pipeline stopping", "reason", ctx.Err())
				p.finish(ctx, ctx.Err())
				return ctx.Err()
			}

			records, err := p.summarize(ctx, summarizer, province, src)
			if err != nil {
				if ctx.Err() != nil {
					continue
				}
				p.logger.Error("retrieval failed", "province", province, "source", src, "error", err)
				err = fmt.Errorf("%s/%s: %w", province, src, err)
				errs = append(errs, err)
				p.fail(err)
				continue
			}
			if err := p.load(ctx, records); err != nil {
				errs = append(errs, err)
				p.fail(err)
				continue
			}
			all = append(all, records...)
			p.logger.Info("province summarized", "province", province, "source", src, "records", len(records))
		}
	}

	if p.opts.PlotDir != "" && len(all) > 0 {
		n, err := WritePlots(p.opts.PlotDir, all)
		if err != nil {
			p.logger.Error("plot output failed", "dir", p.opts.PlotDir, "error", err)
			errs = append(errs, err)
		} else {
			p.logger.Info("plots written", "dir", p.opts.PlotDir, "files", n)
		}
	}

	err = errors.Join(errs...)
	p.finish(ctx, err)
	p.logger.Info("pipeline finished", "run_id", runID, "records", len(all), "failures", len(errs))
	return err
}

func (p *Pipeline) provinces(ctx context.Context) ([]string, error) {
	if len(p.opts.Provinces) == 0 {
		names, err := p.retriever.ProvinceNames(ctx)
		if err != nil {
			return nil, fmt.Errorf("list provinces: %w", err)
		}
		return names, nil
	}
	out := make([]string, 0, len(p.opts.Provinces))
	for _, name := range p.opts.Provinces {
		if n := domain.NormalizeName(name); !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

// summarize retrieves one source for one province and flattens it.
func (p *Pipeline) summarize(ctx context.Context, s *Summarizer, province string, src domain.Source) ([]domain.SummaryRecord, error) {
	r := p.retriever
	switch src {
	case domain.SourcePopulation:
		t, err := r.Population(ctx, province)
		if err != nil {
			return nil, err
		}
		b, err := r.Boundary(province)
		if err != nil {
			return nil, err
		}
		area, err := spatial.AreaKm2(b)
		if err != nil {
			return nil, err
		}
		return s.Population(province, t, area)

	case domain.SourceStation:
		t, err := r.Station(ctx, province)
		if err != nil {
			return nil, err
		}
		return s.Station(province, t)

	case domain.SourceDMSP:
		rast, err := r.DMSP(ctx, province)
		if err != nil {
			return nil, err
		}
		return s.YearlyRasterMean(province, rast, MetricMeanRadiance, "DN"), nil

	case domain.SourceCORINE:
		rast, err := r.CORINE(ctx, province)
		if err != nil {
			return nil, err
		}
		return s.LandUse(province, rast)

	case domain.SourceGHS:
		rast, err := r.GHS(ctx, province)
		if err != nil {
			return nil, err
		}
		return s.RasterSum(province, rast, MetricSettlementPop, "persons"), nil

	case domain.SourceMODIS:
		rast, err := r.MODIS(ctx, province, p.opts.MODISType)
		if err != nil {
			return nil, err
		}
		records := s.YearlyRasterMean(province, rast, MetricMeanLST, "K")
		if !p.opts.HeatIsland {
			return records, nil
		}
		heat, err := p.heatIsland(ctx, s, province)
		if err != nil {
			return nil, fmt.Errorf("heat island: %w", err)
		}
		return append(records, heat...), nil

	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownSource, src)
	}
}

// heatIsland classifies the latest CORINE map into urban and rural cells,
// aligns the merged MODIS product to it and compares the two.
func (p *Pipeline) heatIsland(ctx context.Context, s *Summarizer, province string) ([]domain.SummaryRecord, error) {
	lu, err := p.retriever.CORINE(ctx, province)
	if err != nil {
		return nil, err
	}
	latest := lu.Clone()
	latest.Slices = latest.Slices[len(latest.Slices)-1:]
	classified, err := p.classes.ClassifyClasses(latest,
		[]domain.LandUseClass{domain.ClassUrban},
		[]domain.LandUseClass{domain.ClassAgriculture, domain.ClassForest, domain.ClassWetlands})
	if err != nil {
		return nil, err
	}
	ref, lst, err := p.retriever.AlignMODIS(ctx, classified, province, p.opts.MODISType)
	if err != nil {
		return nil, err
	}
	return s.HeatIsland(province, ref, lst)
}

// load writes records to every sink in BatchSize chunks.
func (p *Pipeline) load(ctx context.Context, records []domain.SummaryRecord) error {
	if len(records) == 0 {
		return nil
	}
	var errs []error
	for _, sink := range p.sinks {
		for batch := range slices.Chunk(records, p.opts.BatchSize) {
			if err := sink.Loader.LoadBatch(ctx, batch); err != nil {
				p.metrics.SinkErrors.WithLabelValues(sink.Name).Inc()
				p.logger.Error("load batch failed", "sink", sink.Name, "error", err, "batch_size", len(batch))
				errs = append(errs, fmt.Errorf("sink %s: %w", sink.Name, err))
				break
			}
			p.metrics.SummariesWritten.WithLabelValues(sink.Name).Add(float64(len(batch)))
		}
	}
	if err := errors.Join(errs...); err != nil {
		p.ready.Store(false)
		return err
	}
	p.mu.Lock()
	p.status.Records += len(records)
	p.mu.Unlock()
	p.ready.Store(true)
	return nil
}

func (p *Pipeline) begin(runID string) {
	now := domain.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status = Status{RunID: runID, State: StateRunning, StartedAt: &now}
}

func (p *Pipeline) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.Failures = append(p.status.Failures, err.Error())
}

func (p *Pipeline) finish(ctx context.Context, err error) {
	now := domain.Now()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status.FinishedAt = &now
	switch {
	case ctx.Err() != nil:
		p.status.State = StateCanceled
	case err != nil:
		p.status.State = StateFailed
	default:
		p.status.State = StateDone
	}
}
