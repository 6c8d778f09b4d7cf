package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/mockdata"
	"github.com/couchcryptid/geodata-etl/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockLoader struct {
	mu      sync.Mutex
	batches [][]domain.SummaryRecord
	err     error
}

func (m *mockLoader) LoadBatch(_ context.Context, records []domain.SummaryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]domain.SummaryRecord(nil), records...))
	return nil
}

func (m *mockLoader) setErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *mockLoader) records() []domain.SummaryRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.SummaryRecord
	for _, b := range m.batches {
		out = append(out, b...)
	}
	return out
}

func newPipeline(a *archive, opts pipeline.Options, sinks ...pipeline.Sink) *pipeline.Pipeline {
	return pipeline.New(a.retriever, domain.DefaultClassIndex(), sinks, opts, discardLogger(), a.metrics)
}

func status(t *testing.T, p *pipeline.Pipeline) pipeline.Status {
	t.Helper()
	s, ok := p.Status().(pipeline.Status)
	require.True(t, ok)
	return s
}

// --- tests ---

func TestPipeline_Run_AllSources(t *testing.T) {
	useFakeClock(t)
	a := newArchive(t)
	sink := &mockLoader{}
	plotDir := filepath.Join(t.TempDir(), "plots")
	p := newPipeline(a, pipeline.Options{
		Provinces:  []string{"İSTANBUL"},
		MODISType:  mockdata.MODISType,
		HeatIsland: true,
		PlotDir:    plotDir,
		BatchSize:  5,
	}, pipeline.Sink{Name: "mock", Loader: sink})

	require.Error(t, p.CheckReadiness(context.Background()))
	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	records := sink.records()
	for _, b := range sink.batches {
		assert.LessOrEqual(t, len(b), 5)
	}

	assert.InDelta(t, 13624240.0, find(t, records, "istanbul", pipeline.MetricPopulation, "2011"), 1e-6)
	assert.InDelta(t, 15.0, find(t, records, "istanbul", "yearly_mean_T", "2011"), 1e-9)
	assert.InDelta(t, 10.0, find(t, records, "istanbul", pipeline.MetricMeanRadiance, "2011"), 1e-4)
	assert.InDelta(t, 20.0, find(t, records, "istanbul", pipeline.MetricMeanRadiance, "2012"), 1e-4)
	assert.InDelta(t, 800.0/15, find(t, records, "istanbul", pipeline.MetricUrbanShare, "2012"), 1e-9)
	assert.InDelta(t, 80.0, find(t, records, "istanbul", pipeline.MetricUrbanShare, "2018"), 1e-9)
	assert.InDelta(t, 1600.0, find(t, records, "istanbul", pipeline.MetricSettlementPop, "2015"), 1e-3)
	assert.InDelta(t, 301.0, find(t, records, "istanbul", pipeline.MetricMeanLST, "2011"), 1e-3)
	assert.InDelta(t, 304.0, find(t, records, "istanbul", pipeline.MetricMeanLST, "2012"), 1e-3)
	assert.InDelta(t, 300.0, find(t, records, "istanbul", pipeline.MetricMeanLSTUrban, "2011"), 1e-3)
	assert.InDelta(t, 0.0, find(t, records, "istanbul", pipeline.MetricHeatIsland, "2012"), 1e-3)

	ids := make(map[string]bool, len(records))
	for _, r := range records {
		assert.False(t, ids[r.ID], "duplicate record id %s", r.ID)
		ids[r.ID] = true
		assert.Equal(t, summaryNow, r.ProcessedAt)
	}

	s := status(t, p)
	assert.Equal(t, pipeline.StateDone, s.State)
	assert.Equal(t, len(records), s.Records)
	assert.Empty(t, s.Failures)
	assert.NotEmpty(t, s.RunID)
	require.NotNil(t, s.FinishedAt)
	assert.Equal(t, summaryNow, *s.FinishedAt)

	assert.FileExists(t, filepath.Join(plotDir, "dmsp_mean_radiance.png"))
	assert.FileExists(t, filepath.Join(plotDir, "population_population.png"))
	assert.InDelta(t, float64(len(records)), testutil.ToFloat64(a.metrics.SummariesWritten.WithLabelValues("mock")), 1e-9)
	assert.InDelta(t, 0.0, testutil.ToFloat64(a.metrics.PipelineRunning), 1e-9)
}

func TestPipeline_Run_ContinuesPastFailures(t *testing.T) {
	a := newArchive(t)
	sink := &mockLoader{}
	p := newPipeline(a, pipeline.Options{
		Provinces: []string{"ankara"},
		Sources:   []domain.Source{domain.SourceStation, domain.SourceDMSP, domain.SourceMODIS},
		MODISType: mockdata.MODISType,
	}, pipeline.Sink{Name: "mock", Loader: sink})

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNoFiles)
	assert.Contains(t, err.Error(), "ankara/station")

	records := sink.records()
	assert.InDelta(t, 10.0, find(t, records, "ankara", pipeline.MetricMeanRadiance, "2011"), 1e-4)
	assert.InDelta(t, 305.0, find(t, records, "ankara", pipeline.MetricMeanLST, "2011"), 1e-3)

	s := status(t, p)
	assert.Equal(t, pipeline.StateFailed, s.State)
	require.Len(t, s.Failures, 1)
	assert.Contains(t, s.Failures[0], "station")
	assert.NoError(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.metrics.RetrievalErrors.WithLabelValues("station")), 1e-9)
}

func TestPipeline_Run_HeatIslandNeedsMergedProduct(t *testing.T) {
	a := newArchive(t)
	p := newPipeline(a, pipeline.Options{
		Provinces:  []string{"ankara"},
		Sources:    []domain.Source{domain.SourceMODIS},
		MODISType:  mockdata.MODISType,
		HeatIsland: true,
	}, pipeline.Sink{Name: "mock", Loader: &mockLoader{}})

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "heat island")
}

func TestPipeline_Run_SinkError(t *testing.T) {
	a := newArchive(t)
	failing := &mockLoader{err: errors.New("disk full")}
	healthy := &mockLoader{}
	p := newPipeline(a, pipeline.Options{
		Provinces: []string{"istanbul"},
		Sources:   []domain.Source{domain.SourceGHS},
	}, pipeline.Sink{Name: "bad", Loader: failing}, pipeline.Sink{Name: "good", Loader: healthy})

	err := p.Run(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sink bad")
	assert.Len(t, healthy.records(), 1)
	assert.Error(t, p.CheckReadiness(context.Background()))
	assert.InDelta(t, 1.0, testutil.ToFloat64(a.metrics.SinkErrors.WithLabelValues("bad")), 1e-9)
	assert.Equal(t, 0, status(t, p).Records)
}

func TestPipeline_Run_SinkFailureClearsReadiness(t *testing.T) {
	a := newArchive(t)
	sink := &mockLoader{}
	p := newPipeline(a, pipeline.Options{
		Provinces: []string{"istanbul"},
		Sources:   []domain.Source{domain.SourceGHS},
	}, pipeline.Sink{Name: "mock", Loader: sink})

	require.NoError(t, p.Run(context.Background()))
	require.NoError(t, p.CheckReadiness(context.Background()))

	sink.setErr(errors.New("connection refused"))
	require.Error(t, p.Run(context.Background()))
	assert.Error(t, p.CheckReadiness(context.Background()))

	sink.setErr(nil)
	require.NoError(t, p.Run(context.Background()))
	assert.NoError(t, p.CheckReadiness(context.Background()))
}

func TestPipeline_Run_Canceled(t *testing.T) {
	a := newArchive(t)
	sink := &mockLoader{}
	p := newPipeline(a, pipeline.Options{Provinces: []string{"istanbul"}}, pipeline.Sink{Name: "mock", Loader: sink})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.records())
	assert.Equal(t, pipeline.StateCanceled, status(t, p).State)
}

func TestPipeline_Run_DefaultProvinces(t *testing.T) {
	a := newArchive(t)
	sink := &mockLoader{}
	p := newPipeline(a, pipeline.Options{
		Sources: []domain.Source{domain.SourcePopulation},
	}, pipeline.Sink{Name: "mock", Loader: sink})

	err := p.Run(context.Background())

	// izmir is in the workbook but has no boundary to measure its area.
	var notFound *domain.ProvinceNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "izmir", notFound.Province)

	provinces := make(map[string]bool)
	for _, r := range sink.records() {
		provinces[r.Province] = true
	}
	assert.Equal(t, map[string]bool{"istanbul": true, "ankara": true}, provinces)
}

func TestPipeline_Status_JSON(t *testing.T) {
	a := newArchive(t)
	p := newPipeline(a, pipeline.Options{})

	b, err := json.Marshal(p.Status())
	require.NoError(t, err)
	assert.JSONEq(t, `{"state":"idle","records":0}`, string(b))
}

func TestWritePlots_SkipsNonAnnualPeriods(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")
	rec := func(province, metric, period string, v float64) domain.SummaryRecord {
		r, ok := domain.NewSummaryRecord("run-1", province, domain.SourceStation, metric, period, v, "degC")
		require.True(t, ok)
		return r
	}

	n, err := pipeline.WritePlots(dir, []domain.SummaryRecord{
		rec("istanbul", "yearly_mean_T", "2012", 15),
		rec("istanbul", "yearly_mean_T", "2011", 14),
		rec("ankara", "yearly_mean_T", "2011", 12),
		rec("istanbul", "monthly_mean_T", "01", 5),
		rec("istanbul", "seasonal_mean_T", "DJF", 6),
	})

	require.NoError(t, err)
	assert.Equal(t, 1, n)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "station_yearly_mean_T.png", entries[0].Name())
}

func TestWritePlots_NothingToDraw(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "plots")

	n, err := pipeline.WritePlots(dir, nil)

	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoDirExists(t, dir)
}
