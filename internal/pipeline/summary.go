package pipeline

import (
	"fmt"
	"math"
	"slices"
	"strconv"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Summary metric names.
const (
	MetricUrbanShare        = "urban_share_pct"
	MetricMeanRadiance      = "mean_radiance"
	MetricSettlementPop     = "settlement_population"
	MetricMeanLST           = "mean_lst"
	MetricMeanLSTUrban      = "mean_lst_urban"
	MetricMeanLSTRural      = "mean_lst_rural"
	MetricHeatIsland        = "heat_island_intensity"
	MetricPopulation        = "population"
	MetricPopulationMillion = "population_millions"
	MetricDensity           = "population_density"
	MetricPopulationChange  = "population_change_pct"
)

// cellsMetric names the cell count of one land-use class.
func cellsMetric(class domain.LandUseClass) string {
	return "cells_" + string(class)
}

// Summarizer flattens retrieved products into summary records stamped with
// one run ID.
type Summarizer struct {
	runID   string
	classes *domain.ClassIndexTable
}

// NewSummarizer creates a Summarizer for a run.
func NewSummarizer(runID string, classes *domain.ClassIndexTable) *Summarizer {
	return &Summarizer{runID: runID, classes: classes}
}

// collector accumulates records, dropping non-finite values.
type collector struct {
	s        *Summarizer
	province string
	src      domain.Source
	records  []domain.SummaryRecord
}

func (s *Summarizer) collect(province string, src domain.Source) *collector {
	return &collector{s: s, province: province, src: src}
}

func (c *collector) add(metric, period string, value float64, unit string) {
	if rec, ok := domain.NewSummaryRecord(c.s.runID, c.province, c.src, metric, period, value, unit); ok {
		c.records = append(c.records, rec)
	}
}

// LandUse counts the cells of every base land-use class in each slice of a
// CORINE raster and reports the urban share of all classified cells.
func (s *Summarizer) LandUse(province string, r *domain.Raster) ([]domain.SummaryRecord, error) {
	c := s.collect(province, domain.SourceCORINE)
	all, err := s.classes.Codes(domain.ClassAll)
	if err != nil {
		return nil, err
	}
	urban, err := s.classes.Codes(domain.ClassUrban)
	if err != nil {
		return nil, err
	}
	for _, slice := range r.Slices {
		tv := slice.Time
		period := tv.String()
		for _, class := range s.classes.BaseClasses() {
			codes, err := s.classes.Codes(class)
			if err != nil {
				return nil, err
			}
			c.add(cellsMetric(class), period, float64(domain.CountCells(r, codes, &tv)), "cells")
		}
		total := domain.CountCells(r, all, &tv)
		c.add(MetricUrbanShare, period, domain.Percentage(float64(domain.CountCells(r, urban, &tv)), float64(total)), "%")
	}
	return c.records, nil
}

// YearlyRasterMean averages the valid cells of all slices falling in each
// calendar year.
func (s *Summarizer) YearlyRasterMean(province string, r *domain.Raster, metric, unit string) []domain.SummaryRecord {
	c := s.collect(province, r.Attrs.Source)
	byYear := make(map[int][]float64)
	var years []int
	for t, slice := range r.Slices {
		y := slice.Time.Year
		if _, ok := byYear[y]; !ok {
			years = append(years, y)
		}
		byYear[y] = append(byYear[y], r.ValidValues(t)...)
	}
	slices.Sort(years)
	for _, y := range years {
		if vals := byYear[y]; len(vals) > 0 {
			c.add(metric, strconv.Itoa(y), stat.Mean(vals, nil), unit)
		}
	}
	return c.records
}

// RasterSum totals the valid cells of each slice.
func (s *Summarizer) RasterSum(province string, r *domain.Raster, metric, unit string) []domain.SummaryRecord {
	c := s.collect(province, r.Attrs.Source)
	for t, slice := range r.Slices {
		vals := r.ValidValues(t)
		if len(vals) == 0 {
			continue
		}
		c.add(metric, slice.Time.String(), floats.Sum(vals), unit)
	}
	return c.records
}

// HeatIsland compares land-surface temperature over urban and rural cells.
// classified holds one slice of urban (1) / rural (0) codes on the same
// grid as lst; lst slices are averaged per calendar year.
func (s *Summarizer) HeatIsland(province string, classified, lst *domain.Raster) ([]domain.SummaryRecord, error) {
	if classified.Empty() || lst.Empty() {
		return nil, nil
	}
	if !classified.Grid.SameGeometry(lst.Grid) {
		return nil, fmt.Errorf("heat island for %s: %w", province, domain.ErrGridMismatch)
	}
	mask := classified.Slices[len(classified.Slices)-1].Data

	type sums struct{ urban, rural []float64 }
	byYear := make(map[int]*sums)
	var years []int
	for _, slice := range lst.Slices {
		y := slice.Time.Year
		acc, ok := byYear[y]
		if !ok {
			acc = &sums{}
			byYear[y] = acc
			years = append(years, y)
		}
		for i, v := range slice.Data {
			if math.IsNaN(v) {
				continue
			}
			switch mask[i] {
			case domain.UrbanValue:
				acc.urban = append(acc.urban, v)
			case domain.RuralValue:
				acc.rural = append(acc.rural, v)
			}
		}
	}
	slices.Sort(years)

	c := s.collect(province, domain.SourceMODIS)
	for _, y := range years {
		acc, period := byYear[y], strconv.Itoa(y)
		urban, rural := math.NaN(), math.NaN()
		if len(acc.urban) > 0 {
			urban = stat.Mean(acc.urban, nil)
		}
		if len(acc.rural) > 0 {
			rural = stat.Mean(acc.rural, nil)
		}
		c.add(MetricMeanLSTUrban, period, urban, "K")
		c.add(MetricMeanLSTRural, period, rural, "K")
		c.add(MetricHeatIsland, period, urban-rural, "K")
	}
	return c.records, nil
}

// Station reports monthly, seasonal and yearly means of a station table.
func (s *Summarizer) Station(province string, t *domain.Table) ([]domain.SummaryRecord, error) {
	c := s.collect(province, domain.SourceStation)
	name := t.Attrs.VarName
	if name == "" {
		name = "value"
	}
	groups := []struct {
		metric string
		mean   func(*domain.Table) ([]domain.GroupMean, error)
	}{
		{"monthly_mean_" + name, domain.MonthlyMean},
		{"seasonal_mean_" + name, domain.SeasonalMean},
		{"yearly_mean_" + name, domain.YearlyMean},
	}
	for _, g := range groups {
		means, err := g.mean(t)
		if err != nil {
			return nil, fmt.Errorf("station %s: %w", g.metric, err)
		}
		for _, m := range means {
			c.add(g.metric, m.Key, m.Value, t.Attrs.Units)
		}
	}
	return c.records, nil
}

// Population reports a province's population per year, in millions, as a
// density over areaKm2, and its percent change between the first and last
// year.
func (s *Summarizer) Population(province string, t *domain.Table, areaKm2 float64) ([]domain.SummaryRecord, error) {
	years, values, err := t.YearSeries(domain.ProvinceColumn, province)
	if err != nil {
		return nil, err
	}
	millions, err := domain.SeriesPerMillion.Apply(values, nil)
	if err != nil {
		return nil, err
	}

	c := s.collect(province, domain.SourcePopulation)
	for i, y := range years {
		period := strconv.Itoa(y)
		c.add(MetricPopulation, period, values[i], "persons")
		c.add(MetricPopulationMillion, period, millions[i], "million persons")
		if areaKm2 > 0 {
			c.add(MetricDensity, period, values[i]/areaKm2, "persons/km2")
		}
	}
	if len(years) >= 2 {
		first, last := years[0], years[len(years)-1]
		if change, err := domain.YearRateOfChange(t, domain.ProvinceColumn, province, first, last); err == nil {
			c.add(MetricPopulationChange, fmt.Sprintf("%d-%d", first, last), change, "%")
		}
	}
	return c.records, nil
}
