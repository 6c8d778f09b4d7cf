package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"

	"github.com/couchcryptid/geodata-etl/internal/adapter/plot"
	"github.com/couchcryptid/geodata-etl/internal/domain"
)

// WritePlots draws one chart per source and annual metric, with a line per
// province, into dir. Records whose period is not a year are skipped. It
// returns the number of files written.
func WritePlots(dir string, records []domain.SummaryRecord) (int, error) {
	type chartKey struct {
		src    domain.Source
		metric string
	}
	type point struct {
		year  int
		value float64
	}
	charts := make(map[chartKey]map[string][]point)
	var keys []chartKey
	units := make(map[chartKey]string)
	for _, r := range records {
		year, err := strconv.Atoi(r.Period)
		if err != nil || len(r.Period) != 4 {
			continue
		}
		k := chartKey{r.Source, r.Metric}
		if charts[k] == nil {
			charts[k] = make(map[string][]point)
			keys = append(keys, k)
			units[k] = r.Unit
		}
		charts[k][r.Province] = append(charts[k][r.Province], point{year, r.Value})
	}
	if len(keys) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("plot dir: %w", err)
	}

	written := 0
	for _, k := range keys {
		byProvince := charts[k]
		provinces := make([]string, 0, len(byProvince))
		for p := range byProvince {
			provinces = append(provinces, p)
		}
		slices.Sort(provinces)

		series := make([]plot.Series, 0, len(provinces))
		for _, p := range provinces {
			pts := byProvince[p]
			slices.SortFunc(pts, func(a, b point) int { return a.year - b.year })
			years := make([]int, len(pts))
			values := make([]float64, len(pts))
			for i, pt := range pts {
				years[i], values[i] = pt.year, pt.value
			}
			series = append(series, plot.YearSeries(p, years, values))
		}

		path := filepath.Join(dir, fmt.Sprintf("%s_%s.png", k.src, k.metric))
		title := fmt.Sprintf("%s %s", k.src, k.metric)
		if err := plot.WriteSeries(path, title, "year", units[k], series...); err != nil {
			return written, fmt.Errorf("plot %s: %w", path, err)
		}
		written++
	}
	return written, nil
}
