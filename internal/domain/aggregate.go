package domain

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// Season is a three-month climatological band.
type Season string

const (
	SeasonDJF Season = "DJF"
	SeasonMAM Season = "MAM"
	SeasonJJA Season = "JJA"
	SeasonSON Season = "SON"
)

// Seasons lists the bands in calendar order starting with winter.
var Seasons = []Season{SeasonDJF, SeasonMAM, SeasonJJA, SeasonSON}

// SeasonOf bands a day of year: DJF is 336-366 and 1-91, MAM 92-182,
// JJA 183-274, SON 275-335.
func SeasonOf(dayOfYear int) Season {
	switch {
	case dayOfYear <= 91 || dayOfYear >= 336:
		return SeasonDJF
	case dayOfYear <= 182:
		return SeasonMAM
	case dayOfYear <= 274:
		return SeasonJJA
	default:
		return SeasonSON
	}
}

// GroupMean is the mean of one calendar group.
type GroupMean struct {
	Key   string
	Value float64
	Rows  int
}

// MonthlyMean groups records by calendar month ("01".."12").
func MonthlyMean(t *Table) ([]GroupMean, error) {
	return groupMean(t, func(tv TimeValue) string {
		return fmt.Sprintf("%02d", int(tv.Date.Month()))
	}, nil, true)
}

// SeasonalMean groups records by Season.
func SeasonalMean(t *Table) ([]GroupMean, error) {
	order := make([]string, len(Seasons))
	for i, s := range Seasons {
		order[i] = string(s)
	}
	return groupMean(t, func(tv TimeValue) string {
		return string(SeasonOf(tv.Date.YearDay()))
	}, order, true)
}

// YearlyMean groups records by calendar year.
func YearlyMean(t *Table) ([]GroupMean, error) {
	return groupMean(t, func(tv TimeValue) string {
		return strconv.Itoa(tv.Year)
	}, nil, false)
}

// groupMean averages every measurement column within each group, skipping
// missing values, then averages the column means. Groups are returned in
// order when given, otherwise sorted by key.
func groupMean(t *Table, key func(TimeValue) string, order []string, needDate bool) ([]GroupMean, error) {
	type acc struct {
		cols [][]float64
		rows int
	}
	groups := make(map[string]*acc)
	for _, r := range t.Records {
		if r.Time.IsZero() || (needDate && r.Time.Kind != TimeDate) {
			return nil, errors.New("group mean: record has no usable time coordinate")
		}
		k := key(r.Time)
		g, ok := groups[k]
		if !ok {
			g = &acc{cols: make([][]float64, len(t.Columns))}
			groups[k] = g
		}
		g.rows++
		for i, v := range r.Values {
			if !math.IsNaN(v) {
				g.cols[i] = append(g.cols[i], v)
			}
		}
	}

	keys := order
	if keys == nil {
		for k := range groups {
			keys = append(keys, k)
		}
		slices.Sort(keys)
	}

	out := make([]GroupMean, 0, len(groups))
	for _, k := range keys {
		g, ok := groups[k]
		if !ok {
			continue
		}
		means := make([]float64, 0, len(g.cols))
		for _, c := range g.cols {
			if len(c) > 0 {
				means = append(means, stat.Mean(c, nil))
			}
		}
		v := math.NaN()
		if len(means) > 0 {
			v = stat.Mean(means, nil)
		}
		out = append(out, GroupMean{Key: k, Value: v, Rows: g.rows})
	}
	return out, nil
}
