package domain

import (
	"errors"
	"fmt"
	"math"
)

// SeriesKind selects how a series is expressed before it is reported.
type SeriesKind int

const (
	SeriesAbsolute SeriesKind = iota
	SeriesPerMillion
	SeriesPercentOfTotal
)

func (k SeriesKind) String() string {
	switch k {
	case SeriesAbsolute:
		return "absolute"
	case SeriesPerMillion:
		return "per_million"
	case SeriesPercentOfTotal:
		return "percent_of_total"
	default:
		return fmt.Sprintf("SeriesKind(%d)", int(k))
	}
}

// Apply rescales values. totals is only read for SeriesPercentOfTotal and
// must then be the same length as values; a zero total yields NaN.
func (k SeriesKind) Apply(values, totals []float64) ([]float64, error) {
	out := make([]float64, len(values))
	switch k {
	case SeriesAbsolute:
		copy(out, values)
	case SeriesPerMillion:
		for i, v := range values {
			out[i] = v / 1e6
		}
	case SeriesPercentOfTotal:
		if len(totals) != len(values) {
			return nil, fmt.Errorf("percent of total: %d values but %d totals", len(values), len(totals))
		}
		for i, v := range values {
			out[i] = Percentage(v, totals[i])
		}
	default:
		return nil, fmt.Errorf("unknown series kind %d", int(k))
	}
	return out, nil
}

// Percentage returns part as a percentage of total, or NaN when total is zero.
func Percentage(part, total float64) float64 {
	if total == 0 {
		return math.NaN()
	}
	return part / total * 100
}

// RateOfChange is the percent change from initial to final.
func RateOfChange(initial, final float64) (float64, error) {
	if initial == 0 {
		return 0, errors.New("rate of change: initial value is zero")
	}
	return (final - initial) / initial * 100, nil
}

// YearRateOfChange is RateOfChange between two year columns of the record
// labelled label.
func YearRateOfChange(t *Table, column, label string, initYear, endYear int) (float64, error) {
	years, values, err := t.YearSeries(column, label)
	if err != nil {
		return 0, err
	}
	lookup := func(year int) (float64, error) {
		for i, y := range years {
			if y == year {
				return values[i], nil
			}
		}
		return 0, fmt.Errorf("rate of change: year %d not in table", year)
	}
	initial, err := lookup(initYear)
	if err != nil {
		return 0, err
	}
	final, err := lookup(endYear)
	if err != nil {
		return 0, err
	}
	return RateOfChange(initial, final)
}
