package domain

import (
	"fmt"
	"slices"
	"strconv"
)

// ProvinceColumn is the label column that keys population tables.
const ProvinceColumn = "Province"

// Record is one table row. Values align with Table.Columns and use NaN for
// missing measurements.
type Record struct {
	Labels map[string]string
	Time   TimeValue
	Values []float64
}

// Table is a set of observations with text label columns and numeric
// measurement columns.
type Table struct {
	LabelColumns []string
	Columns      []string
	Records      []Record
	Attrs        Attrs
}

// ColumnIndex returns the position of a measurement column, or -1.
func (t *Table) ColumnIndex(name string) int {
	return slices.Index(t.Columns, name)
}

// Filter returns a new table holding the records for which keep is true.
// Records are copied so the result owns its data.
func (t *Table) Filter(keep func(Record) bool) *Table {
	out := &Table{
		LabelColumns: slices.Clone(t.LabelColumns),
		Columns:      slices.Clone(t.Columns),
		Attrs:        t.Attrs,
	}
	out.Attrs.Provinces = slices.Clone(t.Attrs.Provinces)
	for _, r := range t.Records {
		if keep(r) {
			out.Records = append(out.Records, copyRecord(r))
		}
	}
	return out
}

// FilterLabel keeps records whose label column value is one of values.
func (t *Table) FilterLabel(column string, values ...string) *Table {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[v] = true
	}
	return t.Filter(func(r Record) bool { return set[r.Labels[column]] })
}

// UniqueLabels lists the distinct values of a label column in first-seen order.
func (t *Table) UniqueLabels(column string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range t.Records {
		v := r.Labels[column]
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

// YearColumns returns the measurement columns whose header is a year,
// sorted by year.
func (t *Table) YearColumns() (years []int, idx []int) {
	type yc struct{ year, idx int }
	var cols []yc
	for i, c := range t.Columns {
		if y, err := strconv.Atoi(c); err == nil {
			cols = append(cols, yc{y, i})
		}
	}
	slices.SortFunc(cols, func(a, b yc) int { return a.year - b.year })
	for _, c := range cols {
		years = append(years, c.year)
		idx = append(idx, c.idx)
	}
	return years, idx
}

// YearSeries returns the year-column values of the single record whose
// label column equals label.
func (t *Table) YearSeries(column, label string) ([]int, []float64, error) {
	var match *Record
	for i := range t.Records {
		if t.Records[i].Labels[column] == label {
			if match != nil {
				return nil, nil, fmt.Errorf("year series: %q matches more than one record", label)
			}
			match = &t.Records[i]
		}
	}
	if match == nil {
		return nil, nil, &ProvinceNotFoundError{Province: label, Where: "table"}
	}
	years, idx := t.YearColumns()
	values := make([]float64, len(idx))
	for i, c := range idx {
		values[i] = match.Values[c]
	}
	return years, values, nil
}

func copyRecord(r Record) Record {
	labels := make(map[string]string, len(r.Labels))
	for k, v := range r.Labels {
		labels[k] = v
	}
	return Record{Labels: labels, Time: r.Time, Values: slices.Clone(r.Values)}
}
