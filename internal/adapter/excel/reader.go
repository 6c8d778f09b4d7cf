// Package excel reads the population and weather-station spreadsheets into
// domain tables and writes tables back out as workbooks.
package excel

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/xuri/excelize/v2"
)

// StationMissing is the sentinel station spreadsheets use for a missing reading.
const StationMissing = -999

// Station timestamp columns. Hour is optional.
var stationTimeColumns = []string{"Year", "Month", "Day", "Hour"}

// readSheet returns the header and data rows of the first worksheet with
// the 1-based sheet row number of each data row. Rows are padded to the
// header width.
func readSheet(path string) ([]string, [][]string, []int, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, nil, fmt.Errorf("workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return nil, nil, nil, fmt.Errorf("sheet %q has no header row", sheets[0])
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
	}
	data := make([][]string, 0, len(rows)-1)
	nums := make([]int, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if blank(row) {
			continue
		}
		for len(row) < len(header) {
			row = append(row, "")
		}
		data = append(data, row[:len(header)])
		nums = append(nums, n+2)
	}
	return header, data, nums, nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// ReadTable reads the first sheet of a workbook. Columns named in labels,
// and columns without a single numeric cell, become label columns; the rest
// are measurements with empty cells read as NaN. A measurement column with
// a non-numeric cell fails with domain.ErrMalformedRow.
func ReadTable(path string, labels ...string) (*domain.Table, error) {
	t, _, err := readTable(path, labels)
	return t, err
}

func readTable(path string, labels []string) (*domain.Table, []int, error) {
	header, rows, nums, err := readSheet(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read table %s: %w", path, err)
	}

	isLabel := make([]bool, len(header))
	for i, h := range header {
		isLabel[i] = slices.Contains(labels, h) || h == ""
		if isLabel[i] {
			continue
		}
		numeric, bad := 0, -1
		for n, row := range rows {
			if strings.TrimSpace(row[i]) == "" {
				continue
			}
			if _, ok := parseCell(row[i]); ok {
				numeric++
			} else if bad < 0 {
				bad = n
			}
		}
		switch {
		case bad < 0:
		case numeric == 0:
			isLabel[i] = true
		default:
			return nil, nil, fmt.Errorf("read table %s: row %d: column %q: non-numeric value %q: %w",
				path, nums[bad], h, strings.TrimSpace(rows[bad][i]), domain.ErrMalformedRow)
		}
	}

	t := &domain.Table{}
	for i, h := range header {
		if h == "" {
			continue
		}
		if isLabel[i] {
			t.LabelColumns = append(t.LabelColumns, h)
		} else {
			t.Columns = append(t.Columns, h)
		}
	}
	for _, row := range rows {
		rec := domain.Record{
			Labels: make(map[string]string, len(t.LabelColumns)),
			Values: make([]float64, 0, len(t.Columns)),
		}
		for i, h := range header {
			switch {
			case h == "":
			case isLabel[i]:
				rec.Labels[h] = strings.TrimSpace(row[i])
			default:
				v, _ := parseCell(row[i])
				rec.Values = append(rec.Values, v)
			}
		}
		t.Records = append(t.Records, rec)
	}
	return t, nums, nil
}

// parseCell reads a numeric cell; blank is NaN.
func parseCell(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN(), false
	}
	return v, true
}

// ReadPopulation reads the population workbook: one row per province with
// a Province column and one column per year. Province names are normalized.
func ReadPopulation(path string, norm *domain.NameNormalizer) (*domain.Table, error) {
	t, err := ReadTable(path, domain.ProvinceColumn)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(t.LabelColumns, domain.ProvinceColumn) {
		return nil, fmt.Errorf("read population %s: missing %q column", path, domain.ProvinceColumn)
	}
	for i := range t.Records {
		t.Records[i].Labels[domain.ProvinceColumn] = norm.Normalize(t.Records[i].Labels[domain.ProvinceColumn])
	}
	t.Attrs.Source = domain.SourcePopulation
	return t, nil
}

// ReadStation reads a station observation workbook keyed by Year, Month,
// Day and optional Hour columns. Rows outside [fromYear, toYear] are
// dropped, StationMissing becomes NaN, and the timestamp columns are folded
// into each record's Time. A row whose timestamp is not a calendar date
// fails with domain.ErrMalformedRow.
func ReadStation(path string, fromYear, toYear int) (*domain.Table, error) {
	raw, nums, err := readTable(path, nil)
	if err != nil {
		return nil, err
	}

	timeIdx := make(map[string]int, len(stationTimeColumns))
	for _, c := range stationTimeColumns {
		timeIdx[c] = raw.ColumnIndex(c)
	}
	for _, c := range stationTimeColumns[:3] {
		if timeIdx[c] < 0 {
			return nil, fmt.Errorf("read station %s: missing numeric %q column", path, c)
		}
	}

	t := &domain.Table{LabelColumns: raw.LabelColumns}
	var keep []int
	for i, c := range raw.Columns {
		if !slices.Contains(stationTimeColumns, c) {
			t.Columns = append(t.Columns, c)
			keep = append(keep, i)
		}
	}

	for n, r := range raw.Records {
		part := func(col string) (int, error) {
			i := timeIdx[col]
			if i < 0 {
				return 0, nil
			}
			v := r.Values[i]
			if math.IsNaN(v) || v != math.Trunc(v) {
				return 0, fmt.Errorf("read station %s: row %d: invalid %s %v: %w", path, nums[n], col, v, domain.ErrMalformedRow)
			}
			return int(v), nil
		}
		year, err := part("Year")
		if err != nil {
			return nil, err
		}
		if year < fromYear || year > toYear {
			continue
		}
		month, err := part("Month")
		if err != nil {
			return nil, err
		}
		day, err := part("Day")
		if err != nil {
			return nil, err
		}
		hour, err := part("Hour")
		if err != nil {
			return nil, err
		}

		ts := time.Date(year, time.Month(month), day, hour, 0, 0, 0, time.UTC)
		if ts.Year() != year || int(ts.Month()) != month || ts.Day() != day || ts.Hour() != hour {
			return nil, fmt.Errorf("read station %s: row %d: no such time %04d-%02d-%02d %02d:00: %w",
				path, nums[n], year, month, day, hour, domain.ErrMalformedRow)
		}

		rec := domain.Record{
			Labels: r.Labels,
			Time:   domain.DateOf(ts),
			Values: make([]float64, len(keep)),
		}
		for j, i := range keep {
			v := r.Values[i]
			if v == StationMissing {
				v = math.NaN()
			}
			rec.Values[j] = v
		}
		t.Records = append(t.Records, rec)
	}
	t.Attrs.Source = domain.SourceStation
	return t, nil
}

// ReadStationLocations reads the station metadata workbook. Coordinates
// stay measurement columns; use LonLatColumns to find them.
func ReadStationLocations(path string) (*domain.Table, error) {
	t, err := ReadTable(path)
	if err != nil {
		return nil, err
	}
	t.Attrs.Source = domain.SourceStation
	t.Attrs.Units = "m"
	return t, nil
}

var (
	lonNames = []string{"lon", "longitude", "long", "boylam"}
	latNames = []string{"lat", "latitude", "enlem"}
)

// LonLatColumns finds the longitude and latitude measurement columns by
// their usual English or Turkish headers.
func LonLatColumns(t *domain.Table) (lon, lat int, ok bool) {
	lon, lat = -1, -1
	for i, c := range t.Columns {
		switch lc := strings.ToLower(c); {
		case slices.Contains(lonNames, lc):
			lon = i
		case slices.Contains(latNames, lc):
			lat = i
		}
	}
	return lon, lat, lon >= 0 && lat >= 0
}
