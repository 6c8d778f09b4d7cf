package domain

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// dateStrategy locates a marker in a file name and parses the time that
// follows it.
type dateStrategy struct {
	marker string
	parse  func(name string, at int) (TimeValue, string)
}

// dateStrategies holds one strategy per raster source. The markers are part
// of the upstream file naming and must match exactly.
var dateStrategies = map[Source]dateStrategy{
	SourceMODIS:  {marker: "A2", parse: parseYearDay},
	SourceDMSP:   {marker: "F", parse: parseYearAfterMarker},
	SourceCORINE: {marker: "CLC", parse: parseYearAfterMarker},
	SourceGHS:    {marker: "POP", parse: parseYearAfterMarker},
}

// ExtractTime derives the time coordinate of a raster file from its base
// name. A missing marker or non-numeric field yields a *MalformedFilenameError.
func ExtractTime(src Source, path string) (TimeValue, error) {
	strategy, ok := dateStrategies[src]
	if !ok {
		return TimeValue{}, fmt.Errorf("extract time: %w: %q", ErrUnknownSource, src)
	}
	name := filepath.Base(path)
	at := strings.Index(name, strategy.marker)
	if at < 0 {
		return TimeValue{}, &MalformedFilenameError{Path: path, Marker: strategy.marker, Reason: "marker not found"}
	}
	tv, reason := strategy.parse(name, at)
	if reason != "" {
		return TimeValue{}, &MalformedFilenameError{Path: path, Marker: strategy.marker, Reason: reason}
	}
	return tv, nil
}

// parseYearDay reads a four digit year and a three digit day of year
// directly after the first character of the marker, e.g. "A2011032".
func parseYearDay(name string, at int) (TimeValue, string) {
	year, ok := digitsAt(name, at+1, 4)
	if !ok {
		return TimeValue{}, "year is not four digits"
	}
	doy, ok := digitsAt(name, at+5, 3)
	if !ok {
		return TimeValue{}, "day of year is not three digits"
	}
	if doy < 1 || doy > daysIn(year) {
		return TimeValue{}, fmt.Sprintf("day of year %d out of range", doy)
	}
	return DateOf(time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, doy-1)), ""
}

// parseYearAfterMarker reads a four digit year starting three characters
// after the marker, e.g. "F142012" or "CLC2012".
func parseYearAfterMarker(name string, at int) (TimeValue, string) {
	year, ok := digitsAt(name, at+3, 4)
	if !ok {
		return TimeValue{}, "year is not four digits"
	}
	return YearOf(year), ""
}

func digitsAt(s string, start, n int) (int, bool) {
	if start < 0 || start+n > len(s) {
		return 0, false
	}
	field := s[start : start+n]
	for i := 0; i < len(field); i++ {
		if field[i] < '0' || field[i] > '9' {
			return 0, false
		}
	}
	v, err := strconv.Atoi(field)
	return v, err == nil
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
