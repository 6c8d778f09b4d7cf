package netcdf

import (
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
)

var referenceLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.0",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

var unitDurations = map[string]time.Duration{
	"seconds": time.Second,
	"second":  time.Second,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"days":    24 * time.Hour,
	"day":     24 * time.Hour,
}

// timeAxis decodes a CF time coordinate such as "days since 2011-01-01".
func timeAxis(ds dataset, dim string, n int) ([]domain.TimeValue, error) {
	v, err := ds.variable(dim)
	if err != nil {
		return nil, fmt.Errorf("time coordinate %q: %w", dim, err)
	}
	if len(v.values) != n {
		return nil, fmt.Errorf("time coordinate %q: %d values, want %d", dim, len(v.values), n)
	}
	unit, ref, err := parseTimeUnits(attrString(v.attrs["units"]))
	if err != nil {
		return nil, fmt.Errorf("time coordinate %q: %w", dim, err)
	}
	out := make([]domain.TimeValue, n)
	for i, x := range v.values {
		out[i] = domain.DateOf(ref.Add(time.Duration(x * float64(unit))))
	}
	return out, nil
}

// formatTimeUnits renders the CF units attribute used when writing.
func formatTimeUnits(ref time.Time) string {
	return "days since " + ref.UTC().Format("2006-01-02 15:04:05")
}

func parseTimeUnits(units string) (time.Duration, time.Time, error) {
	name, ref, ok := strings.Cut(strings.TrimSpace(units), " since ")
	if !ok {
		return 0, time.Time{}, fmt.Errorf("units %q are not of the form <unit> since <date>", units)
	}
	unit, ok := unitDurations[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unknown time unit %q", name)
	}
	ref = strings.TrimSuffix(strings.TrimSpace(ref), " UTC")
	ref = strings.TrimSuffix(ref, "Z")
	for _, layout := range referenceLayouts {
		if t, err := time.Parse(layout, ref); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, fmt.Errorf("unparseable reference date %q", ref)
}
