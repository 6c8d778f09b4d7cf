package domain

import (
	"strconv"
	"time"
)

// TimeKind tags the resolution of a TimeValue.
type TimeKind int

const (
	TimeNone TimeKind = iota
	TimeYear
	TimeDate
)

// TimeValue is the time coordinate of one raster slice or table row.
// Annual products carry only a year; daily products carry a full date.
type TimeValue struct {
	Kind TimeKind
	Year int
	Date time.Time
}

// YearOf returns an annual time value.
func YearOf(year int) TimeValue {
	return TimeValue{Kind: TimeYear, Year: year}
}

// DateOf returns a daily time value normalized to UTC.
func DateOf(t time.Time) TimeValue {
	t = t.UTC()
	return TimeValue{Kind: TimeDate, Year: t.Year(), Date: t}
}

// IsZero reports whether no time coordinate is attached.
func (v TimeValue) IsZero() bool {
	return v.Kind == TimeNone
}

// Key is a sort key shared by both resolutions. A year sorts at its first instant.
func (v TimeValue) Key() int64 {
	switch v.Kind {
	case TimeYear:
		return time.Date(v.Year, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()
	case TimeDate:
		return v.Date.Unix()
	default:
		return 0
	}
}

// Before orders time values by Key.
func (v TimeValue) Before(o TimeValue) bool {
	return v.Key() < o.Key()
}

// Equal compares resolution and instant.
func (v TimeValue) Equal(o TimeValue) bool {
	return v.Kind == o.Kind && v.Key() == o.Key()
}

func (v TimeValue) String() string {
	switch v.Kind {
	case TimeYear:
		return strconv.Itoa(v.Year)
	case TimeDate:
		if v.Date.Hour() != 0 {
			return v.Date.Format("2006-01-02T15")
		}
		return v.Date.Format("2006-01-02")
	default:
		return ""
	}
}
