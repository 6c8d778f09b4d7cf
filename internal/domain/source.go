package domain

import (
	"fmt"
	"strings"
)

// Source identifies a dataset family. Its string value is also the
// directory name used in the storage layout.
type Source string

const (
	SourceMODIS      Source = "modis"
	SourceDMSP       Source = "dmsp"
	SourceCORINE     Source = "corine"
	SourceGHS        Source = "ghs"
	SourcePopulation Source = "population"
	SourceStation    Source = "station"
)

// CommonArea is the storage directory for datasets that cover every province.
const CommonArea = "common"

// ParseSource maps a case-insensitive name to a Source.
func ParseSource(s string) (Source, error) {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	switch src {
	case SourceMODIS, SourceDMSP, SourceCORINE, SourceGHS, SourcePopulation, SourceStation:
		return src, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSource, s)
	}
}

// Categorical reports whether cell values are class codes rather than
// measurements.
func (s Source) Categorical() bool {
	return s == SourceCORINE
}
