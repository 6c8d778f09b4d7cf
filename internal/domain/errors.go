package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingCRS is returned when a raster or boundary reaches a spatial
	// operation without an explicit coordinate reference system.
	ErrMissingCRS = errors.New("coordinate reference system not set")

	// ErrNoDataInBounds is returned when a clip window does not intersect the raster.
	ErrNoDataInBounds = errors.New("no data found in bounds")

	// ErrGridMismatch is returned when rasters that must share a grid do not.
	ErrGridMismatch = errors.New("raster grids do not match")

	ErrOverlappingCodeSets = errors.New("urban and rural code sets overlap")
	ErrAggregateClass      = errors.New("aggregate land-use class cannot be used for classification")
	ErrUnknownClass        = errors.New("unknown land-use class")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrNoFiles             = errors.New("no files matched")
	ErrDuplicateBoundary   = errors.New("duplicate boundary for province")
	ErrMissingScaleFactor  = errors.New("scale factor not found")
	ErrUnknownSource       = errors.New("unknown data source")
	ErrMalformedRow        = errors.New("malformed spreadsheet row")
)

// ProvinceNotFoundError reports a province that is absent from the boundary
// collection or the tile catalog.
type ProvinceNotFoundError struct {
	Province string
	Where    string
}

func (e *ProvinceNotFoundError) Error() string {
	if e.Where == "" {
		return fmt.Sprintf("province %q not found", e.Province)
	}
	return fmt.Sprintf("province %q not found in %s", e.Province, e.Where)
}

// MalformedFilenameError reports a file name that does not carry the
// metadata marker its source requires.
type MalformedFilenameError struct {
	Path   string
	Marker string
	Reason string
}

func (e *MalformedFilenameError) Error() string {
	return fmt.Sprintf("malformed filename %q (marker %q): %s", e.Path, e.Marker, e.Reason)
}
