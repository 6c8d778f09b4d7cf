package domain

import "github.com/ctessum/geom"

// Boundary is the administrative polygon of one province.
type Boundary struct {
	Name    string // canonical, see NormalizeName
	RawName string
	Shape   geom.Polygonal
	CRS     string
}

// Bounds is the bounding box of the boundary in its own CRS.
func (b Boundary) Bounds() *geom.Bounds {
	return b.Shape.Bounds()
}

// BoundaryLookup resolves canonical province names to boundaries.
type BoundaryLookup interface {
	Lookup(province string) (Boundary, error)
}
