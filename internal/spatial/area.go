package spatial

import (
	"fmt"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/geom"
	"github.com/golang/geo/s2"
)

// earthRadiusKm is the IUGG mean radius.
const earthRadiusKm = 6371.0088

// AreaKm2 returns the geodesic area of a boundary in square kilometres. The
// first ring of each polygon is its shell, later rings are holes.
func AreaKm2(b domain.Boundary) (float64, error) {
	if b.CRS == "" {
		return 0, fmt.Errorf("area of %q: %w", b.Name, domain.ErrMissingCRS)
	}
	shape, err := ToCRS(b.Shape, b.CRS, LongLat)
	if err != nil {
		return 0, fmt.Errorf("area of %q: %w", b.Name, err)
	}
	var steradians float64
	for _, poly := range shape.Polygons() {
		for i, ring := range poly {
			a := ringArea(ring)
			if i == 0 {
				steradians += a
			} else {
				steradians -= a
			}
		}
	}
	return steradians * earthRadiusKm * earthRadiusKm, nil
}

// ringArea is the area enclosed by a lon/lat ring, whatever its winding.
func ringArea(ring geom.Path) float64 {
	if n := len(ring); n > 1 && ring[0] == ring[n-1] {
		ring = ring[:n-1]
	}
	if len(ring) < 3 {
		return 0
	}
	pts := make([]s2.Point, len(ring))
	for i, p := range ring {
		pts[i] = s2.PointFromLatLng(s2.LatLngFromDegrees(p.Y, p.X))
	}
	loop := s2.LoopFromPoints(pts)
	loop.Normalize()
	return loop.Area()
}
