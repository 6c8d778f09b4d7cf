// Package spatial implements the raster operations that align products to
// provinces: polygon clipping, reprojection onto a reference grid, tile
// merging and time stacking.
package spatial

import (
	"fmt"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/proj"
)

// Common coordinate reference systems as proj4 strings.
const (
	LongLat         = "+proj=longlat +datum=WGS84 +no_defs"
	WebMercator     = "+proj=merc +a=6378137 +b=6378137 +lat_ts=0.0 +lon_0=0.0 +x_0=0.0 +y_0=0 +k=1.0 +units=m +nadgrids=@null +no_defs"
	// MODISSinusoidal is the sphere-based grid of the MODIS land products.
	// It is projected by the built-in sinusoidal transform.
	MODISSinusoidal = "+proj=sinu +lon_0=0 +x_0=0 +y_0=0 +R=6371007.181 +units=m +no_defs"
)

// Definitions of the EPSG (and ESRI) codes the data sources are published in.
var epsgDefs = map[int]string{
	3035:   "+proj=laea +lat_0=52 +lon_0=10 +x_0=4321000 +y_0=3210000 +ellps=GRS80 +units=m +no_defs",
	3857:   WebMercator,
	4326:   LongLat,
	54009:  "+proj=moll +lon_0=0 +x_0=0 +y_0=0 +datum=WGS84 +units=m +no_defs",
	900913: WebMercator,
}

// FromEPSG returns the proj4 definition of an EPSG code. WGS 84 UTM zones
// (326xx north, 327xx south) are derived.
func FromEPSG(code int) (string, bool) {
	if def, ok := epsgDefs[code]; ok {
		return def, true
	}
	switch {
	case code > 32600 && code <= 32660:
		return fmt.Sprintf("+proj=utm +zone=%d +datum=WGS84 +units=m +no_defs", code-32600), true
	case code > 32700 && code <= 32760:
		return fmt.Sprintf("+proj=utm +zone=%d +south +datum=WGS84 +units=m +no_defs", code-32700), true
	}
	return "", false
}

// EPSGCode is the inverse of FromEPSG for the fixed table.
func EPSGCode(def string) (int, bool) {
	best := 0
	for code, d := range epsgDefs {
		if d == def && (best == 0 || code < best) {
			best = code
		}
	}
	return best, best != 0
}

var srCache sync.Map // proj4/WKT string -> *proj.SR

func parseSR(def string) (*proj.SR, error) {
	if v, ok := srCache.Load(def); ok {
		return v.(*proj.SR), nil
	}
	sr, err := proj.Parse(def)
	if err != nil {
		return nil, fmt.Errorf("parse crs %q: %w", def, err)
	}
	srCache.Store(def, sr)
	return sr, nil
}

func identity(x, y float64) (float64, float64, error) { return x, y, nil }

// libTransformer builds a ctessum/geom/proj transform. Equivalent systems
// yield the identity.
func libTransformer(from, to string) (proj.Transformer, error) {
	src, err := parseSR(from)
	if err != nil {
		return nil, err
	}
	dst, err := parseSR(to)
	if err != nil {
		return nil, err
	}
	t, err := src.NewTransform(dst)
	if err != nil {
		return nil, fmt.Errorf("transform %q -> %q: %w", from, to, err)
	}
	if t == nil {
		return identity, nil
	}
	return t, nil
}

// toLongLat returns the transform from def into WGS 84 degrees.
func toLongLat(def string) (proj.Transformer, error) {
	if def == LongLat {
		return identity, nil
	}
	p, ok, err := nativeProjection(def)
	if err != nil {
		return nil, err
	}
	if ok {
		return p.inverse, nil
	}
	return libTransformer(def, LongLat)
}

// fromLongLat returns the transform from WGS 84 degrees into def.
func fromLongLat(def string) (proj.Transformer, error) {
	if def == LongLat {
		return identity, nil
	}
	p, ok, err := nativeProjection(def)
	if err != nil {
		return nil, err
	}
	if ok {
		return p.forward, nil
	}
	return libTransformer(LongLat, def)
}

// Transformer returns a coordinate transform between two CRS definitions.
// Identical definitions yield the identity. Sinusoidal, Mollweide and
// Lambert azimuthal equal-area systems go through WGS 84 degrees with the
// built-in projections; everything else is handled by ctessum/geom/proj.
func Transformer(from, to string) (proj.Transformer, error) {
	if from == to {
		return identity, nil
	}
	_, fromNative, err := nativeProjection(from)
	if err != nil {
		return nil, err
	}
	_, toNative, err := nativeProjection(to)
	if err != nil {
		return nil, err
	}
	if !fromNative && !toNative {
		return libTransformer(from, to)
	}
	inv, err := toLongLat(from)
	if err != nil {
		return nil, err
	}
	fwd, err := fromLongLat(to)
	if err != nil {
		return nil, err
	}
	return func(x, y float64) (float64, float64, error) {
		lon, lat, err := inv(x, y)
		if err != nil {
			return 0, 0, err
		}
		return fwd(lon, lat)
	}, nil
}

// ToCRS reprojects a polygonal geometry.
func ToCRS(g geom.Polygonal, from, to string) (geom.Polygonal, error) {
	if from == to {
		return g, nil
	}
	t, err := Transformer(from, to)
	if err != nil {
		return nil, err
	}
	out, err := g.Transform(t)
	if err != nil {
		return nil, fmt.Errorf("reproject geometry: %w", err)
	}
	poly, ok := out.(geom.Polygonal)
	if !ok {
		return nil, fmt.Errorf("reproject geometry: got %T, want polygonal", out)
	}
	return poly, nil
}
