package spatial

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// ErrOutsideProjection is returned for coordinates a projection cannot map.
var ErrOutsideProjection = errors.New("coordinate outside projection domain")

// planar is a map projection between WGS 84 degrees and projected metres.
// ctessum/geom/proj has no sinusoidal, Mollweide or Lambert azimuthal
// equal-area transforms, which the MODIS, GHS and CORINE grids use.
type planar interface {
	forward(lon, lat float64) (x, y float64, err error)
	inverse(x, y float64) (lon, lat float64, err error)
}

var planarCache sync.Map // proj4 string -> planar

// nativeProjection returns the built-in projection for a proj4 definition,
// or ok=false when the definition is left to ctessum/geom/proj.
func nativeProjection(def string) (p planar, ok bool, err error) {
	if v, hit := planarCache.Load(def); hit {
		return v.(planar), true, nil
	}
	params := proj4Params(def)
	switch params["proj"] {
	case "sinu":
		p, err = newSinusoidal(params)
	case "moll":
		p, err = newMollweide(params)
	case "laea":
		p, err = newLAEA(params)
	default:
		return nil, false, nil
	}
	if err != nil {
		return nil, true, fmt.Errorf("parse crs %q: %w", def, err)
	}
	planarCache.Store(def, p)
	return p, true, nil
}

// proj4Params splits "+key=value +flag" tokens. Flags map to "".
func proj4Params(def string) map[string]string {
	out := make(map[string]string)
	for _, tok := range strings.Fields(def) {
		tok = strings.TrimPrefix(tok, "+")
		k, v, _ := strings.Cut(tok, "=")
		out[strings.ToLower(k)] = v
	}
	return out
}

func floatParam(params map[string]string, key string, def float64) (float64, error) {
	s, ok := params[key]
	if !ok {
		return def, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%s=%q: %w", key, s, err)
	}
	return v, nil
}

// falseOrigin reads the central meridian and false easting/northing.
type falseOrigin struct {
	lon0   float64 // radians
	x0, y0 float64
}

func newFalseOrigin(params map[string]string) (falseOrigin, error) {
	var o falseOrigin
	lon0, err := floatParam(params, "lon_0", 0)
	if err != nil {
		return o, err
	}
	o.lon0 = lon0 * math.Pi / 180
	if o.x0, err = floatParam(params, "x_0", 0); err != nil {
		return o, err
	}
	o.y0, err = floatParam(params, "y_0", 0)
	return o, err
}

// ellipsoid returns the semi-major axis and flattening from +R, +a/+b,
// +a/+rf, +ellps or +datum. WGS 84 when none is given.
func ellipsoid(params map[string]string) (a, f float64, err error) {
	if _, ok := params["r"]; ok {
		r, err := floatParam(params, "r", 0)
		return r, 0, err
	}
	a, f = 6378137, 1/298.257223563
	switch strings.ToUpper(params["ellps"]) {
	case "GRS80":
		f = 1 / 298.257222101
	case "", "WGS84":
	default:
		return 0, 0, fmt.Errorf("unsupported ellipsoid %q", params["ellps"])
	}
	if a, err = floatParam(params, "a", a); err != nil {
		return 0, 0, err
	}
	if _, ok := params["b"]; ok {
		b, err := floatParam(params, "b", a)
		if err != nil {
			return 0, 0, err
		}
		f = (a - b) / a
	} else if _, ok := params["rf"]; ok {
		rf, err := floatParam(params, "rf", 0)
		if err != nil {
			return 0, 0, err
		}
		if rf == 0 {
			f = 0
		} else {
			f = 1 / rf
		}
	}
	if a <= 0 {
		return 0, 0, fmt.Errorf("semi-major axis %v", a)
	}
	return a, f, nil
}

// sphereRadius is the radius used by the spherical-only projections: +R, or
// the semi-major axis of the ellipsoid, as PROJ does.
func sphereRadius(params map[string]string) (float64, error) {
	a, _, err := ellipsoid(params)
	if err != nil {
		return 0, err
	}
	if a <= 0 {
		return 0, fmt.Errorf("radius %v", a)
	}
	return a, nil
}

// normLon wraps a longitude offset into [-π, π].
func normLon(dl float64) float64 {
	for dl > math.Pi {
		dl -= 2 * math.Pi
	}
	for dl < -math.Pi {
		dl += 2 * math.Pi
	}
	return dl
}

const poleEps = 1e-12

type sinusoidal struct {
	falseOrigin
	r float64
}

func newSinusoidal(params map[string]string) (planar, error) {
	o, err := newFalseOrigin(params)
	if err != nil {
		return nil, err
	}
	r, err := sphereRadius(params)
	if err != nil {
		return nil, err
	}
	return sinusoidal{falseOrigin: o, r: r}, nil
}

func (s sinusoidal) forward(lon, lat float64) (float64, float64, error) {
	phi := lat * math.Pi / 180
	if math.Abs(phi) > math.Pi/2+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	dl := normLon(lon*math.Pi/180 - s.lon0)
	return s.x0 + s.r*dl*math.Cos(phi), s.y0 + s.r*phi, nil
}

func (s sinusoidal) inverse(x, y float64) (float64, float64, error) {
	phi := (y - s.y0) / s.r
	if math.Abs(phi) > math.Pi/2+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	var dl float64
	if c := math.Cos(phi); c > poleEps {
		dl = (x - s.x0) / (s.r * c)
	}
	if math.Abs(dl) > math.Pi+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	return (s.lon0 + dl) * 180 / math.Pi, phi * 180 / math.Pi, nil
}

type mollweide struct {
	falseOrigin
	r float64
}

func newMollweide(params map[string]string) (planar, error) {
	o, err := newFalseOrigin(params)
	if err != nil {
		return nil, err
	}
	r, err := sphereRadius(params)
	if err != nil {
		return nil, err
	}
	return mollweide{falseOrigin: o, r: r}, nil
}

// auxiliary solves 2θ + sin 2θ = π sin φ by Newton iteration.
func (mollweide) auxiliary(phi float64) float64 {
	if math.Abs(phi) >= math.Pi/2-poleEps {
		return math.Copysign(math.Pi/2, phi)
	}
	target := math.Pi * math.Sin(phi)
	theta := phi
	for range 50 {
		d := (2*theta + math.Sin(2*theta) - target) / (2 + 2*math.Cos(2*theta))
		theta -= d
		if math.Abs(d) < 1e-14 {
			break
		}
	}
	return theta
}

func (m mollweide) forward(lon, lat float64) (float64, float64, error) {
	phi := lat * math.Pi / 180
	if math.Abs(phi) > math.Pi/2+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	theta := m.auxiliary(phi)
	dl := normLon(lon*math.Pi/180 - m.lon0)
	x := m.r * 2 * math.Sqrt2 / math.Pi * dl * math.Cos(theta)
	y := m.r * math.Sqrt2 * math.Sin(theta)
	return m.x0 + x, m.y0 + y, nil
}

func (m mollweide) inverse(x, y float64) (float64, float64, error) {
	s := (y - m.y0) / (m.r * math.Sqrt2)
	if math.Abs(s) > 1+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	theta := math.Asin(math.Max(-1, math.Min(1, s)))
	phi := math.Asin(math.Max(-1, math.Min(1, (2*theta+math.Sin(2*theta))/math.Pi)))
	var dl float64
	if c := math.Cos(theta); c > poleEps {
		dl = math.Pi * (x - m.x0) / (2 * m.r * math.Sqrt2 * c)
	}
	if math.Abs(dl) > math.Pi+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	return (m.lon0 + dl) * 180 / math.Pi, phi * 180 / math.Pi, nil
}

// laea is the oblique ellipsoidal Lambert azimuthal equal-area projection
// (Snyder, Map Projections: A Working Manual, eqs. 3-12 to 3-18, 24-16 to
// 24-29).
type laea struct {
	falseOrigin
	e2, e      float64
	qp, rq, d  float64
	sinB1, cB1 float64
}

func newLAEA(params map[string]string) (planar, error) {
	o, err := newFalseOrigin(params)
	if err != nil {
		return nil, err
	}
	lat0, err := floatParam(params, "lat_0", 0)
	if err != nil {
		return nil, err
	}
	a, f, err := ellipsoid(params)
	if err != nil {
		return nil, err
	}
	if f == 0 {
		return nil, errors.New("laea needs an ellipsoid, not a sphere")
	}
	p := laea{falseOrigin: o, e2: 2*f - f*f}
	p.e = math.Sqrt(p.e2)
	p.qp = p.q(math.Pi / 2)
	p.rq = a * math.Sqrt(p.qp/2)

	phi1 := lat0 * math.Pi / 180
	b1 := math.Asin(p.q(phi1) / p.qp)
	p.sinB1, p.cB1 = math.Sincos(b1)
	sinPhi1 := math.Sin(phi1)
	p.d = a * (math.Cos(phi1) / math.Sqrt(1-p.e2*sinPhi1*sinPhi1)) / (p.rq * p.cB1)
	return p, nil
}

func (p laea) q(phi float64) float64 {
	s := math.Sin(phi)
	return (1 - p.e2) * (s/(1-p.e2*s*s) - math.Log((1-p.e*s)/(1+p.e*s))/(2*p.e))
}

func (p laea) forward(lon, lat float64) (float64, float64, error) {
	phi := lat * math.Pi / 180
	if math.Abs(phi) > math.Pi/2+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	phi = math.Max(-math.Pi/2, math.Min(math.Pi/2, phi))
	beta := math.Asin(math.Max(-1, math.Min(1, p.q(phi)/p.qp)))
	sinB, cosB := math.Sincos(beta)
	dl := normLon(lon*math.Pi/180 - p.lon0)
	denom := 1 + p.sinB1*sinB + p.cB1*cosB*math.Cos(dl)
	if denom <= poleEps {
		return 0, 0, ErrOutsideProjection
	}
	b := p.rq * math.Sqrt(2/denom)
	x := b * p.d * cosB * math.Sin(dl)
	y := (b / p.d) * (p.cB1*sinB - p.sinB1*cosB*math.Cos(dl))
	return p.x0 + x, p.y0 + y, nil
}

func (p laea) inverse(x, y float64) (float64, float64, error) {
	x -= p.x0
	y -= p.y0
	rho := math.Hypot(x/p.d, p.d*y)
	if rho < poleEps {
		return p.lon0 * 180 / math.Pi, p.latitude(math.Asin(p.sinB1)) * 180 / math.Pi, nil
	}
	if rho > 2*p.rq+poleEps {
		return 0, 0, ErrOutsideProjection
	}
	ce := 2 * math.Asin(math.Min(1, rho/(2*p.rq)))
	sinCe, cosCe := math.Sincos(ce)
	beta := math.Asin(math.Max(-1, math.Min(1, cosCe*p.sinB1+p.d*y*sinCe*p.cB1/rho)))
	dl := math.Atan2(x*sinCe, p.d*p.cB1*rho*cosCe-p.d*p.d*y*p.sinB1*sinCe)
	return (p.lon0 + dl) * 180 / math.Pi, p.latitude(beta) * 180 / math.Pi, nil
}

// latitude converts an authalic latitude back to geodetic (Snyder 3-18).
func (p laea) latitude(beta float64) float64 {
	e4 := p.e2 * p.e2
	e6 := e4 * p.e2
	return beta +
		(p.e2/3+31*e4/180+517*e6/5040)*math.Sin(2*beta) +
		(23*e4/360+251*e6/3780)*math.Sin(4*beta) +
		(761*e6/45360)*math.Sin(6*beta)
}
