package boundary

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/ctessum/geom"
)

type featureCollection struct {
	Type     string    `json:"type"`
	CRS      *namedCRS `json:"crs,omitempty"`
	Features []feature `json:"features"`
}

// namedCRS is the pre-RFC 7946 "crs" member, still written by GDAL for
// projected outputs.
type namedCRS struct {
	Type       string `json:"type"`
	Properties struct {
		Name string `json:"name"`
	} `json:"properties"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *geometry      `json:"geometry"`
}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// readGeoJSON decodes the Polygon and MultiPolygon features of a
// FeatureCollection. Features of other geometry types are skipped.
func readGeoJSON(path, nameField string, norm *domain.NameNormalizer) ([]domain.Boundary, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	var fc featureCollection
	if err := json.Unmarshal(b, &fc); err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	if !strings.EqualFold(fc.Type, "FeatureCollection") {
		return nil, fmt.Errorf("decode geojson: type %q, want FeatureCollection", fc.Type)
	}
	crs, err := fc.CRS.proj4()
	if err != nil {
		return nil, err
	}

	var out []domain.Boundary
	for i, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		shape, ok, err := f.Geometry.polygonal()
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if !ok {
			continue
		}
		v, ok := f.Properties[nameField]
		if !ok || v == nil {
			return nil, fmt.Errorf("feature %d: missing property %q", i, nameField)
		}
		raw := strings.TrimSpace(fmt.Sprint(v))
		out = append(out, domain.Boundary{
			Name:    norm.Normalize(raw),
			RawName: raw,
			Shape:   shape,
			CRS:     crs,
		})
	}
	return out, nil
}

// proj4 resolves names like "EPSG:3035" or
// "urn:ogc:def:crs:EPSG::3035". A missing member means WGS 84.
func (c *namedCRS) proj4() (string, error) {
	if c == nil || c.Properties.Name == "" {
		return spatial.LongLat, nil
	}
	name := c.Properties.Name
	if strings.HasSuffix(name, "CRS84") {
		return spatial.LongLat, nil
	}
	i := strings.LastIndex(name, ":")
	code, err := strconv.Atoi(name[i+1:])
	if err != nil {
		return "", fmt.Errorf("geojson crs %q: %w", name, domain.ErrUnsupportedFormat)
	}
	def, ok := spatial.FromEPSG(code)
	if !ok {
		return "", fmt.Errorf("geojson crs %q: %w", name, domain.ErrUnsupportedFormat)
	}
	return def, nil
}

func (g *geometry) polygonal() (geom.Polygonal, bool, error) {
	switch g.Type {
	case "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, false, fmt.Errorf("polygon coordinates: %w", err)
		}
		return toPolygon(rings), true, nil
	case "MultiPolygon":
		var parts [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &parts); err != nil {
			return nil, false, fmt.Errorf("multipolygon coordinates: %w", err)
		}
		mp := make(geom.MultiPolygon, 0, len(parts))
		for _, rings := range parts {
			mp = append(mp, toPolygon(rings))
		}
		return mp, true, nil
	default:
		return nil, false, nil
	}
}

func toPolygon(rings [][][]float64) geom.Polygon {
	poly := make(geom.Polygon, 0, len(rings))
	for _, ring := range rings {
		path := make(geom.Path, 0, len(ring))
		for _, p := range ring {
			if len(p) < 2 {
				continue
			}
			path = append(path, geom.Point{X: p[0], Y: p[1]})
		}
		poly = append(poly, path)
	}
	return poly
}
