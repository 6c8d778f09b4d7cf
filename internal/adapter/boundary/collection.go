// Package boundary loads province polygons from shapefiles or GeoJSON and
// serves them by canonical name.
package boundary

import (
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
)

// Collection is an immutable set of province boundaries keyed by canonical
// name. It is safe for concurrent use.
type Collection struct {
	byName map[string]domain.Boundary
	names  []string
	index  *rtree.Rtree
}

// indexed is the rtree entry for one boundary.
type indexed struct {
	geom.Polygonal
	boundary domain.Boundary
}

// NewCollection indexes boundaries by their Name, which must already be
// canonical. Two boundaries with the same name are an error.
func NewCollection(boundaries []domain.Boundary) (*Collection, error) {
	c := &Collection{
		byName: make(map[string]domain.Boundary, len(boundaries)),
		index:  rtree.NewTree(25, 50),
	}
	for _, b := range boundaries {
		if _, dup := c.byName[b.Name]; dup {
			return nil, fmt.Errorf("%w: %q", domain.ErrDuplicateBoundary, b.Name)
		}
		c.byName[b.Name] = b
		c.names = append(c.names, b.Name)
		c.index.Insert(indexed{Polygonal: b.Shape, boundary: b})
	}
	slices.Sort(c.names)
	return c, nil
}

// Lookup returns the boundary of a province. The name is normalized first,
// so raw spellings from other sources resolve.
func (c *Collection) Lookup(province string) (domain.Boundary, error) {
	b, ok := c.byName[domain.NormalizeName(province)]
	if !ok {
		return domain.Boundary{}, &domain.ProvinceNotFoundError{Province: province, Where: "boundaries"}
	}
	return b, nil
}

// Names lists the canonical province names in sorted order.
func (c *Collection) Names() []string {
	return slices.Clone(c.names)
}

// Len is the number of boundaries.
func (c *Collection) Len() int {
	return len(c.names)
}

// Locate returns the province containing point (x, y) given in crs.
func (c *Collection) Locate(x, y float64, crs string) (string, bool, error) {
	for _, hit := range c.candidates(x, y, crs) {
		b := hit.(indexed).boundary
		px, py := x, y
		if crs != b.CRS {
			t, err := spatial.Transformer(crs, b.CRS)
			if err != nil {
				return "", false, fmt.Errorf("locate point: %w", err)
			}
			if px, py, err = t(x, y); err != nil {
				return "", false, fmt.Errorf("locate point: %w", err)
			}
		}
		if spatial.Contains(b.Shape, px, py) {
			return b.Name, true, nil
		}
	}
	return "", false, nil
}

// candidates narrows the search with the bounding-box index when every
// boundary shares the query CRS, and falls back to a full scan otherwise.
func (c *Collection) candidates(x, y float64, crs string) []geom.Geom {
	sameCRS := true
	for _, b := range c.byName {
		if b.CRS != crs {
			sameCRS = false
			break
		}
	}
	if sameCRS {
		return c.index.SearchIntersect(&geom.Bounds{Min: geom.Point{X: x, Y: y}, Max: geom.Point{X: x, Y: y}})
	}
	out := make([]geom.Geom, 0, len(c.names))
	for _, n := range c.names {
		b := c.byName[n]
		out = append(out, indexed{Polygonal: b.Shape, boundary: b})
	}
	return out
}

// Load reads boundaries from a shapefile (.shp) or GeoJSON file (.geojson,
// .json), normalizing the nameField attribute through norm.
func Load(path, nameField string, norm *domain.NameNormalizer) (*Collection, error) {
	var (
		boundaries []domain.Boundary
		err        error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".shp":
		boundaries, err = readShapefile(path, nameField, norm)
	case ".geojson", ".json":
		boundaries, err = readGeoJSON(path, nameField, norm)
	default:
		return nil, fmt.Errorf("load boundaries %s: %w", path, domain.ErrUnsupportedFormat)
	}
	if err != nil {
		return nil, fmt.Errorf("load boundaries %s: %w", path, err)
	}
	c, err := NewCollection(boundaries)
	if err != nil {
		return nil, fmt.Errorf("load boundaries %s: %w", path, err)
	}
	return c, nil
}
