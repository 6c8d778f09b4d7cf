package pipeline

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/adapter/geotiff"
	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/ctessum/geom"
	"github.com/spf13/viper"
)

// WindowKind selects how a source is subset when it is read.
type WindowKind int

const (
	WindowNone WindowKind = iota
	WindowCells
	WindowLonLat
)

// Window is the part of each file a source keeps. Cell windows are integer
// column/row ranges; lon/lat windows are WGS 84 bounds mapped onto the file
// grid.
type Window struct {
	Kind WindowKind

	Col, Row      int
	Width, Height int

	MinLon, MinLat float64
	MaxLon, MaxLat float64
}

// CellRange returns a window of width × height cells starting at (col, row).
func CellRange(col, row, width, height int) Window {
	return Window{Kind: WindowCells, Col: col, Row: row, Width: width, Height: height}
}

// LonLatRange returns a window covering the given WGS 84 bounds.
func LonLatRange(minLon, minLat, maxLon, maxLat float64) Window {
	return Window{Kind: WindowLonLat, MinLon: minLon, MinLat: minLat, MaxLon: maxLon, MaxLat: maxLat}
}

// resolve turns the window into cells of g. A nil result reads the whole
// file. Windows are clamped to the grid; one that misses it entirely is
// ErrNoDataInBounds.
func (w Window) resolve(g domain.Grid) (*geotiff.Window, error) {
	switch w.Kind {
	case WindowNone:
		return nil, nil
	case WindowCells:
		col0, row0 := max(w.Col, 0), max(w.Row, 0)
		col1, row1 := min(w.Col+w.Width, g.Width), min(w.Row+w.Height, g.Height)
		if col0 >= col1 || row0 >= row1 {
			return nil, fmt.Errorf("cell window %d,%d %dx%d: %w", w.Col, w.Row, w.Width, w.Height, domain.ErrNoDataInBounds)
		}
		return &geotiff.Window{Col: col0, Row: row0, Width: col1 - col0, Height: row1 - row0}, nil
	case WindowLonLat:
		bounds, err := w.boundsIn(g.CRS)
		if err != nil {
			return nil, err
		}
		col, row, width, height, ok := spatial.CellWindow(g, bounds)
		if !ok {
			return nil, fmt.Errorf("lon/lat window %v..%v, %v..%v: %w", w.MinLon, w.MaxLon, w.MinLat, w.MaxLat, domain.ErrNoDataInBounds)
		}
		return &geotiff.Window{Col: col, Row: row, Width: width, Height: height}, nil
	default:
		return nil, fmt.Errorf("unknown window kind %d", int(w.Kind))
	}
}

// boundsIn projects the window corners into crs and returns their extent.
func (w Window) boundsIn(crs string) (*geom.Bounds, error) {
	if crs == "" {
		return nil, domain.ErrMissingCRS
	}
	t, err := spatial.Transformer(spatial.LongLat, crs)
	if err != nil {
		return nil, err
	}
	b := &geom.Bounds{
		Min: geom.Point{X: math.Inf(1), Y: math.Inf(1)},
		Max: geom.Point{X: math.Inf(-1), Y: math.Inf(-1)},
	}
	for _, c := range [][2]float64{
		{w.MinLon, w.MinLat}, {w.MinLon, w.MaxLat}, {w.MaxLon, w.MinLat}, {w.MaxLon, w.MaxLat},
	} {
		x, y, err := t(c[0], c[1])
		if err != nil {
			return nil, fmt.Errorf("project window corner: %w", err)
		}
		b.Min.X, b.Min.Y = math.Min(b.Min.X, x), math.Min(b.Min.Y, y)
		b.Max.X, b.Max.Y = math.Max(b.Max.X, x), math.Max(b.Max.Y, y)
	}
	return b, nil
}

// SourceSpec describes how one raster source is read.
type SourceSpec struct {
	// CRS is assigned to files that carry no georeferencing of their own.
	CRS    string
	Window Window
	// MaskAfterClip defers nodata masking until the raster has been clipped,
	// so the sentinel survives the window read.
	MaskAfterClip bool
}

// Catalog is the immutable layout configuration of the raster sources: the
// MODIS tiles covering each province, the seams joining multi-tile
// provinces, and per-source read windows.
type Catalog struct {
	Sources         map[domain.Source]SourceSpec
	Tiles           map[string][]string
	Seams           map[string]spatial.Seam
	MODISVariable   string
	MergedMODISFile string
}

// DefaultCatalog returns the layout of the national archive.
func DefaultCatalog() *Catalog {
	corineCRS, _ := spatial.FromEPSG(3035)
	ghsCRS, _ := spatial.FromEPSG(54009)
	return &Catalog{
		Sources: map[domain.Source]SourceSpec{
			domain.SourceMODIS:  {CRS: spatial.MODISSinusoidal},
			domain.SourceDMSP:   {CRS: spatial.LongLat, Window: LonLatRange(25, 37, 35, 42)},
			domain.SourceCORINE: {CRS: corineCRS, Window: CellRange(48000, 31000, 8000, 9000), MaskAfterClip: true},
			domain.SourceGHS:    {CRS: ghsCRS, MaskAfterClip: true},
		},
		Tiles: map[string][]string{
			"istanbul": {"h20v04"},
			"ankara":   {"h20v04", "h20v05"},
			"izmir":    {"h20v04"},
		},
		Seams: map[string]spatial.Seam{
			"ankara": {Row: 120, Limit: 284},
		},
		MODISVariable:   "LST_Day_1km",
		MergedMODISFile: "merged_2011_2018.nc",
	}
}

// Spec returns the read settings of a raster source.
func (c *Catalog) Spec(src domain.Source) (SourceSpec, error) {
	spec, ok := c.Sources[src]
	if !ok {
		return SourceSpec{}, fmt.Errorf("%w: %q is not a raster source", domain.ErrUnknownSource, src)
	}
	return spec, nil
}

// TilesFor lists the MODIS tiles of a province, north to south.
func (c *Catalog) TilesFor(province string) ([]string, error) {
	tiles, ok := c.Tiles[province]
	if !ok || len(tiles) == 0 {
		return nil, &domain.ProvinceNotFoundError{Province: province, Where: "tile catalog"}
	}
	return slices.Clone(tiles), nil
}

// SeamFor returns the seam joining a two-tile province.
func (c *Catalog) SeamFor(province string) (spatial.Seam, error) {
	seam, ok := c.Seams[province]
	if !ok {
		return spatial.Seam{}, fmt.Errorf("no seam configured for %q", province)
	}
	return seam, nil
}

// Validate checks that every multi-tile province has exactly two tiles and
// a seam.
func (c *Catalog) Validate() error {
	var errs []error
	for province, tiles := range c.Tiles {
		switch {
		case len(tiles) == 0:
			errs = append(errs, fmt.Errorf("province %q has no tiles", province))
		case len(tiles) > 2:
			errs = append(errs, fmt.Errorf("province %q has %d tiles, at most 2 can be merged", province, len(tiles)))
		case len(tiles) == 2:
			if _, ok := c.Seams[province]; !ok {
				errs = append(errs, fmt.Errorf("province %q has two tiles but no seam", province))
			}
		}
	}
	if c.MODISVariable == "" {
		errs = append(errs, errors.New("modis variable is empty"))
	}
	return errors.Join(errs...)
}

// catalogFile is the YAML (or JSON/TOML) form of a catalog override.
type catalogFile struct {
	MODISVariable   string                `mapstructure:"modis_variable"`
	MergedMODISFile string                `mapstructure:"merged_modis_file"`
	Tiles           map[string][]string   `mapstructure:"tiles"`
	Seams           map[string]seamFile   `mapstructure:"seams"`
	Sources         map[string]sourceFile `mapstructure:"sources"`
}

type seamFile struct {
	Row   int `mapstructure:"row"`
	Limit int `mapstructure:"limit"`
}

type sourceFile struct {
	CRS    string      `mapstructure:"crs"`
	EPSG   int         `mapstructure:"epsg"`
	Window *windowFile `mapstructure:"window"`
}

type windowFile struct {
	Kind   string  `mapstructure:"kind"` // none, cells, lonlat
	Col    int     `mapstructure:"col"`
	Row    int     `mapstructure:"row"`
	Width  int     `mapstructure:"width"`
	Height int     `mapstructure:"height"`
	MinLon float64 `mapstructure:"min_lon"`
	MinLat float64 `mapstructure:"min_lat"`
	MaxLon float64 `mapstructure:"max_lon"`
	MaxLat float64 `mapstructure:"max_lat"`
}

// LoadCatalog reads a catalog file and overlays it on DefaultCatalog. Tile
// lists and seams replace the defaults per province; source entries replace
// only the fields they set. An empty path returns the defaults.
func LoadCatalog(path string) (*Catalog, error) {
	c := DefaultCatalog()
	if path == "" {
		return c, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}
	var f catalogFile
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	if f.MODISVariable != "" {
		c.MODISVariable = f.MODISVariable
	}
	if f.MergedMODISFile != "" {
		c.MergedMODISFile = f.MergedMODISFile
	}
	for province, tiles := range f.Tiles {
		c.Tiles[domain.NormalizeName(province)] = tiles
	}
	for province, s := range f.Seams {
		c.Seams[domain.NormalizeName(province)] = spatial.Seam{Row: s.Row, Limit: s.Limit}
	}
	for name, sf := range f.Sources {
		src, err := domain.ParseSource(name)
		if err != nil {
			return nil, fmt.Errorf("catalog %s: %w", path, err)
		}
		spec := c.Sources[src]
		if err := sf.apply(&spec); err != nil {
			return nil, fmt.Errorf("catalog %s: source %s: %w", path, src, err)
		}
		c.Sources[src] = spec
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}
	return c, nil
}

func (sf sourceFile) apply(spec *SourceSpec) error {
	switch {
	case sf.CRS != "":
		spec.CRS = sf.CRS
	case sf.EPSG != 0:
		def, ok := spatial.FromEPSG(sf.EPSG)
		if !ok {
			return fmt.Errorf("epsg %d: %w", sf.EPSG, domain.ErrUnsupportedFormat)
		}
		spec.CRS = def
	}
	if sf.Window == nil {
		return nil
	}
	w := sf.Window
	switch strings.ToLower(w.Kind) {
	case "", "none":
		spec.Window = Window{}
	case "cells":
		spec.Window = CellRange(w.Col, w.Row, w.Width, w.Height)
	case "lonlat":
		spec.Window = LonLatRange(w.MinLon, w.MinLat, w.MaxLon, w.MaxLat)
	default:
		return fmt.Errorf("unknown window kind %q", w.Kind)
	}
	return nil
}
