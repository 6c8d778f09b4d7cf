package boundary

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/couchcryptid/geodata-etl/internal/spatial"
	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
)

// readShapefile decodes every polygon record of a shapefile. The CRS is the
// text of the .prj sidecar; without one the shapes are taken as lon/lat.
// Sidecar extensions match in any case.
func readShapefile(path, nameField string, norm *domain.NameNormalizer) ([]domain.Boundary, error) {
	crs, err := prjText(path)
	if err != nil {
		return nil, err
	}

	src, cleanup, err := stageShapefile(path)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	dec, err := shp.NewDecoder(src)
	if err != nil {
		return nil, fmt.Errorf("open shapefile: %w", err)
	}
	defer dec.Close()

	if crs != spatial.LongLat {
		if _, err := dec.SR(); err != nil {
			return nil, fmt.Errorf("shapefile projection: %w", err)
		}
	}

	var out []domain.Boundary
	for {
		g, fields, more := dec.DecodeRowFields(nameField)
		if !more {
			break
		}
		raw, ok := fields[nameField]
		if !ok {
			return nil, fmt.Errorf("shapefile record %d: missing attribute %q", len(out), nameField)
		}
		shape, ok := g.(geom.Polygonal)
		if !ok {
			return nil, fmt.Errorf("shapefile record %d (%s): got %T, want polygon", len(out), raw, g)
		}
		raw = strings.TrimSpace(raw)
		out = append(out, domain.Boundary{
			Name:    norm.Normalize(raw),
			RawName: raw,
			Shape:   shape,
			CRS:     crs,
		})
	}
	if err := dec.Error(); err != nil {
		return nil, fmt.Errorf("decode shapefile: %w", err)
	}
	return out, nil
}

// shapefileParts are the sidecars the decoder opens by lowercase name.
var shapefileParts = []string{".shp", ".shx", ".dbf", ".prj"}

// sidecar finds the file next to shpPath with the same base name and the
// given extension, comparing the extension without regard to case.
func sidecar(shpPath, ext string) (string, bool, error) {
	base := strings.TrimSuffix(shpPath, filepath.Ext(shpPath))
	for _, candidate := range []string{base + ext, base + strings.ToUpper(ext)} {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		}
	}
	entries, err := os.ReadDir(filepath.Dir(shpPath))
	if err != nil {
		return "", false, fmt.Errorf("list shapefile directory: %w", err)
	}
	want := filepath.Base(base) + ext
	for _, e := range entries {
		if !e.IsDir() && strings.EqualFold(e.Name(), want) {
			return filepath.Join(filepath.Dir(shpPath), e.Name()), true, nil
		}
	}
	return "", false, nil
}

// stageShapefile returns a path the decoder can open. The decoder finds
// sidecars by appending lowercase extensions, so a set named any other way
// is linked into a temporary directory under lowercase names.
func stageShapefile(path string) (string, func(), error) {
	noop := func() {}
	if filepath.Ext(path) == ".shp" {
		if _, err := os.Stat(strings.TrimSuffix(path, ".shp") + ".dbf"); err == nil {
			return path, noop, nil
		}
	}

	dir, err := os.MkdirTemp("", "boundary-shp-")
	if err != nil {
		return "", noop, fmt.Errorf("stage shapefile: %w", err)
	}
	cleanup := func() { _ = os.RemoveAll(dir) }
	for _, ext := range shapefileParts {
		part, ok, err := sidecar(path, ext)
		if err != nil {
			cleanup()
			return "", noop, err
		}
		if !ok {
			continue
		}
		abs, err := filepath.Abs(part)
		if err != nil {
			cleanup()
			return "", noop, fmt.Errorf("stage shapefile: %w", err)
		}
		if err := os.Symlink(abs, filepath.Join(dir, "boundary"+ext)); err != nil {
			cleanup()
			return "", noop, fmt.Errorf("stage shapefile: %w", err)
		}
	}
	return filepath.Join(dir, "boundary.shp"), cleanup, nil
}

func prjText(shpPath string) (string, error) {
	prj, ok, err := sidecar(shpPath, ".prj")
	if err != nil {
		return "", err
	}
	if !ok {
		return spatial.LongLat, nil
	}
	b, err := os.ReadFile(prj)
	if errors.Is(err, fs.ErrNotExist) {
		return spatial.LongLat, nil
	}
	if err != nil {
		return "", fmt.Errorf("read projection: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return spatial.LongLat, nil
}
