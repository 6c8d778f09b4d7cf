package geotiff

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/spatial"
)

// GeoKey IDs.
const (
	keyModelType        = 1024
	keyRasterType       = 1025
	keyGeographicType   = 2048
	keySemiMajorAxis    = 2057
	keyProjectedCSType  = 3072
	keyProjCoordTrans   = 3075
	keyNatOriginLong    = 3080
	keyFalseEasting     = 3082
	keyFalseNorthing    = 3083
	keyCenterLong       = 3088
	userDefined         = 32767
	modelTypeProjected  = 1
	modelTypeGeographic = 2
	rasterPixelIsPoint  = 2
	ctSinusoidal        = 24
)

type geoKeys struct {
	shorts  map[int]int
	doubles map[int]float64
}

func parseGeoKeys(d *ifd) geoKeys {
	k := geoKeys{shorts: map[int]int{}, doubles: map[int]float64{}}
	dir := d.uints(tagGeoKeyDirectory)
	if len(dir) < 4 {
		return k
	}
	params := d.floats(tagGeoDoubleParams)
	n := int(dir[3])
	for i := 0; i < n && 4+4*i+3 < len(dir); i++ {
		e := dir[4+4*i:]
		id, loc, count, value := int(e[0]), e[1], e[2], int(e[3])
		switch {
		case loc == 0:
			k.shorts[id] = value
		case loc == tagGeoDoubleParams && count >= 1 && value < len(params):
			k.doubles[id] = params[value]
		}
	}
	return k
}

// crs derives a proj4 definition from the GeoKeys, or "" when the keys do
// not name a system this package knows.
func (k geoKeys) crs() string {
	if code, ok := k.shorts[keyProjectedCSType]; ok && code != userDefined {
		if def, ok := spatial.FromEPSG(code); ok {
			return def
		}
		return ""
	}
	switch k.shorts[keyModelType] {
	case modelTypeGeographic:
		if code, ok := k.shorts[keyGeographicType]; ok && code != userDefined {
			if def, ok := spatial.FromEPSG(code); ok {
				return def
			}
		}
		return spatial.LongLat
	case modelTypeProjected:
		if k.shorts[keyProjCoordTrans] == ctSinusoidal {
			lon := k.doubles[keyNatOriginLong]
			if v, ok := k.doubles[keyCenterLong]; ok {
				lon = v
			}
			radius := k.doubles[keySemiMajorAxis]
			if radius == 0 {
				return spatial.MODISSinusoidal
			}
			return fmt.Sprintf("+proj=sinu +lon_0=%s +x_0=%s +y_0=%s +R=%s +units=m +no_defs",
				ftoa(lon), ftoa(k.doubles[keyFalseEasting]), ftoa(k.doubles[keyFalseNorthing]), ftoa(radius))
		}
	}
	return ""
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// geoTransform builds a GDAL-ordered transform from the model tags.
func geoTransform(d *ifd, k geoKeys) ([6]float64, bool) {
	scale := d.floats(tagModelPixelScale)
	tie := d.floats(tagModelTiepoint)
	if len(scale) < 2 || len(tie) < 6 {
		return [6]float64{}, false
	}
	sx, sy := scale[0], scale[1]
	i, j, x, y := tie[0], tie[1], tie[3], tie[4]
	gt := [6]float64{x - i*sx, sx, 0, y + j*sy, 0, -sy}
	if k.shorts[keyRasterType] == rasterPixelIsPoint {
		gt[0] -= sx / 2
		gt[3] += sy / 2
	}
	return gt, true
}

func sidecar(path, ext string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ext
}

// readWorldFile parses an ESRI world file. Its translation terms locate the
// centre of the upper-left cell.
func readWorldFile(path string) ([6]float64, bool, error) {
	for _, ext := range []string{".tfw", ".tifw", ".wld"} {
		b, err := os.ReadFile(sidecar(path, ext))
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return [6]float64{}, false, fmt.Errorf("read world file: %w", err)
		}
		fields := strings.Fields(string(b))
		if len(fields) < 6 {
			return [6]float64{}, false, fmt.Errorf("world file %s: want 6 values, got %d", sidecar(path, ext), len(fields))
		}
		var v [6]float64
		for i := range v {
			if v[i], err = strconv.ParseFloat(fields[i], 64); err != nil {
				return [6]float64{}, false, fmt.Errorf("world file %s: %w", sidecar(path, ext), err)
			}
		}
		a, dd, b1, e, c, f := v[0], v[1], v[2], v[3], v[4], v[5]
		return [6]float64{c - a/2 - b1/2, a, b1, f - dd/2 - e/2, dd, e}, true, nil
	}
	return [6]float64{}, false, nil
}

// readPrj returns the WKT or proj4 text of a .prj sidecar, if present.
func readPrj(path string) (string, error) {
	b, err := os.ReadFile(sidecar(path, ".prj"))
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read prj: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

type gdalMetadata struct {
	Items []struct {
		Name   string `xml:"name,attr"`
		Sample string `xml:"sample,attr"`
		Role   string `xml:"role,attr"`
		Value  string `xml:",chardata"`
	} `xml:"Item"`
}

// parseMetadata flattens the GDAL_METADATA XML into lowercase keys. Band
// scale items are stored under "scale_factor".
func parseMetadata(text string) (map[string]string, error) {
	out := map[string]string{}
	if text == "" {
		return out, nil
	}
	var md gdalMetadata
	if err := xml.Unmarshal([]byte(text), &md); err != nil {
		return nil, fmt.Errorf("parse gdal metadata: %w", err)
	}
	for _, it := range md.Items {
		if it.Sample != "" && it.Sample != "0" {
			continue
		}
		key := strings.ToLower(it.Name)
		if strings.EqualFold(it.Role, "scale") {
			key = "scale_factor"
		}
		out[key] = strings.TrimSpace(it.Value)
	}
	return out, nil
}

func formatMetadata(md map[string]string, keys []string) string {
	var sb strings.Builder
	sb.WriteString("<GDALMetadata>")
	for _, k := range keys {
		sb.WriteString(`<Item name="`)
		xml.EscapeText(&sb, []byte(k))
		sb.WriteString(`">`)
		xml.EscapeText(&sb, []byte(md[k]))
		sb.WriteString("</Item>")
	}
	sb.WriteString("</GDALMetadata>")
	return sb.String()
}
