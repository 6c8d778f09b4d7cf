// Package netcdf reads gridded products stored as netCDF. Classic files go
// through ctessum/cdf and netCDF-4 (HDF5) files through go-native-netcdf.
package netcdf

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"
	"reflect"
	"strings"

	"github.com/couchcryptid/geodata-etl/internal/domain"
)

// variable is one decoded array with its CF attributes.
type variable struct {
	dims   []string
	shape  []int
	values []float64
	attrs  map[string]any
}

type dataset interface {
	variable(name string) (*variable, error)
	close() error
}

var (
	magicClassic = []byte("CDF")
	magicHDF5    = []byte("\x89HDF\r\n\x1a\n")
)

func open(path string) (dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	head := make([]byte, 8)
	_, err = io.ReadFull(f, head)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	switch {
	case bytes.HasPrefix(head, magicClassic):
		return openClassic(path)
	case bytes.Equal(head, magicHDF5):
		return openHDF5(path)
	default:
		return nil, fmt.Errorf("open netcdf %s: %w", path, domain.ErrUnsupportedFormat)
	}
}

// Read loads varName as a raster with dimensions (time, y, x) or (y, x).
// Packed values are decoded with scale_factor and add_offset, and _FillValue
// cells become NaN. The CRS is left empty for the caller to assign.
func Read(path, varName string) (*domain.Raster, error) {
	ds, err := open(path)
	if err != nil {
		return nil, err
	}
	defer ds.close()

	v, err := ds.variable(varName)
	if err != nil {
		return nil, fmt.Errorf("read %s from %s: %w", varName, path, err)
	}
	if len(v.shape) != 2 && len(v.shape) != 3 {
		return nil, fmt.Errorf("read %s from %s: %d dimensions, want 2 or 3: %w", varName, path, len(v.shape), domain.ErrUnsupportedFormat)
	}
	yDim, xDim := v.dims[len(v.dims)-2], v.dims[len(v.dims)-1]
	height, width := v.shape[len(v.shape)-2], v.shape[len(v.shape)-1]

	want := 1
	for _, n := range v.shape {
		want *= n
	}
	if len(v.values) != want {
		return nil, fmt.Errorf("read %s from %s: %d values for shape %v", varName, path, len(v.values), v.shape)
	}
	xs := coordinate(ds, xDim, width)
	ys := coordinate(ds, yDim, height)

	times := []domain.TimeValue{{}}
	if len(v.shape) == 3 {
		if times, err = timeAxis(ds, v.dims[0], v.shape[0]); err != nil {
			return nil, fmt.Errorf("read %s from %s: %w", varName, path, err)
		}
	}

	decode(v)
	flipY := len(ys) > 1 && ys[1] > ys[0]
	dx, dy := cellSize(xs), cellSize(ys)
	originY := ys[0] + math.Abs(dy)/2
	if flipY {
		originY = ys[len(ys)-1] + math.Abs(dy)/2
	}
	grid := domain.NewGrid(width, height, xs[0]-dx/2, originY, dx, dy, "")

	r := &domain.Raster{Grid: grid, XDim: xDim, YDim: yDim}
	r.Attrs.VarName = varName
	r.Attrs.Units = attrString(v.attrs["units"])
	n := width * height
	for i, t := range times {
		data := make([]float64, n)
		copy(data, v.values[i*n:(i+1)*n])
		if flipY {
			for row := 0; row < height/2; row++ {
				a := data[row*width : (row+1)*width]
				b := data[(height-1-row)*width : (height-row)*width]
				for c := range a {
					a[c], b[c] = b[c], a[c]
				}
			}
		}
		r.Slices = append(r.Slices, domain.Slice{Time: t, Data: data})
	}
	return r, nil
}

// coordinate returns the values of a dimension's coordinate variable, or
// cell indices when the file has none.
func coordinate(ds dataset, dim string, n int) []float64 {
	v, err := ds.variable(dim)
	if err != nil || len(v.values) != n {
		out := make([]float64, n)
		for i := range out {
			out[i] = float64(i)
		}
		return out
	}
	return v.values
}

func cellSize(c []float64) float64 {
	if len(c) < 2 {
		return 1
	}
	return (c[len(c)-1] - c[0]) / float64(len(c)-1)
}

// decode applies CF packing attributes in place.
func decode(v *variable) {
	fill, hasFill := number(v.attrs["_FillValue"])
	scale, hasScale := number(v.attrs["scale_factor"])
	offset, _ := number(v.attrs["add_offset"])
	if !hasScale {
		scale = 1
	}
	for i, x := range v.values {
		if hasFill && x == fill {
			v.values[i] = math.NaN()
			continue
		}
		v.values[i] = x*scale + offset
	}
}

// number extracts a scalar from an attribute value of any numeric type.
func number(a any) (float64, bool) {
	if a == nil {
		return 0, false
	}
	vals := flatten(a)
	if len(vals) == 0 {
		return 0, false
	}
	return vals[0], true
}

// flatten converts a numeric scalar, slice or nested slice to float64s.
func flatten(a any) []float64 {
	var out []float64
	var walk func(v reflect.Value)
	walk = func(v reflect.Value) {
		switch v.Kind() {
		case reflect.Slice, reflect.Array:
			for i := 0; i < v.Len(); i++ {
				walk(v.Index(i))
			}
		case reflect.Float32, reflect.Float64:
			out = append(out, v.Float())
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			out = append(out, float64(v.Int()))
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			out = append(out, float64(v.Uint()))
		case reflect.Interface, reflect.Pointer:
			if !v.IsNil() {
				walk(v.Elem())
			}
		}
	}
	walk(reflect.ValueOf(a))
	return out
}

// shapeOf returns the lengths of a nested slice value.
func shapeOf(a any) []int {
	var shape []int
	v := reflect.ValueOf(a)
	for v.Kind() == reflect.Slice {
		shape = append(shape, v.Len())
		if v.Len() == 0 {
			break
		}
		v = v.Index(0)
	}
	return shape
}

func attrString(a any) string {
	switch s := a.(type) {
	case string:
		return strings.TrimRight(s, "\x00")
	case []byte:
		return strings.TrimRight(string(s), "\x00")
	default:
		return ""
	}
}
