package netcdf

import (
	"fmt"
	"os"
	"slices"

	"github.com/ctessum/cdf"
)

// cfAttributes are the variable attributes the reader interprets.
var cfAttributes = []string{"units", "_FillValue", "scale_factor", "add_offset", "long_name"}

type classicDataset struct {
	file *os.File
	nc   *cdf.File
}

func openClassic(path string) (dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf: %w", err)
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("open netcdf %s: %w", path, err)
	}
	return &classicDataset{file: f, nc: nc}, nil
}

func (d *classicDataset) close() error {
	return d.file.Close()
}

func (d *classicDataset) variable(name string) (*variable, error) {
	if !slices.Contains(d.nc.Header.Variables(), name) {
		return nil, fmt.Errorf("variable %q not found", name)
	}
	shape := d.nc.Header.Lengths(name)
	n := 1
	for _, l := range shape {
		n *= l
	}
	values, err := d.readAll(name, n)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v := &variable{
		dims:   d.nc.Header.Dimensions(name),
		shape:  shape,
		values: values,
		attrs:  make(map[string]any),
	}
	for _, a := range cfAttributes {
		if val := d.nc.Header.GetAttribute(name, a); val != nil {
			v.attrs[a] = val
		}
	}
	return v, nil
}

// readAll reads n values of whatever numeric type the variable is stored
// as. The reader rejects buffers of the wrong element type, so each
// candidate gets a fresh reader.
func (d *classicDataset) readAll(name string, n int) ([]float64, error) {
	candidates := []func() any{
		func() any { return make([]float32, n) },
		func() any { return make([]float64, n) },
		func() any { return make([]int16, n) },
		func() any { return make([]int32, n) },
		func() any { return make([]int8, n) },
		func() any { return make([]uint8, n) },
	}
	var lastErr error
	for _, mk := range candidates {
		buf := mk()
		if _, err := d.nc.Reader(name, nil, nil).Read(buf); err != nil {
			lastErr = err
			continue
		}
		return flatten(buf), nil
	}
	return nil, lastErr
}
