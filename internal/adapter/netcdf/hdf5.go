package netcdf

import (
	"fmt"

	"github.com/batchatco/go-native-netcdf/netcdf"
	"github.com/batchatco/go-native-netcdf/netcdf/api"
)

type hdf5Dataset struct {
	group api.Group
}

func openHDF5(path string) (dataset, error) {
	g, err := netcdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open netcdf-4 %s: %w", path, err)
	}
	return &hdf5Dataset{group: g}, nil
}

func (d *hdf5Dataset) close() error {
	d.group.Close()
	return nil
}

func (d *hdf5Dataset) variable(name string) (*variable, error) {
	vr, err := d.group.GetVariable(name)
	if err != nil {
		return nil, fmt.Errorf("variable %q: %w", name, err)
	}
	v := &variable{
		dims:   vr.Dimensions,
		shape:  shapeOf(vr.Values),
		values: flatten(vr.Values),
		attrs:  make(map[string]any),
	}
	for _, a := range cfAttributes {
		if val, ok := vr.Attributes.Get(a); ok {
			v.attrs[a] = val
		}
	}
	if len(v.shape) != len(v.dims) {
		return nil, fmt.Errorf("variable %q: shape %v does not match dimensions %v", name, v.shape, v.dims)
	}
	return v, nil
}
