package netcdf

import (
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/geodata-etl/internal/domain"
	"github.com/ctessum/cdf"
)

const timeDim = "time"

// Write stores r as a classic netCDF file with a CF time axis and cell
// centre coordinates, holding varName as float32.
func Write(path string, r *domain.Raster, varName string) error {
	if r.Empty() {
		return fmt.Errorf("write netcdf %s: empty raster", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("write netcdf: %w", err)
	}
	defer f.Close()

	xDim, yDim := r.XDim, r.YDim
	if xDim == "" {
		xDim = domain.DimX
	}
	if yDim == "" {
		yDim = domain.DimY
	}
	g := r.Grid
	nt := len(r.Slices)

	h := cdf.NewHeader([]string{timeDim, yDim, xDim}, []int{nt, g.Height, g.Width})
	h.AddAttribute("", "title", varName)
	h.AddVariable(timeDim, []string{timeDim}, []float64{0})
	h.AddAttribute(timeDim, "units", formatTimeUnits(time.Unix(0, 0)))
	h.AddVariable(yDim, []string{yDim}, []float64{0})
	h.AddVariable(xDim, []string{xDim}, []float64{0})
	h.AddVariable(varName, []string{timeDim, yDim, xDim}, []float32{0})
	if r.Attrs.Units != "" {
		h.AddAttribute(varName, "units", r.Attrs.Units)
	}
	h.Define()

	nc, err := cdf.Create(f, h)
	if err != nil {
		return fmt.Errorf("write netcdf %s: %w", path, err)
	}

	days := make([]float64, nt)
	for i, s := range r.Slices {
		days[i] = float64(s.Time.Key()) / 86400
	}
	xs := make([]float64, g.Width)
	for c := range xs {
		xs[c], _ = g.CellCenter(c, 0)
	}
	ys := make([]float64, g.Height)
	for row := range ys {
		_, ys[row] = g.CellCenter(0, row)
	}
	values := make([]float32, 0, nt*g.Size())
	for _, s := range r.Slices {
		for _, v := range s.Data {
			values = append(values, float32(v))
		}
	}

	for _, w := range []struct {
		name string
		data any
	}{
		{timeDim, days},
		{yDim, ys},
		{xDim, xs},
		{varName, values},
	} {
		end := nc.Header.Lengths(w.name)
		if _, err := nc.Writer(w.name, make([]int, len(end)), end).Write(w.data); err != nil {
			return fmt.Errorf("write netcdf %s: variable %s: %w", path, w.name, err)
		}
	}
	if err := cdf.UpdateNumRecs(f); err != nil {
		return fmt.Errorf("write netcdf %s: %w", path, err)
	}
	return nil
}
