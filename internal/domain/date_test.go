package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractTime(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		path string
		want TimeValue
	}{
		{"modis day 32", SourceMODIS, "data/istanbul/modis/terra/MOD11A1.A2011032.h20v04.006.tif",
			DateOf(time.Date(2011, time.February, 1, 0, 0, 0, 0, time.UTC))},
		{"modis day 1", SourceMODIS, "MYD11A1.A2018001.h20v05.tif",
			DateOf(time.Date(2018, time.January, 1, 0, 0, 0, 0, time.UTC))},
		{"modis leap day 366", SourceMODIS, "MOD11A1.A2012366.h20v04.tif",
			DateOf(time.Date(2012, time.December, 31, 0, 0, 0, 0, time.UTC))},
		{"dmsp", SourceDMSP, "data/common/dmsp/F142012.v4c_web.stable_lights.avg_vis.tif", YearOf(2012)},
		{"corine", SourceCORINE, "data/common/corine/CLC2018_V2020_20u1.tif", YearOf(2018)},
		{"ghs", SourceGHS, "data/common/ghs/POP2015_54009_250.tif", YearOf(2015)},
		{"marker only in base name", SourceDMSP, "Frames/F182013.tif", YearOf(2013)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTime(tt.src, tt.path)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

func TestExtractTime_Malformed(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		path string
	}{
		{"modis without marker", SourceMODIS, "MOD11A1.h20v04.tif"},
		{"modis short day", SourceMODIS, "MOD11A1.A20110.tif"},
		{"modis day zero", SourceMODIS, "MOD11A1.A2011000.tif"},
		{"modis day 366 in common year", SourceMODIS, "MOD11A1.A2011366.tif"},
		{"dmsp without marker", SourceDMSP, "stable_lights.tif"},
		{"dmsp non-numeric year", SourceDMSP, "F14abcd.tif"},
		{"corine truncated", SourceCORINE, "CLC20"},
		{"ghs without marker", SourceGHS, "settlement_2015.tif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ExtractTime(tt.src, tt.path)
			var mf *MalformedFilenameError
			require.True(t, errors.As(err, &mf), "got %v", err)
			assert.Equal(t, tt.path, mf.Path)
		})
	}
}

func TestExtractTime_UnknownSource(t *testing.T) {
	_, err := ExtractTime(SourcePopulation, "population.xlsx")
	assert.ErrorIs(t, err, ErrUnknownSource)
}
