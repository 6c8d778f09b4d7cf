// Package domain models provincial geospatial and tabular datasets: rasters
// of satellite and land-cover products, province boundaries, population and
// weather-station tables, and the scalar summaries derived from them.
//
// # Data Sources
//
// Every dataset lives under a storage root as
//
//	{province|common}/{source}/{sub-source?}/*
//
// where "common" holds products that cover the whole country and are clipped
// per province after loading.
//
//	modis       MODIS land-surface temperature, daily, per sinusoidal tile
//	dmsp        DMSP-OLS stable night lights, annual, common
//	corine      CORINE land cover, categorical, common
//	ghs         GHS settlement population grid, common
//	population  provincial population spreadsheet, common
//	station     weather-station spreadsheets, per province
//
// # File Name Conventions
//
// Raster file names carry their time coordinate after a fixed marker. The
// markers are load-bearing and are searched for in the base name only:
//
//	MODIS   "A2" then YYYYDDD     MOD11A1.A2011032.h20v04.006.tif → 2011-02-01
//	DMSP    "F" then SS then YYYY  F142012.v4c_web.stable_lights.avg_vis.tif → 2012
//	CORINE  "CLC" then YYYY        CLC2012_V2020_20u1.tif → 2012
//	GHS     "POP" then YYYY        POP2015_54009_250.tif → 2015
//
// A missing marker or non-numeric field is reported as a
// [MalformedFilenameError]; no time value is ever guessed.
//
// # Missing Values
//
// Raster cells and table measurements use NaN as the only missing-value
// marker. File nodata sentinels are kept on [Raster.NoData] until the raster
// has been clipped and are then converted by [Raster.MaskNoData]. Station
// spreadsheets use -999 for missing readings.
//
// # Province Names
//
// Boundary attributes and spreadsheets spell province names inconsistently:
// with or without Turkish letters, in mixed case, and sometimes as UTF-8
// bytes mis-decoded through Windows-1250 or Windows-1252 ("Ä°stanbul").
// [NameNormalizer] repairs such sequences, folds the Turkish letters
// Ç Ğ İ ı Ö Ş Ü Â to ASCII and lowercases, so "İSTANBUL", "Ä°stanbul" and
// "istanbul" compare equal. Sequences that cannot be repaired pass through
// unchanged and are reported to the normalizer's failure callback.
//
// # Land-Use Classes
//
// CORINE level-3 codes are grouped into urban (1-11), agriculture (12-22),
// forest (23-34), wetlands (35-39) and water (40-45). The aggregate groups
// "all" (1-45) and "all_but_water" (1-39) exist for counting only and are
// rejected by classification, which requires disjoint sets.
//
// # Seasons
//
// Seasonal means band the day of year as DJF 336-366 and 1-91, MAM 92-182,
// JJA 183-274, SON 275-335.
//
// # Summary IDs
//
// Summary record IDs are the source name plus a truncated SHA-256 of
// province|source|metric|period, so repeated runs upsert in place.
package domain
