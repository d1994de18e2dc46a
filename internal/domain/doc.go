// Package domain models monthly earth-observation time series over a region
// of interest (ROI).
//
// # Data Sources
//
// Raw rasters come from public gridded collections, fetched through a raster
// provider (NetCDF files on disk or a remote raster API):
//
//	chirps_precipitation  CHIRPS pentad precipitation, mm.            Summed per month.
//	mod16_et              MODIS MOD16A2GF evapotranspiration, 0.1 mm.  Scaled by 0.1, summed per month.
//	terraclimate_pdsi     TERRACLIMATE Palmer Drought Severity Index.  Scaled by 0.01, one image per month.
//	sentinel2_sr          Sentinel-2 surface reflectance.              Scaled by 1/10000, per-image series.
//	mapbiomas_landcover   MapBiomas annual land-cover classification.  Integer class codes.
//
// Scale factors are applied once, at ingestion. The drought pipeline is the
// exception: it reads raw values and de-scales them itself.
//
// # Spatial Conventions
//
// All geometry is longitude/latitude (EPSG:4326). Polygon rings follow
// GeoJSON order [lon, lat]; a third (elevation) ordinate is dropped on parse.
//
// Grids are regular lon/lat lattices stored row-major with row 0 at the
// northern edge. A pixel belongs to a feature when its centre lies inside or
// on the feature boundary. Masked (no-data) pixels are NaN and are never
// counted as zero.
//
// # Periods
//
// Monthly analyses cover whole calendar years: a date range from 2020-05-10
// to 2023-02-01 produces the periods 2020-01 through 2022-12. A range that
// starts and ends inside the same year produces no periods.
//
// Every period with no contributing observation is dropped before joins and
// reductions and reported as a labeled gap (EmptyCompositeError).
package domain
