// Package vector reads and writes the file formats footprint exchanges
// with GIS tooling: GeoJSON FeatureCollections for buildings and units,
// CSV for accuracy and correspondence tables.
//
// All coordinates are passed through unchanged. Inputs must already be
// projected into a shared planar CRS.
package vector
