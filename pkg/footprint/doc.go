// Package footprint reconciles two building-footprint datasets covering the
// same area: a reference cadastral dataset (primary) and a 3D city model
// derivative (secondary).
//
// Buildings are assigned to administrative units by largest overlap, then
// matched unit by unit in two stages: exact geometric equality first, then
// a symmetric overlap-ratio test. Matched primaries receive selected
// attributes from their secondary counterpart, and per-unit accuracy is
// reported.
//
// # Basic Usage
//
//	opts := footprint.DefaultRunOptions()
//	opts.Match.OverlapThreshold = 0.8
//
//	result, err := footprint.Run(ctx, kiban, plateau, towns, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, rec := range result.Accuracy {
//	    fmt.Printf("%s: %.1f%% matched\n", rec.Unit, rec.TotalRate)
//	}
//
// # Individual Stages
//
// Each stage is usable on its own:
//
//	part, _ := footprint.Partition(buildings, units, footprint.DefaultPartitionOptions())
//	m, _ := footprint.Match(ctx, "Town A", primary, secondary, footprint.DefaultMatchOptions())
//	merged, _ := footprint.Merge(primary, m.Entries, footprint.IndexByID(secondary),
//	    footprint.MergeOptions{Fields: []string{"Usage"}})
//	acc := footprint.Aggregate(footprint.UnitTotals(part.Assignments, units), m.Entries)
//
// # Errors
//
// Invalid options return a *ConfigError and missing or duplicate
// identifiers a *SchemaError; both abort before any geometry is processed.
// Malformed polygons never fail a call. They are reported as GeometryError
// values in the result and the record takes no further part.
//
// All coordinates must be in a shared planar CRS.
package footprint
