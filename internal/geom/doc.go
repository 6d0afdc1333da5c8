// Package geom wraps the GEOS planar geometry engine for footprint matching.
//
// Footprints are carried through the rest of the module as orb.Polygon
// values. Before any equality, intersection or area computation they are
// validated and converted into a Shape owned by a Kernel. Each Kernel owns
// its own GEOS context, so a Kernel and the Shapes it produced must be used
// from one goroutine at a time; the matcher creates one Kernel per
// administrative unit.
package geom
