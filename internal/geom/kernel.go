package geom

import (
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	"github.com/twpayne/go-geos"
)

// Kernel owns a GEOS context and prepares polygons for geometric tests.
type Kernel struct {
	ctx *geos.Context
}

// NewKernel creates a Kernel with a fresh GEOS context.
func NewKernel() *Kernel {
	return &Kernel{ctx: geos.NewContext()}
}

// Shape is a validated polygon prepared for repeated geometric tests.
// Area and bounds are computed once.
type Shape struct {
	geom  *geos.Geom
	area  float64
	bound orb.Bound
}

// Prepare validates p and converts it into a Shape. Structural problems,
// GEOS validity failures (self-intersection, ring crossing) and zero-area
// polygons are returned as *ErrInvalidGeometry.
func (k *Kernel) Prepare(p orb.Polygon) (shape *Shape, err error) {
	if err := ValidatePolygon(p); err != nil {
		return nil, err
	}

	data, err := wkb.Marshal(p)
	if err != nil {
		return nil, &ErrInvalidGeometry{Reason: fmt.Sprintf("encode wkb: %v", err)}
	}

	defer recoverOperation("prepare", &err)

	g, err := k.ctx.NewGeomFromWKB(data)
	if err != nil {
		return nil, &ErrInvalidGeometry{Reason: err.Error()}
	}

	if !g.IsValid() {
		reason := g.IsValidReason()
		g.Destroy()
		return nil, &ErrInvalidGeometry{Reason: reason}
	}

	area := g.Area()
	if area <= 0 {
		g.Destroy()
		return nil, &ErrInvalidGeometry{Reason: "polygon has zero area"}
	}

	return &Shape{
		geom:  g,
		area:  area,
		bound: p.Bound(),
	}, nil
}

// Area returns the planar area of the shape.
func (s *Shape) Area() float64 {
	return s.area
}

// Bound returns the axis-aligned bounding box of the shape.
func (s *Shape) Bound() orb.Bound {
	return s.bound
}

// Equals reports whether s and other cover exactly the same point set.
// This is topological equality: the same vertices listed from a different
// starting point or in the opposite orientation are equal, two different
// polygons with the same area are not.
func (s *Shape) Equals(other *Shape) (equal bool, err error) {
	// Equal point sets always have identical envelopes
	if !s.bound.Equal(other.bound) {
		return false, nil
	}

	defer recoverOperation("equals", &err)
	return s.geom.Equals(other.geom), nil
}

// IntersectionArea returns the area shared by s and other.
// Shapes whose bounding boxes are disjoint return 0 without calling GEOS.
func (s *Shape) IntersectionArea(other *Shape) (area float64, err error) {
	if !s.bound.Intersects(other.bound) {
		return 0, nil
	}

	defer recoverOperation("intersection", &err)

	if !s.geom.Intersects(other.geom) {
		return 0, nil
	}

	inter := s.geom.Intersection(other.geom)
	defer inter.Destroy()

	return inter.Area(), nil
}

// Release frees the underlying GEOS geometry. The shape must not be used
// afterwards.
func (s *Shape) Release() {
	if s.geom != nil {
		s.geom.Destroy()
		s.geom = nil
	}
}

// recoverOperation converts a GEOS panic raised inside op into an
// *ErrOperation stored in err.
func recoverOperation(op string, err *error) {
	if r := recover(); r != nil {
		*err = &ErrOperation{Op: op, Reason: fmt.Sprint(r)}
	}
}
