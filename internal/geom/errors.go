package geom

import (
	"fmt"
)

// ErrInvalidGeometry indicates a polygon that cannot take part in
// equality, intersection or area computations.
type ErrInvalidGeometry struct {
	Reason string
}

func (e *ErrInvalidGeometry) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// ErrOperation indicates that GEOS failed while evaluating an operation
// on otherwise valid inputs (topology exceptions and the like).
type ErrOperation struct {
	Op     string
	Reason string
}

func (e *ErrOperation) Error() string {
	return fmt.Sprintf("geometry operation %s failed: %s", e.Op, e.Reason)
}
