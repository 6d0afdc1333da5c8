package footprint

import (
	"fmt"
)

// SchemaError indicates an input record without a usable identifier.
// It aborts the run: joins between datasets cannot be trusted.
type SchemaError struct {
	Source Source // zero for administrative units
	Index  int    // position of the offending record in its input slice
	Reason string
}

func (e *SchemaError) Error() string {
	if e.Source.Valid() {
		return fmt.Sprintf("schema error: %s record %d: %s", e.Source, e.Index, e.Reason)
	}
	return fmt.Sprintf("schema error: unit %d: %s", e.Index, e.Reason)
}

// GeometryError reports a record excluded because its polygon is malformed
// or a geometric operation on it failed. It does not abort the run.
type GeometryError struct {
	ID     string // building ID, or unit name for boundary errors
	Source Source // zero for unit boundaries
	Unit   string // unit being processed, empty during partitioning
	Err    error
}

func (e *GeometryError) Error() string {
	if !e.Source.Valid() {
		return fmt.Sprintf("unit %q boundary: %v", e.ID, e.Err)
	}
	if e.Unit != "" {
		return fmt.Sprintf("%s building %q in unit %q: %v", e.Source, e.ID, e.Unit, e.Err)
	}
	return fmt.Sprintf("%s building %q: %v", e.Source, e.ID, e.Err)
}

func (e *GeometryError) Unwrap() error {
	return e.Err
}

// ConfigError indicates an invalid run parameter. It is returned before
// any geometry is processed.
type ConfigError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: %s=%v: %s", e.Field, e.Value, e.Reason)
}
