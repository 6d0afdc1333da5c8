package footprint

import (
	"fmt"
)

// ValidatePopulation checks that every record carries the expected source
// tag and a non-empty ID unique within the population.
func ValidatePopulation(records []BuildingRecord, source Source) error {
	seen := make(map[string]int, len(records))
	for i := range records {
		r := &records[i]
		if r.Source != source {
			return &SchemaError{Source: source, Index: i,
				Reason: fmt.Sprintf("record %q tagged %s", r.ID, r.Source)}
		}
		if r.ID == "" {
			return &SchemaError{Source: source, Index: i, Reason: "missing id"}
		}
		if first, dup := seen[r.ID]; dup {
			return &SchemaError{Source: source, Index: i,
				Reason: fmt.Sprintf("duplicate id %q (first at %d)", r.ID, first)}
		}
		seen[r.ID] = i
	}
	return nil
}

// ValidateUnits checks that every unit has a non-empty, unique name.
func ValidateUnits(units []AdministrativeUnit) error {
	seen := make(map[string]int, len(units))
	for i, u := range units {
		if u.Name == "" {
			return &SchemaError{Index: i, Reason: "missing name"}
		}
		if first, dup := seen[u.Name]; dup {
			return &SchemaError{Index: i,
				Reason: fmt.Sprintf("duplicate name %q (first at %d)", u.Name, first)}
		}
		seen[u.Name] = i
	}
	return nil
}
