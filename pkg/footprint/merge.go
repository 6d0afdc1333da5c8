package footprint

import (
	"fmt"
)

// Provenance attribute names added by Merge when MergeOptions.Provenance
// is set.
const (
	AttrMatchKind = "match_kind"
	AttrMatchedID = "matched_id"
)

// MergeOptions selects what Merge copies onto matched primary records.
type MergeOptions struct {
	// Fields are copied from the secondary record, overwriting any
	// existing value. A field absent on the secondary becomes Unknown.
	Fields []string

	// Provenance adds AttrMatchKind and AttrMatchedID to matched records.
	Provenance bool
}

// IndexByID maps record IDs to records. Later duplicates win; validate
// the population first when that matters.
func IndexByID(records []BuildingRecord) map[string]*BuildingRecord {
	byID := make(map[string]*BuildingRecord, len(records))
	for i := range records {
		byID[records[i].ID] = &records[i]
	}
	return byID
}

// Merge returns a copy of primary in which matched records carry the
// selected attributes of their secondary counterpart.
//
// Every returned record has its own attribute map; the inputs are never
// modified. Unmatched primaries keep exactly the attributes they had.
// An entry naming a primary or secondary ID that is not present, or a
// primary matched twice, is an error.
func Merge(primary []BuildingRecord, entries []CorrespondenceEntry, secondaryByID map[string]*BuildingRecord, opts MergeOptions) ([]BuildingRecord, error) {
	pos := make(map[string]int, len(primary))
	for i := range primary {
		pos[primary[i].ID] = i
	}

	byPrimary := make(map[int]*CorrespondenceEntry, len(entries))
	for i := range entries {
		e := &entries[i]
		p, ok := pos[e.PrimaryID]
		if !ok {
			return nil, fmt.Errorf("merge: entry references unknown primary %q", e.PrimaryID)
		}
		if _, ok := secondaryByID[e.SecondaryID]; !ok {
			return nil, fmt.Errorf("merge: entry references unknown secondary %q", e.SecondaryID)
		}
		if prev, dup := byPrimary[p]; dup {
			return nil, fmt.Errorf("merge: primary %q matched to both %q and %q",
				e.PrimaryID, prev.SecondaryID, e.SecondaryID)
		}
		byPrimary[p] = e
	}

	out := make([]BuildingRecord, len(primary))
	for i := range primary {
		rec := primary[i]
		rec.Attributes = primary[i].Attributes.Clone()

		if e, ok := byPrimary[i]; ok {
			sec := secondaryByID[e.SecondaryID]
			for _, f := range opts.Fields {
				v, ok := sec.Attributes.Get(f)
				if !ok {
					v = UnknownValue()
				}
				rec.Attributes[f] = v
			}
			if opts.Provenance {
				rec.Attributes[AttrMatchKind] = StringValue(e.Kind.String())
				rec.Attributes[AttrMatchedID] = StringValue(e.SecondaryID)
			}
		}

		out[i] = rec
	}

	return out, nil
}
