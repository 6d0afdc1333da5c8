package footprint

import (
	"fmt"
	"strconv"

	"github.com/paulmach/orb"
)

// Source identifies which dataset a BuildingRecord came from.
type Source int

const (
	// SourceUnknown is the zero value and never valid on a record.
	SourceUnknown Source = 0

	// SourcePrimary is the reference cadastral dataset (e.g. 基盤地図情報).
	// Attributes are merged onto primary records.
	SourcePrimary Source = 1

	// SourceSecondary is the 3D city-model dataset (e.g. PLATEAU).
	// Attributes are copied from secondary records.
	SourceSecondary Source = 2
)

// String returns the dataset tag used in exports.
func (s Source) String() string {
	switch s {
	case SourcePrimary:
		return "PRIMARY"
	case SourceSecondary:
		return "SECONDARY"
	default:
		return "UNKNOWN"
	}
}

// Valid reports whether s is SourcePrimary or SourceSecondary.
func (s Source) Valid() bool {
	return s == SourcePrimary || s == SourceSecondary
}

// ValueKind is the type held by a Value.
type ValueKind int

const (
	// KindUnknown marks a value that is present but not known.
	KindUnknown ValueKind = iota
	KindString
	KindNumber
)

// Value is an optional scalar attribute value.
//
// An attribute can be in three distinguishable states: absent from the
// Attributes map, present with KindUnknown, or present with a real string
// or number (including 0 and "").
type Value struct {
	kind ValueKind
	str  string
	num  float64
}

// StringValue returns a Value holding s.
func StringValue(s string) Value {
	return Value{kind: KindString, str: s}
}

// NumberValue returns a Value holding f.
func NumberValue(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// UnknownValue returns a Value in the unknown state.
func UnknownValue() Value {
	return Value{kind: KindUnknown}
}

// ValueOf converts a decoded JSON property into a Value.
// nil becomes unknown; numbers and strings keep their type; anything else
// is formatted as a string.
func ValueOf(v interface{}) Value {
	switch x := v.(type) {
	case nil:
		return UnknownValue()
	case string:
		return StringValue(x)
	case float64:
		return NumberValue(x)
	case float32:
		return NumberValue(float64(x))
	case int:
		return NumberValue(float64(x))
	case int64:
		return NumberValue(float64(x))
	case bool:
		return StringValue(strconv.FormatBool(x))
	case Value:
		return x
	default:
		return StringValue(fmt.Sprint(x))
	}
}

// Kind returns the kind of value held.
func (v Value) Kind() ValueKind { return v.kind }

// IsUnknown reports whether v is in the unknown state.
func (v Value) IsUnknown() bool { return v.kind == KindUnknown }

// Str returns the string held by v and true, or "" and false.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// Number returns the number held by v and true, or 0 and false.
func (v Value) Number() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Interface returns v as nil, string or float64, the form used when
// encoding GeoJSON properties.
func (v Value) Interface() interface{} {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return v.num
	default:
		return nil
	}
}

// String formats v for tabular output. Unknown values format as "".
func (v Value) String() string {
	switch v.kind {
	case KindString:
		return v.str
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	default:
		return ""
	}
}

// Attributes maps attribute names to values.
type Attributes map[string]Value

// Get returns the value stored under name and whether it is present.
func (a Attributes) Get(name string) (Value, bool) {
	v, ok := a[name]
	return v, ok
}

// Clone returns a copy of a. A nil map clones to an empty map.
func (a Attributes) Clone() Attributes {
	out := make(Attributes, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// BuildingRecord is a single building footprint from one dataset.
//
// Geometry is never modified. Attribute merging produces new records
// rather than mutating Attributes in place.
type BuildingRecord struct {
	ID         string
	Source     Source
	Geometry   orb.Polygon
	Attributes Attributes
}

// AdministrativeUnit is a named region used to partition buildings.
type AdministrativeUnit struct {
	Name     string
	Boundary orb.Polygon
}

// buildingKey identifies a record across both datasets.
type buildingKey struct {
	ID     string
	Source Source
}

func keyOf(r *BuildingRecord) buildingKey {
	return buildingKey{ID: r.ID, Source: r.Source}
}
