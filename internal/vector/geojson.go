package vector

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// Dataset is a decoded building population.
type Dataset struct {
	Records []footprint.BuildingRecord

	// Skipped lists features whose geometry is not a single polygon.
	Skipped []footprint.GeometryError
}

// ReadBuildings decodes a GeoJSON FeatureCollection into building records
// tagged with source. The ID is read from the idField property; every
// property, the ID included, is kept as an attribute.
//
// A feature without idField returns a *footprint.SchemaError. Features with
// a non-polygon geometry are skipped and listed in Dataset.Skipped. A
// MultiPolygon with exactly one part is unwrapped.
func ReadBuildings(r io.Reader, source footprint.Source, idField string) (*Dataset, error) {
	fc, err := decode(r)
	if err != nil {
		return nil, err
	}

	ds := &Dataset{Records: make([]footprint.BuildingRecord, 0, len(fc.Features))}
	for i, f := range fc.Features {
		id, ok := stringProperty(f.Properties, idField)
		if !ok {
			return nil, &footprint.SchemaError{Source: source, Index: i,
				Reason: fmt.Sprintf("missing %q property", idField)}
		}

		poly, err := singlePolygon(f.Geometry)
		if err != nil {
			ds.Skipped = append(ds.Skipped, footprint.GeometryError{ID: id, Source: source, Err: err})
			continue
		}

		ds.Records = append(ds.Records, footprint.BuildingRecord{
			ID:         id,
			Source:     source,
			Geometry:   poly,
			Attributes: attributesOf(f.Properties),
		})
	}
	return ds, nil
}

// ReadUnits decodes administrative unit boundaries, named by nameField.
// Units whose geometry is not a single polygon are returned as issues.
func ReadUnits(r io.Reader, nameField string) ([]footprint.AdministrativeUnit, []footprint.GeometryError, error) {
	fc, err := decode(r)
	if err != nil {
		return nil, nil, err
	}

	units := make([]footprint.AdministrativeUnit, 0, len(fc.Features))
	var issues []footprint.GeometryError
	for i, f := range fc.Features {
		name, ok := stringProperty(f.Properties, nameField)
		if !ok {
			return nil, nil, &footprint.SchemaError{Index: i,
				Reason: fmt.Sprintf("missing %q property", nameField)}
		}

		poly, err := singlePolygon(f.Geometry)
		if err != nil {
			issues = append(issues, footprint.GeometryError{ID: name, Err: err})
			continue
		}
		units = append(units, footprint.AdministrativeUnit{Name: name, Boundary: poly})
	}
	return units, issues, nil
}

func decode(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read geojson: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}

func singlePolygon(g orb.Geometry) (orb.Polygon, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return geom, nil
	case orb.MultiPolygon:
		if len(geom) == 1 {
			return geom[0], nil
		}
		return nil, fmt.Errorf("multipolygon with %d parts", len(geom))
	case nil:
		return nil, fmt.Errorf("missing geometry")
	default:
		return nil, fmt.Errorf("unsupported geometry type %s", geom.GeoJSONType())
	}
}

// stringProperty reads an identifier. Numeric identifiers are formatted
// without a trailing ".0".
func stringProperty(props geojson.Properties, name string) (string, bool) {
	raw, ok := props[name]
	if !ok || raw == nil {
		return "", false
	}
	switch v := raw.(type) {
	case string:
		return v, v != ""
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1e15 {
			return strconv.FormatInt(int64(v), 10), true
		}
		return strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return fmt.Sprint(v), true
	}
}

func attributesOf(props geojson.Properties) footprint.Attributes {
	attrs := make(footprint.Attributes, len(props))
	for k, v := range props {
		attrs[k] = footprint.ValueOf(v)
	}
	return attrs
}

// Decorator adds properties to an outgoing feature.
type Decorator func(rec *footprint.BuildingRecord, props geojson.Properties)

// WriteBuildings encodes records as a GeoJSON FeatureCollection. Attributes
// become properties; unknown values are written as null. decorate may be nil.
func WriteBuildings(w io.Writer, records []footprint.BuildingRecord, decorate Decorator) error {
	fc := geojson.NewFeatureCollection()
	for i := range records {
		rec := &records[i]
		f := geojson.NewFeature(rec.Geometry)
		for k, v := range rec.Attributes {
			f.Properties[k] = v.Interface()
		}
		if decorate != nil {
			decorate(rec, f.Properties)
		}
		fc.Append(f)
	}

	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode geojson: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write geojson: %w", err)
	}
	return nil
}
