package vector

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// ReadBuildingsFile opens path and calls ReadBuildings.
func ReadBuildingsFile(path string, source footprint.Source, idField string) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	ds, err := ReadBuildings(f, source, idField)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ds, nil
}

// ReadUnitsFile opens path and calls ReadUnits.
func ReadUnitsFile(path, nameField string) ([]footprint.AdministrativeUnit, []footprint.GeometryError, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	units, issues, err := ReadUnits(f, nameField)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return units, issues, nil
}

// WriteBuildingsFile writes records to path, creating parent directories.
func WriteBuildingsFile(path string, records []footprint.BuildingRecord, decorate Decorator) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return WriteBuildings(f, records, decorate)
}

// WriteSplitByUnit writes one <unit>.geojson file per unit under dir,
// holding the records assigned to that unit. unitOf maps record IDs to
// unit names; records missing from it are not written. It returns the
// written paths sorted by unit name.
func WriteSplitByUnit(dir string, records []footprint.BuildingRecord, unitOf map[string]string) ([]string, error) {
	byUnit := make(map[string][]footprint.BuildingRecord)
	for _, rec := range records {
		unit, ok := unitOf[rec.ID]
		if !ok {
			continue
		}
		byUnit[unit] = append(byUnit[unit], rec)
	}

	names := make([]string, 0, len(byUnit))
	for name := range byUnit {
		names = append(names, name)
	}
	sort.Strings(names)

	paths := make([]string, 0, len(names))
	for _, name := range names {
		path := filepath.Join(dir, UnitFileName(name))
		if err := WriteBuildingsFile(path, byUnit[name], nil); err != nil {
			return nil, fmt.Errorf("unit %q: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// UnitFileName returns a file name for a unit's output. Path separators
// and other characters that are unsafe in file names become "_".
func UnitFileName(unit string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(unit))
	if clean == "" || clean == "." || clean == ".." {
		clean = "_"
	}
	return clean + ".geojson"
}
