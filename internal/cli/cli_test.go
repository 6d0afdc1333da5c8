package cli

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/beetlebugorg/footprint/internal/logging"
	"github.com/beetlebugorg/footprint/internal/store"
	"github.com/beetlebugorg/footprint/internal/vector"
	"github.com/beetlebugorg/footprint/pkg/footprint"
)

func square(minX, minY, maxX, maxY float64) string {
	return fmt.Sprintf(`{"type":"Polygon","coordinates":[[[%g,%g],[%g,%g],[%g,%g],[%g,%g],[%g,%g]]]}`,
		minX, minY, maxX, minY, maxX, maxY, minX, maxY, minX, minY)
}

func featureCollection(features ...string) string {
	return `{"type":"FeatureCollection","features":[` + strings.Join(features, ",") + `]}`
}

func feature(props, geometry string) string {
	return `{"type":"Feature","properties":` + props + `,"geometry":` + geometry + `}`
}

type fixture struct {
	dir       string
	primary   string
	secondary string
	units     string
	out       string
}

func writeFixture(t *testing.T) fixture {
	t.Helper()
	dir := t.TempDir()
	fx := fixture{
		dir:       dir,
		primary:   filepath.Join(dir, "kiban.geojson"),
		secondary: filepath.Join(dir, "plateau.geojson"),
		units:     filepath.Join(dir, "towns.geojson"),
		out:       filepath.Join(dir, "out"),
	}

	files := map[string]string{
		fx.units: featureCollection(
			feature(`{"Name":"A"}`, square(0, 0, 100, 100)),
			feature(`{"Name":"B"}`, square(100, 0, 200, 100)),
		),
		fx.primary: featureCollection(
			feature(`{"gml_id":"k1"}`, square(10, 10, 20, 20)),
			feature(`{"gml_id":"k2"}`, square(30, 10, 40, 20)),
			feature(`{"gml_id":"k3"}`, square(110, 10, 120, 20)),
		),
		fx.secondary: featureCollection(
			feature(`{"BuildingID":"b1","Usage":"住宅","TotalArea":95.5,"Year":1990}`, square(10, 10, 20, 20)),
			feature(`{"BuildingID":"b2","Usage":"店舗","Year":"2005"}`, square(31, 10, 41, 20)),
			feature(`{"BuildingID":"b3","Usage":"倉庫","Year":2015}`, square(110, 10, 120, 20)),
		),
	}
	for path, content := range files {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return fx
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestRunCommand(t *testing.T) {
	fx := writeFixture(t)
	dbPath := filepath.Join(fx.out, "audit.db")
	promPath := filepath.Join(fx.dir, "footprint.prom")

	out, err := execute(t, "run",
		"--primary", fx.primary,
		"--secondary", fx.secondary,
		"--units", fx.units,
		"--output-dir", fx.out,
		"--max-year", "2010",
		"--split-by-unit",
		"--sqlite", dbPath,
		"--metrics-file", promPath,
		"--workers", "2",
		"--log-level", "error",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "(overall)")

	rows := readCSV(t, filepath.Join(fx.out, AccuracyFile))
	assert.Equal(t, [][]string{
		vector.AccuracyHeader,
		{"A", "2", "1", "1", "50.00", "50.00", "100.00"},
		{"B", "1", "0", "0", "0.00", "0.00", "0.00"},
		{"(overall)", "3", "1", "1", "33.33", "33.33", "66.67"},
	}, rows)

	pairs := readCSV(t, filepath.Join(fx.out, CorrespondencesFile))
	require.Len(t, pairs, 3)
	assert.Equal(t, []string{"A", "k1", "b1", "EXACT"}, pairs[1][:4])
	assert.Equal(t, []string{"A", "k2", "b2", "OVERLAP"}, pairs[2][:4])

	merged, err := vector.ReadBuildingsFile(filepath.Join(fx.out, MergedFile), footprint.SourcePrimary, "gml_id")
	require.NoError(t, err)
	require.Len(t, merged.Records, 3)
	k1 := merged.Records[0].Attributes
	assert.Equal(t, footprint.StringValue("住宅"), k1["Usage"])
	assert.Equal(t, footprint.NumberValue(95.5), k1["TotalArea"])
	assert.Equal(t, footprint.StringValue("A"), k1["Name"])
	assert.True(t, merged.Records[1].Attributes["TotalArea"].IsUnknown())
	assert.NotContains(t, merged.Records[2].Attributes, "Usage")

	for _, unit := range []string{"A", "B"} {
		_, err := os.Stat(filepath.Join(fx.out, UnitsDir, vector.UnitFileName(unit)))
		assert.NoError(t, err)
	}

	s, err := store.Open(dbPath)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.Runs(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, 3, runs[0].PrimaryCount)
	assert.Equal(t, 2, runs[0].SecondaryCount)
	assert.Equal(t, 2, runs[0].Workers)

	prom, err := os.ReadFile(promPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), "footprint_units_matched_total 2")
}

func TestRunCommandConfigFileAndEnv(t *testing.T) {
	fx := writeFixture(t)

	cfgPath := filepath.Join(fx.dir, "footprint.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(fmt.Sprintf(`
input:
  primary: {path: %q}
  secondary: {path: %q}
  units: {path: %q}
output:
  dir: %q
log:
  level: error
`, fx.primary, fx.secondary, fx.units, fx.out)), 0o644))

	// the overlap pair k2/b2 has ratios 0.9 and 0.9
	envPath := filepath.Join(fx.dir, "test.env")
	require.NoError(t, os.WriteFile(envPath, []byte("FOOTPRINT_MATCH_OVERLAP_THRESHOLD=0.95\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("FOOTPRINT_MATCH_OVERLAP_THRESHOLD") })

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"run", "--config", cfgPath, "--env-file", envPath})
	require.NoError(t, cmd.Execute(), out.String())

	rows := readCSV(t, filepath.Join(fx.out, AccuracyFile))
	assert.Equal(t, []string{"A", "2", "1", "0", "50.00", "0.00", "50.00"}, rows[1])
	// no year filter: b3 matches k3
	assert.Equal(t, []string{"B", "1", "1", "0", "100.00", "0.00", "100.00"}, rows[2])
}

func TestRunCommandRequiresInputs(t *testing.T) {
	_, err := execute(t, "run", "--units", "towns.geojson", "--log-level", "error")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input.primary.path")
}

func TestRunCommandRejectsBadThreshold(t *testing.T) {
	for _, threshold := range []string{"0", "1.5", "-0.2"} {
		t.Run(threshold, func(t *testing.T) {
			fx := writeFixture(t)
			_, err := execute(t, "run", "--primary", fx.primary, "--secondary", fx.secondary,
				"--units", fx.units, "--output-dir", fx.out, "--threshold", threshold)
			var cfgErr *footprint.ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, "overlap_threshold", cfgErr.Field)

			_, statErr := os.Stat(fx.out)
			assert.True(t, os.IsNotExist(statErr))
		})
	}
}

func TestRunCommandMissingIDField(t *testing.T) {
	fx := writeFixture(t)
	cfgPath := filepath.Join(fx.dir, "footprint.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("input:\n  secondary: {id_field: building_id}\n"), 0o644))

	_, err := execute(t, "run", "--config", cfgPath, "--primary", fx.primary, "--secondary", fx.secondary,
		"--units", fx.units, "--output-dir", fx.out, "--log-level", "error")
	var schemaErr *footprint.SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, footprint.SourceSecondary, schemaErr.Source)

	_, statErr := os.Stat(filepath.Join(fx.out, AccuracyFile))
	assert.True(t, os.IsNotExist(statErr))
}

func TestPartitionCommand(t *testing.T) {
	fx := writeFixture(t)

	out, err := execute(t, "partition",
		"--primary", fx.primary,
		"--units", fx.units,
		"--output-dir", fx.out,
		"--log-level", "error",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "3 assigned, 0 unassigned")

	ds, err := vector.ReadBuildingsFile(filepath.Join(fx.out, PartitionedFile), footprint.SourcePrimary, "gml_id")
	require.NoError(t, err)
	var units []string
	for _, r := range ds.Records {
		units = append(units, r.Attributes["Name"].String())
	}
	assert.Equal(t, []string{"A", "A", "B"}, units)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "footprint version dev (commit: none)\n", out)
}

func TestMissingExplicitEnvFile(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"partition", "--env-file", filepath.Join(t.TempDir(), "missing.env")})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load env file")
}

func TestUnitDecoratorReportsOverwrittenAttribute(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	log := logging.NewLoggerFromCore(core)

	records := []footprint.BuildingRecord{
		{ID: "k1", Attributes: footprint.Attributes{"Name": footprint.StringValue("Old Hall")}},
		{ID: "k2", Attributes: footprint.Attributes{"Name": footprint.StringValue("A")}},
		{ID: "k3", Attributes: footprint.Attributes{}},
		{ID: "k4", Attributes: footprint.Attributes{"Name": footprint.StringValue("Annex")}},
	}
	unitOf := map[string]string{"k1": "A", "k2": "A", "k3": "B"}

	decorate := unitDecorator("Name", records, unitOf, log)

	entries := logs.FilterMessage("unit label overwrites building attribute").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Name", fields["property"])
	assert.EqualValues(t, 1, fields["buildings"])
	assert.Equal(t, "k1", fields["first_id"])

	props := geojson.Properties{"Name": "Old Hall"}
	decorate(&records[0], props)
	assert.Equal(t, "A", props["Name"])

	props = geojson.Properties{"Name": "Annex"}
	decorate(&records[3], props)
	assert.Equal(t, "Annex", props["Name"])
}

func TestUnitDecoratorQuietWithoutClash(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	records := []footprint.BuildingRecord{{ID: "k1", Attributes: footprint.Attributes{"gml_id": footprint.StringValue("k1")}}}
	unitDecorator("Name", records, map[string]string{"k1": "A"}, logging.NewLoggerFromCore(core))

	assert.Zero(t, logs.Len())
}
