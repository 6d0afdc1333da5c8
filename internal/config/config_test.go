package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

const sampleYAML = `
match:
  overlap_threshold: 0.8
  index_min_size: 16
pipeline:
  workers: 3
  unit_timeout: 30s
merge:
  fields: [Usage, Height]
  provenance: true
input:
  primary:
    path: kiban.geojson
  secondary:
    path: plateau.geojson
    id_field: bldg_id
  units:
    path: towns.geojson
filter:
  max_year: 2010
output:
  dir: out
  split_by_unit: true
  sqlite: out/audit.db
log:
  level: debug
  format: json
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "footprint.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 0.8, cfg.Match.OverlapThreshold)
	assert.Equal(t, footprint.DefaultAreaTolerance, cfg.Match.AreaTolerance)
	assert.Equal(t, 16, cfg.Match.IndexMinSize)
	assert.Equal(t, 3, cfg.Pipeline.Workers)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.UnitTimeout)
	assert.Equal(t, []string{"Usage", "Height"}, cfg.Merge.Fields)
	assert.True(t, cfg.Merge.Provenance)

	assert.Equal(t, "kiban.geojson", cfg.Input.Primary.Path)
	assert.Equal(t, DefaultPrimaryIDField, cfg.Input.Primary.IDField)
	assert.Equal(t, "bldg_id", cfg.Input.Secondary.IDField)
	assert.Equal(t, DefaultUnitNameField, cfg.Input.Units.NameField)

	assert.True(t, cfg.Filter.Enabled())
	assert.Equal(t, DefaultYearField, cfg.Filter.YearField)

	assert.Equal(t, "out", cfg.Output.Dir)
	assert.True(t, cfg.Output.SplitByUnit)
	assert.Equal(t, "out/audit.db", cfg.Output.SQLite)
	assert.Empty(t, cfg.Output.MetricsFile)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadDefaultsOnly(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, footprint.DefaultOverlapThreshold, cfg.Match.OverlapThreshold)
	assert.Equal(t, runtime.NumCPU(), cfg.Pipeline.Workers)
	assert.Zero(t, cfg.Pipeline.UnitTimeout)
	assert.Equal(t, []string{"Usage", "TotalArea"}, cfg.Merge.Fields)
	assert.False(t, cfg.Filter.Enabled())
	assert.Equal(t, DefaultOutputDir, cfg.Output.Dir)
	assert.Equal(t, DefaultLogFormat, cfg.Log.Format)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("FOOTPRINT_MATCH_OVERLAP_THRESHOLD", "0.9")
	t.Setenv("FOOTPRINT_PIPELINE_WORKERS", "2")
	t.Setenv("FOOTPRINT_INPUT_UNITS_NAME_FIELD", "town")
	t.Setenv("FOOTPRINT_LOG_LEVEL", "warn")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 0.9, cfg.Match.OverlapThreshold)
	assert.Equal(t, 2, cfg.Pipeline.Workers)
	assert.Equal(t, "town", cfg.Input.Units.NameField)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalid(t *testing.T) {
	_, err := Load(writeConfig(t, "match:\n  overlap_threshold: 1.5\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "match.overlap_threshold")
}

func TestLoadRejectsZeroThreshold(t *testing.T) {
	_, err := Load(writeConfig(t, "match:\n  overlap_threshold: 0\n"))
	require.Error(t, err)
	var cfgErr *footprint.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "overlap_threshold", cfgErr.Field)
}

func TestLoadRejectsZeroThresholdFromEnv(t *testing.T) {
	t.Setenv("FOOTPRINT_MATCH_OVERLAP_THRESHOLD", "0")

	_, err := Load("")
	var cfgErr *footprint.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "overlap_threshold", cfgErr.Field)
}

func TestLoadKeepsZeroTolerance(t *testing.T) {
	cfg, err := Load(writeConfig(t, "match:\n  area_tolerance: 0\n"))
	require.NoError(t, err)
	assert.Zero(t, cfg.Match.AreaTolerance)
	assert.Equal(t, footprint.DefaultOverlapThreshold, cfg.Match.OverlapThreshold)
	assert.Zero(t, cfg.RunOptions().Partition.AreaTolerance)
}

func validConfig() *Config {
	cfg := &Config{Match: MatchConfig{
		OverlapThreshold: footprint.DefaultOverlapThreshold,
		AreaTolerance:    footprint.DefaultAreaTolerance,
	}}
	ApplyDefaults(cfg)
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"threshold above one", func(c *Config) { c.Match.OverlapThreshold = 1.2 }, "match.overlap_threshold"},
		{"negative threshold", func(c *Config) { c.Match.OverlapThreshold = -0.1 }, "match.overlap_threshold"},
		{"zero threshold", func(c *Config) { c.Match.OverlapThreshold = 0 }, "match.overlap_threshold"},
		{"zero tolerance", func(c *Config) { c.Match.AreaTolerance = 0 }, ""},
		{"negative tolerance", func(c *Config) { c.Match.AreaTolerance = -1 }, "match.area_tolerance"},
		{"negative index size", func(c *Config) { c.Match.IndexMinSize = -1 }, "match.index_min_size"},
		{"zero workers", func(c *Config) { c.Pipeline.Workers = 0 }, "pipeline.workers"},
		{"negative timeout", func(c *Config) { c.Pipeline.UnitTimeout = -time.Second }, "pipeline.unit_timeout"},
		{"empty merge field", func(c *Config) { c.Merge.Fields = []string{""} }, "merge.fields[0]"},
		{"no merge fields", func(c *Config) { c.Merge.Fields = []string{} }, ""},
		{"missing id field", func(c *Config) { c.Input.Secondary.IDField = "" }, "input.secondary.id_field"},
		{"missing unit name field", func(c *Config) { c.Input.Units.NameField = "" }, "input.units.name_field"},
		{"negative max year", func(c *Config) { c.Filter.MaxYear = -1 }, "filter.max_year"},
		{"filter without field", func(c *Config) { c.Filter.MaxYear = 2010; c.Filter.YearField = "" }, "filter.year_field"},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{}
	cfg.Match.OverlapThreshold = 0.5
	cfg.Merge.Fields = []string{}
	cfg.Output.Dir = "results"

	ApplyDefaults(cfg)
	assert.Equal(t, 0.5, cfg.Match.OverlapThreshold)
	assert.Zero(t, cfg.Match.AreaTolerance)
	assert.Empty(t, cfg.Merge.Fields)
	assert.Equal(t, "results", cfg.Output.Dir)

	ApplyDefaults(nil)
}

func TestRunOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Match.OverlapThreshold = 0.75
	cfg.Pipeline.Workers = 4
	cfg.Pipeline.UnitTimeout = time.Minute
	cfg.Merge.Provenance = true

	opts := cfg.RunOptions()
	assert.Equal(t, 0.75, opts.Match.OverlapThreshold)
	assert.Equal(t, footprint.DefaultIndexMinSize, opts.Match.IndexMinSize)
	assert.Equal(t, footprint.DefaultAreaTolerance, opts.Partition.AreaTolerance)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, time.Minute, opts.UnitTimeout)
	assert.True(t, opts.Provenance)
	assert.Equal(t, DefaultMergeFields(), opts.MergeFields)
	assert.NoError(t, opts.Validate())

	// the options own their slice
	opts.MergeFields[0] = "changed"
	assert.Equal(t, "Usage", cfg.Merge.Fields[0])
}
