package config

import (
	"runtime"

	"github.com/spf13/viper"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// Default value constants.
const (
	DefaultPrimaryIDField   = "gml_id"
	DefaultSecondaryIDField = "BuildingID"
	DefaultUnitNameField    = "Name"
	DefaultYearField        = "Year"

	DefaultOutputDir = "output"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "console"
)

// DefaultMergeFields are the secondary attributes copied by default.
func DefaultMergeFields() []string {
	return []string{"Usage", "TotalArea"}
}

// ApplyDefaults fills zero-value fields in cfg with their defaults.
// Fields already set are left unchanged. Booleans and MaxYear have no
// non-zero default. The overlap threshold and area tolerance are not
// defaulted here, so an explicit zero reaches Validate; their defaults are
// registered with viper.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	if cfg.Match.IndexMinSize == 0 {
		cfg.Match.IndexMinSize = footprint.DefaultIndexMinSize
	}

	if cfg.Pipeline.Workers == 0 {
		cfg.Pipeline.Workers = runtime.NumCPU()
	}

	if cfg.Merge.Fields == nil {
		cfg.Merge.Fields = DefaultMergeFields()
	}

	if cfg.Input.Primary.IDField == "" {
		cfg.Input.Primary.IDField = DefaultPrimaryIDField
	}
	if cfg.Input.Secondary.IDField == "" {
		cfg.Input.Secondary.IDField = DefaultSecondaryIDField
	}
	if cfg.Input.Units.NameField == "" {
		cfg.Input.Units.NameField = DefaultUnitNameField
	}

	if cfg.Filter.YearField == "" {
		cfg.Filter.YearField = DefaultYearField
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// setDefaults registers every key with viper. Unmarshal only consults the
// environment for keys viper already knows about.
func setDefaults(v *viper.Viper) {
	v.SetDefault("match.overlap_threshold", footprint.DefaultOverlapThreshold)
	v.SetDefault("match.area_tolerance", footprint.DefaultAreaTolerance)
	v.SetDefault("match.index_min_size", footprint.DefaultIndexMinSize)

	v.SetDefault("pipeline.workers", runtime.NumCPU())
	v.SetDefault("pipeline.unit_timeout", "0s")

	v.SetDefault("merge.fields", DefaultMergeFields())
	v.SetDefault("merge.provenance", false)

	v.SetDefault("input.primary.path", "")
	v.SetDefault("input.primary.id_field", DefaultPrimaryIDField)
	v.SetDefault("input.secondary.path", "")
	v.SetDefault("input.secondary.id_field", DefaultSecondaryIDField)
	v.SetDefault("input.units.path", "")
	v.SetDefault("input.units.name_field", DefaultUnitNameField)

	v.SetDefault("filter.year_field", DefaultYearField)
	v.SetDefault("filter.max_year", 0)

	v.SetDefault("output.dir", DefaultOutputDir)
	v.SetDefault("output.split_by_unit", false)
	v.SetDefault("output.sqlite", "")
	v.SetDefault("output.metrics_file", "")

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}
