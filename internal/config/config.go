// Package config provides configuration loading, defaults, and validation
// for footprint runs.
package config

import (
	"fmt"
	"math"
	"time"

	"github.com/beetlebugorg/footprint/internal/logging"
	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// Config is the root configuration. Every section maps to a top-level YAML
// key and to a FOOTPRINT_<SECTION>_<FIELD> environment variable.
type Config struct {
	Match    MatchConfig       `mapstructure:"match"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
	Merge    MergeConfig       `mapstructure:"merge"`
	Input    InputConfig       `mapstructure:"input"`
	Filter   FilterConfig      `mapstructure:"filter"`
	Output   OutputConfig      `mapstructure:"output"`
	Log      logging.LogConfig `mapstructure:"log"`
}

// MatchConfig holds matcher and partitioner tuning.
type MatchConfig struct {
	OverlapThreshold float64 `mapstructure:"overlap_threshold"`
	AreaTolerance    float64 `mapstructure:"area_tolerance"`
	IndexMinSize     int     `mapstructure:"index_min_size"`
}

// PipelineConfig controls unit-level concurrency.
type PipelineConfig struct {
	Workers     int           `mapstructure:"workers"`
	UnitTimeout time.Duration `mapstructure:"unit_timeout"` // 0 = no limit
}

// MergeConfig selects the attributes copied onto matched primaries.
type MergeConfig struct {
	Fields     []string `mapstructure:"fields"`
	Provenance bool     `mapstructure:"provenance"`
}

// DatasetConfig locates one building dataset.
type DatasetConfig struct {
	Path    string `mapstructure:"path"`
	IDField string `mapstructure:"id_field"`
}

// UnitsConfig locates the administrative unit boundaries.
type UnitsConfig struct {
	Path      string `mapstructure:"path"`
	NameField string `mapstructure:"name_field"`
}

// InputConfig groups the three input files.
type InputConfig struct {
	Primary   DatasetConfig `mapstructure:"primary"`
	Secondary DatasetConfig `mapstructure:"secondary"`
	Units     UnitsConfig   `mapstructure:"units"`
}

// FilterConfig configures the construction-year cutoff applied to the
// secondary dataset before matching.
type FilterConfig struct {
	YearField string `mapstructure:"year_field"`
	MaxYear   int    `mapstructure:"max_year"` // 0 disables the filter
}

// Enabled reports whether the year filter should run.
func (f FilterConfig) Enabled() bool {
	return f.MaxYear > 0
}

// OutputConfig selects what a run writes.
type OutputConfig struct {
	Dir         string `mapstructure:"dir"`
	SplitByUnit bool   `mapstructure:"split_by_unit"`
	SQLite      string `mapstructure:"sqlite"`       // audit database path, empty to skip
	MetricsFile string `mapstructure:"metrics_file"` // Prometheus textfile path, empty to skip
}

// Validate checks cfg for values that would make a run fail. Input paths
// are not checked here since the partition command needs only some of them.
func (c *Config) Validate() error {
	t := c.Match.OverlapThreshold
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return fmt.Errorf("config: match.overlap_threshold: %w",
			&footprint.ConfigError{Field: "overlap_threshold", Value: t, Reason: "must be in (0, 1]"})
	}
	if math.IsNaN(c.Match.AreaTolerance) || c.Match.AreaTolerance < 0 {
		return fmt.Errorf("config: match.area_tolerance: %w",
			&footprint.ConfigError{Field: "area_tolerance", Value: c.Match.AreaTolerance, Reason: "must not be negative"})
	}
	if c.Match.IndexMinSize < 0 {
		return fmt.Errorf("config: match.index_min_size must be ≥ 0, got %d", c.Match.IndexMinSize)
	}

	if c.Pipeline.Workers < 1 {
		return fmt.Errorf("config: pipeline.workers must be ≥ 1, got %d", c.Pipeline.Workers)
	}
	if c.Pipeline.UnitTimeout < 0 {
		return fmt.Errorf("config: pipeline.unit_timeout must be ≥ 0, got %s", c.Pipeline.UnitTimeout)
	}

	for i, f := range c.Merge.Fields {
		if f == "" {
			return fmt.Errorf("config: merge.fields[%d] is empty", i)
		}
	}

	if c.Input.Primary.IDField == "" {
		return fmt.Errorf("config: input.primary.id_field is required")
	}
	if c.Input.Secondary.IDField == "" {
		return fmt.Errorf("config: input.secondary.id_field is required")
	}
	if c.Input.Units.NameField == "" {
		return fmt.Errorf("config: input.units.name_field is required")
	}

	if c.Filter.MaxYear < 0 {
		return fmt.Errorf("config: filter.max_year must be ≥ 0, got %d", c.Filter.MaxYear)
	}
	if c.Filter.Enabled() && c.Filter.YearField == "" {
		return fmt.Errorf("config: filter.year_field is required when filter.max_year is set")
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}

// RunOptions converts the matching sections into footprint.RunOptions.
// Logger, Observer and Progress are left for the caller.
func (c *Config) RunOptions() footprint.RunOptions {
	return footprint.RunOptions{
		Match: footprint.MatchOptions{
			OverlapThreshold: c.Match.OverlapThreshold,
			IndexMinSize:     c.Match.IndexMinSize,
		},
		Partition: footprint.PartitionOptions{
			AreaTolerance: c.Match.AreaTolerance,
			IndexMinSize:  c.Match.IndexMinSize,
		},
		MergeFields: append([]string(nil), c.Merge.Fields...),
		Provenance:  c.Merge.Provenance,
		Workers:     c.Pipeline.Workers,
		UnitTimeout: c.Pipeline.UnitTimeout,
	}
}
