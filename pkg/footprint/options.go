package footprint

import (
	"math"
	"runtime"
	"time"

	"github.com/beetlebugorg/footprint/internal/logging"
)

const (
	// DefaultOverlapThreshold is the minimum overlap ratio, in both
	// directions, for a Stage 2 match.
	DefaultOverlapThreshold = 0.7

	// DefaultAreaTolerance is the relative tolerance under which two
	// intersection areas are considered tied during partitioning.
	DefaultAreaTolerance = 1e-9

	// DefaultIndexMinSize is the population at which candidate search
	// switches from a linear bounding-box scan to an R-tree.
	DefaultIndexMinSize = 32
)

// MatchOptions configures the correspondence matcher.
type MatchOptions struct {
	// OverlapThreshold is required and must lie in (0, 1].
	OverlapThreshold float64

	// IndexMinSize is the secondary population at which an R-tree is built
	// for candidate search. 0 selects DefaultIndexMinSize; 1 always indexes.
	IndexMinSize int
}

// DefaultMatchOptions returns match options with the default threshold.
func DefaultMatchOptions() MatchOptions {
	return MatchOptions{
		OverlapThreshold: DefaultOverlapThreshold,
		IndexMinSize:     DefaultIndexMinSize,
	}
}

// Validate returns a *ConfigError when the options cannot be used.
func (o MatchOptions) Validate() error {
	t := o.OverlapThreshold
	if math.IsNaN(t) || t <= 0 || t > 1 {
		return &ConfigError{Field: "overlap_threshold", Value: t, Reason: "must be in (0, 1]"}
	}
	if o.IndexMinSize < 0 {
		return &ConfigError{Field: "index_min_size", Value: o.IndexMinSize, Reason: "must not be negative"}
	}
	return nil
}

func (o MatchOptions) indexMinSize() int {
	if o.IndexMinSize == 0 {
		return DefaultIndexMinSize
	}
	return o.IndexMinSize
}

// PartitionOptions configures the administrative partitioner.
type PartitionOptions struct {
	// AreaTolerance is the relative tolerance for treating two intersection
	// areas as equal. Ties go to the lexicographically smallest unit name.
	AreaTolerance float64

	// IndexMinSize is the unit count at which an R-tree is used to find
	// candidate units. 0 selects DefaultIndexMinSize.
	IndexMinSize int
}

// DefaultPartitionOptions returns partition options with defaults.
func DefaultPartitionOptions() PartitionOptions {
	return PartitionOptions{
		AreaTolerance: DefaultAreaTolerance,
		IndexMinSize:  DefaultIndexMinSize,
	}
}

// Validate returns a *ConfigError when the options cannot be used.
func (o PartitionOptions) Validate() error {
	if math.IsNaN(o.AreaTolerance) || o.AreaTolerance < 0 {
		return &ConfigError{Field: "area_tolerance", Value: o.AreaTolerance, Reason: "must not be negative"}
	}
	if o.IndexMinSize < 0 {
		return &ConfigError{Field: "index_min_size", Value: o.IndexMinSize, Reason: "must not be negative"}
	}
	return nil
}

func (o PartitionOptions) indexMinSize() int {
	if o.IndexMinSize == 0 {
		return DefaultIndexMinSize
	}
	return o.IndexMinSize
}

// RunOptions controls a full reconciliation run.
type RunOptions struct {
	Match     MatchOptions
	Partition PartitionOptions

	// MergeFields are copied from matched secondary records onto primaries.
	MergeFields []string

	// Provenance adds match_kind and matched_id attributes to matched
	// primary records.
	Provenance bool

	// Workers is the number of units matched concurrently.
	// If 0, defaults to runtime.NumCPU().
	Workers int

	// UnitTimeout bounds the matching time of a single unit. A unit that
	// exceeds it is reported in Result.UnitFailures. 0 disables the limit.
	UnitTimeout time.Duration

	// Progress is called after each unit finishes with (done, total).
	// Calls are serialized.
	Progress func(done, total int)

	// Observer receives per-unit and per-issue notifications. Optional.
	Observer Observer

	// Logger defaults to logging.Default().
	Logger logging.Logger
}

// DefaultRunOptions returns run options with sensible defaults.
func DefaultRunOptions() RunOptions {
	return RunOptions{
		Match:       DefaultMatchOptions(),
		Partition:   DefaultPartitionOptions(),
		MergeFields: []string{"Usage", "TotalArea"},
		Workers:     runtime.NumCPU(),
	}
}

// Validate returns a *ConfigError when the options cannot be used.
func (o RunOptions) Validate() error {
	if err := o.Match.Validate(); err != nil {
		return err
	}
	if err := o.Partition.Validate(); err != nil {
		return err
	}
	if o.Workers < 0 {
		return &ConfigError{Field: "workers", Value: o.Workers, Reason: "must not be negative"}
	}
	if o.UnitTimeout < 0 {
		return &ConfigError{Field: "unit_timeout", Value: o.UnitTimeout, Reason: "must not be negative"}
	}
	for i, f := range o.MergeFields {
		if f == "" {
			return &ConfigError{Field: "merge_fields", Value: i, Reason: "field name must not be empty"}
		}
	}
	return nil
}

func (o RunOptions) workers() int {
	if o.Workers <= 0 {
		return runtime.NumCPU()
	}
	return o.Workers
}

func (o RunOptions) logger() logging.Logger {
	if o.Logger == nil {
		return logging.Default()
	}
	return o.Logger
}
