package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/beetlebugorg/footprint/internal/logging"
	"github.com/beetlebugorg/footprint/internal/vector"
	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// PartitionedFile is the labelled output of the partition command.
const PartitionedFile = "partitioned.geojson"

func newPartitionCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "partition",
		Short: "Assign primary buildings to administrative units",
		Long: "partition labels every primary building with the administrative unit it\n" +
			"overlaps most and writes the result as GeoJSON, without matching.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.partition(cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("primary", "", "buildings GeoJSON")
	f.String("units", "", "administrative unit boundaries GeoJSON")
	f.String("output-dir", "", "directory for result files")
	f.Bool("split-by-unit", false, "also write one GeoJSON per unit")

	annotate(f, "primary", "input.primary.path")
	annotate(f, "units", "input.units.path")
	annotate(f, "output-dir", "output.dir")
	annotate(f, "split-by-unit", "output.split_by_unit")

	return cmd
}

func (a *app) partition(out io.Writer) error {
	cfg := a.cfg
	if err := requirePaths(cfg, false); err != nil {
		return err
	}

	in, err := readInputs(cfg, false, a.log)
	if err != nil {
		return err
	}

	opts := cfg.RunOptions().Partition
	if err := footprint.ValidatePopulation(in.primary, footprint.SourcePrimary); err != nil {
		return err
	}
	res, err := footprint.Partition(in.primary, in.units, opts)
	if err != nil {
		return err
	}
	for _, issue := range res.Issues {
		a.log.Warn("geometry excluded", logging.String("record", issue.Error()))
	}

	unitOf := primaryUnits(res.Assignments)
	path := filepath.Join(cfg.Output.Dir, PartitionedFile)
	label := unitDecorator(cfg.Input.Units.NameField, in.primary, unitOf, a.log)
	if err := vector.WriteBuildingsFile(path, in.primary, label); err != nil {
		return fmt.Errorf("write partitioned buildings: %w", err)
	}
	if cfg.Output.SplitByUnit {
		if _, err := vector.WriteSplitByUnit(filepath.Join(cfg.Output.Dir, UnitsDir), in.primary, unitOf); err != nil {
			return fmt.Errorf("write unit files: %w", err)
		}
	}

	totals := footprint.UnitTotals(res.Assignments, in.units)
	for _, u := range in.units {
		if _, err := fmt.Fprintf(out, "%-24s %6d\n", u.Name, totals[u.Name]); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(out, "%d assigned, %d unassigned, %d geometry issues\n",
		len(res.Assignments), len(res.Unassigned), len(res.Issues)+len(in.issues))
	return err
}
