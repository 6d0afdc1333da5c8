package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/beetlebugorg/footprint/internal/config"
	"github.com/beetlebugorg/footprint/internal/ingest"
	"github.com/beetlebugorg/footprint/internal/logging"
	"github.com/beetlebugorg/footprint/internal/metrics"
	"github.com/beetlebugorg/footprint/internal/store"
	"github.com/beetlebugorg/footprint/internal/vector"
	"github.com/beetlebugorg/footprint/pkg/footprint"
)

// Output file names written under output.dir.
const (
	MergedFile          = "merged.geojson"
	AccuracyFile        = "accuracy.csv"
	CorrespondencesFile = "correspondences.csv"
	UnitsDir            = "units"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Partition, match and merge two building datasets",
		Long: "run assigns both datasets to administrative units, matches buildings\n" +
			"within each unit, copies the merge fields onto matched primary buildings\n" +
			"and writes the merged GeoJSON, accuracy and correspondence tables.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.String("primary", "", "primary (reference) buildings GeoJSON")
	f.String("secondary", "", "secondary (3D city model) buildings GeoJSON")
	f.String("units", "", "administrative unit boundaries GeoJSON")
	f.String("output-dir", "", "directory for result files")
	f.Float64("threshold", 0, "overlap ratio threshold in (0, 1]")
	f.Int("workers", 0, "units matched concurrently")
	f.Duration("unit-timeout", 0, "matching time limit per unit (0 = none)")
	f.StringSlice("merge-fields", nil, "secondary attributes copied onto matches")
	f.Bool("provenance", false, "add match_kind and matched_id attributes")
	f.Int("max-year", 0, "drop secondary buildings built after this year (0 = keep all)")
	f.Bool("split-by-unit", false, "also write one GeoJSON per unit")
	f.String("sqlite", "", "SQLite audit database path")
	f.String("metrics-file", "", "Prometheus textfile path")

	annotate(f, "primary", "input.primary.path")
	annotate(f, "secondary", "input.secondary.path")
	annotate(f, "units", "input.units.path")
	annotate(f, "output-dir", "output.dir")
	annotate(f, "threshold", "match.overlap_threshold")
	annotate(f, "workers", "pipeline.workers")
	annotate(f, "unit-timeout", "pipeline.unit_timeout")
	annotate(f, "merge-fields", "merge.fields")
	annotate(f, "provenance", "merge.provenance")
	annotate(f, "max-year", "filter.max_year")
	annotate(f, "split-by-unit", "output.split_by_unit")
	annotate(f, "sqlite", "output.sqlite")
	annotate(f, "metrics-file", "output.metrics_file")

	return cmd
}

// inputs is the decoded input of a run.
type inputs struct {
	primary   []footprint.BuildingRecord
	secondary []footprint.BuildingRecord
	units     []footprint.AdministrativeUnit
	issues    []footprint.GeometryError
}

func (a *app) run(ctx context.Context, out io.Writer) error {
	cfg := a.cfg
	if err := requirePaths(cfg, true); err != nil {
		return err
	}

	runID := store.NewRunID()
	log := a.log.With(logging.String("run_id", runID))
	started := time.Now()

	in, err := readInputs(cfg, true, log)
	if err != nil {
		return err
	}

	if cfg.Filter.Enabled() {
		kept, stats, err := ingest.FilterByMaxYear(in.secondary, cfg.Filter.YearField, cfg.Filter.MaxYear)
		switch {
		case errors.Is(err, ingest.ErrFieldMissing):
			log.Warn("year filter skipped", logging.String("field", cfg.Filter.YearField))
		case err != nil:
			return err
		default:
			log.Info("year filter applied",
				logging.Int("max_year", cfg.Filter.MaxYear),
				logging.Int("kept", stats.Kept),
				logging.Int("dropped", stats.Dropped),
				logging.Int("unparsable", stats.Unparsable))
		}
		in.secondary = kept
	}

	m := metrics.New("")
	opts := cfg.RunOptions()
	opts.Logger = log
	opts.Observer = m
	opts.Progress = func(done, total int) {
		log.Debug("progress", logging.Int("done", done), logging.Int("total", total))
	}

	res, err := footprint.Run(ctx, in.primary, in.secondary, in.units, opts)
	if err != nil {
		return err
	}
	for _, issue := range in.issues {
		m.GeometryIssue(issue)
	}
	res.Issues = append(in.issues, res.Issues...)
	finished := time.Now()

	if err := writeResults(cfg, res, log); err != nil {
		return err
	}

	if cfg.Output.SQLite != "" {
		info := store.RunInfo{
			ID:               runID,
			StartedAt:        started,
			FinishedAt:       finished,
			OverlapThreshold: opts.Match.OverlapThreshold,
			Workers:          opts.Workers,
			PrimaryCount:     len(in.primary),
			SecondaryCount:   len(in.secondary),
			UnassignedCount:  len(res.Unassigned),
		}
		if err := saveAudit(ctx, cfg.Output.SQLite, info, res); err != nil {
			return err
		}
		log.Info("audit saved", logging.String("path", cfg.Output.SQLite))
	}

	if cfg.Output.MetricsFile != "" {
		m.RecordAccuracy(res.Accuracy, res.Overall, finished)
		if err := m.WriteTextfile(cfg.Output.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}

	return printSummary(out, runID, res)
}

func requirePaths(cfg *config.Config, needSecondary bool) error {
	if cfg.Input.Primary.Path == "" {
		return fmt.Errorf("input.primary.path is required (--primary)")
	}
	if needSecondary && cfg.Input.Secondary.Path == "" {
		return fmt.Errorf("input.secondary.path is required (--secondary)")
	}
	if cfg.Input.Units.Path == "" {
		return fmt.Errorf("input.units.path is required (--units)")
	}
	return nil
}

func readInputs(cfg *config.Config, withSecondary bool, log logging.Logger) (*inputs, error) {
	in := &inputs{}

	units, issues, err := vector.ReadUnitsFile(cfg.Input.Units.Path, cfg.Input.Units.NameField)
	if err != nil {
		return nil, err
	}
	in.units = units
	in.issues = append(in.issues, issues...)

	primary, err := vector.ReadBuildingsFile(cfg.Input.Primary.Path, footprint.SourcePrimary, cfg.Input.Primary.IDField)
	if err != nil {
		return nil, err
	}
	in.primary = primary.Records
	in.issues = append(in.issues, primary.Skipped...)

	if withSecondary {
		secondary, err := vector.ReadBuildingsFile(cfg.Input.Secondary.Path, footprint.SourceSecondary, cfg.Input.Secondary.IDField)
		if err != nil {
			return nil, err
		}
		in.secondary = secondary.Records
		in.issues = append(in.issues, secondary.Skipped...)
	}

	for _, issue := range in.issues {
		log.Warn("feature skipped", logging.String("record", issue.Error()))
	}
	log.Info("inputs loaded",
		logging.Int("units", len(in.units)),
		logging.Int("primary", len(in.primary)),
		logging.Int("secondary", len(in.secondary)),
		logging.Int("skipped", len(in.issues)))
	return in, nil
}

// unitDecorator sets the unit name property on buildings that were
// assigned to a unit. An existing attribute of that name with a different
// value is overwritten, and the affected buildings are logged.
func unitDecorator(property string, records []footprint.BuildingRecord, unitOf map[string]string, log logging.Logger) vector.Decorator {
	var clashes []string
	for i := range records {
		unit, ok := unitOf[records[i].ID]
		if !ok {
			continue
		}
		if v, ok := records[i].Attributes.Get(property); ok && v.String() != unit {
			clashes = append(clashes, records[i].ID)
		}
	}
	if len(clashes) > 0 {
		log.Warn("unit label overwrites building attribute",
			logging.String("property", property),
			logging.Int("buildings", len(clashes)),
			logging.String("first_id", clashes[0]))
	}

	return func(rec *footprint.BuildingRecord, props geojson.Properties) {
		if unit, ok := unitOf[rec.ID]; ok {
			props[property] = unit
		}
	}
}

// primaryUnits maps primary building IDs to their unit.
func primaryUnits(assignments []footprint.PartitionAssignment) map[string]string {
	unitOf := make(map[string]string, len(assignments))
	for _, a := range assignments {
		if a.Source == footprint.SourcePrimary {
			unitOf[a.BuildingID] = a.UnitName
		}
	}
	return unitOf
}

func writeResults(cfg *config.Config, res *footprint.Result, log logging.Logger) error {
	dir := cfg.Output.Dir
	unitOf := primaryUnits(res.Assignments)

	merged := filepath.Join(dir, MergedFile)
	if err := vector.WriteBuildingsFile(merged, res.Merged, unitDecorator(cfg.Input.Units.NameField, res.Merged, unitOf, log)); err != nil {
		return fmt.Errorf("write merged buildings: %w", err)
	}

	if cfg.Output.SplitByUnit {
		paths, err := vector.WriteSplitByUnit(filepath.Join(dir, UnitsDir), res.Merged, unitOf)
		if err != nil {
			return fmt.Errorf("write unit files: %w", err)
		}
		log.Debug("unit files written", logging.Int("files", len(paths)))
	}

	if err := writeFile(filepath.Join(dir, AccuracyFile), func(w io.Writer) error {
		return vector.WriteAccuracy(w, res.Accuracy, res.Overall)
	}); err != nil {
		return err
	}

	if err := writeFile(filepath.Join(dir, CorrespondencesFile), func(w io.Writer) error {
		return vector.WriteCorrespondences(w, res.Entries)
	}); err != nil {
		return err
	}

	log.Info("results written", logging.String("dir", dir))
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
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
	if err := write(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func saveAudit(ctx context.Context, path string, info store.RunInfo, res *footprint.Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	s, err := store.Open(path)
	if err != nil {
		return err
	}
	defer s.Close()
	return s.SaveRun(ctx, info, res)
}

func printSummary(out io.Writer, runID string, res *footprint.Result) error {
	o := res.Overall
	if _, err := fmt.Fprintf(out, "run %s\n", runID); err != nil {
		return err
	}
	for _, r := range append(append([]footprint.AccuracyRecord(nil), res.Accuracy...), o) {
		rate := "n/a"
		if !r.RatesUndefined {
			rate = fmt.Sprintf("%.2f%%", r.TotalRate)
		}
		if _, err := fmt.Fprintf(out, "  %-24s %6d primary  %6d exact  %6d overlap  %8s\n",
			r.Unit, r.TotalPrimary, r.ExactMatches, r.OverlapMatches, rate); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(out, "  %d unassigned, %d geometry issues, %d unit failures\n",
		len(res.Unassigned), len(res.Issues), len(res.UnitFailures))
	return err
}
