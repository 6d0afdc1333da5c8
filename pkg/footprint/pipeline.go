package footprint

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/beetlebugorg/footprint/internal/logging"
)

// Observer receives notifications while Run executes. Calls may come from
// several goroutines at once.
type Observer interface {
	UnitMatched(m *UnitMatch, elapsed time.Duration)
	UnitFailed(unit string, err error)
	GeometryIssue(issue GeometryError)
}

// UnitFailure records a unit whose matching did not complete within
// RunOptions.UnitTimeout. It contributes no correspondence entries.
type UnitFailure struct {
	Unit string
	Err  error
}

// Result is the output of Run.
type Result struct {
	Assignments []PartitionAssignment
	Unassigned  []UnassignedBuilding

	// Units holds one match result per matched unit, sorted by unit name.
	Units []*UnitMatch

	// Entries is the correspondence table, unit by unit in name order.
	Entries []CorrespondenceEntry

	// Merged is a copy of the primary population with merged attributes,
	// in input order.
	Merged []BuildingRecord

	Accuracy []AccuracyRecord
	Overall  AccuracyRecord

	// Issues lists every record or unit boundary excluded because of
	// malformed geometry, from partitioning and matching.
	Issues []GeometryError

	UnitFailures []UnitFailure
}

// matchUnit matches one unit's buildings for Run.
var matchUnit = Match

// unitGroup holds the buildings assigned to one unit.
type unitGroup struct {
	name      string
	primary   []BuildingRecord
	secondary []BuildingRecord
}

// Run reconciles a primary and a secondary building population.
//
// Inputs are validated first; a *ConfigError or *SchemaError is returned
// before any geometry is processed. Buildings are partitioned into units,
// units are matched concurrently with up to opts.Workers goroutines, and
// the per-unit results are concatenated in unit-name order. The matched
// attributes are then merged onto a copy of the primaries and accuracy is
// computed for every unit.
//
// Cancelling ctx aborts the run and returns the context error.
//
// Example:
//
//	opts := footprint.DefaultRunOptions()
//	opts.Workers = 4
//	opts.UnitTimeout = 2 * time.Minute
//	opts.Progress = func(done, total int) {
//	    fmt.Printf("\r%d/%d units", done, total)
//	}
//
//	res, err := footprint.Run(ctx, kiban, plateau, towns, opts)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, r := range res.Accuracy {
//	    fmt.Printf("%s: %.1f%%\n", r.Unit, r.TotalRate)
//	}
func Run(ctx context.Context, primary, secondary []BuildingRecord, units []AdministrativeUnit, opts RunOptions) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if err := ValidatePopulation(primary, SourcePrimary); err != nil {
		return nil, err
	}
	if err := ValidatePopulation(secondary, SourceSecondary); err != nil {
		return nil, err
	}
	if err := ValidateUnits(units); err != nil {
		return nil, err
	}

	log := opts.logger()
	start := time.Now()

	buildings := make([]BuildingRecord, 0, len(primary)+len(secondary))
	buildings = append(buildings, primary...)
	buildings = append(buildings, secondary...)

	part, err := Partition(buildings, units, opts.Partition)
	if err != nil {
		return nil, fmt.Errorf("partition: %w", err)
	}
	log.Debug("partitioned buildings",
		logging.Int("assigned", len(part.Assignments)),
		logging.Int("unassigned", len(part.Unassigned)),
		logging.Int("issues", len(part.Issues)))

	result := &Result{
		Assignments: part.Assignments,
		Unassigned:  part.Unassigned,
	}
	for _, issue := range part.Issues {
		reportIssue(result, issue, opts.Observer, log)
	}

	groups := groupByUnit(buildings, part.Assignments)

	matches, failures, err := matchUnits(ctx, groups, opts, log)
	if err != nil {
		return nil, err
	}
	result.UnitFailures = failures

	for _, m := range matches {
		if m == nil {
			continue
		}
		result.Units = append(result.Units, m)
		result.Entries = append(result.Entries, m.Entries...)
		for _, issue := range m.Issues {
			reportIssue(result, issue, opts.Observer, log)
		}
	}

	for _, e := range result.Entries {
		if e.Ambiguous {
			log.Warn("ambiguous exact match",
				logging.String("unit", e.UnitName),
				logging.String("primary_id", e.PrimaryID),
				logging.String("secondary_id", e.SecondaryID),
				logging.Strings("alternates", e.AlternateIDs))
		}
	}

	merged, err := Merge(primary, result.Entries, IndexByID(secondary), MergeOptions{
		Fields:     opts.MergeFields,
		Provenance: opts.Provenance,
	})
	if err != nil {
		return nil, err
	}
	result.Merged = merged

	result.Accuracy = Aggregate(UnitTotals(part.Assignments, units), result.Entries)
	result.Overall = Overall(result.Accuracy)

	log.Info("reconciliation finished",
		logging.Int("units", len(groups)),
		logging.Int("primary", len(primary)),
		logging.Int("secondary", len(secondary)),
		logging.Int("exact", result.Overall.ExactMatches),
		logging.Int("overlap", result.Overall.OverlapMatches),
		logging.Float64("total_rate", result.Overall.TotalRate),
		logging.Int("issues", len(result.Issues)),
		logging.Int("unit_failures", len(result.UnitFailures)),
		logging.Duration("elapsed", time.Since(start)))

	return result, nil
}

// groupByUnit collects assigned buildings per unit. Groups are sorted by
// unit name and keep input order within each population.
func groupByUnit(buildings []BuildingRecord, assignments []PartitionAssignment) []*unitGroup {
	unitOf := make(map[buildingKey]string, len(assignments))
	for _, a := range assignments {
		unitOf[buildingKey{ID: a.BuildingID, Source: a.Source}] = a.UnitName
	}

	byName := make(map[string]*unitGroup)
	for i := range buildings {
		b := &buildings[i]
		name, ok := unitOf[keyOf(b)]
		if !ok {
			continue
		}
		g, ok := byName[name]
		if !ok {
			g = &unitGroup{name: name}
			byName[name] = g
		}
		if b.Source == SourcePrimary {
			g.primary = append(g.primary, *b)
		} else {
			g.secondary = append(g.secondary, *b)
		}
	}

	groups := make([]*unitGroup, 0, len(byName))
	for _, g := range byName {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool {
		return groups[i].name < groups[j].name
	})
	return groups
}

// matchUnits runs Match for every group on a bounded errgroup. The
// returned slice is indexed like groups; failed units leave a nil slot.
func matchUnits(ctx context.Context, groups []*unitGroup, opts RunOptions, log logging.Logger) ([]*UnitMatch, []UnitFailure, error) {
	matches := make([]*UnitMatch, len(groups))
	failed := make([]*UnitFailure, len(groups))

	var (
		mu   sync.Mutex
		done int
	)
	finish := func() {
		if opts.Progress == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		done++
		opts.Progress(done, len(groups))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())

	for i, group := range groups {
		if gctx.Err() != nil {
			break
		}
		i, group := i, group
		g.Go(func() error {
			uctx := gctx
			if opts.UnitTimeout > 0 {
				var cancel context.CancelFunc
				uctx, cancel = context.WithTimeout(gctx, opts.UnitTimeout)
				defer cancel()
			}

			log.Debug("matching unit",
				logging.String("unit", group.name),
				logging.Int("primary", len(group.primary)),
				logging.Int("secondary", len(group.secondary)))

			start := time.Now()
			m, err := matchUnit(uctx, group.name, group.primary, group.secondary, opts.Match)
			elapsed := time.Since(start)

			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) && gctx.Err() == nil {
					err = fmt.Errorf("unit timed out after %s: %w", opts.UnitTimeout, err)
					failed[i] = &UnitFailure{Unit: group.name, Err: err}
					log.Warn("unit failed", logging.String("unit", group.name), logging.Err(err))
					if opts.Observer != nil {
						opts.Observer.UnitFailed(group.name, err)
					}
					finish()
					return nil
				}
				return fmt.Errorf("unit %q: %w", group.name, err)
			}

			matches[i] = m
			log.Debug("matched unit",
				logging.String("unit", group.name),
				logging.Int("exact", m.Count(MatchExact)),
				logging.Int("overlap", m.Count(MatchOverlap)),
				logging.Duration("elapsed", elapsed))
			if opts.Observer != nil {
				opts.Observer.UnitMatched(m, elapsed)
			}
			finish()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	var failures []UnitFailure
	for _, f := range failed {
		if f != nil {
			failures = append(failures, *f)
		}
	}
	return matches, failures, nil
}

func reportIssue(result *Result, issue GeometryError, obs Observer, log logging.Logger) {
	result.Issues = append(result.Issues, issue)
	log.Warn("geometry excluded", logging.String("record", issue.Error()))
	if obs != nil {
		obs.GeometryIssue(issue)
	}
}
