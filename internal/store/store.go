// Package store persists reconciliation runs to a SQLite audit database.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/beetlebugorg/footprint/pkg/footprint"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id            TEXT PRIMARY KEY,
	started_at        TEXT NOT NULL,
	finished_at       TEXT NOT NULL,
	overlap_threshold REAL NOT NULL,
	workers           INTEGER NOT NULL,
	primary_count     INTEGER NOT NULL,
	secondary_count   INTEGER NOT NULL,
	unassigned_count  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS correspondences (
	run_id            TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	unit              TEXT NOT NULL,
	primary_id        TEXT NOT NULL,
	secondary_id      TEXT NOT NULL,
	kind              TEXT NOT NULL,
	intersection_area REAL NOT NULL,
	ratio_primary     REAL NOT NULL,
	ratio_secondary   REAL NOT NULL,
	ambiguous         INTEGER NOT NULL,
	alternate_ids     TEXT NOT NULL,
	PRIMARY KEY (run_id, unit, primary_id)
);
CREATE TABLE IF NOT EXISTS accuracy (
	run_id          TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	unit            TEXT NOT NULL,
	total_primary   INTEGER NOT NULL,
	exact_matches   INTEGER NOT NULL,
	overlap_matches INTEGER NOT NULL,
	exact_rate      REAL,
	overlap_rate    REAL,
	total_rate      REAL,
	PRIMARY KEY (run_id, unit)
);
CREATE TABLE IF NOT EXISTS issues (
	run_id    TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	record_id TEXT NOT NULL,
	source    TEXT NOT NULL,
	unit      TEXT NOT NULL,
	reason    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS unit_failures (
	run_id TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	unit   TEXT NOT NULL,
	reason TEXT NOT NULL
);
`

// Store is a SQLite audit database.
type Store struct {
	db *sql.DB
}

// RunInfo describes one reconciliation run.
type RunInfo struct {
	ID               string
	StartedAt        time.Time
	FinishedAt       time.Time
	OverlapThreshold float64
	Workers          int
	PrimaryCount     int
	SecondaryCount   int
	UnassignedCount  int
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate audit db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun records a run and its results in one transaction.
func (s *Store) SaveRun(ctx context.Context, info RunInfo, res *footprint.Result) error {
	if info.ID == "" {
		return fmt.Errorf("save run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, overlap_threshold, workers,
			primary_count, secondary_count, unassigned_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		info.ID, formatTime(info.StartedAt), formatTime(info.FinishedAt), info.OverlapThreshold,
		info.Workers, info.PrimaryCount, info.SecondaryCount, info.UnassignedCount,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	if err := insertCorrespondences(ctx, tx, info.ID, res.Entries); err != nil {
		return err
	}

	records := append([]footprint.AccuracyRecord(nil), res.Accuracy...)
	records = append(records, res.Overall)
	if err := insertAccuracy(ctx, tx, info.ID, records); err != nil {
		return err
	}

	if err := insertIssues(ctx, tx, info.ID, res.Issues); err != nil {
		return err
	}

	for _, f := range res.UnitFailures {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO unit_failures (run_id, unit, reason) VALUES (?, ?, ?)`,
			info.ID, f.Unit, f.Err.Error(),
		); err != nil {
			return fmt.Errorf("insert unit failure: %w", err)
		}
	}

	return tx.Commit()
}

func insertCorrespondences(ctx context.Context, tx *sql.Tx, runID string, entries []footprint.CorrespondenceEntry) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO correspondences (run_id, unit, primary_id, secondary_id, kind,
			intersection_area, ratio_primary, ratio_secondary, ambiguous, alternate_ids)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx, runID, e.UnitName, e.PrimaryID, e.SecondaryID,
			e.Kind.String(), e.IntersectionArea, e.RatioPrimary, e.RatioSecondary,
			e.Ambiguous, strings.Join(e.AlternateIDs, ";"),
		); err != nil {
			return fmt.Errorf("insert correspondence %s/%s: %w", e.UnitName, e.PrimaryID, err)
		}
	}
	return nil
}

func insertAccuracy(ctx context.Context, tx *sql.Tx, runID string, records []footprint.AccuracyRecord) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO accuracy (run_id, unit, total_primary, exact_matches, overlap_matches,
			exact_rate, overlap_rate, total_rate)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		rate := func(v float64) sql.NullFloat64 {
			return sql.NullFloat64{Float64: v, Valid: !r.RatesUndefined}
		}
		if _, err := stmt.ExecContext(ctx, runID, r.Unit, r.TotalPrimary, r.ExactMatches,
			r.OverlapMatches, rate(r.ExactRate), rate(r.OverlapRate), rate(r.TotalRate),
		); err != nil {
			return fmt.Errorf("insert accuracy %s: %w", r.Unit, err)
		}
	}
	return nil
}

func insertIssues(ctx context.Context, tx *sql.Tx, runID string, issues []footprint.GeometryError) error {
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO issues (run_id, record_id, source, unit, reason) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, issue := range issues {
		source := "UNIT"
		if issue.Source.Valid() {
			source = issue.Source.String()
		}
		if _, err := stmt.ExecContext(ctx, runID, issue.ID, source, issue.Unit, issue.Err.Error()); err != nil {
			return fmt.Errorf("insert issue %s: %w", issue.ID, err)
		}
	}
	return nil
}

// Runs lists recorded runs, most recent first.
func (s *Store) Runs(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, overlap_threshold, workers,
			primary_count, secondary_count, unassigned_count
		FROM runs ORDER BY started_at DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var (
			info              RunInfo
			started, finished string
		)
		if err := rows.Scan(&info.ID, &started, &finished, &info.OverlapThreshold, &info.Workers,
			&info.PrimaryCount, &info.SecondaryCount, &info.UnassignedCount); err != nil {
			return nil, err
		}
		if info.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if info.FinishedAt, err = parseTime(finished); err != nil {
			return nil, err
		}
		runs = append(runs, info)
	}
	return runs, rows.Err()
}

// Correspondences returns the entries recorded for a run, ordered by unit
// and primary ID.
func (s *Store) Correspondences(ctx context.Context, runID string) ([]footprint.CorrespondenceEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, primary_id, secondary_id, kind, intersection_area,
			ratio_primary, ratio_secondary, ambiguous, alternate_ids
		FROM correspondences WHERE run_id = ? ORDER BY unit, primary_id`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []footprint.CorrespondenceEntry
	for rows.Next() {
		var (
			e          footprint.CorrespondenceEntry
			kind, alts string
		)
		if err := rows.Scan(&e.UnitName, &e.PrimaryID, &e.SecondaryID, &kind, &e.IntersectionArea,
			&e.RatioPrimary, &e.RatioSecondary, &e.Ambiguous, &alts); err != nil {
			return nil, err
		}
		switch kind {
		case footprint.MatchExact.String():
			e.Kind = footprint.MatchExact
		case footprint.MatchOverlap.String():
			e.Kind = footprint.MatchOverlap
		default:
			return nil, fmt.Errorf("correspondence %s: unknown kind %q", e.PrimaryID, kind)
		}
		if alts != "" {
			e.AlternateIDs = strings.Split(alts, ";")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Accuracy returns the accuracy records of a run, the overall row included,
// ordered by unit name.
func (s *Store) Accuracy(ctx context.Context, runID string) ([]footprint.AccuracyRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT unit, total_primary, exact_matches, overlap_matches,
			exact_rate, overlap_rate, total_rate
		FROM accuracy WHERE run_id = ? ORDER BY unit`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []footprint.AccuracyRecord
	for rows.Next() {
		var (
			r                     footprint.AccuracyRecord
			exact, overlap, total sql.NullFloat64
		)
		if err := rows.Scan(&r.Unit, &r.TotalPrimary, &r.ExactMatches, &r.OverlapMatches,
			&exact, &overlap, &total); err != nil {
			return nil, err
		}
		r.RatesUndefined = !total.Valid
		r.ExactRate, r.OverlapRate, r.TotalRate = exact.Float64, overlap.Float64, total.Float64
		records = append(records, r)
	}
	return records, rows.Err()
}

// IssueCount returns the number of geometry issues recorded for a run.
func (s *Store) IssueCount(ctx context.Context, runID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issues WHERE run_id = ?`, runID).Scan(&n)
	return n, err
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
