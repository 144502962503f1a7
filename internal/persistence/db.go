// Package persistence provides SQLite-based storage for run results: one
// row per household per month, plus run metadata, with CSV export and
// cross-run aggregation for multi-run experiments.
package persistence

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/umutlagap/DRT-PRR/internal/engine"
)

// DB wraps a SQLite connection for result persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		seed INTEGER NOT NULL,
		agents INTEGER NOT NULL,
		steps INTEGER NOT NULL DEFAULT 0,
		final_month TEXT NOT NULL DEFAULT '',
		departures INTEGER NOT NULL DEFAULT 0,
		returns INTEGER NOT NULL DEFAULT 0,
		override_rate REAL NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS household_records (
		run_id TEXT NOT NULL,
		h_id INTEGER NOT NULL,
		step INTEGER NOT NULL,
		month TEXT NOT NULL,
		status TEXT NOT NULL,
		satisfaction REAL NOT NULL,
		b_id INTEGER NOT NULL,
		employment INTEGER NOT NULL,
		income REAL NOT NULL,
		economic_score REAL NOT NULL,
		x REAL NOT NULL,
		y REAL NOT NULL,
		PRIMARY KEY (run_id, h_id, step)
	);

	CREATE INDEX IF NOT EXISTS idx_records_run_month ON household_records(run_id, month);
	CREATE INDEX IF NOT EXISTS idx_records_status ON household_records(run_id, status);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// BeginRun registers a run and returns its identifier.
func (db *DB) BeginRun(seed int64, agents int) (string, error) {
	runID := uuid.NewString()
	_, err := db.conn.Exec(
		"INSERT INTO runs (run_id, seed, agents, started_at) VALUES (?, ?, ?, ?)",
		runID, seed, agents, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return runID, nil
}

// FinishRun records a run's summary on its metadata row.
func (db *DB) FinishRun(runID string, sum engine.Summary) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET steps = ?, final_month = ?, departures = ?, returns = ?, override_rate = ?
		 WHERE run_id = ?`,
		sum.Steps, sum.FinalMonth, sum.Departures, sum.Returns, sum.Stochasticity.Rate, runID,
	)
	return err
}

// SaveRecords appends longitudinal records for a run.
func (db *DB) SaveRecords(runID string, records []engine.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(`INSERT INTO household_records
		(run_id, h_id, step, month, status, satisfaction, b_id,
		 employment, income, economic_score, x, y)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		_, err := stmt.Exec(
			runID, r.HID, r.Step, r.Month, r.Status, r.Satisfaction,
			r.BID, r.Employment, r.Income, r.EconomicScore, r.X, r.Y,
		)
		if err != nil {
			return fmt.Errorf("insert record h=%d step=%d: %w", r.HID, r.Step, err)
		}
	}

	return tx.Commit()
}

// StatusCount is a per-month tally of one relocation state.
type StatusCount struct {
	Month  string `db:"month"`
	Status string `db:"status"`
	Count  int    `db:"n"`
}

// StatusByMonth returns a run's status distribution over time.
func (db *DB) StatusByMonth(runID string) ([]StatusCount, error) {
	var counts []StatusCount
	err := db.conn.Select(&counts,
		`SELECT month, status, COUNT(*) AS n
		 FROM household_records WHERE run_id = ?
		 GROUP BY month, status ORDER BY month, status`,
		runID,
	)
	return counts, err
}

// ExportCSV streams a run's longitudinal records as CSV.
func (db *DB) ExportCSV(runID string, w io.Writer) error {
	var records []engine.Record
	err := db.conn.Select(&records,
		`SELECT h_id, step, month, status, satisfaction, b_id,
		        employment, income, economic_score, x, y
		 FROM household_records WHERE run_id = ?
		 ORDER BY step, h_id`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("select records: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{
		"h_id", "step", "month", "status", "satisfaction",
		"b_id", "employment", "income", "economic_score", "x", "y",
	}); err != nil {
		return err
	}
	for _, r := range records {
		err := cw.Write([]string{
			fmt.Sprintf("%d", r.HID),
			fmt.Sprintf("%d", r.Step),
			r.Month,
			r.Status,
			fmt.Sprintf("%.6f", r.Satisfaction),
			fmt.Sprintf("%d", r.BID),
			fmt.Sprintf("%d", r.Employment),
			fmt.Sprintf("%.3f", r.Income),
			fmt.Sprintf("%.6f", r.EconomicScore),
			fmt.Sprintf("%.3f", r.X),
			fmt.Sprintf("%.3f", r.Y),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// MonthlyAggregate is the cross-run mean and standard deviation of the
// population's mean satisfaction for one month.
type MonthlyAggregate struct {
	Month   string
	Runs    int
	MeanSat float64
	StdSat  float64
}

// Aggregate computes per-month mean/std of mean satisfaction across a
// set of runs. Multi-run experiments report these bands.
func (db *DB) Aggregate(runIDs []string) ([]MonthlyAggregate, error) {
	if len(runIDs) == 0 {
		return nil, nil
	}
	type row struct {
		RunID string  `db:"run_id"`
		Month string  `db:"month"`
		Mean  float64 `db:"mean_sat"`
	}
	query, args, err := sqlx.In(
		`SELECT run_id, month, AVG(satisfaction) AS mean_sat
		 FROM household_records WHERE run_id IN (?)
		 GROUP BY run_id, month`,
		runIDs,
	)
	if err != nil {
		return nil, err
	}
	var rows []row
	if err := db.conn.Select(&rows, db.conn.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("aggregate runs: %w", err)
	}

	byMonth := make(map[string][]float64)
	for _, r := range rows {
		byMonth[r.Month] = append(byMonth[r.Month], r.Mean)
	}
	months := make([]string, 0, len(byMonth))
	for m := range byMonth {
		months = append(months, m)
	}
	sort.Strings(months)

	out := make([]MonthlyAggregate, 0, len(months))
	for _, m := range months {
		vals := byMonth[m]
		mean := 0.0
		for _, v := range vals {
			mean += v
		}
		mean /= float64(len(vals))
		variance := 0.0
		for _, v := range vals {
			variance += (v - mean) * (v - mean)
		}
		variance /= float64(len(vals))
		out = append(out, MonthlyAggregate{
			Month:   m,
			Runs:    len(vals),
			MeanSat: mean,
			StdSat:  math.Sqrt(variance),
		})
	}
	return out, nil
}
