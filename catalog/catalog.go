// Package catalog persists finished runs and their final frame metadata in
// a sqlite database. Only completed results are stored; no intermediate
// pass state survives a restart.
package catalog

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"framesift/types"
)

// Run describes one finished extraction pass.
type Run struct {
	ID                string
	Source            string
	Strategy          string
	ChangeThreshold   float64
	MinFrameInterval  int
	FrameSkip         int
	DedupThreshold    float64
	CandidateCount    int
	UniqueCount       int
	DuplicatesRemoved int
	Stopped           bool
	ElapsedSeconds    float64
}

// Open opens the catalog at dbPath, creating the schema if needed.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	createTableSQL := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		source TEXT NOT NULL,
		strategy TEXT,
		change_threshold REAL,
		min_frame_interval INTEGER,
		frame_skip INTEGER,
		dedup_threshold REAL,
		candidate_count INTEGER,
		unique_count INTEGER,
		duplicates_removed INTEGER,
		stopped INTEGER,
		elapsed_seconds REAL,
		created_at TEXT
	);
	CREATE TABLE IF NOT EXISTS frames (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		frame_index INTEGER NOT NULL,
		timestamp REAL,
		width INTEGER,
		height INTEGER,
		output_path TEXT,
		UNIQUE(run_id, frame_index)
	);
	CREATE INDEX IF NOT EXISTS idx_frames_run ON frames(run_id);`

	if _, err := db.Exec(createTableSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot initialize catalog schema: %w", err)
	}
	return db, nil
}

// SaveRun stores a finished run and its frame metadata in one transaction.
// outputs maps frame index to the path the frame image was written to and
// may be nil.
func SaveRun(db *sql.DB, run Run, frames []types.FrameRecord, outputs map[int]string) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("cannot begin catalog transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO runs (
			id, source, strategy, change_threshold, min_frame_interval,
			frame_skip, dedup_threshold, candidate_count, unique_count,
			duplicates_removed, stopped, elapsed_seconds, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Source, run.Strategy, run.ChangeThreshold, run.MinFrameInterval,
		run.FrameSkip, run.DedupThreshold, run.CandidateCount, run.UniqueCount,
		run.DuplicatesRemoved, run.Stopped, run.ElapsedSeconds,
		time.Now().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("cannot store run %s: %w", run.ID, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO frames (run_id, frame_index, timestamp, width, height, output_path)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("cannot prepare frame insert: %w", err)
	}
	defer stmt.Close()

	for _, frame := range frames {
		outputPath := ""
		if outputs != nil {
			outputPath = outputs[frame.Index]
		}
		if _, err := stmt.Exec(run.ID, frame.Index, frame.Timestamp,
			frame.Width, frame.Height, outputPath); err != nil {
			return fmt.Errorf("cannot store frame %d for run %s: %w", frame.Index, run.ID, err)
		}
	}

	return tx.Commit()
}

// Stats summarizes the catalog contents.
type Stats struct {
	TotalRuns    int
	TotalFrames  int
	StoppedRuns  int
	TotalRemoved int
}

// GetStats reports aggregate counts over all stored runs.
func GetStats(db *sql.DB) (*Stats, error) {
	var stats Stats

	if err := db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&stats.TotalRuns); err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM frames").Scan(&stats.TotalFrames); err != nil {
		return nil, fmt.Errorf("failed to count frames: %w", err)
	}
	if err := db.QueryRow("SELECT COUNT(*) FROM runs WHERE stopped = 1").Scan(&stats.StoppedRuns); err != nil {
		return nil, fmt.Errorf("failed to count stopped runs: %w", err)
	}
	if err := db.QueryRow("SELECT COALESCE(SUM(duplicates_removed), 0) FROM runs").Scan(&stats.TotalRemoved); err != nil {
		return nil, fmt.Errorf("failed to sum removed duplicates: %w", err)
	}

	return &stats, nil
}
