package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	_ "github.com/tursodatabase/go-libsql"
)

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// ConnectToDB opens a libsql database. dsn is either a local file path or a
// full libsql/file URL.
func ConnectToDB(dsn string) (*sql.DB, error) {
	if !strings.Contains(dsn, ":") || filepath.IsAbs(dsn) {
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("could not create registry directory: %w", err)
			}
		}
		dsn = "file:" + dsn
	}
	db, err := sql.Open("libsql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry %s: %w", dsn, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to registry %s: %w", dsn, err)
	}
	return db, nil
}

// RunRegistry is the libsql-backed Registry.
type RunRegistry struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewRunRegistry opens the registry at dsn and creates its tables.
func NewRunRegistry(dsn string, logger zerolog.Logger) (*RunRegistry, error) {
	r := &RunRegistry{logger: logger}
	if _, err := r.Connect(dsn); err != nil {
		return nil, err
	}
	if err := r.InitSchema(); err != nil {
		r.Close()
		return nil, err
	}
	logger.Debug().Str("dsn", dsn).Msg("run registry ready")
	return r, nil
}

func (r *RunRegistry) Connect(dsn string) (*sql.DB, error) {
	db, err := ConnectToDB(dsn)
	if err != nil {
		return nil, err
	}
	r.db = db
	return db, nil
}

func (r *RunRegistry) Close() error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// InitSchema creates the runs and checkpoints tables.
func (r *RunRegistry) InitSchema() error {
	_, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY UNIQUE,
		config TEXT,
		started_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = r.db.Exec(`CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY UNIQUE,
		run_id TEXT NOT NULL REFERENCES runs(id),
		epoch INTEGER NOT NULL,
		path TEXT NOT NULL,
		val_accuracy REAL,
		val_f1 REAL,
		val_loss REAL,
		dropped INTEGER,
		taken_at TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// StartRun inserts a new run carrying the serialized config.
func (r *RunRegistry) StartRun(config string) (*Run, error) {
	run := Run{ID: uuid.New(), Config: config, StartedAt: time.Now().UTC()}

	tx, err := r.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // no-op once committed

	result, err := tx.Exec("INSERT INTO runs (id, config, started_at) VALUES (?, ?, ?)",
		run.ID.String(), run.Config, run.StartedAt.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n != 1 {
		return nil, fmt.Errorf("expected 1 row affected, got %d", n)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Debug().Str("run_id", run.ID.String()).Msg("run started")
	return &run, nil
}

// RecordCheckpoint stores rec, assigning an ID and timestamp when unset.
func (r *RunRegistry) RecordCheckpoint(rec *CheckpointRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now().UTC()
	}
	_, err := r.db.Exec(`INSERT INTO checkpoints
		(id, run_id, epoch, path, val_accuracy, val_f1, val_loss, dropped, taken_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(), rec.RunID.String(), rec.Epoch, rec.Path,
		rec.ValAccuracy, rec.ValF1, rec.ValLoss, rec.Dropped,
		rec.TakenAt.Format(timeLayout))
	if err != nil {
		return fmt.Errorf("failed to insert checkpoint: %w", err)
	}
	return nil
}

// ListCheckpoints returns the checkpoints of runID ordered by epoch. A nil
// runID lists every run.
func (r *RunRegistry) ListCheckpoints(runID uuid.UUID) ([]CheckpointRecord, error) {
	query := `SELECT id, run_id, epoch, path, val_accuracy, val_f1, val_loss, dropped, taken_at
		FROM checkpoints`
	var args []any
	if runID != uuid.Nil {
		query += " WHERE run_id = ?"
		args = append(args, runID.String())
	}
	query += " ORDER BY taken_at ASC, epoch ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []CheckpointRecord
	for rows.Next() {
		var (
			rec            CheckpointRecord
			id, run, taken string
		)
		if err := rows.Scan(&id, &run, &rec.Epoch, &rec.Path, &rec.ValAccuracy, &rec.ValF1, &rec.ValLoss, &rec.Dropped, &taken); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		if rec.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint id: %w", err)
		}
		if rec.RunID, err = uuid.Parse(run); err != nil {
			return nil, fmt.Errorf("failed to parse run id: %w", err)
		}
		if rec.TakenAt, err = time.Parse(timeLayout, taken); err != nil {
			return nil, fmt.Errorf("failed to parse checkpoint time: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}

// ListRuns returns every run, oldest first.
func (r *RunRegistry) ListRuns() ([]Run, error) {
	rows, err := r.db.Query("SELECT id, config, started_at FROM runs ORDER BY started_at ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run         Run
			id, started string
		)
		if err := rows.Scan(&id, &run.Config, &started); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("failed to parse run id: %w", err)
		}
		if run.StartedAt, err = time.Parse(timeLayout, started); err != nil {
			return nil, fmt.Errorf("failed to parse run time: %w", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return out, nil
}
