package db

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Run is one training invocation.
type Run struct {
	ID        uuid.UUID
	Config    string
	StartedAt time.Time
}

// CheckpointRecord describes a checkpoint file written at the end of an epoch.
type CheckpointRecord struct {
	ID          uuid.UUID
	RunID       uuid.UUID
	Epoch       int
	Path        string
	ValAccuracy float64
	ValF1       float64
	ValLoss     float64
	Dropped     int
	TakenAt     time.Time
}

// Registry records runs and their checkpoints. It is informational only and
// never selects or deletes checkpoint files.
type Registry interface {
	Connect(dsn string) (*sql.DB, error)
	Close() error
	InitSchema() error
	StartRun(config string) (*Run, error)
	RecordCheckpoint(rec *CheckpointRecord) error
	ListCheckpoints(runID uuid.UUID) ([]CheckpointRecord, error)
	ListRuns() ([]Run, error)
}
