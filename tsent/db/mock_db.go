package db

import (
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockRegistry is an in-memory Registry.
type MockRegistry struct {
	mu          sync.Mutex
	runs        map[uuid.UUID]*Run
	checkpoints []CheckpointRecord
}

func NewMockRegistry() *MockRegistry {
	return &MockRegistry{runs: make(map[uuid.UUID]*Run)}
}

func (m *MockRegistry) Connect(dsn string) (*sql.DB, error) {
	return nil, nil // Not a real DB connection
}

func (m *MockRegistry) Close() error {
	return nil
}

func (m *MockRegistry) InitSchema() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = make(map[uuid.UUID]*Run)
	m.checkpoints = nil
	return nil
}

func (m *MockRegistry) StartRun(config string) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run := &Run{ID: uuid.New(), Config: config, StartedAt: time.Now().UTC()}
	m.runs[run.ID] = run
	cp := *run
	return &cp, nil
}

func (m *MockRegistry) RecordCheckpoint(rec *CheckpointRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.runs[rec.RunID]; !ok {
		return fmt.Errorf("run with ID %s not found", rec.RunID)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.TakenAt.IsZero() {
		rec.TakenAt = time.Now().UTC()
	}
	m.checkpoints = append(m.checkpoints, *rec)
	return nil
}

func (m *MockRegistry) ListCheckpoints(runID uuid.UUID) ([]CheckpointRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CheckpointRecord
	for _, rec := range m.checkpoints {
		if runID == uuid.Nil || rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *MockRegistry) ListRuns() ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Run, 0, len(m.runs))
	for _, r := range m.runs {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// Compile-time check to ensure both registries implement the interface.
var (
	_ Registry = (*MockRegistry)(nil)
	_ Registry = (*RunRegistry)(nil)
)
