// Package checkpoint persists the classifier state after every epoch.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
)

// SchemaVersion is bumped whenever the on-disk layout changes.
const SchemaVersion = 1

// Ext is the checkpoint file extension.
const Ext = ".ckpt"

// ErrIncompatibleCheckpoint is returned for checkpoints written with a
// different schema version or for a different encoder.
var ErrIncompatibleCheckpoint = errors.New("incompatible checkpoint")

// EncoderInfo identifies the frozen encoder the head was trained on.
type EncoderInfo struct {
	Provider string `json:"provider"`
	Repo     string `json:"repo"`
	Dims     int    `json:"dims"`
}

// HeadState is the serialized classification head.
type HeadState struct {
	Classes int       `json:"classes"`
	Dims    int       `json:"dims"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

// Metrics are the validation results of the epoch that produced the
// checkpoint.
type Metrics struct {
	Accuracy float64 `json:"accuracy"`
	F1Micro  float64 `json:"f1_micro"`
	Loss     float64 `json:"loss"`
	Examples int     `json:"examples"`
	Dropped  int     `json:"dropped"`
}

// Checkpoint is the model state after one epoch. Optimizer state is not kept.
type Checkpoint struct {
	SchemaVersion int         `json:"schema_version"`
	ID            uuid.UUID   `json:"id"`
	RunID         uuid.UUID   `json:"run_id"`
	Epoch         int         `json:"epoch"`
	CreatedAt     time.Time   `json:"created_at"`
	Encoder       EncoderInfo `json:"encoder"`
	// Seed is the resolved training seed, enough to rebuild the same split.
	Seed       int64     `json:"seed,omitempty"`
	Head       HeadState `json:"head"`
	Validation Metrics   `json:"validation"`
}

// New captures the current head of m.
func New(runID uuid.UUID, epoch int, enc EncoderInfo, m *model.Classifier) *Checkpoint {
	classes, dims, w, b := m.Head.Params()
	return &Checkpoint{
		SchemaVersion: SchemaVersion,
		ID:            uuid.New(),
		RunID:         runID,
		Epoch:         epoch,
		CreatedAt:     time.Now().UTC(),
		Encoder:       enc,
		Head:          HeadState{Classes: classes, Dims: dims, Weights: w, Bias: b},
	}
}

// Matches reports whether a head trained on e can run on cur. Provider
// families are compared without the execution provider suffix, so a head
// trained with "onnx:cuda" loads under "onnx". Empty fields on either side
// are not compared.
func (e EncoderInfo) Matches(cur EncoderInfo) error {
	if a, b := providerFamily(e.Provider), providerFamily(cur.Provider); a != "" && b != "" && a != b {
		return fmt.Errorf("%w: trained on provider %q, current provider is %q", ErrIncompatibleCheckpoint, e.Provider, cur.Provider)
	}
	if e.Repo != "" && cur.Repo != "" && !strings.EqualFold(e.Repo, cur.Repo) {
		return fmt.Errorf("%w: trained on %s, current encoder is %s", ErrIncompatibleCheckpoint, e.Repo, cur.Repo)
	}
	if e.Dims != 0 && cur.Dims != 0 && e.Dims != cur.Dims {
		return fmt.Errorf("%w: trained on %d-dim encoder, current encoder has %d", ErrIncompatibleCheckpoint, e.Dims, cur.Dims)
	}
	return nil
}

func providerFamily(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	p, _, _ = strings.Cut(p, ":")
	if p == "dev" {
		return "hash"
	}
	return p
}

// Apply loads the saved head into m, whose encoder is described by enc.
func (c *Checkpoint) Apply(m *model.Classifier, enc EncoderInfo) error {
	if err := c.Encoder.Matches(enc); err != nil {
		return err
	}
	if m.Encoder != nil && c.Encoder.Dims != 0 && c.Encoder.Dims != m.Encoder.Dimensions() {
		return fmt.Errorf("%w: trained on %d-dim encoder, model has %d", ErrIncompatibleCheckpoint, c.Encoder.Dims, m.Encoder.Dimensions())
	}
	if err := m.Head.SetParams(c.Head.Classes, c.Head.Dims, c.Head.Weights, c.Head.Bias); err != nil {
		return fmt.Errorf("%w: %w", ErrIncompatibleCheckpoint, err)
	}
	return nil
}

// Path is <dir>/<prefix><epoch>.ckpt.
func Path(dir, prefix string, epoch int) string {
	return filepath.Join(dir, prefix+strconv.Itoa(epoch)+Ext)
}

// Save writes c to path, creating the directory if needed. The file is
// replaced atomically.
func Save(path string, c *Checkpoint) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load reads a checkpoint and rejects other schema versions.
func Load(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint %s: %w", path, err)
	}
	var c Checkpoint
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrIncompatibleCheckpoint, path, err)
	}
	if c.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: %s has schema version %d, want %d", ErrIncompatibleCheckpoint, path, c.SchemaVersion, SchemaVersion)
	}
	return &c, nil
}

// Entry is a checkpoint file found on disk.
type Entry struct {
	Path  string
	Epoch int
}

// List returns the <prefix><epoch>.ckpt files in dir ordered by epoch.
// A missing dir yields no entries.
func List(dir, prefix string) ([]Entry, error) {
	des, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	var out []Entry
	for _, de := range des {
		name := de.Name()
		if de.IsDir() || !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, Ext) {
			continue
		}
		epoch, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, prefix), Ext))
		if err != nil {
			continue
		}
		out = append(out, Entry{Path: filepath.Join(dir, name), Epoch: epoch})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Epoch < out[j].Epoch })
	return out, nil
}
