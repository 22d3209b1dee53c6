package checkpoint

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
)

func newModel(seed int64, dims int) *model.Classifier {
	return model.New(embedding.NewHashEncoder(dims), rand.New(rand.NewSource(seed)))
}

func TestPath(t *testing.T) {
	assert.Equal(t, filepath.Join("models", "sentiment0.ckpt"), Path("models", "sentiment", 0))
	assert.Equal(t, filepath.Join("out", "s12.ckpt"), Path("out", "s", 12))
}

func TestSaveLoadApply(t *testing.T) {
	src := newModel(1, 6)
	runID := uuid.New()
	enc := EncoderInfo{Provider: "hash", Repo: "bert-base-uncased", Dims: 6}

	ck := New(runID, 3, enc, src)
	ck.Validation = Metrics{Accuracy: 0.75, F1Micro: 0.75, Loss: 1.5, Examples: 8}
	path := Path(filepath.Join(t.TempDir(), "models"), "sentiment", 3)
	require.NoError(t, Save(path, ck))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, loaded.SchemaVersion)
	assert.Equal(t, ck.ID, loaded.ID)
	assert.Equal(t, runID, loaded.RunID)
	assert.Equal(t, 3, loaded.Epoch)
	assert.Equal(t, enc, loaded.Encoder)
	assert.Equal(t, ck.Validation, loaded.Validation)

	dst := newModel(2, 6)
	assert.NotEqual(t, src.Head.W.RawMatrix().Data, dst.Head.W.RawMatrix().Data)
	require.NoError(t, loaded.Apply(dst, EncoderInfo{Provider: "dev", Repo: "bert-base-uncased", Dims: 6}))
	assert.Equal(t, src.Head.W.RawMatrix().Data, dst.Head.W.RawMatrix().Data)
	assert.Equal(t, src.Head.B.RawVector().Data, dst.Head.B.RawVector().Data)
}

func TestLoad_Incompatible(t *testing.T) {
	dir := t.TempDir()

	old := New(uuid.New(), 0, EncoderInfo{Dims: 4}, newModel(1, 4))
	old.SchemaVersion = SchemaVersion + 1
	path := Path(dir, "sentiment", 0)
	require.NoError(t, Save(path, old))
	_, err := Load(path)
	assert.ErrorIs(t, err, ErrIncompatibleCheckpoint)

	garbage := filepath.Join(dir, "garbage.ckpt")
	require.NoError(t, os.WriteFile(garbage, []byte("not json"), 0o644))
	_, err = Load(garbage)
	assert.ErrorIs(t, err, ErrIncompatibleCheckpoint)

	_, err = Load(filepath.Join(dir, "missing.ckpt"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestApply_DimensionMismatch(t *testing.T) {
	ck := New(uuid.New(), 0, EncoderInfo{Dims: 4}, newModel(1, 4))
	err := ck.Apply(newModel(1, 8), EncoderInfo{})
	assert.ErrorIs(t, err, ErrIncompatibleCheckpoint)

	ck.Encoder.Dims = 0
	err = ck.Apply(newModel(1, 8), EncoderInfo{})
	assert.ErrorIs(t, err, ErrIncompatibleCheckpoint)
	assert.ErrorIs(t, err, model.ErrShapeMismatch)
}

func TestApply_EncoderIdentity(t *testing.T) {
	trained := EncoderInfo{Provider: "onnx", Repo: "bert-base-uncased", Dims: 8}

	tests := []struct {
		name    string
		current EncoderInfo
		wantErr bool
	}{
		{"same encoder", trained, false},
		{"execution provider suffix ignored", EncoderInfo{Provider: "onnx:cuda", Repo: "bert-base-uncased", Dims: 8}, false},
		{"repo case ignored", EncoderInfo{Provider: "ONNX", Repo: "BERT-base-uncased", Dims: 8}, false},
		{"unknown current encoder", EncoderInfo{}, false},
		{"different provider same width", EncoderInfo{Provider: "hash", Repo: "bert-base-uncased", Dims: 8}, true},
		{"different repo", EncoderInfo{Provider: "onnx", Repo: "distilbert-base-uncased", Dims: 8}, true},
		{"different width", EncoderInfo{Provider: "onnx", Repo: "bert-base-uncased", Dims: 16}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := newModel(1, 8)
			ck := New(uuid.New(), 0, trained, src)
			dst := newModel(2, 8)
			before := append([]float64(nil), dst.Head.W.RawMatrix().Data...)

			err := ck.Apply(dst, tt.current)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrIncompatibleCheckpoint)
				assert.Equal(t, before, dst.Head.W.RawMatrix().Data, "head left untouched")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, src.Head.W.RawMatrix().Data, dst.Head.W.RawMatrix().Data)
		})
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	for _, epoch := range []int{10, 2, 0} {
		require.NoError(t, Save(Path(dir, "sentiment", epoch), New(uuid.New(), epoch, EncoderInfo{}, newModel(1, 2))))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sentimentX.ckpt"), nil, 0o644))

	entries, err := List(dir, "sentiment")
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, []int{0, 2, 10}, []int{entries[0].Epoch, entries[1].Epoch, entries[2].Epoch})

	none, err := List(filepath.Join(dir, "nope"), "sentiment")
	require.NoError(t, err)
	assert.Empty(t, none)
}
