package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"
)

// hashEncoder gives every token id a fixed pseudo-embedding derived from its
// sha256 and mean-pools the unmasked tokens. It stands in for the pretrained
// encoder in development and tests.
type hashEncoder struct {
	dims int

	mu    sync.RWMutex
	table map[int64][]float32
}

func NewHashEncoder(dims int) *hashEncoder {
	if dims <= 0 {
		dims = 768
	}
	return &hashEncoder{dims: dims, table: make(map[int64][]float32)}
}

func (h *hashEncoder) Dimensions() int { return h.dims }

func (h *hashEncoder) Encode(ctx context.Context, ids, masks [][]int64) ([][]float32, error) {
	if err := checkShape(ids, masks); err != nil {
		return nil, err
	}
	out := make([][]float32, len(ids))
	for i, row := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec := make([]float32, h.dims)
		var n float32
		for j, id := range row {
			if masks[i][j] == 0 {
				continue
			}
			tok := h.token(id)
			for k := range vec {
				vec[k] += tok[k]
			}
			n++
		}
		if n > 0 {
			for k := range vec {
				vec[k] /= n
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (h *hashEncoder) token(id int64) []float32 {
	h.mu.RLock()
	vec, ok := h.table[id]
	h.mu.RUnlock()
	if ok {
		return vec
	}

	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], uint64(id))
	sum := sha256.Sum256(key[:])
	vec = make([]float32, h.dims)
	// repeat hash bytes to fill dims
	for j := 0; j < h.dims; j++ {
		b := sum[j%len(sum)]
		vec[j] = (float32(int(b)) - 128.0) / 128.0
	}

	h.mu.Lock()
	h.table[id] = vec
	h.mu.Unlock()
	return vec
}
