package embedding

import (
	"context"
	"errors"
	"strings"
)

// ErrMaskMismatch is returned when ids and masks disagree in shape.
var ErrMaskMismatch = errors.New("token ids and attention masks differ in shape")

// Encoder is the frozen pretrained encoder: it maps tokenized rows to one
// pooled fixed-dimension vector per row.
type Encoder interface {
	Dimensions() int
	Encode(ctx context.Context, ids, masks [][]int64) ([][]float32, error)
}

// NewEncoder selects an encoder by provider name ("hash", "onnx", "onnx:<ep>").
// modelPath is only used by the ONNX encoder. Unknown providers fall back to
// the deterministic hash encoder.
func NewEncoder(providerName string, dims int, modelPath string) Encoder {
	if dims <= 0 {
		dims = 768
	}
	name := strings.ToLower(strings.TrimSpace(providerName))
	switch {
	case name == "hash" || name == "" || name == "dev":
		return NewHashEncoder(dims)
	case strings.HasPrefix(name, "onnx"):
		if ep, ok := strings.CutPrefix(name, "onnx:"); ok {
			SetONNXExecutionProvider(ep)
		}
		return newONNXEncoder(dims, modelPath)
	default:
		return NewHashEncoder(dims)
	}
}

func checkShape(ids, masks [][]int64) error {
	if len(ids) != len(masks) {
		return ErrMaskMismatch
	}
	for i := range ids {
		if len(ids[i]) != len(masks[i]) {
			return ErrMaskMismatch
		}
	}
	return nil
}
