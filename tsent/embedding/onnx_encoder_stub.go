//go:build !onnx

package embedding

import (
	"context"
	"fmt"
)

// onnxEncoder is a stub used when built without the "onnx" build tag.
type onnxEncoder struct{ dims int }

func newONNXEncoder(dims int, modelPath string) Encoder { return &onnxEncoder{dims: dims} }

func (p *onnxEncoder) Dimensions() int { return p.dims }

func (p *onnxEncoder) Encode(ctx context.Context, ids, masks [][]int64) ([][]float32, error) {
	return nil, fmt.Errorf("onnx encoder not available: build with -tags onnx and provide a supported model")
}

// ListONNXProviders is a stub when the package is built without ONNX support.
func ListONNXProviders() ([]string, error) {
	return nil, fmt.Errorf("onnx support not built in; rebuild with -tags=onnx to enable")
}
