package model

import (
	"fmt"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// initStd matches the BERT initializer range for dense layers.
const initStd = 0.02

// Head is the trainable affine projection from pooled encoder features to
// class logits: logits = X·Wᵀ + b.
type Head struct {
	W *mat.Dense    // classes x dims
	B *mat.VecDense // classes

	gradW *mat.Dense
	gradB *mat.VecDense
}

// NewHead returns a head with normally initialized weights and zero bias.
func NewHead(dims, classes int, rng *rand.Rand) *Head {
	w := make([]float64, classes*dims)
	for i := range w {
		w[i] = rng.NormFloat64() * initStd
	}
	return &Head{
		W:     mat.NewDense(classes, dims, w),
		B:     mat.NewVecDense(classes, nil),
		gradW: mat.NewDense(classes, dims, nil),
		gradB: mat.NewVecDense(classes, nil),
	}
}

func (h *Head) Dims() int {
	_, c := h.W.Dims()
	return c
}

func (h *Head) Classes() int {
	r, _ := h.W.Dims()
	return r
}

// logits computes X·Wᵀ + b for an n x dims input.
func (h *Head) logits(x *mat.Dense) *mat.Dense {
	n, _ := x.Dims()
	out := mat.NewDense(n, h.Classes(), nil)
	out.Mul(x, h.W.T())
	for i := 0; i < n; i++ {
		row := out.RawRowView(i)
		for k := range row {
			row[k] += h.B.AtVec(k)
		}
	}
	return out
}

// Params returns copies of the weights (row-major) and bias.
func (h *Head) Params() (classes, dims int, w, b []float64) {
	classes, dims = h.W.Dims()
	w = make([]float64, classes*dims)
	for i := 0; i < classes; i++ {
		copy(w[i*dims:(i+1)*dims], h.W.RawRowView(i))
	}
	b = make([]float64, classes)
	for k := range b {
		b[k] = h.B.AtVec(k)
	}
	return classes, dims, w, b
}

// SetParams replaces the weights and bias. The shapes must match the head.
func (h *Head) SetParams(classes, dims int, w, b []float64) error {
	hc, hd := h.W.Dims()
	if classes != hc || dims != hd || len(w) != classes*dims || len(b) != classes {
		return fmt.Errorf("%w: head is %dx%d, params are %dx%d", ErrShapeMismatch, hc, hd, classes, dims)
	}
	h.W = mat.NewDense(classes, dims, append([]float64(nil), w...))
	h.B = mat.NewVecDense(classes, append([]float64(nil), b...))
	return nil
}
