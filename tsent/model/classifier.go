// Package model holds the sentiment classifier: a frozen pretrained encoder
// followed by a trainable softmax head.
package model

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/embedding"
)

// NumClasses is the number of sentiment classes (negative, positive).
const NumClasses = 2

var (
	// ErrShapeMismatch is returned when inputs, labels or parameters do not
	// fit the model's shapes.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrNotTraining is returned by Backward outside training mode or before
	// a training-mode Forward.
	ErrNotTraining = errors.New("model is not in training mode")
)

// Classifier maps token ids to class probabilities. Only the head trains;
// the encoder is treated as frozen.
type Classifier struct {
	Encoder embedding.Encoder
	Head    *Head

	training bool
	inputs   *mat.Dense
	probs    *mat.Dense
}

// New returns a classifier over enc with a freshly initialized head.
func New(enc embedding.Encoder, rng *rand.Rand) *Classifier {
	return &Classifier{
		Encoder: enc,
		Head:    NewHead(enc.Dimensions(), NumClasses, rng),
	}
}

func (c *Classifier) Train()         { c.training = true }
func (c *Classifier) Eval()          { c.training = false; c.inputs, c.probs = nil, nil }
func (c *Classifier) Training() bool { return c.training }

// Forward encodes the batch and returns an n x NumClasses matrix of
// probabilities. In training mode the pooled features and probabilities are
// kept for Backward.
func (c *Classifier) Forward(ctx context.Context, ids, masks [][]int64) (*mat.Dense, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty batch", ErrShapeMismatch)
	}
	pooled, err := c.Encoder.Encode(ctx, ids, masks)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	dims := c.Head.Dims()
	x := mat.NewDense(len(pooled), dims, nil)
	for i, v := range pooled {
		if len(v) != dims {
			return nil, fmt.Errorf("%w: encoder returned %d features, head expects %d", ErrShapeMismatch, len(v), dims)
		}
		row := x.RawRowView(i)
		for j, f := range v {
			row[j] = float64(f)
		}
	}

	probs := c.Head.logits(x)
	softmaxRows(probs)
	if c.training {
		c.inputs, c.probs = x, probs
	}
	return probs, nil
}

// Backward accumulates head gradients of the mean cross-entropy of the last
// training-mode Forward and returns that mean loss.
func (c *Classifier) Backward(labels []int) (float64, error) {
	if !c.training || c.probs == nil {
		return 0, ErrNotTraining
	}
	n, classes := c.probs.Dims()
	if len(labels) != n {
		return 0, fmt.Errorf("%w: %d labels for %d rows", ErrShapeMismatch, len(labels), n)
	}
	loss, err := Loss(c.probs, labels)
	if err != nil {
		return 0, err
	}

	// d(mean CE)/d(logits) = (p - onehot(y)) / n
	delta := mat.NewDense(n, classes, nil)
	delta.Copy(c.probs)
	for i, y := range labels {
		delta.Set(i, y, delta.At(i, y)-1)
	}
	delta.Scale(1/float64(n), delta)

	var gw mat.Dense
	gw.Mul(delta.T(), c.inputs)
	c.Head.gradW.Add(c.Head.gradW, &gw)
	for k := 0; k < classes; k++ {
		c.Head.gradB.SetVec(k, c.Head.gradB.AtVec(k)+mat.Sum(delta.ColView(k)))
	}
	c.inputs, c.probs = nil, nil
	return loss / float64(n), nil
}

// ZeroGrad clears accumulated gradients.
func (c *Classifier) ZeroGrad() {
	c.Head.gradW.Zero()
	c.Head.gradB.Zero()
}

// Step applies one plain SGD update with learning rate lr.
func (c *Classifier) Step(lr float64) {
	c.Head.W.Add(c.Head.W, scaled(c.Head.gradW, -lr))
	c.Head.B.AddScaledVec(c.Head.B, -lr, c.Head.gradB)
}

func scaled(m *mat.Dense, s float64) *mat.Dense {
	var out mat.Dense
	out.Scale(s, m)
	return &out
}

// Predict returns the arg-max class of every row.
func Predict(probs *mat.Dense) []int {
	n, _ := probs.Dims()
	out := make([]int, n)
	for i := 0; i < n; i++ {
		out[i] = floats.MaxIdx(probs.RawRowView(i))
	}
	return out
}

// probFloor keeps log finite for saturated probabilities.
const probFloor = 1e-12

// Loss returns the summed cross-entropy of probs against labels.
func Loss(probs *mat.Dense, labels []int) (float64, error) {
	n, classes := probs.Dims()
	if len(labels) != n {
		return 0, fmt.Errorf("%w: %d labels for %d rows", ErrShapeMismatch, len(labels), n)
	}
	var sum float64
	for i, y := range labels {
		if y < 0 || y >= classes {
			return 0, fmt.Errorf("%w: label %d outside [0,%d)", ErrShapeMismatch, y, classes)
		}
		sum -= math.Log(math.Max(probs.At(i, y), probFloor))
	}
	return sum, nil
}

func softmaxRows(m *mat.Dense) {
	n, _ := m.Dims()
	for i := 0; i < n; i++ {
		row := m.RawRowView(i)
		top := floats.Max(row)
		var z float64
		for k, v := range row {
			row[k] = math.Exp(v - top)
			z += row[k]
		}
		floats.Scale(1/z, row)
	}
}
