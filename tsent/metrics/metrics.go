// Package metrics computes classification metrics from label/prediction
// pairs.
package metrics

import (
	"errors"
	"fmt"
	"strings"
)

// ErrLengthMismatch is returned when labels and predictions differ in length.
var ErrLengthMismatch = errors.New("labels and predictions differ in length")

// ErrClassRange is returned for a label or prediction outside [0, classes).
var ErrClassRange = errors.New("class index out of range")

// Confusion accumulates a classes x classes confusion matrix; rows are true
// classes, columns predicted ones.
type Confusion struct {
	counts [][]int
	total  int
}

func NewConfusion(classes int) *Confusion {
	counts := make([][]int, classes)
	for i := range counts {
		counts[i] = make([]int, classes)
	}
	return &Confusion{counts: counts}
}

// Add records one batch of labels and predictions.
func (c *Confusion) Add(yTrue, yPred []int) error {
	if len(yTrue) != len(yPred) {
		return fmt.Errorf("%w: %d labels, %d predictions", ErrLengthMismatch, len(yTrue), len(yPred))
	}
	k := len(c.counts)
	for i := range yTrue {
		if yTrue[i] < 0 || yTrue[i] >= k || yPred[i] < 0 || yPred[i] >= k {
			return fmt.Errorf("%w: (%d, %d) with %d classes", ErrClassRange, yTrue[i], yPred[i], k)
		}
	}
	for i := range yTrue {
		c.counts[yTrue[i]][yPred[i]]++
	}
	c.total += len(yTrue)
	return nil
}

func (c *Confusion) Total() int { return c.total }

// Counts returns a copy of the matrix.
func (c *Confusion) Counts() [][]int {
	out := make([][]int, len(c.counts))
	for i, row := range c.counts {
		out[i] = append([]int(nil), row...)
	}
	return out
}

func (c *Confusion) correct() int {
	n := 0
	for i := range c.counts {
		n += c.counts[i][i]
	}
	return n
}

// Accuracy is the fraction of correct predictions; 0 when empty.
func (c *Confusion) Accuracy() float64 {
	if c.total == 0 {
		return 0
	}
	return float64(c.correct()) / float64(c.total)
}

// F1Micro pools true positives, false positives and false negatives over
// every class; 0 when empty.
func (c *Confusion) F1Micro() float64 {
	var tp, fp, fn int
	for k := range c.counts {
		tp += c.counts[k][k]
		fp += c.predicted(k) - c.counts[k][k]
		fn += c.support(k) - c.counts[k][k]
	}
	return f1(tp, fp, fn)
}

func (c *Confusion) support(k int) int {
	n := 0
	for _, v := range c.counts[k] {
		n += v
	}
	return n
}

func (c *Confusion) predicted(k int) int {
	n := 0
	for i := range c.counts {
		n += c.counts[i][k]
	}
	return n
}

func f1(tp, fp, fn int) float64 {
	denom := 2*tp + fp + fn
	if denom == 0 {
		return 0
	}
	return 2 * float64(tp) / float64(denom)
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}

// ClassReport holds the per-class scores.
type ClassReport struct {
	Class     int
	Precision float64
	Recall    float64
	F1        float64
	Support   int
}

// Report is the per-class breakdown plus the micro averages.
type Report struct {
	Classes  []ClassReport
	Accuracy float64
	F1Micro  float64
	Total    int
}

// Report computes the per-class precision, recall and F1.
func (c *Confusion) Report() Report {
	r := Report{Accuracy: c.Accuracy(), F1Micro: c.F1Micro(), Total: c.total}
	for k := range c.counts {
		tp := c.counts[k][k]
		r.Classes = append(r.Classes, ClassReport{
			Class:     k,
			Precision: ratio(tp, c.predicted(k)),
			Recall:    ratio(tp, c.support(k)),
			F1:        f1(tp, c.predicted(k)-tp, c.support(k)-tp),
			Support:   c.support(k),
		})
	}
	return r
}

func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%8s %10s %10s %10s %10s\n", "class", "precision", "recall", "f1-score", "support")
	for _, cr := range r.Classes {
		fmt.Fprintf(&b, "%8d %10.4f %10.4f %10.4f %10d\n", cr.Class, cr.Precision, cr.Recall, cr.F1, cr.Support)
	}
	fmt.Fprintf(&b, "%8s %10s %10s %10.4f %10d\n", "accuracy", "", "", r.Accuracy, r.Total)
	fmt.Fprintf(&b, "%8s %10s %10s %10.4f %10d\n", "micro", "", "", r.F1Micro, r.Total)
	return b.String()
}

// Accuracy of yPred against yTrue over classes classes.
func Accuracy(yTrue, yPred []int, classes int) (float64, error) {
	c := NewConfusion(classes)
	if err := c.Add(yTrue, yPred); err != nil {
		return 0, err
	}
	return c.Accuracy(), nil
}

// F1Micro of yPred against yTrue over classes classes.
func F1Micro(yTrue, yPred []int, classes int) (float64, error) {
	c := NewConfusion(classes)
	if err := c.Add(yTrue, yPred); err != nil {
		return 0, err
	}
	return c.F1Micro(), nil
}

// ClassificationReport of yPred against yTrue over classes classes.
func ClassificationReport(yTrue, yPred []int, classes int) (Report, error) {
	c := NewConfusion(classes)
	if err := c.Add(yTrue, yPred); err != nil {
		return Report{}, err
	}
	return c.Report(), nil
}
