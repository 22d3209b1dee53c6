package metrics

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccuracyAndF1(t *testing.T) {
	tests := []struct {
		name    string
		yTrue   []int
		yPred   []int
		wantAcc float64
	}{
		{name: "empty", yTrue: nil, yPred: nil, wantAcc: 0},
		{name: "all correct", yTrue: []int{0, 1, 1, 0}, yPred: []int{0, 1, 1, 0}, wantAcc: 1},
		{name: "all wrong", yTrue: []int{0, 1}, yPred: []int{1, 0}, wantAcc: 0},
		{name: "mixed", yTrue: []int{0, 1, 1, 0, 1}, yPred: []int{0, 1, 0, 0, 0}, wantAcc: 0.6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			acc, err := Accuracy(tt.yTrue, tt.yPred, 2)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAcc, acc, 1e-12)

			// single-label micro F1 equals accuracy
			f1, err := F1Micro(tt.yTrue, tt.yPred, 2)
			require.NoError(t, err)
			assert.InDelta(t, tt.wantAcc, f1, 1e-12)
			assert.True(t, f1 >= 0 && f1 <= 1)
		})
	}
}

func TestErrors(t *testing.T) {
	_, err := Accuracy([]int{0, 1}, []int{0}, 2)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	_, err = F1Micro([]int{0, 2}, []int{0, 1}, 2)
	assert.ErrorIs(t, err, ErrClassRange)

	c := NewConfusion(2)
	assert.ErrorIs(t, c.Add([]int{-1}, []int{0}), ErrClassRange)
	assert.Equal(t, 0, c.Total(), "rejected batches are not counted")
}

func TestConfusion_Accumulates(t *testing.T) {
	c := NewConfusion(2)
	require.NoError(t, c.Add([]int{0, 1}, []int{0, 0}))
	require.NoError(t, c.Add([]int{1, 1}, []int{1, 1}))

	assert.Equal(t, 4, c.Total())
	assert.Equal(t, [][]int{{1, 0}, {1, 2}}, c.Counts())
	assert.InDelta(t, 0.75, c.Accuracy(), 1e-12)
}

func TestClassificationReport(t *testing.T) {
	r, err := ClassificationReport([]int{0, 1, 1, 0, 1}, []int{0, 1, 0, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, r.Classes, 2)

	neg, pos := r.Classes[0], r.Classes[1]
	assert.InDelta(t, 2.0/4, neg.Precision, 1e-12)
	assert.InDelta(t, 1.0, neg.Recall, 1e-12)
	assert.Equal(t, 2, neg.Support)
	assert.InDelta(t, 1.0, pos.Precision, 1e-12)
	assert.InDelta(t, 1.0/3, pos.Recall, 1e-12)
	assert.InDelta(t, 0.5, pos.F1, 1e-12)
	assert.Equal(t, 3, pos.Support)

	out := r.String()
	assert.Contains(t, out, "precision")
	assert.Contains(t, out, "accuracy")
}
