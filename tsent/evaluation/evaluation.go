// Package evaluation scores a classifier over a batch iterator without
// updating it.
package evaluation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/batch"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/metrics"
	"github.com/ZanzyTHEbar/tweet-sentiment/tsent/model"
)

// Result summarizes one evaluation pass.
type Result struct {
	Accuracy float64
	F1Micro  float64
	// Loss is the summed cross-entropy over every evaluated example.
	Loss     float64
	Examples int
	Batches  int
	Dropped  int
	Report   metrics.Report
}

// Evaluate runs one sequential pass of it through m in eval mode. Examples
// the iterator drops are counted in Dropped and excluded from every metric.
func Evaluate(ctx context.Context, m *model.Classifier, it *batch.Iterator, logger zerolog.Logger) (Result, error) {
	m.Eval()
	it.Reset()

	conf := metrics.NewConfusion(model.NumClasses)
	var res Result
	for {
		b, ok := it.Next()
		if !ok {
			break
		}
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		probs, err := m.Forward(ctx, b.TokenIDs(), b.Masks())
		if err != nil {
			return Result{}, fmt.Errorf("evaluate batch %d: %w", res.Batches, err)
		}
		labels := b.Labels()
		loss, err := model.Loss(probs, labels)
		if err != nil {
			return Result{}, fmt.Errorf("evaluate batch %d: %w", res.Batches, err)
		}
		if err := conf.Add(labels, model.Predict(probs)); err != nil {
			return Result{}, fmt.Errorf("evaluate batch %d: %w", res.Batches, err)
		}
		res.Loss += loss
		res.Batches++
	}

	res.Examples = conf.Total()
	res.Dropped = it.Dropped()
	res.Accuracy = conf.Accuracy()
	res.F1Micro = conf.F1Micro()
	res.Report = conf.Report()

	logger.Debug().Msg("classification report\n" + res.Report.String())
	return res, nil
}
