// Package cv orchestrates stratified cross-validation runs: it filters a
// dataset, builds molecular graphs, assigns folds, drives the training
// backend for every round and aggregates the resulting metrics.
package cv

import (
	"math"

	"github.com/qsarlab/molgraph/pkg/errors"
)

// Metrics holds the regression scores for one fold's test set.
type Metrics struct {
	RMSE  float64 `json:"rmse"`
	MAE   float64 `json:"mae"`
	R2    float64 `json:"r2"`
	Count int     `json:"count"`
}

// Evaluate scores predictions against targets. R2 is reported as 0 when the
// targets are constant, since explained variance is undefined there.
func Evaluate(predictions, targets []float64) (Metrics, error) {
	if len(predictions) != len(targets) {
		return Metrics{}, errors.Newf(errors.CodeInvalidParam,
			"predictions and targets length mismatch: %d vs %d", len(predictions), len(targets))
	}
	if len(targets) == 0 {
		return Metrics{}, errors.InvalidParam("cannot evaluate empty prediction set")
	}

	n := float64(len(targets))
	var mean float64
	for _, t := range targets {
		mean += t
	}
	mean /= n

	var sqErr, absErr, sqTot float64
	for i, t := range targets {
		d := predictions[i] - t
		sqErr += d * d
		absErr += math.Abs(d)
		dt := t - mean
		sqTot += dt * dt
	}

	m := Metrics{
		RMSE:  math.Sqrt(sqErr / n),
		MAE:   absErr / n,
		Count: len(targets),
	}
	if sqTot > 0 {
		m.R2 = 1 - sqErr/sqTot
	}
	return m, nil
}

// Summary aggregates per-fold metrics as mean and standard deviation.
type Summary struct {
	Mean Metrics `json:"mean"`
	Std  Metrics `json:"std"`
}

// Aggregate summarises fold metrics. The standard deviation is the
// population deviation over the folds.
func Aggregate(folds []Metrics) Summary {
	var s Summary
	if len(folds) == 0 {
		return s
	}
	n := float64(len(folds))

	for _, m := range folds {
		s.Mean.RMSE += m.RMSE
		s.Mean.MAE += m.MAE
		s.Mean.R2 += m.R2
		s.Mean.Count += m.Count
	}
	s.Mean.RMSE /= n
	s.Mean.MAE /= n
	s.Mean.R2 /= n

	for _, m := range folds {
		s.Std.RMSE += (m.RMSE - s.Mean.RMSE) * (m.RMSE - s.Mean.RMSE)
		s.Std.MAE += (m.MAE - s.Mean.MAE) * (m.MAE - s.Mean.MAE)
		s.Std.R2 += (m.R2 - s.Mean.R2) * (m.R2 - s.Mean.R2)
	}
	s.Std.RMSE = math.Sqrt(s.Std.RMSE / n)
	s.Std.MAE = math.Sqrt(s.Std.MAE / n)
	s.Std.R2 = math.Sqrt(s.Std.R2 / n)
	return s
}
