package cv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluatePerfectPredictions(t *testing.T) {
	targets := []float64{1, 2, 3, 4}
	m, err := Evaluate(targets, targets)
	require.NoError(t, err)
	assert.Zero(t, m.RMSE)
	assert.Zero(t, m.MAE)
	assert.Equal(t, 1.0, m.R2)
	assert.Equal(t, 4, m.Count)
}

func TestEvaluateKnownValues(t *testing.T) {
	preds := []float64{2, 3, 5}
	targets := []float64{1, 3, 4}
	m, err := Evaluate(preds, targets)
	require.NoError(t, err)

	// errors are 1, 0, 1
	assert.InDelta(t, 0.816496580927726, m.RMSE, 1e-12) // sqrt(2/3)
	assert.InDelta(t, 2.0/3.0, m.MAE, 1e-12)
	// mean target 8/3, ss_tot = 14/3, ss_err = 2
	assert.InDelta(t, 1-2.0/(14.0/3.0), m.R2, 1e-12)
}

func TestEvaluateConstantTargets(t *testing.T) {
	m, err := Evaluate([]float64{1.1, 0.9}, []float64{1, 1})
	require.NoError(t, err)
	assert.Zero(t, m.R2)
	assert.Greater(t, m.RMSE, 0.0)
}

func TestEvaluateErrors(t *testing.T) {
	_, err := Evaluate([]float64{1}, []float64{1, 2})
	assert.Error(t, err)
	_, err = Evaluate(nil, nil)
	assert.Error(t, err)
}

func TestAggregate(t *testing.T) {
	folds := []Metrics{
		{RMSE: 1.0, MAE: 0.5, R2: 0.9, Count: 10},
		{RMSE: 3.0, MAE: 1.5, R2: 0.7, Count: 10},
	}
	s := Aggregate(folds)
	assert.InDelta(t, 2.0, s.Mean.RMSE, 1e-12)
	assert.InDelta(t, 1.0, s.Mean.MAE, 1e-12)
	assert.InDelta(t, 0.8, s.Mean.R2, 1e-12)
	assert.Equal(t, 20, s.Mean.Count)

	assert.InDelta(t, 1.0, s.Std.RMSE, 1e-12)
	assert.InDelta(t, 0.5, s.Std.MAE, 1e-12)
	assert.InDelta(t, 0.1, s.Std.R2, 1e-12)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil)
	assert.Zero(t, s.Mean.RMSE)
	assert.Zero(t, s.Std.RMSE)
}
