package model

import (
	"math"

	"github.com/qsarlab/molgraph/pkg/errors"
)

// Scaler standardises regression targets to zero mean and unit variance.
// It is fitted on the training fold only, so no validation or test
// information leaks into the scaling.
type Scaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// FitScaler computes the mean and standard deviation of values. A constant
// column gets Std 1 so Transform stays well defined.
func FitScaler(values []float64) (*Scaler, error) {
	if len(values) == 0 {
		return nil, errors.InvalidParam("cannot fit scaler on empty values")
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(values)))
	if std == 0 {
		std = 1
	}
	return &Scaler{Mean: mean, Std: std}, nil
}

// Transform returns the standardised copy of values.
func (s *Scaler) Transform(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = (v - s.Mean) / s.Std
	}
	return out
}

// Inverse maps standardised predictions back to the label scale.
func (s *Scaler) Inverse(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = v*s.Std + s.Mean
	}
	return out
}
