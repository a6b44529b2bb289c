// Package model defines the message-passing network configuration and the
// client used to drive an external training and inference service.
package model

import (
	"github.com/qsarlab/molgraph/internal/graph"
	"github.com/qsarlab/molgraph/pkg/errors"
)

// Config describes the message-passing network with self-attention readout.
// It is serialised verbatim into training requests so the serving side
// builds exactly the network the run asked for.
type Config struct {
	// Depth is the number of directed-bond message passing steps.
	Depth int `json:"depth" mapstructure:"depth"`
	// HiddenDim is the width of bond and atom hidden states.
	HiddenDim int `json:"hidden_dim" mapstructure:"hidden_dim"`
	// AttentionHeads is the head count of the self-attention readout over
	// atom embeddings.
	AttentionHeads int `json:"attention_heads" mapstructure:"attention_heads"`
	// Dropout applies to message updates and the readout.
	Dropout float64 `json:"dropout" mapstructure:"dropout"`

	Epochs       int     `json:"epochs" mapstructure:"epochs"`
	BatchSize    int     `json:"batch_size" mapstructure:"batch_size"`
	LearningRate float64 `json:"learning_rate" mapstructure:"learning_rate"`

	// AtomFeatureDim and BondFeatureDim pin the input layer widths; they
	// must match the featurizer that built the graphs.
	AtomFeatureDim int `json:"atom_feature_dim" mapstructure:"atom_feature_dim"`
	BondFeatureDim int `json:"bond_feature_dim" mapstructure:"bond_feature_dim"`
}

func DefaultConfig() Config {
	return Config{
		Depth:          3,
		HiddenDim:      300,
		AttentionHeads: 4,
		Dropout:        0.1,
		Epochs:         30,
		BatchSize:      64,
		LearningRate:   1e-3,
		AtomFeatureDim: graph.AtomFeatureDim,
		BondFeatureDim: graph.BondFeatureDim,
	}
}

func (c Config) Validate() error {
	if c.Depth < 1 {
		return errors.Newf(errors.CodeInvalidParam, "depth must be positive, got %d", c.Depth)
	}
	if c.HiddenDim < 1 {
		return errors.Newf(errors.CodeInvalidParam, "hidden_dim must be positive, got %d", c.HiddenDim)
	}
	if c.AttentionHeads < 1 {
		return errors.Newf(errors.CodeInvalidParam, "attention_heads must be positive, got %d", c.AttentionHeads)
	}
	if c.HiddenDim%c.AttentionHeads != 0 {
		return errors.Newf(errors.CodeInvalidParam,
			"hidden_dim %d is not divisible by attention_heads %d", c.HiddenDim, c.AttentionHeads)
	}
	if c.Dropout < 0 || c.Dropout >= 1 {
		return errors.Newf(errors.CodeInvalidParam, "dropout must be in [0,1), got %g", c.Dropout)
	}
	if c.Epochs < 1 {
		return errors.Newf(errors.CodeInvalidParam, "epochs must be positive, got %d", c.Epochs)
	}
	if c.BatchSize < 1 {
		return errors.Newf(errors.CodeInvalidParam, "batch_size must be positive, got %d", c.BatchSize)
	}
	if c.LearningRate <= 0 {
		return errors.Newf(errors.CodeInvalidParam, "learning_rate must be positive, got %g", c.LearningRate)
	}
	if c.AtomFeatureDim != graph.AtomFeatureDim {
		return errors.Newf(errors.CodeInvalidParam,
			"atom_feature_dim %d does not match featurizer width %d", c.AtomFeatureDim, graph.AtomFeatureDim)
	}
	if c.BondFeatureDim != graph.BondFeatureDim {
		return errors.Newf(errors.CodeInvalidParam,
			"bond_feature_dim %d does not match featurizer width %d", c.BondFeatureDim, graph.BondFeatureDim)
	}
	return nil
}
