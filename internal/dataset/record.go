// Package dataset loads, validates and deduplicates the SMILES-labelled
// tabular datasets the pipeline trains on.
package dataset

import (
	"github.com/google/uuid"
)

// Source tags where a dataset originated.
type Source string

const (
	SourceChEMBL Source = "chembl"
	SourceOCHEM  Source = "ochem"
)

// Property names the regression target a dataset carries.
type Property string

const (
	PropertyLipophilicity Property = "lipophilicity"
	PropertySolubility    Property = "solubility"
)

// Record is one molecule with its measured property value. Records are
// created at load time, possibly excluded during filtering, and never mutated
// afterwards.
type Record struct {
	// ID is a stable identifier assigned at load time.
	ID string `json:"id"`
	// SMILES is the normalised SMILES string; after filtering it is unique
	// within a dataset and guaranteed parseable.
	SMILES string `json:"smiles"`
	// Label is the scalar regression target.
	Label float64 `json:"label"`
	// Source tags the originating database.
	Source Source `json:"source"`
	// Row is the 1-based row number in the source file, for diagnostics.
	Row int `json:"row"`
}

// NewRecord constructs a record with a fresh identifier.
func NewRecord(smiles string, label float64, source Source, row int) Record {
	return Record{
		ID:     uuid.NewString(),
		SMILES: smiles,
		Label:  label,
		Source: source,
		Row:    row,
	}
}

// Dataset is a named collection of records sharing a property and source.
type Dataset struct {
	Name     string   `json:"name"`
	Property Property `json:"property"`
	Source   Source   `json:"source"`
	Records  []Record `json:"records"`
}

// Labels returns the label column as a slice, in record order.
func (d *Dataset) Labels() []float64 {
	out := make([]float64, len(d.Records))
	for i, r := range d.Records {
		out[i] = r.Label
	}
	return out
}
