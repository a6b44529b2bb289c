package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func recordsOf(smiles ...string) []Record {
	out := make([]Record, len(smiles))
	for i, s := range smiles {
		out[i] = NewRecord(s, float64(i), SourceChEMBL, i+2)
	}
	return out
}

func TestFilterKeepsValidMolecules(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply(recordsOf("CCO", "c1ccccc1", "CC(=O)O"))

	assert.Equal(t, 3, res.Stats.Retained)
	assert.Empty(t, res.Dropped)
	require.Len(t, res.Records, 3)
}

func TestFilterDropsInvalidSMILES(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply(recordsOf("CCO", "C1CC", "[Xx]", "CCN"))

	assert.Equal(t, 4, res.Stats.Input)
	assert.Equal(t, 2, res.Stats.Retained)
	assert.Equal(t, 2, res.Stats.Invalid)
	require.Len(t, res.Dropped, 2)
	for _, d := range res.Dropped {
		assert.Equal(t, DropInvalidSMILES, d.Reason)
		assert.NotEmpty(t, d.Detail)
	}
}

func TestFilterDropsMultiFragment(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply(recordsOf("CCO", "[Na+].[Cl-]"))

	assert.Equal(t, 1, res.Stats.Retained)
	assert.Equal(t, 1, res.Stats.MultiFragment)
	require.Len(t, res.Dropped, 1)
	assert.Equal(t, DropMultiFragment, res.Dropped[0].Reason)
}

func TestFilterDeduplicatesKeepFirst(t *testing.T) {
	recs := recordsOf("CCO", "CCN", "CCO", "CCO")
	f := NewFilter(nil)
	res := f.Apply(recs)

	assert.Equal(t, 2, res.Stats.Retained)
	assert.Equal(t, 2, res.Stats.Duplicates)
	require.Len(t, res.Records, 2)

	// the first CCO survives, identified by its row number
	assert.Equal(t, recs[0].Row, res.Records[0].Row)
	assert.Equal(t, "CCO", res.Records[0].SMILES)
	assert.Equal(t, "CCN", res.Records[1].SMILES)
}

func TestFilterNormalisesWhitespace(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply([]Record{NewRecord("  CCO ", 1.0, SourceOCHEM, 2)})

	require.Len(t, res.Records, 1)
	assert.Equal(t, "CCO", res.Records[0].SMILES)
}

func TestFilterStatsSumToInput(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply(recordsOf("CCO", "CCO", "C1CC", "[Na+].[Cl-]", "CCN"))

	s := res.Stats
	assert.Equal(t, s.Input, s.Retained+s.Invalid+s.MultiFragment+s.Duplicates)
}

func TestApplyToDatasetRewritesRecords(t *testing.T) {
	ds := &Dataset{Name: "d", Records: recordsOf("CCO", "CCO")}
	f := NewFilter(nil)
	res := f.ApplyToDataset(ds)

	assert.Equal(t, 1, res.Stats.Retained)
	assert.Len(t, ds.Records, 1)
}

func TestFilterEmptyInput(t *testing.T) {
	f := NewFilter(nil)
	res := f.Apply(nil)
	assert.Equal(t, 0, res.Stats.Input)
	assert.Empty(t, res.Records)
}
