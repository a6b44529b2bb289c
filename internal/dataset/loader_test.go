package dataset

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qsarlab/molgraph/pkg/errors"
)

func TestLoaderReadsHeadedCSV(t *testing.T) {
	csvData := "smiles,label\nCCO,0.57\nc1ccccc1,2.13\n"

	l := NewLoader(DefaultLoaderOptions(), nil)
	ds, stats, err := l.Load(strings.NewReader(csvData), "test.csv")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.Rows)
	assert.Equal(t, 2, stats.Loaded)
	require.Len(t, ds.Records, 2)

	assert.Equal(t, "CCO", ds.Records[0].SMILES)
	assert.InDelta(t, 0.57, ds.Records[0].Label, 1e-12)
	assert.Equal(t, SourceChEMBL, ds.Records[0].Source)
	assert.Equal(t, 2, ds.Records[0].Row)
	assert.NotEmpty(t, ds.Records[0].ID)
	assert.NotEqual(t, ds.Records[0].ID, ds.Records[1].ID)
}

func TestLoaderDropsBadRows(t *testing.T) {
	csvData := "smiles,label\n" +
		",1.0\n" + // blank SMILES
		"CCO,not-a-number\n" + // bad label
		"CCN,3.5\n"

	l := NewLoader(DefaultLoaderOptions(), nil)
	ds, stats, err := l.Load(strings.NewReader(csvData), "test.csv")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Rows)
	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 1, stats.MissingSMILES)
	assert.Equal(t, 1, stats.BadLabel)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, "CCN", ds.Records[0].SMILES)
	assert.Equal(t, 4, ds.Records[0].Row)
}

func TestLoaderCustomColumns(t *testing.T) {
	csvData := "molecule_chembl_id,Canonical_SMILES,Standard_Value\nCHEMBL25,CC(=O)O,1.2\n"

	l := NewLoader(LoaderOptions{
		SMILESColumn: "canonical_smiles",
		LabelColumn:  "standard_value",
		Source:       SourceChEMBL,
		Property:     PropertySolubility,
	}, nil)
	ds, _, err := l.Load(strings.NewReader(csvData), "chembl.csv")
	require.NoError(t, err)

	require.Len(t, ds.Records, 1)
	assert.Equal(t, "CC(=O)O", ds.Records[0].SMILES)
	assert.Equal(t, PropertySolubility, ds.Property)
}

func TestLoaderErrors(t *testing.T) {
	l := NewLoader(DefaultLoaderOptions(), nil)

	tests := []struct {
		name string
		csv  string
		code errors.ErrorCode
	}{
		{"empty input", "", errors.CodeDatasetEmpty},
		{"missing smiles column", "structure,label\nCCO,1\n", errors.CodeDatasetFormat},
		{"missing label column", "smiles,value\nCCO,1\n", errors.CodeDatasetFormat},
		{"only unusable rows", "smiles,label\n,1\n", errors.CodeDatasetEmpty},
		{"ragged row", "smiles,label\nCCO\n", errors.CodeDatasetFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := l.Load(strings.NewReader(tt.csv), "bad.csv")
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, tt.code), "got %v", err)
		})
	}
}

func TestLoadFileMissing(t *testing.T) {
	l := NewLoader(DefaultLoaderOptions(), nil)
	_, _, err := l.LoadFile("/nonexistent/path.csv")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeDatasetRead))
}

func TestDatasetLabels(t *testing.T) {
	ds := &Dataset{Records: []Record{
		{Label: 1.5}, {Label: -0.3},
	}}
	assert.Equal(t, []float64{1.5, -0.3}, ds.Labels())
}
