package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempCSV(t *testing.T, rows string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "dataset.csv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MOLGRAPH_SERVING_BASE_URL", "http://localhost:9100")

	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestPrepareCommand(t *testing.T) {
	path := writeTempCSV(t, "smiles,label\nCCO,1.5\nCCO,1.5\nnot_a_molecule,2.0\nc1ccccc1,0.3\n")

	out, err := execute(t, "prepare", path)
	require.NoError(t, err)

	var result prepareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 4, result.Load.Loaded)
	assert.Equal(t, 2, result.Retained)
	assert.Equal(t, 1, result.Filter.Invalid)
	assert.Equal(t, 1, result.Filter.Duplicates)
}

func TestPrepareCommandShowDropped(t *testing.T) {
	path := writeTempCSV(t, "smiles,label\nCCO,1.5\nCCO,1.5\n")

	out, err := execute(t, "prepare", path, "--show-dropped")
	require.NoError(t, err)

	var result prepareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	require.Len(t, result.Dropped, 1)
	assert.Equal(t, "duplicate", string(result.Dropped[0].Reason))
}

func TestPrepareCommandMissingFile(t *testing.T) {
	_, err := execute(t, "prepare", "/nonexistent/dataset.csv")
	require.Error(t, err)
}

func TestSplitCommand(t *testing.T) {
	var rows bytes.Buffer
	rows.WriteString("smiles,label\n")
	smiles := ""
	for i := 0; i < 40; i++ {
		smiles += "C"
		rows.WriteString(smiles + "," + jsonFloat(float64(i)) + "\n")
	}
	path := writeTempCSV(t, rows.String())

	out, err := execute(t, "split", path)
	require.NoError(t, err)

	var result splitOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 40, result.Records)
	assert.Equal(t, 10, result.Folds)
	require.Len(t, result.Preview, 10)
	for _, fp := range result.Preview {
		assert.Equal(t, 40, fp.Train+fp.Val+fp.Test)
		assert.Equal(t, 4, fp.Test)
		assert.Equal(t, 4, fp.Val)
	}
}

func TestRootCommandRequiresServingURL(t *testing.T) {
	t.Setenv("MOLGRAPH_SERVING_BASE_URL", "")

	cmd := NewRootCommand()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"prepare", "whatever.csv"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "serving.base_url")
}

func TestReportCommandRequiresStore(t *testing.T) {
	_, err := execute(t, "report", "some-run-id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres or minio")
}

func TestMigrateCommandRequiresHost(t *testing.T) {
	_, err := execute(t, "migrate", "status")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres.host")
}

func jsonFloat(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}
