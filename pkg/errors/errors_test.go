package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(CodeInvalidSMILES, "unclosed bracket atom")
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidSMILES, err.Code)
	assert.Equal(t, "[CHEM_001] unclosed bracket atom", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestWithDetail(t *testing.T) {
	err := New(CodeDatasetFormat, "bad row").WithDetail("row=17")
	assert.Equal(t, "[DATA_002] bad row: row=17", err.Error())

	var nilErr *AppError
	assert.Nil(t, nilErr.WithDetail("x"))
}

func TestWrap(t *testing.T) {
	cause := stderrors.New("disk gone")
	err := Wrap(cause, CodeDatasetRead, "failed to open dataset")
	require.NotNil(t, err)
	assert.Equal(t, CodeDatasetRead, err.Code)
	assert.True(t, stderrors.Is(err, cause))

	assert.Nil(t, Wrap(nil, CodeDatasetRead, "no-op"))
}

func TestWrapPreservesCodeForUnknown(t *testing.T) {
	inner := New(CodeUnmatchedRingBond, "ring bond 1 never closed")
	outer := Wrap(inner, CodeUnknown, "filter failed")
	assert.Equal(t, CodeUnmatchedRingBond, outer.Code)
}

func TestInvalidParam(t *testing.T) {
	err := InvalidParam("limit must be positive")
	require.NotNil(t, err)
	assert.Equal(t, CodeInvalidParam, err.Code)
	assert.True(t, IsCode(err, CodeInvalidParam))
	assert.NotEmpty(t, err.Stack)
}

func TestIsCode(t *testing.T) {
	inner := New(CodeRecordDuplicate, "duplicate SMILES")
	wrapped := fmt.Errorf("stage: %w", inner)
	assert.True(t, IsCode(wrapped, CodeRecordDuplicate))
	assert.False(t, IsCode(wrapped, CodeDatasetRead))
	assert.False(t, IsCode(nil, CodeRecordDuplicate))
}

func TestIsInvalidMolecule(t *testing.T) {
	for _, code := range []ErrorCode{CodeInvalidSMILES, CodeUnmatchedRingBond, CodeUnknownElement, CodeMultiFragment} {
		assert.True(t, IsInvalidMolecule(New(code, "bad molecule")), string(code))
	}
	assert.False(t, IsInvalidMolecule(New(CodeDatasetRead, "io error")))
	assert.False(t, IsInvalidMolecule(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, CodeOK, GetCode(nil))
	assert.Equal(t, CodeUnknown, GetCode(stderrors.New("plain")))
	assert.Equal(t, CodeSplitConfig, GetCode(New(CodeSplitConfig, "folds must be >= 2")))
}
